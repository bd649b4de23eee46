package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, ""},
		{validationf("bad"), CodeValidation},
		{fmt.Errorf("wrapped: %w", notFound("Design")), CodeNotFound},
		{&InsufficientCreditsError{Required: 6, Available: 5}, CodeInsufficientCredits},
		{invalidTransition("no"), CodeInvalidTransition},
		{errors.New("connection refused"), CodeServerError},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Fatalf("CodeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	if got := PublicMessage(errors.New("dial tcp 10.0.0.5:3306: refused")); got != serverErrorMessage {
		t.Fatalf("PublicMessage leaked %q", got)
	}
	if got := PublicMessage(&Error{Code: CodeServerError, Message: "secret", Err: errors.New("x")}); got != serverErrorMessage {
		t.Fatalf("PublicMessage leaked server message %q", got)
	}
	if got := PublicMessage(fmt.Errorf("tx: %w", &InsufficientCreditsError{Required: 6, Available: 5})); got != "This action needs 6 credits but only 5 are available." {
		t.Fatalf("PublicMessage = %q", got)
	}
	if got := PublicMessage(validationf("Pick at least one color.")); got != "Pick at least one color." {
		t.Fatalf("PublicMessage = %q", got)
	}
}

func TestInsufficientCreditsMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("consume: %w", &InsufficientCreditsError{Required: 2, Available: 1})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatal("errors.Is should match ErrInsufficientCredits")
	}
}
