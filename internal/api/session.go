package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/digkill/designforge/internal/models"
)

// SessionResolver maps a request to the signed-in user id.
type SessionResolver interface {
	CurrentUserID(r *http.Request) (string, bool)
}

// UserLookup confirms that a token subject still exists.
type UserLookup interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// JWTSessions issues and verifies HS256 bearer tokens whose sub claim is the user id.
type JWTSessions struct {
	secret []byte
	ttl    time.Duration
	users  UserLookup
}

func NewJWTSessions(secret string, ttl time.Duration, users UserLookup) *JWTSessions {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &JWTSessions{secret: []byte(secret), ttl: ttl, users: users}
}

// Issue signs a token for userID.
func (s *JWTSessions) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTSessions) CurrentUserID(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if header == "" || raw == header {
		return "", false
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", false
	}

	if s.users != nil {
		user, err := s.users.Get(r.Context(), claims.Subject)
		if err != nil || user == nil {
			return "", false
		}
	}
	return claims.Subject, true
}

type ctxKey struct{}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
