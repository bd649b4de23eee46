package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/digkill/designforge/internal/canvas"
	"github.com/digkill/designforge/internal/events"
	"github.com/digkill/designforge/internal/imagegen"
	"github.com/digkill/designforge/internal/metrics"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
)

const (
	minPromptLength   = 8
	maxPromptLength   = 1000
	maxColors         = 6
	minVariationCount = 1
	maxVariationCount = 8
	maxTitleWords     = 6
	maxTitleLength    = 80
)

type GenerationRequest struct {
	Title             string   `json:"title"`
	Prompt            string   `json:"prompt"`
	StylePreset       string   `json:"stylePreset"`
	Colors            []string `json:"colors"`
	ReferenceImageURL string   `json:"referenceImageUrl"`
	VariationCount    int      `json:"variationCount"`
}

type VariationResult struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
	Status   string `json:"status"`
}

type GenerationResult struct {
	DesignID         string            `json:"designId"`
	GenerationID     string            `json:"generationId"`
	Results          []VariationResult `json:"results"`
	CreditsRemaining int               `json:"creditsRemaining"`
}

// normalizedRequest is a GenerationRequest after validation.
type normalizedRequest struct {
	title     string
	prompt    string
	style     models.StylePreset
	colors    []string
	reference string
	count     int
}

type GenerationService struct {
	store  *repository.Store
	ledger *Ledger
	images imagegen.Synthesizer
	events events.Publisher
	log    *slog.Logger
}

func NewGenerationService(store *repository.Store, ledger *Ledger, images imagegen.Synthesizer, publisher events.Publisher, log *slog.Logger) *GenerationService {
	return &GenerationService{store: store, ledger: ledger, images: images, events: publisher, log: log}
}

// Generate validates req, synthesizes the variations and then debits the
// credits and stores the design, generation and usage entry in one transaction.
func (s *GenerationService) Generate(ctx context.Context, userID string, req GenerationRequest) (*GenerationResult, error) {
	started := time.Now()
	if strings.TrimSpace(userID) == "" {
		return nil, &Error{Code: CodeUnauthorized, Message: "Sign in to generate designs."}
	}
	norm, err := normalizeGenerationRequest(req)
	if err != nil {
		return nil, err
	}

	urls, err := s.images.Synthesize(ctx, imagegen.Request{
		Prompt:       norm.prompt,
		Style:        string(norm.style),
		Colors:       norm.colors,
		ReferenceURL: norm.reference,
		Count:        norm.count,
	})
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if len(urls) != norm.count {
		metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("synthesize: got %d images, want %d", len(urls), norm.count)
	}

	designID := uuid.NewString()
	generationID := uuid.NewString()
	var balance int

	err = s.store.Transact(ctx, func(tx *repository.Store) error {
		var err error
		balance, err = s.ledger.Consume(ctx, tx, userID, norm.count)
		if err != nil {
			return err
		}

		design := &models.Design{
			ID:                designID,
			UserID:            userID,
			Title:             norm.title,
			Prompt:            norm.prompt,
			StylePreset:       norm.style,
			Colors:            models.StringList(norm.colors),
			ReferenceImageURL: norm.reference,
			ImageURL:          urls[0],
			ThumbnailURL:      urls[0],
			Status:            models.DesignGenerated,
			Version:           1,
			Metadata:          models.JSONMap{"variations": urls},
		}
		if err := tx.Designs.Create(ctx, design); err != nil {
			return err
		}

		completed := time.Now().UTC()
		generation := &models.Generation{
			ID:             generationID,
			DesignID:       designID,
			UserID:         userID,
			Prompt:         norm.prompt,
			VariationCount: norm.count,
			Outputs:        models.StringList(urls),
			CostCredits:    norm.count,
			Status:         models.GenerationCompleted,
			Metadata:       models.JSONMap{"stylePreset": string(norm.style), "colors": norm.colors},
			CompletedAt:    &completed,
		}
		if err := tx.Generations.Create(ctx, generation); err != nil {
			return err
		}

		return s.ledger.RecordUsage(ctx, tx, UsageInput{
			UserID:       userID,
			GenerationID: generationID,
			Cost:         norm.count,
			BalanceAfter: balance,
			Description:  fmt.Sprintf("Generated %d variation(s)", norm.count),
			Metadata:     models.JSONMap{"action": "GENERATE", "designId": designID},
		})
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			metrics.GenerationsTotal.WithLabelValues("insufficient_credits").Inc()
		} else {
			metrics.GenerationsTotal.WithLabelValues("failed").Inc()
		}
		return nil, err
	}

	metrics.GenerationsTotal.WithLabelValues("completed").Inc()
	metrics.CreditsConsumed.WithLabelValues("GENERATE").Add(float64(norm.count))
	metrics.GenerationDuration.Observe(time.Since(started).Seconds())

	results := make([]VariationResult, 0, len(urls))
	for i, u := range urls {
		results = append(results, VariationResult{ID: variationID(generationID, i), ImageURL: u, Status: "completed"})
	}

	s.publish(ctx, events.GenerationCompleted, events.GenerationPayload{
		UserID:       userID,
		DesignID:     designID,
		GenerationID: generationID,
		Credits:      norm.count,
		Variations:   urls,
	})

	return &GenerationResult{
		DesignID:         designID,
		GenerationID:     generationID,
		Results:          results,
		CreditsRemaining: balance,
	}, nil
}

// Library lists the user's newest designs.
func (s *GenerationService) Library(ctx context.Context, userID string, limit int) ([]models.Design, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &Error{Code: CodeUnauthorized, Message: "Sign in to continue."}
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 20
	}
	return s.store.Designs.ListByUser(ctx, userID, limit)
}

func (s *GenerationService) publish(ctx context.Context, key string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, key, payload); err != nil {
		s.log.Warn("publish event failed", "routing_key", key, "err", err)
	}
}

func variationID(generationID string, index int) string {
	return fmt.Sprintf("%s-%d", generationID, index+1)
}

func normalizeGenerationRequest(req GenerationRequest) (normalizedRequest, error) {
	prompt := strings.TrimSpace(req.Prompt)
	n := utf8.RuneCountInString(prompt)
	if n < minPromptLength {
		return normalizedRequest{}, validationf("Describe your design in at least %d characters.", minPromptLength)
	}
	if n > maxPromptLength {
		return normalizedRequest{}, validationf("Prompts are limited to %d characters.", maxPromptLength)
	}

	// Unknown presets fall back to the default rather than failing the request.
	style, ok := models.ParseStylePreset(req.StylePreset)
	if !ok {
		style = models.StyleMinimalist
	}

	colors, err := normalizeColors(req.Colors)
	if err != nil {
		return normalizedRequest{}, err
	}

	reference := strings.TrimSpace(req.ReferenceImageURL)
	if reference != "" && !isHTTPURL(reference) {
		return normalizedRequest{}, validationf("Reference image must be an http(s) URL.")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = titleFromPrompt(prompt)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		title = string([]rune(title)[:maxTitleLength])
	}

	return normalizedRequest{
		title:     title,
		prompt:    prompt,
		style:     style,
		colors:    colors,
		reference: reference,
		count:     clampVariationCount(req.VariationCount),
	}, nil
}

func clampVariationCount(n int) int {
	if n < minVariationCount {
		return minVariationCount
	}
	if n > maxVariationCount {
		return maxVariationCount
	}
	return n
}

func normalizeColors(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if strings.TrimSpace(c) == "" {
			continue
		}
		hex, ok := canvas.NormalizeHex(c)
		if !ok {
			return nil, validationf("%q is not a valid hex color.", strings.TrimSpace(c))
		}
		if seen[hex] {
			continue
		}
		seen[hex] = true
		out = append(out, hex)
	}
	if len(out) == 0 {
		return nil, validationf("Pick at least one color.")
	}
	if len(out) > maxColors {
		return nil, validationf("Pick at most %d colors.", maxColors)
	}
	return out, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// titleFromPrompt turns the first words of a prompt into a display title.
func titleFromPrompt(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}
