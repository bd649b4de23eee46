package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/digkill/designforge/internal/canvas"
	"github.com/digkill/designforge/internal/events"
	"github.com/digkill/designforge/internal/imagegen"
	"github.com/digkill/designforge/internal/metrics"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
)

type VariationAction string

const (
	ActionSave             VariationAction = "SAVE"
	ActionCreateMockup     VariationAction = "CREATE_MOCKUP"
	ActionCreateProduct    VariationAction = "CREATE_PRODUCT"
	ActionUpscale          VariationAction = "UPSCALE"
	ActionRemoveBackground VariationAction = "REMOVE_BACKGROUND"
)

const (
	LibraryRedirect     = "/dashboard/library"
	maxTransformHistory = 20
	defaultMockupDPI    = 300
)

type transformSpec struct {
	op      imagegen.Operation
	cost    int
	message string
}

var transforms = map[VariationAction]transformSpec{
	ActionUpscale:          {op: imagegen.OpUpscale, cost: 2, message: "Upscaled image is ready."},
	ActionRemoveBackground: {op: imagegen.OpRemoveBackground, cost: 1, message: "Background removed."},
}

// Cost returns the credits an action consumes.
func (a VariationAction) Cost() int {
	return transforms[a].cost
}

func parseVariationAction(raw string) (VariationAction, bool) {
	a := VariationAction(strings.ToUpper(strings.TrimSpace(raw)))
	switch a {
	case ActionSave, ActionCreateMockup, ActionCreateProduct, ActionUpscale, ActionRemoveBackground:
		return a, true
	}
	return "", false
}

type ActionRequest struct {
	Action       string `json:"action"`
	DesignID     string `json:"designId"`
	GenerationID string `json:"generationId"`
	VariationID  string `json:"variationId"`
	ImageURL     string `json:"imageUrl"`
}

type ActionResult struct {
	Action           VariationAction `json:"action"`
	Message          string          `json:"message"`
	ImageURL         string          `json:"imageUrl,omitempty"`
	DesignID         string          `json:"designId,omitempty"`
	MockupID         string          `json:"mockupId,omitempty"`
	ProductID        string          `json:"productId,omitempty"`
	RedirectPath     string          `json:"redirectPath,omitempty"`
	CreditsRemaining *int            `json:"creditsRemaining,omitempty"`
}

// ProductDefaults are applied to products created from a variation.
type ProductDefaults struct {
	Price    decimal.Decimal
	Currency string
}

type VariationService struct {
	store       *repository.Store
	ledger      *Ledger
	transformer imagegen.Transformer
	events      events.Publisher
	log         *slog.Logger
	product     ProductDefaults
	now         func() time.Time
}

func NewVariationService(store *repository.Store, ledger *Ledger, transformer imagegen.Transformer, publisher events.Publisher, log *slog.Logger, product ProductDefaults) *VariationService {
	if product.Currency == "" {
		product.Currency = "USD"
	}
	return &VariationService{
		store:       store,
		ledger:      ledger,
		transformer: transformer,
		events:      publisher,
		log:         log,
		product:     product,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Apply runs one action against a generated variation owned by userID.
func (s *VariationService) Apply(ctx context.Context, userID string, req ActionRequest) (*ActionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &Error{Code: CodeUnauthorized, Message: "Sign in to continue."}
	}
	req = ActionRequest{
		Action:       strings.TrimSpace(req.Action),
		DesignID:     strings.TrimSpace(req.DesignID),
		GenerationID: strings.TrimSpace(req.GenerationID),
		VariationID:  strings.TrimSpace(req.VariationID),
		ImageURL:     strings.TrimSpace(req.ImageURL),
	}
	if req.Action == "" || req.DesignID == "" || req.GenerationID == "" || req.VariationID == "" || req.ImageURL == "" {
		return nil, validationf("Action, design, generation, variation and image are all required.")
	}
	action, ok := parseVariationAction(req.Action)
	if !ok {
		return nil, validationf("Unknown action %q.", req.Action)
	}

	design, generation, err := s.loadOwned(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	var result *ActionResult
	switch action {
	case ActionSave:
		result, err = s.save(ctx, design, generation, req)
	case ActionCreateMockup:
		result, err = s.createMockup(ctx, design, req)
	case ActionCreateProduct:
		result, err = s.createProduct(ctx, design, req)
	default:
		result, err = s.transform(ctx, action, design, generation, req)
	}

	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(CodeOf(err)))
	}
	metrics.VariationActions.WithLabelValues(string(action), outcome).Inc()
	if err != nil {
		return nil, err
	}
	result.Action = action
	return result, nil
}

// loadOwned reads the design and generation and checks that the image is one
// of the generation's outputs or the design's current image. Foreign rows and
// missing rows are reported the same way.
func (s *VariationService) loadOwned(ctx context.Context, userID string, req ActionRequest) (*models.Design, *models.Generation, error) {
	design, err := s.store.Designs.GetByID(ctx, req.DesignID)
	if err != nil {
		return nil, nil, err
	}
	if design == nil || design.UserID != userID {
		return nil, nil, notFound("Design")
	}
	generation, err := s.store.Generations.GetByID(ctx, req.GenerationID)
	if err != nil {
		return nil, nil, err
	}
	if generation == nil || generation.DesignID != design.ID || generation.UserID != userID {
		return nil, nil, notFound("Design")
	}
	if req.ImageURL != design.ImageURL && !slices.Contains(generation.Outputs, req.ImageURL) {
		return nil, nil, notFound("Variation")
	}
	if design.Status.Absorbing() {
		return nil, nil, invalidTransition(fmt.Sprintf("This design is %s and can no longer be changed.", strings.ToLower(string(design.Status))))
	}
	return design, generation, nil
}

func (s *VariationService) save(ctx context.Context, source *models.Design, generation *models.Generation, req ActionRequest) (*ActionResult, error) {
	saved := &models.Design{
		ID:                uuid.NewString(),
		UserID:            source.UserID,
		Title:             source.Title,
		Prompt:            source.Prompt,
		StylePreset:       source.StylePreset,
		Colors:            source.Colors,
		ReferenceImageURL: source.ReferenceImageURL,
		ImageURL:          req.ImageURL,
		ThumbnailURL:      req.ImageURL,
		Status:            models.DesignDraft,
		Version:           1,
		Metadata: models.JSONMap{
			"sourceDesignId":     source.ID,
			"sourceGenerationId": generation.ID,
			"sourceVariationId":  req.VariationID,
			"sourceImageUrl":     req.ImageURL,
		},
	}
	if err := s.store.Designs.Create(ctx, saved); err != nil {
		return nil, err
	}
	return &ActionResult{
		Message:      "Saved to your library.",
		DesignID:     saved.ID,
		RedirectPath: LibraryRedirect,
	}, nil
}

func (s *VariationService) createMockup(ctx context.Context, design *models.Design, req ActionRequest) (*ActionResult, error) {
	state := canvas.Normalize(canvas.State{GarmentType: canvas.GarmentTShirt}, canvas.Options{
		FallbackImageURL: req.ImageURL,
		MaxLayers:        canvas.MaxLayers,
	})
	doc, err := canvas.Marshal(state)
	if err != nil {
		return nil, err
	}

	mockup := &models.Mockup{
		ID:           uuid.NewString(),
		UserID:       design.UserID,
		DesignID:     design.ID,
		GarmentType:  string(state.GarmentType),
		GarmentColor: state.GarmentColor,
		Status:       models.MockupReady,
		CanvasState:  doc,
		PreviewURL:   canvas.PreviewURL(state, ""),
		DPI:          defaultMockupDPI,
	}
	if err := s.store.Mockups.Create(ctx, mockup); err != nil {
		return nil, err
	}
	return &ActionResult{
		Message:      "Mockup created.",
		MockupID:     mockup.ID,
		RedirectPath: "/dashboard/mockups/" + mockup.ID,
	}, nil
}

func (s *VariationService) createProduct(ctx context.Context, design *models.Design, req ActionRequest) (*ActionResult, error) {
	product := &models.StoreProduct{
		ID:       uuid.NewString(),
		UserID:   design.UserID,
		DesignID: design.ID,
		Title:    design.Title,
		Price:    s.product.Price,
		Currency: s.product.Currency,
		Status:   models.ProductDraft,
		Images:   models.StringList{req.ImageURL},
	}
	err := s.store.Transact(ctx, func(tx *repository.Store) error {
		slug, err := allocateSlug(ctx, tx, design.UserID, design.Title, s.now())
		if err != nil {
			return err
		}
		product.Slug = slug
		return tx.Products.Create(ctx, product)
	})
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		Message:      "Draft product created.",
		ProductID:    product.ID,
		RedirectPath: "/dashboard/storefront/builder?product=" + product.ID,
	}, nil
}

func (s *VariationService) transform(ctx context.Context, action VariationAction, design *models.Design, source *models.Generation, req ActionRequest) (*ActionResult, error) {
	spec := transforms[action]
	cost := action.Cost()
	output, err := s.transformer.Transform(ctx, req.ImageURL, spec.op)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", spec.op, err)
	}

	now := s.now()
	generationID := uuid.NewString()
	var balance int

	err = s.store.Transact(ctx, func(tx *repository.Store) error {
		var err error
		balance, err = s.ledger.Consume(ctx, tx, design.UserID, cost)
		if err != nil {
			return err
		}

		err = tx.Generations.Create(ctx, &models.Generation{
			ID:             generationID,
			DesignID:       design.ID,
			UserID:         design.UserID,
			Prompt:         design.Prompt,
			VariationCount: 1,
			Outputs:        models.StringList{output},
			CostCredits:    cost,
			Status:         models.GenerationCompleted,
			Metadata: models.JSONMap{
				"action":             string(action),
				"sourceGenerationId": source.ID,
				"sourceVariationId":  req.VariationID,
				"sourceImageUrl":     req.ImageURL,
			},
			CompletedAt: &now,
		})
		if err != nil {
			return err
		}

		metadata := appendTransformHistory(design.Metadata, map[string]any{
			"action":             string(action),
			"sourceGenerationId": source.ID,
			"sourceVariationId":  req.VariationID,
			"sourceImageUrl":     req.ImageURL,
			"outputImageUrl":     output,
			"timestamp":          now.Format(time.RFC3339),
		})
		ok, err := tx.Designs.UpdateImage(ctx, design.ID, output, output, metadata, design.Version)
		if err != nil {
			return err
		}
		if !ok {
			return invalidTransition("The design changed while you were editing it. Refresh and try again.")
		}

		return s.ledger.RecordUsage(ctx, tx, UsageInput{
			UserID:       design.UserID,
			GenerationID: generationID,
			Cost:         cost,
			BalanceAfter: balance,
			Description:  fmt.Sprintf("%s variation %s", action, req.VariationID),
			Metadata:     models.JSONMap{"action": string(action), "designId": design.ID},
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditsConsumed.WithLabelValues(string(action)).Add(float64(cost))
	if s.events != nil {
		payload := events.DesignPayload{
			UserID:   design.UserID,
			DesignID: design.ID,
			Action:   string(action),
			ImageURL: output,
			Version:  design.Version + 1,
		}
		if err := s.events.Publish(ctx, events.DesignTransformed, payload); err != nil {
			s.log.Warn("publish event failed", "routing_key", events.DesignTransformed, "err", err)
		}
	}

	return &ActionResult{
		Message:          spec.message,
		ImageURL:         output,
		DesignID:         design.ID,
		CreditsRemaining: &balance,
	}, nil
}

// appendTransformHistory returns a copy of metadata with entry appended to
// transformHistory, keeping the newest maxTransformHistory entries.
func appendTransformHistory(metadata models.JSONMap, entry map[string]any) models.JSONMap {
	out := make(models.JSONMap, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}

	var history []any
	if existing, ok := metadata["transformHistory"].([]any); ok {
		history = append(history, existing...)
	}
	history = append(history, entry)
	if len(history) > maxTransformHistory {
		history = history[len(history)-maxTransformHistory:]
	}
	out["transformHistory"] = history
	return out
}
