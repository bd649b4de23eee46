package service

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/digkill/designforge/internal/canvas"
	"github.com/digkill/designforge/internal/events"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
	"github.com/digkill/designforge/internal/storage"
)

const (
	minExportDPI = 72
	maxExportDPI = 600
)

// Uploader stores exported documents and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, folder string, data []byte, contentType string) (string, error)
}

// MockupView is a mockup together with its repaired canvas document.
type MockupView struct {
	*models.Mockup
	State canvas.State `json:"canvasState"`
}

type MockupService struct {
	store    *repository.Store
	uploader Uploader
	events   events.Publisher
	log      *slog.Logger
}

// NewMockupService builds the service. uploader may be nil, in which case
// exports point at the preview image.
func NewMockupService(store *repository.Store, uploader Uploader, publisher events.Publisher, log *slog.Logger) *MockupService {
	return &MockupService{store: store, uploader: uploader, events: publisher, log: log}
}

// Get returns the mockup with its canvas parsed against the owning design's image.
func (s *MockupService) Get(ctx context.Context, userID, mockupID string) (*MockupView, error) {
	mockup, design, err := s.loadOwned(ctx, userID, mockupID)
	if err != nil {
		return nil, err
	}
	state := canvas.Parse([]byte(mockup.CanvasState), canvas.Options{FallbackImageURL: design.ImageURL})
	return &MockupView{Mockup: mockup, State: state}, nil
}

// SaveState sanitizes raw, caps its layers and stores it. Saving always
// leaves the mockup READY.
func (s *MockupService) SaveState(ctx context.Context, userID, mockupID string, raw []byte) (*MockupView, error) {
	mockup, design, err := s.loadOwned(ctx, userID, mockupID)
	if err != nil {
		return nil, err
	}
	if !mockup.Status.CanTransitionTo(models.MockupReady) {
		return nil, invalidTransition("This mockup can no longer be edited.")
	}

	state := canvas.Parse(raw, canvas.Options{FallbackImageURL: design.ImageURL, MaxLayers: canvas.MaxLayers})
	doc, err := canvas.Marshal(state)
	if err != nil {
		return nil, err
	}

	mockup.CanvasState = doc
	mockup.GarmentType = string(state.GarmentType)
	mockup.GarmentColor = state.GarmentColor
	mockup.PreviewURL = canvas.PreviewURL(state, mockup.PreviewURL)
	mockup.Status = models.MockupReady
	if err := s.store.Mockups.Update(ctx, mockup); err != nil {
		return nil, err
	}
	return &MockupView{Mockup: mockup, State: state}, nil
}

// Export marks a saved mockup EXPORTED at the requested DPI. A zero dpi keeps
// the stored value.
func (s *MockupService) Export(ctx context.Context, userID, mockupID string, dpi int) (*MockupView, error) {
	mockup, design, err := s.loadOwned(ctx, userID, mockupID)
	if err != nil {
		return nil, err
	}
	if !mockup.Status.CanTransitionTo(models.MockupExported) {
		return nil, invalidTransition("Save the mockup before exporting it.")
	}
	if dpi == 0 {
		dpi = mockup.DPI
	}
	dpi = clampDPI(dpi)

	state := canvas.Parse([]byte(mockup.CanvasState), canvas.Options{FallbackImageURL: design.ImageURL, MaxLayers: canvas.MaxLayers})
	preview := canvas.PreviewURL(state, mockup.PreviewURL)

	printURL := printReadyURL(preview, dpi)
	if s.uploader != nil {
		doc, err := canvas.Marshal(state)
		if err != nil {
			return nil, err
		}
		printURL, err = s.uploader.Upload(ctx, storage.FolderExports, []byte(doc), "application/json")
		if err != nil {
			return nil, err
		}
	}

	mockup.DPI = dpi
	mockup.PreviewURL = preview
	mockup.PrintReadyURL = printURL
	mockup.Status = models.MockupExported
	if err := s.store.Mockups.Update(ctx, mockup); err != nil {
		return nil, err
	}

	if s.events != nil {
		payload := events.MockupPayload{UserID: userID, MockupID: mockup.ID, DesignID: design.ID, ExportURL: printURL}
		if err := s.events.Publish(ctx, events.MockupExported, payload); err != nil {
			s.log.Warn("publish event failed", "routing_key", events.MockupExported, "err", err)
		}
	}
	return &MockupView{Mockup: mockup, State: state}, nil
}

func (s *MockupService) loadOwned(ctx context.Context, userID, mockupID string) (*models.Mockup, *models.Design, error) {
	if userID == "" {
		return nil, nil, &Error{Code: CodeUnauthorized, Message: "Sign in to continue."}
	}
	mockup, err := s.store.Mockups.GetByID(ctx, mockupID)
	if err != nil {
		return nil, nil, err
	}
	if mockup == nil || mockup.UserID != userID {
		return nil, nil, notFound("Mockup")
	}
	design, err := s.store.Designs.GetByID(ctx, mockup.DesignID)
	if err != nil {
		return nil, nil, err
	}
	if design == nil {
		return nil, nil, notFound("Mockup")
	}
	return mockup, design, nil
}

func clampDPI(dpi int) int {
	if dpi < minExportDPI {
		return minExportDPI
	}
	if dpi > maxExportDPI {
		return maxExportDPI
	}
	return dpi
}

// printReadyURL tags the preview with print parameters when no uploader is configured.
func printReadyURL(preview string, dpi int) string {
	u, err := url.Parse(preview)
	if err != nil {
		return preview
	}
	q := u.Query()
	q.Set("format", "print")
	q.Set("dpi", strconv.Itoa(dpi))
	u.RawQuery = q.Encode()
	return u.String()
}
