package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/digkill/designforge/internal/events"
	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
)

type ProductService struct {
	store  *repository.Store
	events events.Publisher
	log    *slog.Logger
}

func NewProductService(store *repository.Store, publisher events.Publisher, log *slog.Logger) *ProductService {
	return &ProductService{store: store, events: publisher, log: log}
}

// Publish makes a product ACTIVE and marks its design PUBLISHED.
func (s *ProductService) Publish(ctx context.Context, userID, productID string) (*models.StoreProduct, error) {
	return s.move(ctx, userID, productID, models.ProductActive)
}

func (s *ProductService) Archive(ctx context.Context, userID, productID string) (*models.StoreProduct, error) {
	return s.move(ctx, userID, productID, models.ProductArchived)
}

func (s *ProductService) move(ctx context.Context, userID, productID string, to models.ProductStatus) (*models.StoreProduct, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &Error{Code: CodeUnauthorized, Message: "Sign in to manage products."}
	}

	var (
		product *models.StoreProduct
		from    models.ProductStatus
	)
	err := s.store.Transact(ctx, func(tx *repository.Store) error {
		var err error
		product, err = tx.Products.GetByID(ctx, strings.TrimSpace(productID))
		if err != nil {
			return err
		}
		if product == nil || product.UserID != userID {
			return notFound("Product")
		}
		if !product.Status.CanTransitionTo(to) {
			return invalidTransition(fmt.Sprintf("A %s product cannot become %s.", strings.ToLower(string(product.Status)), strings.ToLower(string(to))))
		}

		ok, err := tx.Products.UpdateStatus(ctx, product.ID, product.Status, to)
		if err != nil {
			return err
		}
		if !ok {
			return invalidTransition("The product changed while you were updating it. Refresh and try again.")
		}
		if to == models.ProductActive {
			if err := publishDesign(ctx, tx, product.DesignID); err != nil {
				return err
			}
		}
		from = product.Status
		product.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		payload := events.StatusPayload{ID: product.ID, UserID: userID, From: string(from), To: string(to)}
		if err := s.events.Publish(ctx, events.ProductStatusChange, payload); err != nil {
			s.log.Warn("publish event failed", "routing_key", events.ProductStatusChange, "err", err)
		}
	}
	return product, nil
}

// publishDesign marks the product's design PUBLISHED inside tx.
func publishDesign(ctx context.Context, tx *repository.Store, designID string) error {
	design, err := tx.Designs.GetByID(ctx, designID)
	if err != nil {
		return err
	}
	if design == nil {
		return notFound("Design")
	}
	if !design.Status.CanTransitionTo(models.DesignPublished) {
		return invalidTransition(fmt.Sprintf("A %s design cannot be published.", strings.ToLower(string(design.Status))))
	}
	ok, err := tx.Designs.UpdateStatus(ctx, design.ID, design.Status, models.DesignPublished)
	if err != nil {
		return err
	}
	if !ok {
		return invalidTransition("The design changed while you were publishing it. Refresh and try again.")
	}
	return nil
}
