package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/models"
)

type DesignRepository struct {
	db sqlx.ExtContext
}

const designColumns = `id, user_id, title, prompt, style_preset, colors, reference_image_url, image_url, thumbnail_url, status, version, metadata, created_at, updated_at`

func (r *DesignRepository) Create(ctx context.Context, d *models.Design) error {
	const query = `
INSERT INTO designs (id, user_id, title, prompt, style_preset, colors, reference_image_url, image_url, thumbnail_url, status, version, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if d.Version == 0 {
		d.Version = 1
	}
	ts := now()
	if _, err := exec(ctx, r.db, query, d.ID, d.UserID, d.Title, d.Prompt, d.StylePreset, d.Colors, d.ReferenceImageURL, d.ImageURL, d.ThumbnailURL, d.Status, d.Version, d.Metadata, ts, ts); err != nil {
		return fmt.Errorf("insert design: %w", err)
	}
	d.CreatedAt = ts
	d.UpdatedAt = ts
	return nil
}

func (r *DesignRepository) GetByID(ctx context.Context, id string) (*models.Design, error) {
	var d models.Design
	ok, err := getOne(ctx, r.db, &d, `SELECT `+designColumns+` FROM designs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get design: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *DesignRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Design, error) {
	var designs []models.Design
	query := r.db.Rebind(`SELECT ` + designColumns + ` FROM designs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &designs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list designs: %w", err)
	}
	return designs, nil
}

// UpdateImage swaps the design's image and metadata and bumps the version, but
// only while the stored version still equals expectedVersion and the design is
// neither archived nor failed.
func (r *DesignRepository) UpdateImage(ctx context.Context, id, imageURL, thumbnailURL string, metadata models.JSONMap, expectedVersion int) (bool, error) {
	const query = `
UPDATE designs
SET image_url = ?, thumbnail_url = ?, metadata = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ? AND status NOT IN (?, ?)`
	res, err := exec(ctx, r.db, query, imageURL, thumbnailURL, metadata, now(), id, expectedVersion, models.DesignArchived, models.DesignFailed)
	if err != nil {
		return false, fmt.Errorf("update design image: %w", err)
	}
	return affected(res)
}

// UpdateStatus moves the design from one status to another. It reports false
// when the stored status no longer equals from.
func (r *DesignRepository) UpdateStatus(ctx context.Context, id string, from, to models.DesignStatus) (bool, error) {
	const query = `UPDATE designs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := exec(ctx, r.db, query, to, now(), id, from)
	if err != nil {
		return false, fmt.Errorf("update design status: %w", err)
	}
	return affected(res)
}

func (r *DesignRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if _, err := getOne(ctx, r.db, &n, `SELECT COUNT(*) FROM designs WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("count designs: %w", err)
	}
	return n, nil
}
