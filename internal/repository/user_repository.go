package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/designforge/internal/models"
)

type UserRepository struct {
	db sqlx.ExtContext
}

const userColumns = `id, email, display_name, telegram_id, created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	ok, err := getOne(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var u models.User
	ok, err := getOne(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("find user by telegram id: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `
INSERT INTO users (id, email, display_name, telegram_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`
	ts := now()
	if _, err := exec(ctx, r.db, query, user.ID, user.Email, user.DisplayName, user.TelegramID, ts, ts); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	user.CreatedAt = ts
	user.UpdatedAt = ts
	return nil
}

func (r *UserRepository) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	const query = `UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`
	if _, err := exec(ctx, r.db, query, displayName, now(), userID); err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &users, query, limit); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListTelegramIDs returns the chat ids of every user linked to Telegram.
func (r *UserRepository) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT telegram_id FROM users WHERE telegram_id IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	return ids, nil
}
