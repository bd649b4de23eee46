package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/digkill/designforge/internal/models"
	"github.com/digkill/designforge/internal/repository"
)

type UserService struct {
	store *repository.Store
}

func NewUserService(store *repository.Store) *UserService {
	return &UserService{store: store}
}

// EnsureTelegram returns the user linked to telegramID, creating it on first
// contact. created reports whether a new user was made.
func (s *UserService) EnsureTelegram(ctx context.Context, telegramID int64, displayName string) (*models.User, bool, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = fmt.Sprintf("tg-%d", telegramID)
	}

	var (
		user    *models.User
		created bool
	)
	err := s.store.Transact(ctx, func(tx *repository.Store) error {
		var err error
		user, err = tx.Users.FindByTelegramID(ctx, telegramID)
		if err != nil {
			return err
		}
		if user != nil {
			if user.DisplayName != displayName {
				user.DisplayName = displayName
				return tx.Users.UpdateDisplayName(ctx, user.ID, displayName)
			}
			return nil
		}
		id := telegramID
		user = &models.User{ID: uuid.NewString(), DisplayName: displayName, TelegramID: &id}
		created = true
		return tx.Users.Create(ctx, user)
	})
	if err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	return user, created, nil
}

// Create registers a user by email.
func (s *UserService) Create(ctx context.Context, email, displayName string) (*models.User, error) {
	user := &models.User{ID: uuid.NewString(), DisplayName: strings.TrimSpace(displayName)}
	if email = strings.TrimSpace(email); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil {
			return nil, validationf("%q is not a valid email address.", email)
		}
		user.Email = &addr.Address
		if user.DisplayName == "" {
			user.DisplayName = strings.SplitN(addr.Address, "@", 2)[0]
		}
	}
	if user.DisplayName == "" {
		return nil, validationf("A display name or email is required.")
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.store.Users.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.Users.List(ctx, limit)
}

func (s *UserService) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	return s.store.Users.ListTelegramIDs(ctx)
}
