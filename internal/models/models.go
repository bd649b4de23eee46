package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type PlanTier string

const (
	PlanFree   PlanTier = "FREE"
	PlanPro    PlanTier = "PRO"
	PlanStudio PlanTier = "STUDIO"
)

// MonthlyCredits is the allotment each tier is refilled to.
func (p PlanTier) MonthlyCredits() int {
	switch p {
	case PlanPro:
		return 500
	case PlanStudio:
		return 2000
	default:
		return 50
	}
}

type User struct {
	ID          string    `db:"id" json:"id"`
	Email       *string   `db:"email" json:"email,omitempty"`
	DisplayName string    `db:"display_name" json:"displayName"`
	TelegramID  *int64    `db:"telegram_id" json:"telegramId,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

type Subscription struct {
	UserID           string    `db:"user_id" json:"userId"`
	PlanTier         PlanTier  `db:"plan_tier" json:"planTier"`
	MonthlyCredits   int       `db:"monthly_credits" json:"monthlyCredits"`
	RemainingCredits int       `db:"remaining_credits" json:"remainingCredits"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// CreditUsageEntry is an append-only ledger line. Delta is negative for
// consumption and positive for top-ups and refills.
type CreditUsageEntry struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"userId"`
	GenerationID *string   `db:"generation_id" json:"generationId,omitempty"`
	Delta        int       `db:"delta" json:"delta"`
	BalanceAfter int       `db:"balance_after" json:"balanceAfter"`
	Description  string    `db:"description" json:"description"`
	Metadata     JSONMap   `db:"metadata" json:"metadata"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type PromoCode struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	MaxUses      int       `db:"max_uses" json:"maxUses"`
	Uses         int       `db:"uses" json:"uses"`
	BonusCredits int       `db:"bonus_credits" json:"bonusCredits"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// JSONMap is a JSON object stored in a TEXT column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("marshal json map: %w", err)
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	raw, err := textBytes(src)
	if err != nil {
		return err
	}
	out := JSONMap{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("scan json map: %w", err)
		}
	}
	*m = out
	return nil
}

// StringList is a JSON array of strings stored in a TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	raw, err := textBytes(src)
	if err != nil {
		return err
	}
	out := StringList{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("scan string list: %w", err)
		}
	}
	*l = out
	return nil
}

func textBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", src)
	}
}
