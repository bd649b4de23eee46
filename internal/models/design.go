package models

import (
	"strings"
	"time"
)

type StylePreset string

const (
	StyleStreetwear StylePreset = "STREETWEAR"
	StyleMinimalist StylePreset = "MINIMALIST"
	StyleVintage    StylePreset = "VINTAGE"
	StyleAnime      StylePreset = "ANIME"
	StyleRetro      StylePreset = "RETRO"
	StyleGrunge     StylePreset = "GRUNGE"
	StyleWatercolor StylePreset = "WATERCOLOR"
	StyleNeon       StylePreset = "NEON"
)

var stylePresets = []StylePreset{
	StyleStreetwear, StyleMinimalist, StyleVintage, StyleAnime,
	StyleRetro, StyleGrunge, StyleWatercolor, StyleNeon,
}

// StylePresets lists every accepted preset in display order.
func StylePresets() []StylePreset {
	return append([]StylePreset(nil), stylePresets...)
}

// ParseStylePreset matches case-insensitively and treats spaces and hyphens as
// underscores. An empty value yields MINIMALIST.
func ParseStylePreset(raw string) (StylePreset, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return StyleMinimalist, true
	}
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	for _, p := range stylePresets {
		if string(p) == key {
			return p, true
		}
	}
	return "", false
}

type DesignStatus string

const (
	DesignDraft     DesignStatus = "DRAFT"
	DesignGenerated DesignStatus = "GENERATED"
	DesignPublished DesignStatus = "PUBLISHED"
	DesignArchived  DesignStatus = "ARCHIVED"
	DesignFailed    DesignStatus = "FAILED"
)

// ARCHIVED and FAILED have no way out. PUBLISHED stays PUBLISHED when another
// product of the same design goes live.
var designTransitions = transitions[DesignStatus]{
	DesignDraft:     {DesignGenerated, DesignPublished, DesignArchived, DesignFailed},
	DesignGenerated: {DesignPublished, DesignArchived, DesignFailed},
	DesignPublished: {DesignPublished, DesignArchived},
}

func (s DesignStatus) CanTransitionTo(next DesignStatus) bool {
	return designTransitions.allows(s, next)
}

// Absorbing reports whether the design can no longer change.
func (s DesignStatus) Absorbing() bool {
	return len(designTransitions[s]) == 0
}

type Design struct {
	ID                string       `db:"id" json:"id"`
	UserID            string       `db:"user_id" json:"userId"`
	Title             string       `db:"title" json:"title"`
	Prompt            string       `db:"prompt" json:"prompt"`
	StylePreset       StylePreset  `db:"style_preset" json:"stylePreset"`
	Colors            StringList   `db:"colors" json:"colors"`
	ReferenceImageURL string       `db:"reference_image_url" json:"referenceImageUrl,omitempty"`
	ImageURL          string       `db:"image_url" json:"imageUrl"`
	ThumbnailURL      string       `db:"thumbnail_url" json:"thumbnailUrl"`
	Status            DesignStatus `db:"status" json:"status"`
	Version           int          `db:"version" json:"version"`
	Metadata          JSONMap      `db:"metadata" json:"metadata"`
	CreatedAt         time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updatedAt"`
}

type GenerationStatus string

const (
	GenerationQueued    GenerationStatus = "QUEUED"
	GenerationRunning   GenerationStatus = "RUNNING"
	GenerationCompleted GenerationStatus = "COMPLETED"
	GenerationFailed    GenerationStatus = "FAILED"
)

type Generation struct {
	ID             string           `db:"id" json:"id"`
	DesignID       string           `db:"design_id" json:"designId"`
	UserID         string           `db:"user_id" json:"userId"`
	Prompt         string           `db:"prompt" json:"prompt"`
	VariationCount int              `db:"variation_count" json:"variationCount"`
	Outputs        StringList       `db:"outputs" json:"outputs"`
	CostCredits    int              `db:"cost_credits" json:"costCredits"`
	Status         GenerationStatus `db:"status" json:"status"`
	Metadata       JSONMap          `db:"metadata" json:"metadata"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	CompletedAt    *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}
