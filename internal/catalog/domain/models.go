package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ModelKind distinguishes what a model produces; it drives the pricing base
// and how finished assets are persisted.
type ModelKind string

const (
	KindImage ModelKind = "image"
	KindVideo ModelKind = "video"
)

func ParseKind(s string) (ModelKind, bool) {
	switch ModelKind(s) {
	case KindImage:
		return KindImage, true
	case KindVideo:
		return KindVideo, true
	default:
		return "", false
	}
}

// AIModel is a catalog entry: a provider model reference plus the operator
// overlay that shapes its public parameter surface.
type AIModel struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id,string"`
	Slug        string       `gorm:"uniqueIndex;size:120" json:"slug"`
	Name        string       `gorm:"size:200" json:"name"`
	Description string       `json:"description,omitempty"`
	Kind        ModelKind    `gorm:"size:16" json:"kind"`

	// ProviderModel is the upstream reference in owner/name form.
	ProviderModel   string `gorm:"size:200" json:"provider_model"`
	ProviderVersion string `gorm:"size:128" json:"provider_version,omitempty"`

	RawSchema datatypes.JSON `json:"-"`
	UIConfig  datatypes.JSON `json:"-"`

	// SchemaVersionHash changes whenever RawSchema or UIConfig change;
	// clients key cached UI specs on it.
	SchemaVersionHash string `gorm:"size:64" json:"schema_version_hash"`

	CreditsPerGeneration int64  `json:"credits_per_generation"`
	IsActive             bool   `json:"is_active"`
	CoverImageURL        string `json:"cover_image_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AIModel) TableName() string { return "ai_models" }
