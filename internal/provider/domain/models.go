package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Replicate is the default and currently only generation provider.
const Replicate = "replicate"

// ProviderConfig stores one provider's credentials. Config is an AES-GCM
// envelope (version, nonce, ciphertext); the API key never lands in the
// database as plaintext.
type ProviderConfig struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider  string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_provider_configs_provider"`
	Config    datatypes.JSON `json:"-" gorm:"not null"`
	IsActive  bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProviderConfig) TableName() string { return "provider_configs" }

var (
	ErrProviderNotFound     = errors.New("provider not found")
	ErrProviderNotActive    = errors.New("provider not active")
	ErrEncryptionKeyMissing = errors.New("provider encryption key missing")
	ErrInvalidConfig        = errors.New("invalid provider config")
	ErrSchemaFetch          = errors.New("provider schema fetch failed")
	ErrSubmitFailed         = errors.New("provider submit failed")
)
