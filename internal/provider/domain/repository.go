package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, cfg *ProviderConfig) error
	FindByProvider(ctx context.Context, db *gorm.DB, provider string) (*ProviderConfig, error)
	List(ctx context.Context, db *gorm.DB) ([]ProviderConfig, error)
}
