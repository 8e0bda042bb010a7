package repository

import (
	"context"

	"gorm.io/gorm"

	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
)

type repo struct{}

func Provide() providerdomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, cfg *providerdomain.ProviderConfig) error {
	existing, err := r.FindByProvider(ctx, db, cfg.Provider)
	if err != nil {
		return err
	}
	if existing == nil {
		return db.WithContext(ctx).Exec(
			`INSERT INTO provider_configs (id, provider, config, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			cfg.ID,
			cfg.Provider,
			cfg.Config,
			cfg.IsActive,
			cfg.CreatedAt,
			cfg.UpdatedAt,
		).Error
	}

	cfg.ID = existing.ID
	return db.WithContext(ctx).Exec(
		`UPDATE provider_configs SET config = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		cfg.Config,
		cfg.IsActive,
		cfg.UpdatedAt,
		cfg.ID,
	).Error
}

func (r *repo) FindByProvider(ctx context.Context, db *gorm.DB, provider string) (*providerdomain.ProviderConfig, error) {
	var cfg providerdomain.ProviderConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, config, is_active, created_at, updated_at
		 FROM provider_configs WHERE provider = ?`,
		provider,
	).Scan(&cfg).Error
	if err != nil {
		return nil, err
	}
	if cfg.ID == 0 {
		return nil, nil
	}
	return &cfg, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]providerdomain.ProviderConfig, error) {
	var configs []providerdomain.ProviderConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, config, is_active, created_at, updated_at
		 FROM provider_configs ORDER BY provider`,
	).Scan(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}
