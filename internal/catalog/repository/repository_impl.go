package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

const modelColumns = `id, slug, name, description, kind, provider_model, provider_version,
	raw_schema, ui_config, schema_version_hash, credits_per_generation, is_active,
	cover_image_url, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *catalogdomain.AIModel) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ai_models (`+modelColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Slug,
		m.Name,
		m.Description,
		m.Kind,
		m.ProviderModel,
		m.ProviderVersion,
		m.RawSchema,
		m.UIConfig,
		m.SchemaVersionHash,
		m.CreditsPerGeneration,
		m.IsActive,
		m.CoverImageURL,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, m *catalogdomain.AIModel) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ai_models SET
			name = ?, description = ?, provider_version = ?, raw_schema = ?, ui_config = ?,
			schema_version_hash = ?, credits_per_generation = ?, is_active = ?,
			cover_image_url = ?, updated_at = ?
		 WHERE id = ?`,
		m.Name,
		m.Description,
		m.ProviderVersion,
		m.RawSchema,
		m.UIConfig,
		m.SchemaVersionHash,
		m.CreditsPerGeneration,
		m.IsActive,
		m.CoverImageURL,
		m.UpdatedAt,
		m.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.AIModel, error) {
	var model catalogdomain.AIModel
	err := db.WithContext(ctx).Raw(
		`SELECT `+modelColumns+` FROM ai_models WHERE id = ?`,
		id,
	).Scan(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == 0 {
		return nil, nil
	}
	return &model, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*catalogdomain.AIModel, error) {
	var model catalogdomain.AIModel
	err := db.WithContext(ctx).Raw(
		`SELECT `+modelColumns+` FROM ai_models WHERE slug = ?`,
		slug,
	).Scan(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == 0 {
		return nil, nil
	}
	return &model, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter catalogdomain.ListFilter) ([]catalogdomain.AIModel, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ActiveOnly {
		conds = append(conds, "is_active = ?")
		args = append(args, true)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.AfterID != 0 {
		conds = append(conds, "id < ?")
		args = append(args, filter.AfterID)
	}

	query := `SELECT ` + modelColumns + ` FROM ai_models`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, filter.Limit)

	var models []catalogdomain.AIModel
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}
