package domain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/artline/internal/catalog/uispec"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"github.com/smallbiznis/artline/pkg/db/pagination"
)

var (
	ErrModelNotFound     = errors.New("model not found")
	ErrSlugExists        = errors.New("model slug already exists")
	ErrInvalidModel      = errors.New("invalid model definition")
	ErrSchemaUnavailable = errors.New("provider schema unavailable")
)

// SchemaFetcher retrieves the raw generation schema for a provider model.
// It returns the schema document and the concrete version it came from.
type SchemaFetcher interface {
	FetchSchema(ctx context.Context, providerModel, version string) ([]byte, string, error)
}

type ListModelsRequest struct {
	pagination.Pagination
	Kind            ModelKind
	IncludeInactive bool
}

type CreateModelRequest struct {
	Name                 string          `json:"name"`
	Slug                 string          `json:"slug"`
	Description          string          `json:"description"`
	Kind                 string          `json:"kind"`
	ProviderModel        string          `json:"provider_model"`
	ProviderVersion      string          `json:"provider_version"`
	UIConfig             json.RawMessage `json:"ui_config"`
	CreditsPerGeneration int64           `json:"credits_per_generation"`
	CoverImageURL        string          `json:"cover_image_url"`
	IsActive             *bool           `json:"is_active"`
}

type UpdateModelRequest struct {
	Name                 *string          `json:"name"`
	Description          *string          `json:"description"`
	ProviderVersion      *string          `json:"provider_version"`
	UIConfig             *json.RawMessage `json:"ui_config"`
	CreditsPerGeneration *int64           `json:"credits_per_generation"`
	CoverImageURL        *string          `json:"cover_image_url"`
	IsActive             *bool            `json:"is_active"`
}

// UISpecResult pairs the resolved spec with the hash clients cache it under.
type UISpecResult struct {
	Spec              *uispec.ModelUISpec `json:"spec"`
	SchemaVersionHash string              `json:"schema_version_hash"`
}

type Service interface {
	ListModels(ctx context.Context, req ListModelsRequest) ([]AIModel, *pagination.PageInfo, error)

	// GetModel accepts a snowflake id or a slug.
	GetModel(ctx context.Context, ref string) (*AIModel, error)

	GetUISpec(ctx context.Context, ref string, tier identitydomain.Tier) (*UISpecResult, error)

	CreateModel(ctx context.Context, req CreateModelRequest) (*AIModel, error)
	UpdateModel(ctx context.Context, id snowflake.ID, req UpdateModelRequest) (*AIModel, error)

	// RefreshSchema refetches the provider schema and recomputes the
	// schema version hash.
	RefreshSchema(ctx context.Context, id snowflake.ID) (*AIModel, error)

	// DeleteModel deactivates a model; existing jobs keep referencing it.
	DeleteModel(ctx context.Context, id snowflake.ID) error
}
