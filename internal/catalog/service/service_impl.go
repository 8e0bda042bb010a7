package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/catalog/uispec"
	"github.com/smallbiznis/artline/internal/clock"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	pkgdb "github.com/smallbiznis/artline/pkg/db"
	"github.com/smallbiznis/artline/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    catalogdomain.Repository
	Fetcher catalogdomain.SchemaFetcher
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    catalogdomain.Repository
	fetcher catalogdomain.SchemaFetcher
}

func New(p Params) catalogdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("catalog.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		fetcher: p.Fetcher,
	}
}

func (s *Service) ListModels(ctx context.Context, req catalogdomain.ListModelsRequest) ([]catalogdomain.AIModel, *pagination.PageInfo, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	filter := catalogdomain.ListFilter{
		Kind:       req.Kind,
		ActiveOnly: !req.IncludeInactive,
		Limit:      limit + 1,
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err == nil && cursor.ID != "" {
			if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
				filter.AfterID = snowflake.ID(id)
			}
		}
	}

	models, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(models) > limit {
		models = models[:limit]
		info.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: models[limit-1].ID.String()})
		if err == nil {
			info.NextPageToken = token
		}
	}
	return models, info, nil
}

func (s *Service) GetModel(ctx context.Context, ref string) (*catalogdomain.AIModel, error) {
	model, err := s.findByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, catalogdomain.ErrModelNotFound
	}
	return model, nil
}

func (s *Service) GetUISpec(ctx context.Context, ref string, tier identitydomain.Tier) (*catalogdomain.UISpecResult, error) {
	model, err := s.GetModel(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !model.IsActive && tier != identitydomain.TierAdmin {
		return nil, catalogdomain.ErrModelNotFound
	}

	spec := uispec.Resolve(model.Slug, model.RawSchema, model.UIConfig, tier)
	return &catalogdomain.UISpecResult{
		Spec:              spec,
		SchemaVersionHash: model.SchemaVersionHash,
	}, nil
}

func (s *Service) CreateModel(ctx context.Context, req catalogdomain.CreateModelRequest) (*catalogdomain.AIModel, error) {
	kind, ok := catalogdomain.ParseKind(req.Kind)
	if !ok {
		return nil, catalogdomain.ErrInvalidModel
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.ProviderModel) == "" {
		return nil, catalogdomain.ErrInvalidModel
	}

	rawSchema, version, err := s.fetcher.FetchSchema(ctx, req.ProviderModel, req.ProviderVersion)
	if err != nil {
		s.log.Warn("schema fetch failed",
			zap.String("provider_model", req.ProviderModel),
			zap.Error(err),
		)
		return nil, catalogdomain.ErrSchemaUnavailable
	}

	modelSlug := strings.TrimSpace(req.Slug)
	if modelSlug == "" {
		modelSlug = slug.Make(req.Name)
	} else {
		modelSlug = slug.Make(modelSlug)
	}

	now := s.clock.Now()
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	model := &catalogdomain.AIModel{
		ID:                   s.genID.Generate(),
		Slug:                 modelSlug,
		Name:                 req.Name,
		Description:          req.Description,
		Kind:                 kind,
		ProviderModel:        req.ProviderModel,
		ProviderVersion:      version,
		RawSchema:            datatypes.JSON(rawSchema),
		UIConfig:             datatypes.JSON(req.UIConfig),
		SchemaVersionHash:    uispec.Hash(rawSchema, req.UIConfig),
		CreditsPerGeneration: req.CreditsPerGeneration,
		IsActive:             active,
		CoverImageURL:        req.CoverImageURL,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Insert(ctx, s.db, model); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrSlugExists
		}
		return nil, err
	}

	s.log.Info("model created",
		zap.String("model_id", model.ID.String()),
		zap.String("slug", model.Slug),
		zap.String("provider_model", model.ProviderModel),
	)
	return model, nil
}

func (s *Service) UpdateModel(ctx context.Context, id snowflake.ID, req catalogdomain.UpdateModelRequest) (*catalogdomain.AIModel, error) {
	model, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, catalogdomain.ErrModelNotFound
	}

	if req.Name != nil {
		model.Name = *req.Name
	}
	if req.Description != nil {
		model.Description = *req.Description
	}
	if req.CreditsPerGeneration != nil {
		model.CreditsPerGeneration = *req.CreditsPerGeneration
	}
	if req.CoverImageURL != nil {
		model.CoverImageURL = *req.CoverImageURL
	}
	if req.IsActive != nil {
		model.IsActive = *req.IsActive
	}

	if req.ProviderVersion != nil && *req.ProviderVersion != model.ProviderVersion {
		rawSchema, version, err := s.fetcher.FetchSchema(ctx, model.ProviderModel, *req.ProviderVersion)
		if err != nil {
			return nil, catalogdomain.ErrSchemaUnavailable
		}
		model.RawSchema = datatypes.JSON(rawSchema)
		model.ProviderVersion = version
	}
	if req.UIConfig != nil {
		model.UIConfig = datatypes.JSON(*req.UIConfig)
	}

	model.SchemaVersionHash = uispec.Hash(model.RawSchema, model.UIConfig)
	model.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, model); err != nil {
		return nil, err
	}
	return model, nil
}

func (s *Service) RefreshSchema(ctx context.Context, id snowflake.ID) (*catalogdomain.AIModel, error) {
	model, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, catalogdomain.ErrModelNotFound
	}

	rawSchema, version, err := s.fetcher.FetchSchema(ctx, model.ProviderModel, "")
	if err != nil {
		return nil, catalogdomain.ErrSchemaUnavailable
	}

	model.RawSchema = datatypes.JSON(rawSchema)
	model.ProviderVersion = version
	model.SchemaVersionHash = uispec.Hash(model.RawSchema, model.UIConfig)
	model.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, model); err != nil {
		return nil, err
	}

	s.log.Info("schema refreshed",
		zap.String("model_id", model.ID.String()),
		zap.String("provider_version", version),
		zap.String("hash", model.SchemaVersionHash),
	)
	return model, nil
}

func (s *Service) DeleteModel(ctx context.Context, id snowflake.ID) error {
	model, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if model == nil {
		return catalogdomain.ErrModelNotFound
	}

	model.IsActive = false
	model.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, s.db, model)
}

func (s *Service) findByRef(ctx context.Context, ref string) (*catalogdomain.AIModel, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		model, err := s.repo.FindByID(ctx, s.db, snowflake.ID(id))
		if err != nil || model != nil {
			return model, err
		}
	}
	return s.repo.FindBySlug(ctx, s.db, ref)
}
