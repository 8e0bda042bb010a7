package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/catalog/uispec"
	"github.com/smallbiznis/artline/internal/clock"
	"github.com/smallbiznis/artline/internal/config"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	ledgerdomain "github.com/smallbiznis/artline/internal/ledger/domain"
	"github.com/smallbiznis/artline/internal/observability"
	"github.com/smallbiznis/artline/internal/pricing"
	"github.com/smallbiznis/artline/internal/queue"
	"github.com/smallbiznis/artline/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       jobdomain.Repository
	CatalogSvc catalogdomain.Service
	Engine     *pricing.Engine
	LedgerSvc  ledgerdomain.Service
	Queue      queue.Queue
	Metrics    *observability.Metrics  `optional:"true"`
	Archiver   jobdomain.AssetArchiver `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	repo       jobdomain.Repository
	catalogSvc catalogdomain.Service
	engine     *pricing.Engine
	ledgerSvc  ledgerdomain.Service
	queue      queue.Queue
	metrics    *observability.Metrics
	archiver   jobdomain.AssetArchiver
}

func New(p Params) jobdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("job.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		repo:       p.Repo,
		catalogSvc: p.CatalogSvc,
		engine:     p.Engine,
		ledgerSvc:  p.LedgerSvc,
		queue:      p.Queue,
		metrics:    p.Metrics,
		archiver:   p.Archiver,
	}
}

// SetArchiver wires the asset archiver after construction. The archiver's
// own constructor needs this service, so it cannot be a constructor
// dependency here.
func (s *Service) SetArchiver(a jobdomain.AssetArchiver) {
	s.archiver = a
}

func (s *Service) Create(ctx context.Context, req jobdomain.CreateJobRequest) (*jobdomain.Job, error) {
	principal := req.Principal
	if principal.ID() == 0 {
		return nil, ledgerdomain.ErrInvalidPrincipal
	}

	model, err := s.catalogSvc.GetModel(ctx, req.ModelRef)
	if err != nil {
		if err == catalogdomain.ErrModelNotFound {
			return nil, jobdomain.ErrModelNotFound
		}
		return nil, err
	}
	if !model.IsActive && !principal.IsAdmin() {
		return nil, jobdomain.ErrModelNotFound
	}

	spec := uispec.Resolve(model.Slug, model.RawSchema, model.UIConfig, principal.Tier)
	normalized := uispec.NormalizeInput(spec, req.Input)

	prompt, _ := normalized["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return nil, jobdomain.ErrInvalidInput
	}

	inputJSON, err := json.Marshal(normalized)
	if err != nil {
		return nil, jobdomain.ErrInvalidInput
	}

	quote := s.engine.Quote(model, spec, normalized)
	now := s.clock.Now()
	jobID := s.genID.Generate()
	quote.JobID = jobID

	job := &jobdomain.Job{
		ID:        jobID,
		ModelID:   model.ID,
		Status:    jobdomain.StatusQueued,
		Prompt:    prompt,
		Input:     datatypes.JSON(inputJSON),
		QuoteID:   quote.ID,
		Cost:      quote.Total,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if principal.IsGuest() {
		guestID := principal.GuestID
		job.OwnerType = jobdomain.OwnerGuest
		job.GuestID = &guestID
		expires := now.Add(s.cfg.GuestJobTTL)
		job.ExpiresAt = &expires
	} else {
		userID := principal.UserID
		job.OwnerType = jobdomain.OwnerUser
		job.UserID = &userID
	}

	// Debit, quote, job row, and enqueue commit or roll back together: a
	// full queue never leaves a charged, undispatchable job behind.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if quote.Total > 0 {
			if _, err := s.ledgerSvc.Debit(ctx, tx, ledgerdomain.DebitRequest{
				Principal:    principal,
				Amount:       quote.Total,
				Reason:       ledgerdomain.ReasonJobCost,
				ExternalID:   jobdomain.DebitExternalID(jobID),
				RelatedJobID: jobID,
			}); err != nil {
				return err
			}
		}
		if err := s.repo.InsertQuote(ctx, tx, quote); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, job); err != nil {
			return err
		}
		if err := s.queue.Enqueue(ctx, queue.Task{JobID: jobID, EnqueuedAt: now}); err != nil {
			return fmt.Errorf("%w: %v", jobdomain.ErrEnqueueFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.JobsCreated.WithLabelValues(string(model.Kind)).Inc()
	}
	s.log.Info("job created",
		zap.String("job_id", jobID.String()),
		zap.String("model", model.Slug),
		zap.Int64("cost", quote.Total),
		zap.String("owner_type", string(job.OwnerType)),
	)
	return job, nil
}

func (s *Service) Get(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) (*jobdomain.Job, error) {
	job, err := s.visibleJob(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, principal identitydomain.Principal, req jobdomain.ListJobsRequest) ([]jobdomain.Job, *pagination.PageInfo, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	filter := jobdomain.ListFilter{
		Principal: principal,
		Feed:      req.Feed,
		Curated:   req.Curated,
		Limit:     limit + 1,
		Now:       s.clock.Now(),
	}
	if !req.Feed && principal.ID() == 0 {
		return nil, nil, jobdomain.ErrForbidden
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err == nil && cursor.ID != "" {
			if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
				filter.AfterID = snowflake.ID(id)
			}
		}
	}

	jobs, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(jobs) > limit {
		jobs = jobs[:limit]
		info.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: jobs[limit-1].ID.String()})
		if err == nil {
			info.NextPageToken = token
		}
	}
	return jobs, info, nil
}

func (s *Service) Delete(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) error {
	job, err := s.visibleJob(ctx, principal, id)
	if err != nil {
		return err
	}
	if !isOwner(job, principal) && !principal.IsAdmin() {
		return jobdomain.ErrForbidden
	}

	now := s.clock.Now()
	job.DeletedAt = &now
	job.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, job); err != nil {
		return err
	}

	if job.AssetKey != "" && s.archiver != nil {
		if err := s.archiver.Archive(ctx, job.AssetKey); err != nil {
			s.log.Warn("asset archive failed",
				zap.String("job_id", job.ID.String()),
				zap.String("asset_key", job.AssetKey),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Service) Like(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) (*jobdomain.Job, error) {
	job, err := s.visibleJob(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.IncrementLikes(ctx, s.db, job.ID); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, job.ID)
}

func (s *Service) RecordView(ctx context.Context, id snowflake.ID) error {
	return s.repo.IncrementViews(ctx, s.db, id)
}

func (s *Service) SetPrivacy(ctx context.Context, principal identitydomain.Principal, id snowflake.ID, req jobdomain.PrivacyRequest) (*jobdomain.Job, error) {
	job, err := s.visibleJob(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	owner := isOwner(job, principal)
	admin := principal.IsAdmin()

	// Publishing and curation are moderation decisions; only privacy is in
	// the owner's hands.
	if (req.IsPublic != nil || req.IsCurated != nil) && !admin {
		return nil, jobdomain.ErrForbidden
	}
	if req.IsPrivate != nil && !owner && !admin {
		return nil, jobdomain.ErrForbidden
	}

	if req.IsPublic != nil {
		job.IsPublic = *req.IsPublic
	}
	if req.IsCurated != nil {
		job.IsCurated = *req.IsCurated
	}
	if req.IsPrivate != nil {
		job.IsPrivate = *req.IsPrivate
	}
	job.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) ClaimForDispatch(ctx context.Context, id snowflake.ID) (*jobdomain.Job, bool, error) {
	var (
		job *jobdomain.Job
		ok  bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		job, err = s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		ok = job != nil && job.Status == jobdomain.StatusQueued && !job.Deleted()
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, ok, nil
}

func (s *Service) MarkRunning(ctx context.Context, id snowflake.ID, providerJobID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return jobdomain.ErrJobNotFound
		}
		if job.Status != jobdomain.StatusQueued {
			// A concurrent worker or webhook got here first.
			return nil
		}

		job.Status = jobdomain.StatusRunning
		job.ProviderJobID = &providerJobID
		job.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, job)
	})
}

func (s *Service) RecordDispatchAttempt(ctx context.Context, id snowflake.ID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return jobdomain.ErrJobNotFound
		}
		job.DispatchAttempts++
		job.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, job)
	})
}

func (s *Service) RecordRunMeta(ctx context.Context, id snowflake.ID, logs string, duration *float64) error {
	if logs == "" && duration == nil {
		return nil
	}
	return s.repo.UpdateRunMeta(ctx, s.db, id, logs, duration)
}

func (s *Service) FindByProviderJobID(ctx context.Context, providerJobID string) (*jobdomain.Job, error) {
	job, err := s.repo.FindByProviderJobID(ctx, s.db, providerJobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobdomain.ErrJobNotFound
	}
	return job, nil
}

func (s *Service) Succeed(ctx context.Context, id snowflake.ID, resultURL string) (*jobdomain.Job, error) {
	var out *jobdomain.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return jobdomain.ErrJobNotFound
		}
		out = job
		if job.Status.Terminal() {
			return nil
		}
		if !jobdomain.CanTransition(job.Status, jobdomain.StatusSucceeded) {
			return jobdomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		job.Status = jobdomain.StatusSucceeded
		job.ResultURL = resultURL
		job.CompletedAt = &now
		job.UpdatedAt = now
		return s.repo.Update(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}

	if out.Status == jobdomain.StatusSucceeded && s.metrics != nil {
		s.metrics.JobsFinalized.WithLabelValues(string(jobdomain.StatusSucceeded)).Inc()
	}
	return out, nil
}

func (s *Service) Fail(ctx context.Context, id snowflake.ID, errorMessage string) (*jobdomain.Job, error) {
	var (
		out      *jobdomain.Job
		refunded bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return jobdomain.ErrJobNotFound
		}
		out = job
		if job.Status.Terminal() {
			return nil
		}

		now := s.clock.Now()
		job.Status = jobdomain.StatusFailed
		job.ErrorMessage = errorMessage
		job.CompletedAt = &now
		job.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, job); err != nil {
			return err
		}

		if job.Cost > 0 {
			_, err := s.ledgerSvc.Credit(ctx, tx, ledgerdomain.CreditRequest{
				Principal:    principalOf(job),
				Amount:       job.Cost,
				Reason:       ledgerdomain.ReasonRefund,
				ExternalID:   ledgerdomain.RefundExternalID(job.ID),
				RelatedJobID: job.ID,
			})
			if err != nil {
				// An earlier Fail already refunded this job.
				if err == ledgerdomain.ErrDuplicateEntry {
					return nil
				}
				return err
			}
			refunded = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Status == jobdomain.StatusFailed && s.metrics != nil {
		s.metrics.JobsFinalized.WithLabelValues(string(jobdomain.StatusFailed)).Inc()
	}
	if refunded {
		s.log.Info("job refunded",
			zap.String("job_id", out.ID.String()),
			zap.Int64("amount", out.Cost),
		)
	}
	return out, nil
}

func (s *Service) SetAsset(ctx context.Context, id snowflake.ID, assetKey, resultURL string, width, height int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		job, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return jobdomain.ErrJobNotFound
		}

		job.AssetKey = assetKey
		if resultURL != "" {
			job.ResultURL = resultURL
		}
		job.Width = width
		job.Height = height
		job.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, job)
	})
}

// visibleJob loads a job and applies the visibility rules: owners and
// admins see everything of theirs, everyone else only public, non-private,
// live jobs.
func (s *Service) visibleJob(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) (*jobdomain.Job, error) {
	job, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if job == nil || job.Deleted() || job.Expired(s.clock.Now()) {
		return nil, jobdomain.ErrJobNotFound
	}

	if isOwner(job, principal) || principal.IsAdmin() {
		return job, nil
	}
	if job.IsPublic && !job.IsPrivate {
		return job, nil
	}
	return nil, jobdomain.ErrForbidden
}

func isOwner(job *jobdomain.Job, principal identitydomain.Principal) bool {
	if principal.IsGuest() {
		return job.GuestID != nil && *job.GuestID == principal.GuestID
	}
	return job.UserID != nil && *job.UserID == principal.UserID && principal.UserID != 0
}

func principalOf(job *jobdomain.Job) identitydomain.Principal {
	if job.OwnerType == jobdomain.OwnerGuest && job.GuestID != nil {
		return identitydomain.GuestPrincipal(*job.GuestID)
	}
	if job.UserID != nil {
		return identitydomain.UserPrincipal(*job.UserID, identitydomain.TierStarter)
	}
	return identitydomain.Principal{}
}
