package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/clock"
	"github.com/smallbiznis/artline/internal/config"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	jobrepo "github.com/smallbiznis/artline/internal/job/repository"
	jobservice "github.com/smallbiznis/artline/internal/job/service"
	ledgerdomain "github.com/smallbiznis/artline/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/artline/internal/ledger/service"
	"github.com/smallbiznis/artline/internal/pricing"
	"github.com/smallbiznis/artline/internal/queue"
	"github.com/smallbiznis/artline/pkg/db/pagination"
)

const inputSchema = `{
  "components": {
    "schemas": {
      "Input": {
        "properties": {
          "prompt": {"type": "string"},
          "num_outputs": {"type": "integer", "minimum": 1, "maximum": 4, "default": 1}
        }
      }
    }
  }
}`

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clk       *clock.FakeClock
	ledgerSvc ledgerdomain.Service
	jobSvc    jobdomain.Service
	queue     queue.Queue
	cfg       config.Config
}

// catalogStub serves GetModel straight from the test database; the job
// service needs nothing else from the catalog.
type catalogStub struct {
	db *gorm.DB
}

func newCatalogStub(db *gorm.DB) catalogdomain.Service { return &catalogStub{db: db} }

func (c *catalogStub) GetModel(ctx context.Context, ref string) (*catalogdomain.AIModel, error) {
	var model catalogdomain.AIModel
	if err := c.db.WithContext(ctx).Where("slug = ?", ref).Limit(1).Find(&model).Error; err != nil {
		return nil, err
	}
	if model.ID == 0 {
		return nil, catalogdomain.ErrModelNotFound
	}
	return &model, nil
}

func (c *catalogStub) ListModels(context.Context, catalogdomain.ListModelsRequest) ([]catalogdomain.AIModel, *pagination.PageInfo, error) {
	panic("not used")
}

func (c *catalogStub) GetUISpec(context.Context, string, identitydomain.Tier) (*catalogdomain.UISpecResult, error) {
	panic("not used")
}

func (c *catalogStub) CreateModel(context.Context, catalogdomain.CreateModelRequest) (*catalogdomain.AIModel, error) {
	panic("not used")
}

func (c *catalogStub) UpdateModel(context.Context, snowflake.ID, catalogdomain.UpdateModelRequest) (*catalogdomain.AIModel, error) {
	panic("not used")
}

func (c *catalogStub) RefreshSchema(context.Context, snowflake.ID) (*catalogdomain.AIModel, error) {
	panic("not used")
}

func (c *catalogStub) DeleteModel(context.Context, snowflake.ID) error {
	panic("not used")
}

// failQueue rejects every enqueue.
type failQueue struct{}

func (failQueue) Enqueue(context.Context, queue.Task) error { return errors.New("redis down") }
func (failQueue) Dequeue(context.Context, time.Duration) (queue.Task, bool, error) {
	return queue.Task{}, false, nil
}
func (failQueue) Length(context.Context) (int64, error) { return 0, nil }
func (failQueue) Close() error                          { return nil }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&identitydomain.User{},
		&identitydomain.Guest{},
		&ledgerdomain.LedgerEntry{},
		&catalogdomain.AIModel{},
		&pricing.Quote{},
		&jobdomain.Job{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T, q queue.Queue) *fixture {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	engine := pricing.New(pricing.Params{Log: zap.NewNop(), GenID: node, Clock: clk})
	if q == nil {
		q = queue.NewMemoryQueue(16)
	}
	cfg := config.Config{GuestJobTTL: 15 * 24 * time.Hour}

	jobSvc := jobservice.New(jobservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Cfg:        cfg,
		Repo:       jobrepo.Provide(),
		CatalogSvc: newCatalogStub(db),
		Engine:     engine,
		LedgerSvc:  ledgerSvc,
		Queue:      q,
	})

	return &fixture{db: db, node: node, clk: clk, ledgerSvc: ledgerSvc, jobSvc: jobSvc, queue: q, cfg: cfg}
}

func (f *fixture) seedModel(t *testing.T, slug string, kind catalogdomain.ModelKind, credits int64) *catalogdomain.AIModel {
	t.Helper()
	model := &catalogdomain.AIModel{
		ID:                   f.node.Generate(),
		Slug:                 slug,
		Name:                 slug,
		Kind:                 kind,
		ProviderModel:        "acme/" + slug,
		RawSchema:            datatypes.JSON(inputSchema),
		CreditsPerGeneration: credits,
		IsActive:             true,
		CreatedAt:            f.clk.Now(),
		UpdatedAt:            f.clk.Now(),
	}
	require.NoError(t, f.db.Create(model).Error)
	return model
}

func (f *fixture) seedGuest(t *testing.T, balance int64) identitydomain.Principal {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Create(&identitydomain.Guest{
		ID:        id,
		Token:     "tok_" + id.String(),
		Balance:   balance,
		CreatedAt: f.clk.Now(),
		UpdatedAt: f.clk.Now(),
	}).Error)
	return identitydomain.GuestPrincipal(id)
}

func (f *fixture) seedUser(t *testing.T, tier identitydomain.Tier, balance int64) identitydomain.Principal {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Create(&identitydomain.User{
		ID:           id,
		Email:        id.String() + "@example.com",
		PasswordHash: "x",
		DisplayName:  "Test",
		Tier:         tier,
		CreatedAt:    f.clk.Now(),
		UpdatedAt:    f.clk.Now(),
	}).Error)
	principal := identitydomain.UserPrincipal(id, tier)
	if balance > 0 {
		_, err := f.ledgerSvc.Credit(context.Background(), f.db, ledgerdomain.CreditRequest{
			Principal: principal,
			Amount:    balance,
			Reason:    ledgerdomain.ReasonTopup,
		})
		require.NoError(t, err)
	}
	return principal
}

func TestCreateJobDebitsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	guest := f.seedGuest(t, 30)

	job, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: guest,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat", "num_outputs": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusQueued, job.Status)
	assert.Equal(t, int64(10), job.Cost)
	assert.Equal(t, jobdomain.OwnerGuest, job.OwnerType)
	require.NotNil(t, job.ExpiresAt)
	assert.Equal(t, f.clk.Now().Add(f.cfg.GuestJobTTL), *job.ExpiresAt)

	balance, err := f.ledgerSvc.Balance(ctx, f.db, guest)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)

	length, err := f.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	var quoteCount int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM pricing_quotes WHERE job_id = ?`, job.ID).Scan(&quoteCount).Error)
	assert.Equal(t, int64(1), quoteCount)
}

func TestCreateJobInsufficientCredits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	guest := f.seedGuest(t, 5)

	_, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: guest,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat"},
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)

	var jobCount int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM jobs`).Scan(&jobCount).Error)
	assert.Equal(t, int64(0), jobCount)

	length, err := f.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	balance, err := f.ledgerSvc.Balance(ctx, f.db, guest)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestCreateJobEnqueueFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failQueue{})
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	user := f.seedUser(t, identitydomain.TierPro, 100)

	_, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: user,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat"},
	})
	assert.ErrorIs(t, err, jobdomain.ErrEnqueueFailed)

	// The whole transaction rolled back: no job, no quote, no debit.
	var jobCount, quoteCount int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM jobs`).Scan(&jobCount).Error)
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM pricing_quotes`).Scan(&quoteCount).Error)
	assert.Equal(t, int64(0), jobCount)
	assert.Equal(t, int64(0), quoteCount)

	balance, err := f.ledgerSvc.Balance(ctx, f.db, user)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestCreateJobValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	guest := f.seedGuest(t, 30)

	t.Run("unknown model", func(t *testing.T) {
		_, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
			Principal: guest,
			ModelRef:  "missing",
			Input:     map[string]any{"prompt": "a cat"},
		})
		assert.ErrorIs(t, err, jobdomain.ErrModelNotFound)
	})

	t.Run("empty prompt", func(t *testing.T) {
		_, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
			Principal: guest,
			ModelRef:  "flux-dev",
			Input:     map[string]any{"prompt": "   "},
		})
		assert.ErrorIs(t, err, jobdomain.ErrInvalidInput)
	})

	t.Run("inactive model hidden from non-admin", func(t *testing.T) {
		model := f.seedModel(t, "retired", catalogdomain.KindImage, 0)
		require.NoError(t, f.db.Exec(`UPDATE ai_models SET is_active = ? WHERE id = ?`, false, model.ID).Error)

		_, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
			Principal: guest,
			ModelRef:  "retired",
			Input:     map[string]any{"prompt": "a cat"},
		})
		assert.ErrorIs(t, err, jobdomain.ErrModelNotFound)
	})
}

func TestJobLifecycleSucceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	guest := f.seedGuest(t, 30)

	job, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: guest,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat"},
	})
	require.NoError(t, err)

	require.NoError(t, f.jobSvc.MarkRunning(ctx, job.ID, "pred_1"))
	got, err := f.jobSvc.FindByProviderJobID(ctx, "pred_1")
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusRunning, got.Status)

	done, err := f.jobSvc.Succeed(ctx, job.ID, "https://cdn.example.com/out.png")
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusSucceeded, done.Status)
	assert.Equal(t, "https://cdn.example.com/out.png", done.ResultURL)
	require.NotNil(t, done.CompletedAt)

	// Terminal states absorb: a late failure webhook neither flips the
	// status nor refunds.
	after, err := f.jobSvc.Fail(ctx, job.ID, "late failure")
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusSucceeded, after.Status)

	balance, err := f.ledgerSvc.Balance(ctx, f.db, guest)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
}

func TestJobFailureRefundsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	guest := f.seedGuest(t, 30)

	job, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: guest,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat"},
	})
	require.NoError(t, err)

	require.NoError(t, f.jobSvc.MarkRunning(ctx, job.ID, "pred_2"))

	failed, err := f.jobSvc.Fail(ctx, job.ID, "NSFW content detected")
	require.NoError(t, err)
	assert.Equal(t, jobdomain.StatusFailed, failed.Status)
	assert.Equal(t, "NSFW content detected", failed.ErrorMessage)

	balance, err := f.ledgerSvc.Balance(ctx, f.db, guest)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)

	// Replaying the failure is a no-op.
	_, err = f.jobSvc.Fail(ctx, job.ID, "NSFW content detected")
	require.NoError(t, err)

	balance, err = f.ledgerSvc.Balance(ctx, f.db, guest)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)

	var refunds int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(*) FROM ledger_entries WHERE reason = ?`, ledgerdomain.ReasonRefund,
	).Scan(&refunds).Error)
	assert.Equal(t, int64(1), refunds)
}

func TestClaimForDispatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	guest := f.seedGuest(t, 30)

	job, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: guest,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat"},
	})
	require.NoError(t, err)

	claimed, ok, err := f.jobSvc.ClaimForDispatch(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, job.ID, claimed.ID)

	require.NoError(t, f.jobSvc.MarkRunning(ctx, job.ID, "pred_3"))

	_, ok, err = f.jobSvc.ClaimForDispatch(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	owner := f.seedGuest(t, 30)
	stranger := f.seedGuest(t, 30)
	admin := f.seedUser(t, identitydomain.TierAdmin, 0)

	job, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: owner,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat"},
	})
	require.NoError(t, err)

	_, err = f.jobSvc.Get(ctx, owner, job.ID)
	require.NoError(t, err)

	_, err = f.jobSvc.Get(ctx, stranger, job.ID)
	assert.ErrorIs(t, err, jobdomain.ErrForbidden)

	_, err = f.jobSvc.Get(ctx, admin, job.ID)
	require.NoError(t, err)

	t.Run("public job visible to strangers", func(t *testing.T) {
		_, err := f.jobSvc.SetPrivacy(ctx, admin, job.ID, jobdomain.PrivacyRequest{IsPublic: boolPtr(true)})
		require.NoError(t, err)

		got, err := f.jobSvc.Get(ctx, stranger, job.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPublic)
	})

	t.Run("owner cannot publish", func(t *testing.T) {
		_, err := f.jobSvc.SetPrivacy(ctx, owner, job.ID, jobdomain.PrivacyRequest{IsPublic: boolPtr(true)})
		assert.ErrorIs(t, err, jobdomain.ErrForbidden)
	})

	t.Run("owner can hide", func(t *testing.T) {
		_, err := f.jobSvc.SetPrivacy(ctx, owner, job.ID, jobdomain.PrivacyRequest{IsPrivate: boolPtr(true)})
		require.NoError(t, err)

		_, err = f.jobSvc.Get(ctx, stranger, job.ID)
		assert.ErrorIs(t, err, jobdomain.ErrForbidden)
	})

	t.Run("guest job expires", func(t *testing.T) {
		f.clk.Advance(16 * 24 * time.Hour)
		_, err := f.jobSvc.Get(ctx, owner, job.ID)
		assert.ErrorIs(t, err, jobdomain.ErrJobNotFound)
	})
}

func TestDeleteTombstones(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	owner := f.seedGuest(t, 30)

	job, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: owner,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat"},
	})
	require.NoError(t, err)

	require.NoError(t, f.jobSvc.Delete(ctx, owner, job.ID))

	_, err = f.jobSvc.Get(ctx, owner, job.ID)
	assert.ErrorIs(t, err, jobdomain.ErrJobNotFound)

	// The row survives as a tombstone.
	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM jobs WHERE id = ? AND deleted_at IS NOT NULL`, job.ID).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListOwnAndFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	owner := f.seedGuest(t, 100)
	admin := f.seedUser(t, identitydomain.TierAdmin, 0)

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		job, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
			Principal: owner,
			ModelRef:  "flux-dev",
			Input:     map[string]any{"prompt": "a cat"},
		})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	own, _, err := f.jobSvc.List(ctx, owner, jobdomain.ListJobsRequest{})
	require.NoError(t, err)
	assert.Len(t, own, 3)

	// The feed only shows public succeeded jobs.
	feed, _, err := f.jobSvc.List(ctx, identitydomain.Principal{}, jobdomain.ListJobsRequest{Feed: true})
	require.NoError(t, err)
	assert.Empty(t, feed)

	require.NoError(t, f.jobSvc.MarkRunning(ctx, ids[0], "pred_f"))
	_, err = f.jobSvc.Succeed(ctx, ids[0], "https://cdn.example.com/out.png")
	require.NoError(t, err)
	_, err = f.jobSvc.SetPrivacy(ctx, admin, ids[0], jobdomain.PrivacyRequest{IsPublic: boolPtr(true)})
	require.NoError(t, err)

	feed, _, err = f.jobSvc.List(ctx, identitydomain.Principal{}, jobdomain.ListJobsRequest{Feed: true})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, ids[0], feed[0].ID)
}

func TestLikeAndView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seedModel(t, "flux-dev", catalogdomain.KindImage, 0)
	owner := f.seedGuest(t, 30)

	job, err := f.jobSvc.Create(ctx, jobdomain.CreateJobRequest{
		Principal: owner,
		ModelRef:  "flux-dev",
		Input:     map[string]any{"prompt": "a cat"},
	})
	require.NoError(t, err)

	liked, err := f.jobSvc.Like(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), liked.Likes)

	require.NoError(t, f.jobSvc.RecordView(ctx, job.ID))
	require.NoError(t, f.jobSvc.RecordView(ctx, job.ID))

	got, err := f.jobSvc.Get(ctx, owner, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Views)
}

func boolPtr(b bool) *bool { return &b }
