package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	"github.com/smallbiznis/artline/internal/catalog/uispec"
	"github.com/smallbiznis/artline/internal/config"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	"github.com/smallbiznis/artline/internal/observability"
	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
	"github.com/smallbiznis/artline/internal/queue"
)

const (
	dequeueWait = 2 * time.Second

	// A task can surface before its creating transaction commits; the claim
	// retries briefly before the task is dropped.
	claimRetries    = 5
	claimRetryDelay = 100 * time.Millisecond
)

type Params struct {
	fx.In

	LC          fx.Lifecycle
	Log         *zap.Logger
	Cfg         config.Config
	Queue       queue.Queue
	JobSvc      jobdomain.Service
	CatalogSvc  catalogdomain.Service
	ProviderSvc providerdomain.Service
	Metrics     *observability.Metrics `optional:"true"`
}

// Worker drains the dispatch queue and submits queued jobs to the provider.
type Worker struct {
	log         *zap.Logger
	cfg         config.Config
	queue       queue.Queue
	jobSvc      jobdomain.Service
	catalogSvc  catalogdomain.Service
	providerSvc providerdomain.Service
	metrics     *observability.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(p Params) *Worker {
	w := &Worker{
		log:         p.Log.Named("dispatch.worker"),
		cfg:         p.Cfg,
		queue:       p.Queue,
		jobSvc:      p.JobSvc,
		catalogSvc:  p.CatalogSvc,
		providerSvc: p.ProviderSvc,
		metrics:     p.Metrics,
	}

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			w.cancel = cancel
			w.start(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if w.cancel != nil {
				w.cancel()
			}
			w.wg.Wait()
			return nil
		},
	})
	return w
}

func (w *Worker) start(ctx context.Context) {
	concurrency := w.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	w.log.Info("starting dispatch workers", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok, err := w.queue.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("dequeue failed", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		w.Process(ctx, task)
	}
}

// Process dispatches one task: it re-checks the job under lock, submits to
// the provider with retries, and finalizes on permanent failure.
func (w *Worker) Process(ctx context.Context, task queue.Task) {
	log := w.log.With(zap.String("job_id", task.JobID.String()))

	job, ok, err := w.jobSvc.ClaimForDispatch(ctx, task.JobID)
	for attempt := 0; err == nil && job == nil && attempt < claimRetries; attempt++ {
		if !sleep(ctx, claimRetryDelay) {
			return
		}
		job, ok, err = w.jobSvc.ClaimForDispatch(ctx, task.JobID)
	}
	if err != nil {
		log.Error("claim failed", zap.Error(err))
		return
	}
	if job == nil {
		log.Warn("job row never became visible, dropping task")
		return
	}
	if !ok {
		// Deleted, already dispatched, or finalized while queued.
		return
	}

	submitReq, err := w.buildSubmitRequest(ctx, job)
	if err != nil {
		log.Warn("submit request build failed", zap.Error(err))
		w.fail(ctx, job, fmt.Sprintf("dispatch failed: %v", err))
		return
	}

	attempts := w.cfg.DispatchAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := w.cfg.DispatchBackoff

	var submission *providerdomain.Submission
	for attempt := 1; attempt <= attempts; attempt++ {
		adapter, err := w.providerSvc.Adapter(ctx, providerdomain.Replicate)
		if err == nil {
			submission, err = adapter.Submit(ctx, *submitReq)
		}
		if w.metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			w.metrics.ProviderCalls.WithLabelValues(providerdomain.Replicate, outcome).Inc()
		}
		if err == nil {
			break
		}
		submission = nil

		log.Warn("provider submit failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if recErr := w.jobSvc.RecordDispatchAttempt(ctx, job.ID); recErr != nil {
			log.Error("record attempt failed", zap.Error(recErr))
		}
		if attempt == attempts {
			w.fail(ctx, job, fmt.Sprintf("dispatch failed after %d attempts: %v", attempts, err))
			return
		}
		if !sleep(ctx, backoff) {
			return
		}
	}

	if err := w.jobSvc.MarkRunning(ctx, job.ID, submission.ProviderJobID); err != nil {
		log.Error("mark running failed", zap.Error(err))
		return
	}
	log.Info("job dispatched", zap.String("provider_job_id", submission.ProviderJobID))

	// Synchronous submissions come back already terminal.
	switch submission.Status {
	case providerdomain.StatusSucceeded:
		resultURL := ""
		if len(submission.Output) > 0 {
			resultURL = submission.Output[0]
		}
		if _, err := w.jobSvc.Succeed(ctx, job.ID, resultURL); err != nil {
			log.Error("finalize succeeded failed", zap.Error(err))
		}
	case providerdomain.StatusFailed:
		w.fail(ctx, job, submission.Error)
	}
}

func (w *Worker) buildSubmitRequest(ctx context.Context, job *jobdomain.Job) (*providerdomain.SubmitRequest, error) {
	model, err := w.catalogSvc.GetModel(ctx, job.ModelID.String())
	if err != nil {
		return nil, err
	}

	var stored map[string]any
	if len(job.Input) > 0 {
		if err := json.Unmarshal(job.Input, &stored); err != nil {
			return nil, fmt.Errorf("decode stored input: %w", err)
		}
	}

	// Re-normalize against the unfiltered spec so operator defaults added
	// since creation still apply; stored values win over defaults.
	spec := uispec.Resolve(model.Slug, model.RawSchema, model.UIConfig, identitydomain.TierAdmin)
	input := uispec.NormalizeInput(spec, stored)

	var webhookURL string
	if w.cfg.WebhookBaseURL != "" {
		webhookURL = w.cfg.WebhookBaseURL + "/webhooks/replicate"
	}

	return &providerdomain.SubmitRequest{
		ProviderModel: model.ProviderModel,
		Version:       model.ProviderVersion,
		Input:         input,
		WebhookURL:    webhookURL,
	}, nil
}

func (w *Worker) fail(ctx context.Context, job *jobdomain.Job, message string) {
	if _, err := w.jobSvc.Fail(ctx, job.ID, message); err != nil {
		w.log.Error("finalize failed job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var Module = fx.Module("dispatch.worker",
	fx.Invoke(New),
)
