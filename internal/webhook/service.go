package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	"github.com/smallbiznis/artline/internal/observability"
	"github.com/smallbiznis/artline/internal/provider/adapters/replicate"
	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
)

// Webhook delivery outcomes. Every delivery is acknowledged with 200; the
// outcome records what the payload actually did.
const (
	OutcomeSucceeded       = "succeeded"
	OutcomeFailed          = "failed"
	OutcomeInvalidPayload  = "ignored:invalid_payload"
	OutcomeJobNotFound     = "ignored:job_not_found"
	OutcomeAlreadyTerminal = "ignored:already_terminal"
	OutcomeNotTerminal     = "ignored:not_terminal"
)

// AssetPersister copies a remote result into our own storage in the
// background. Webhook handling never waits on it.
type AssetPersister interface {
	PersistAsync(jobID snowflake.ID, resultURL string)
}

// ReplicateEvent is the webhook payload Replicate posts for a prediction.
type ReplicateEvent struct {
	ID      string            `json:"id"`
	Status  string            `json:"status"`
	Output  json.RawMessage   `json:"output"`
	Error   any               `json:"error"`
	Logs    string            `json:"logs"`
	Metrics *ReplicateMetrics `json:"metrics"`
}

// ReplicateMetrics carries the prediction timing block.
type ReplicateMetrics struct {
	PredictTime *float64 `json:"predict_time"`
}

type Params struct {
	fx.In

	Log       *zap.Logger
	JobSvc    jobdomain.Service
	Persister AssetPersister         `optional:"true"`
	Metrics   *observability.Metrics `optional:"true"`
}

// Ingest maps provider webhook deliveries onto job state transitions.
// Deliveries are idempotent: replays and late arrivals land on a terminal
// job and are ignored.
type Ingest struct {
	log       *zap.Logger
	jobSvc    jobdomain.Service
	persister AssetPersister
	metrics   *observability.Metrics
}

func New(p Params) *Ingest {
	return &Ingest{
		log:       p.Log.Named("webhook.ingest"),
		jobSvc:    p.JobSvc,
		persister: p.Persister,
		metrics:   p.Metrics,
	}
}

// HandleReplicate processes one delivery and reports its outcome. Only a
// storage failure returns an error; every ignore case is a clean outcome so
// the provider is never told to retry.
func (i *Ingest) HandleReplicate(ctx context.Context, payload []byte) (string, error) {
	var event ReplicateEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.ID == "" {
		i.count(OutcomeInvalidPayload)
		return OutcomeInvalidPayload, nil
	}

	log := i.log.With(
		zap.String("provider_job_id", event.ID),
		zap.String("provider_status", event.Status),
	)

	job, err := i.jobSvc.FindByProviderJobID(ctx, event.ID)
	if err != nil {
		if errors.Is(err, jobdomain.ErrJobNotFound) {
			// Either a stale prediction or the dispatch transaction has not
			// committed yet. Dropping is safe: the job will be finalized by a
			// later delivery or by reconciliation.
			i.count(OutcomeJobNotFound)
			return OutcomeJobNotFound, nil
		}
		return "", err
	}

	if job.Status.Terminal() {
		i.count(OutcomeAlreadyTerminal)
		return OutcomeAlreadyTerminal, nil
	}

	switch providerdomain.MapStatus(event.Status) {
	case providerdomain.StatusSucceeded:
		i.recordRunMeta(ctx, log, job.ID, event)
		outputs := replicate.ParseOutput(event.Output)
		if len(outputs) == 0 {
			log.Warn("succeeded delivery without output")
			if _, err := i.jobSvc.Fail(ctx, job.ID, "provider returned no output"); err != nil {
				return "", err
			}
			i.count(OutcomeFailed)
			return OutcomeFailed, nil
		}
		if _, err := i.jobSvc.Succeed(ctx, job.ID, outputs[0]); err != nil {
			return "", err
		}
		if i.persister != nil {
			i.persister.PersistAsync(job.ID, outputs[0])
		}
		log.Info("job succeeded via webhook", zap.String("job_id", job.ID.String()))
		i.count(OutcomeSucceeded)
		return OutcomeSucceeded, nil

	case providerdomain.StatusFailed:
		i.recordRunMeta(ctx, log, job.ID, event)
		if _, err := i.jobSvc.Fail(ctx, job.ID, errorMessage(event.Error)); err != nil {
			return "", err
		}
		log.Info("job failed via webhook", zap.String("job_id", job.ID.String()))
		i.count(OutcomeFailed)
		return OutcomeFailed, nil

	default:
		// Progress updates carry no transition for us; the event filter asks
		// for terminal deliveries only.
		i.count(OutcomeNotTerminal)
		return OutcomeNotTerminal, nil
	}
}

// recordRunMeta keeps the delivery's logs and predict time even when the
// transition itself is later rejected. Failures only log; meta is best effort.
func (i *Ingest) recordRunMeta(ctx context.Context, log *zap.Logger, jobID snowflake.ID, event ReplicateEvent) {
	var predictTime *float64
	if event.Metrics != nil {
		predictTime = event.Metrics.PredictTime
	}
	if event.Logs == "" && predictTime == nil {
		return
	}
	if err := i.jobSvc.RecordRunMeta(ctx, jobID, event.Logs, predictTime); err != nil {
		log.Warn("recording run meta failed", zap.Error(err))
	}
}

func (i *Ingest) count(outcome string) {
	if i.metrics != nil {
		i.metrics.WebhookResults.WithLabelValues(outcome).Inc()
	}
}

func errorMessage(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "Unknown"
	case string:
		if v == "" {
			return "Unknown"
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

var Module = fx.Module("webhook.ingest",
	fx.Provide(New),
)
