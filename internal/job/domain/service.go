package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"

	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"github.com/smallbiznis/artline/pkg/db/pagination"
)

type CreateJobRequest struct {
	Principal identitydomain.Principal
	ModelRef  string
	Input     map[string]any
}

type ListJobsRequest struct {
	pagination.Pagination

	// Feed selects the community feed (public, not private, not deleted)
	// instead of the caller's own jobs.
	Feed    bool
	Curated bool
}

type PrivacyRequest struct {
	IsPublic  *bool `json:"is_public"`
	IsPrivate *bool `json:"is_private"`
	IsCurated *bool `json:"is_curated"`
}

// AssetArchiver moves a stored asset out of the serving prefix when its job
// is deleted.
type AssetArchiver interface {
	Archive(ctx context.Context, assetKey string) error
}

type Service interface {
	// Create quotes, debits, persists, and enqueues in one transaction.
	// Any step failing rolls back every other step.
	Create(ctx context.Context, req CreateJobRequest) (*Job, error)

	Get(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) (*Job, error)
	List(ctx context.Context, principal identitydomain.Principal, req ListJobsRequest) ([]Job, *pagination.PageInfo, error)

	// Delete tombstones the job and archives its asset.
	Delete(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) error

	Like(ctx context.Context, principal identitydomain.Principal, id snowflake.ID) (*Job, error)
	RecordView(ctx context.Context, id snowflake.ID) error
	SetPrivacy(ctx context.Context, principal identitydomain.Principal, id snowflake.ID, req PrivacyRequest) (*Job, error)

	// ClaimForDispatch reloads the job under lock; ok is false when the job
	// is no longer queued and must not be submitted.
	ClaimForDispatch(ctx context.Context, id snowflake.ID) (job *Job, ok bool, err error)

	// MarkRunning moves queued to running and records the provider's id.
	MarkRunning(ctx context.Context, id snowflake.ID, providerJobID string) error

	RecordDispatchAttempt(ctx context.Context, id snowflake.ID) error

	// RecordRunMeta stores the provider's execution logs and predict time.
	// Empty logs and a nil duration leave the stored values untouched.
	RecordRunMeta(ctx context.Context, id snowflake.ID, logs string, duration *float64) error

	FindByProviderJobID(ctx context.Context, providerJobID string) (*Job, error)

	// Succeed finalizes the job with its result. Already-terminal jobs are
	// left untouched and returned as-is.
	Succeed(ctx context.Context, id snowflake.ID, resultURL string) (*Job, error)

	// Fail finalizes the job and refunds its cost. The refund is keyed so a
	// second Fail for the same job never double-credits.
	Fail(ctx context.Context, id snowflake.ID, errorMessage string) (*Job, error)

	// SetAsset records the persisted asset location and dimensions.
	SetAsset(ctx context.Context, id snowflake.ID, assetKey, resultURL string, width, height int) error
}
