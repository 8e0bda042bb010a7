package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the job lifecycle state. succeeded and failed are terminal and
// absorbing: once reached, further transition attempts are no-ops.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

var transitions = map[Status]map[Status]bool{
	StatusQueued:  {StatusRunning: true, StatusFailed: true},
	StatusRunning: {StatusSucceeded: true, StatusFailed: true},
}

// CanTransition reports whether from may move to to. Terminal states accept
// nothing; self-transitions are handled by callers as no-ops.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

type OwnerType string

const (
	OwnerUser  OwnerType = "user"
	OwnerGuest OwnerType = "guest"
)

// Job is one generation request. Exactly one of UserID and GuestID is set,
// mirrored by OwnerType. Cost is frozen at creation; the refund on failure
// credits exactly this amount.
type Job struct {
	ID        snowflake.ID  `json:"id" gorm:"primaryKey"`
	OwnerType OwnerType     `json:"owner_type" gorm:"type:text;not null"`
	UserID    *snowflake.ID `json:"user_id,omitempty" gorm:"index"`
	GuestID   *snowflake.ID `json:"guest_id,omitempty" gorm:"index"`

	ModelID snowflake.ID `json:"model_id" gorm:"not null;index"`
	Status  Status       `json:"status" gorm:"type:text;not null;index"`

	Prompt string         `json:"prompt" gorm:"type:text;not null"`
	Input  datatypes.JSON `json:"input"`

	QuoteID snowflake.ID `json:"quote_id"`
	Cost    int64        `json:"cost" gorm:"not null"`

	ProviderJobID *string `json:"provider_job_id,omitempty" gorm:"type:text;uniqueIndex:ux_jobs_provider_job_id"`

	ResultURL    string `json:"result_url,omitempty"`
	AssetKey     string `json:"asset_key,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Logs and Duration are the provider's execution trace and predict time
	// in seconds, captured from the terminal webhook.
	Logs     string   `json:"logs,omitempty" gorm:"type:text"`
	Duration *float64 `json:"duration,omitempty"`

	IsPublic  bool `json:"is_public" gorm:"not null;default:false"`
	IsPrivate bool `json:"is_private" gorm:"not null;default:false"`
	IsCurated bool `json:"is_curated" gorm:"not null;default:false"`

	Likes int64 `json:"likes" gorm:"not null;default:0"`
	Views int64 `json:"views" gorm:"not null;default:0"`

	DispatchAttempts int `json:"dispatch_attempts" gorm:"not null;default:0"`

	// ExpiresAt bounds guest job retention; user jobs never expire.
	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"index"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" gorm:"index"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Job) TableName() string { return "jobs" }

// Expired reports whether the job's retention window has passed.
func (j *Job) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && now.After(*j.ExpiresAt)
}

// Deleted reports whether the job has been tombstoned.
func (j *Job) Deleted() bool { return j.DeletedAt != nil }

// DebitExternalID is the idempotency key for a job's cost debit.
func DebitExternalID(jobID snowflake.ID) string {
	return "job_cost_" + jobID.String()
}

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrModelNotFound     = errors.New("model not found")
	ErrInvalidInput      = errors.New("invalid_input")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEnqueueFailed     = errors.New("enqueue failed")
)
