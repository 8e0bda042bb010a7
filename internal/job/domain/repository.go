package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"github.com/smallbiznis/artline/internal/pricing"
)

type ListFilter struct {
	Principal identitydomain.Principal
	Feed      bool
	Curated   bool
	AfterID   snowflake.ID
	Limit     int
	Now       time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	InsertQuote(ctx context.Context, db *gorm.DB, quote *pricing.Quote) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)

	// FindByIDForUpdate locks the row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)

	FindByProviderJobID(ctx context.Context, db *gorm.DB, providerJobID string) (*Job, error)

	Update(ctx context.Context, db *gorm.DB, job *Job) error
	IncrementLikes(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	IncrementViews(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// UpdateRunMeta writes provider logs and predict time without touching
	// lifecycle columns. Empty or nil inputs keep the stored values.
	UpdateRunMeta(ctx context.Context, db *gorm.DB, id snowflake.ID, logs string, duration *float64) error

	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Job, error)

	// AdoptGuestJobs reassigns a guest's jobs to a user and clears their
	// expiry, used when a guest registers.
	AdoptGuestJobs(ctx context.Context, db *gorm.DB, guestID, userID snowflake.ID) error
}
