package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	"github.com/smallbiznis/artline/internal/pricing"
	pkgdb "github.com/smallbiznis/artline/pkg/db"
)

type repo struct{}

func Provide() jobdomain.Repository {
	return &repo{}
}

const jobColumns = `id, owner_type, user_id, guest_id, model_id, status, prompt, input,
	quote_id, cost, provider_job_id, result_url, asset_key, width, height, error_message,
	logs, duration, is_public, is_private, is_curated, likes, views, dispatch_attempts,
	expires_at, deleted_at, completed_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *jobdomain.Job) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.OwnerType,
		job.UserID,
		job.GuestID,
		job.ModelID,
		job.Status,
		job.Prompt,
		job.Input,
		job.QuoteID,
		job.Cost,
		job.ProviderJobID,
		job.ResultURL,
		job.AssetKey,
		job.Width,
		job.Height,
		job.ErrorMessage,
		job.Logs,
		job.Duration,
		job.IsPublic,
		job.IsPrivate,
		job.IsCurated,
		job.Likes,
		job.Views,
		job.DispatchAttempts,
		job.ExpiresAt,
		job.DeletedAt,
		job.CompletedAt,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) InsertQuote(ctx context.Context, db *gorm.DB, quote *pricing.Quote) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pricing_quotes (id, job_id, model_id, base_cost, total, breakdown, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		quote.ID,
		quote.JobID,
		quote.ModelID,
		quote.BaseCost,
		quote.Total,
		quote.Breakdown,
		quote.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*jobdomain.Job, error) {
	return r.findOne(ctx, db, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*jobdomain.Job, error) {
	return r.findOne(ctx, db, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`+pkgdb.LockForUpdate(db), id)
}

func (r *repo) FindByProviderJobID(ctx context.Context, db *gorm.DB, providerJobID string) (*jobdomain.Job, error) {
	return r.findOne(ctx, db, `SELECT `+jobColumns+` FROM jobs WHERE provider_job_id = ?`, providerJobID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*jobdomain.Job, error) {
	var job jobdomain.Job
	err := db.WithContext(ctx).Raw(query, arg).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, job *jobdomain.Job) error {
	return db.WithContext(ctx).Exec(
		`UPDATE jobs SET
			status = ?, provider_job_id = ?, result_url = ?, asset_key = ?, width = ?, height = ?,
			error_message = ?, logs = ?, duration = ?, is_public = ?, is_private = ?, is_curated = ?,
			dispatch_attempts = ?, expires_at = ?, deleted_at = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		job.Status,
		job.ProviderJobID,
		job.ResultURL,
		job.AssetKey,
		job.Width,
		job.Height,
		job.ErrorMessage,
		job.Logs,
		job.Duration,
		job.IsPublic,
		job.IsPrivate,
		job.IsCurated,
		job.DispatchAttempts,
		job.ExpiresAt,
		job.DeletedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	).Error
}

func (r *repo) IncrementLikes(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`UPDATE jobs SET likes = likes + 1 WHERE id = ?`, id).Error
}

func (r *repo) IncrementViews(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`UPDATE jobs SET views = views + 1 WHERE id = ?`, id).Error
}

func (r *repo) UpdateRunMeta(ctx context.Context, db *gorm.DB, id snowflake.ID, logs string, duration *float64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE jobs SET logs = COALESCE(NULLIF(?, ''), logs), duration = COALESCE(?, duration) WHERE id = ?`,
		logs,
		duration,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter jobdomain.ListFilter) ([]jobdomain.Job, error) {
	conds := []string{"deleted_at IS NULL"}
	var args []any

	if filter.Feed {
		conds = append(conds, "is_public = ?", "is_private = ?", "status = ?")
		args = append(args, true, false, jobdomain.StatusSucceeded)
		if filter.Curated {
			conds = append(conds, "is_curated = ?")
			args = append(args, true)
		}
	} else if filter.Principal.IsGuest() {
		conds = append(conds, "guest_id = ?")
		args = append(args, filter.Principal.GuestID)
	} else {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.Principal.UserID)
	}

	if !filter.Now.IsZero() {
		conds = append(conds, "(expires_at IS NULL OR expires_at > ?)")
		args = append(args, filter.Now)
	}
	if filter.AfterID != 0 {
		conds = append(conds, "id < ?")
		args = append(args, filter.AfterID)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var jobs []jobdomain.Job
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) AdoptGuestJobs(ctx context.Context, db *gorm.DB, guestID, userID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE jobs SET user_id = ?, guest_id = NULL, owner_type = ?, expires_at = NULL
		 WHERE guest_id = ?`,
		userID,
		jobdomain.OwnerUser,
		guestID,
	).Error
}
