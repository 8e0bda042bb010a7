package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/artline/internal/clock"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	ledgerdomain "github.com/smallbiznis/artline/internal/ledger/domain"
	"github.com/smallbiznis/artline/internal/observability"
	pkgdb "github.com/smallbiznis/artline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *observability.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *observability.Metrics
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Balance derives a user's balance from the ledger sum; for guests the
// materialized column on the guest row is authoritative.
func (s *Service) Balance(ctx context.Context, db *gorm.DB, principal identitydomain.Principal) (int64, error) {
	if principal.ID() == 0 {
		return 0, ledgerdomain.ErrInvalidPrincipal
	}

	if principal.IsGuest() {
		var balance int64
		err := db.WithContext(ctx).Raw(
			`SELECT balance FROM guests WHERE id = ?`,
			principal.GuestID,
		).Scan(&balance).Error
		if err != nil {
			return 0, err
		}
		return balance, nil
	}

	return s.sumEntries(ctx, db, principal)
}

func (s *Service) Debit(ctx context.Context, db *gorm.DB, req ledgerdomain.DebitRequest) (*ledgerdomain.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if req.Principal.ID() == 0 {
		return nil, ledgerdomain.ErrInvalidPrincipal
	}

	var entry *ledgerdomain.LedgerEntry
	err := db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.lockedBalance(ctx, tx, req.Principal)
		if err != nil {
			return err
		}
		if balance < req.Amount {
			return ledgerdomain.ErrInsufficientCredits
		}

		entry, err = s.insertEntry(ctx, tx, req.Principal, -req.Amount, req.Reason, req.ExternalID, req.RelatedJobID)
		if err != nil {
			return err
		}

		if req.Principal.IsGuest() {
			return s.applyGuestDelta(ctx, tx, req.Principal.GuestID, -req.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LedgerEntries.WithLabelValues(string(req.Reason)).Inc()
	}
	return entry, nil
}

func (s *Service) Credit(ctx context.Context, db *gorm.DB, req ledgerdomain.CreditRequest) (*ledgerdomain.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if req.Principal.ID() == 0 {
		return nil, ledgerdomain.ErrInvalidPrincipal
	}

	var entry *ledgerdomain.LedgerEntry
	err := db.Transaction(func(tx *gorm.DB) error {
		if req.Principal.IsGuest() {
			// Lock the guest row so the cache delta and the entry land together.
			if _, err := s.lockedBalance(ctx, tx, req.Principal); err != nil {
				return err
			}
		}

		var err error
		entry, err = s.insertEntry(ctx, tx, req.Principal, req.Amount, req.Reason, req.ExternalID, req.RelatedJobID)
		if err != nil {
			return err
		}

		if req.Principal.IsGuest() {
			return s.applyGuestDelta(ctx, tx, req.Principal.GuestID, req.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LedgerEntries.WithLabelValues(string(req.Reason)).Inc()
	}
	return entry, nil
}

func (s *Service) sumEntries(ctx context.Context, db *gorm.DB, principal identitydomain.Principal) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		 WHERE principal_id = ? AND principal_kind = ?`,
		principal.ID(),
		principal.Kind,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// lockedBalance locks the principal row for the rest of the transaction and
// returns the balance observed under the lock.
func (s *Service) lockedBalance(ctx context.Context, tx *gorm.DB, principal identitydomain.Principal) (int64, error) {
	if principal.IsGuest() {
		var balance int64
		err := tx.WithContext(ctx).Raw(
			`SELECT balance FROM guests WHERE id = ?`+pkgdb.LockForUpdate(tx),
			principal.GuestID,
		).Scan(&balance).Error
		if err != nil {
			return 0, err
		}
		return balance, nil
	}

	var locked snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT id FROM users WHERE id = ?`+pkgdb.LockForUpdate(tx),
		principal.UserID,
	).Scan(&locked).Error
	if err != nil {
		return 0, err
	}
	if locked == 0 {
		return 0, ledgerdomain.ErrInvalidPrincipal
	}
	return s.sumEntries(ctx, tx, principal)
}

func (s *Service) insertEntry(
	ctx context.Context,
	tx *gorm.DB,
	principal identitydomain.Principal,
	amount int64,
	reason ledgerdomain.Reason,
	externalID string,
	relatedJobID snowflake.ID,
) (*ledgerdomain.LedgerEntry, error) {
	entry := &ledgerdomain.LedgerEntry{
		ID:            s.genID.Generate(),
		PrincipalID:   principal.ID(),
		PrincipalKind: principal.Kind,
		Amount:        amount,
		Reason:        reason,
		CreatedAt:     s.clock.Now(),
	}
	if externalID != "" {
		entry.ExternalID = &externalID
	}
	if relatedJobID != 0 {
		id := relatedJobID
		entry.RelatedJobID = &id
	}

	err := tx.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, principal_id, principal_kind, amount, reason, external_id, related_job_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.PrincipalID,
		entry.PrincipalKind,
		entry.Amount,
		entry.Reason,
		entry.ExternalID,
		entry.RelatedJobID,
		entry.CreatedAt,
	).Error
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, ledgerdomain.ErrDuplicateEntry
		}
		return nil, err
	}
	return entry, nil
}

func (s *Service) applyGuestDelta(ctx context.Context, tx *gorm.DB, guestID snowflake.ID, delta int64) error {
	result := tx.WithContext(ctx).Exec(
		`UPDATE guests SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		delta,
		s.clock.Now(),
		guestID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ledgerdomain.ErrInvalidPrincipal
	}
	return nil
}
