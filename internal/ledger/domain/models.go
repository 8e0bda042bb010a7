package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
)

// Reason classifies a ledger posting.
type Reason string

const (
	ReasonTopup   Reason = "topup"
	ReasonJobCost Reason = "job_cost"
	ReasonRefund  Reason = "refund"
)

// LedgerEntry is an immutable signed posting against a principal. A
// principal's balance is the sum of its entries; guests additionally
// materialize the balance on the guest row.
type LedgerEntry struct {
	ID            snowflake.ID                 `json:"id" gorm:"primaryKey"`
	PrincipalID   snowflake.ID                 `json:"principal_id" gorm:"not null;index"`
	PrincipalKind identitydomain.PrincipalKind `json:"principal_kind" gorm:"type:text;not null"`
	Amount        int64                        `json:"amount" gorm:"not null"`
	Reason        Reason                       `json:"reason" gorm:"type:text;not null"`
	ExternalID    *string                      `json:"external_id,omitempty" gorm:"type:text;uniqueIndex:ux_ledger_entries_external_id"`
	RelatedJobID  *snowflake.ID                `json:"related_job_id,omitempty" gorm:"index"`
	CreatedAt     time.Time                    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// RefundExternalID is the idempotency key for a job refund. The unique
// index on external_id makes a second refund insert fail.
func RefundExternalID(jobID snowflake.ID) string {
	return "refund_" + jobID.String()
}

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidPrincipal    = errors.New("invalid_principal")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrDuplicateEntry      = errors.New("duplicate_ledger_entry")
)
