package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"gorm.io/gorm"
)

// Service posts ledger entries. Mutating calls take the caller's database
// handle so a job-store transaction can debit atomically with its insert;
// pass the service's own handle for standalone postings.
type Service interface {
	Balance(ctx context.Context, db *gorm.DB, principal identitydomain.Principal) (int64, error)
	Debit(ctx context.Context, db *gorm.DB, req DebitRequest) (*LedgerEntry, error)
	Credit(ctx context.Context, db *gorm.DB, req CreditRequest) (*LedgerEntry, error)
}

type DebitRequest struct {
	Principal    identitydomain.Principal
	Amount       int64
	Reason       Reason
	ExternalID   string
	RelatedJobID snowflake.ID
}

type CreditRequest struct {
	Principal    identitydomain.Principal
	Amount       int64
	Reason       Reason
	ExternalID   string
	RelatedJobID snowflake.ID
}
