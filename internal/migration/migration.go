package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	catalogdomain "github.com/smallbiznis/artline/internal/catalog/domain"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	jobdomain "github.com/smallbiznis/artline/internal/job/domain"
	ledgerdomain "github.com/smallbiznis/artline/internal/ledger/domain"
	"github.com/smallbiznis/artline/internal/pricing"
	providerdomain "github.com/smallbiznis/artline/internal/provider/domain"
)

// Run creates or updates the schema on startup so a fresh database is
// usable without any manual setup.
func Run(db *gorm.DB) error {
	return db.AutoMigrate(
		&identitydomain.User{},
		&identitydomain.Guest{},
		&ledgerdomain.LedgerEntry{},
		&catalogdomain.AIModel{},
		&pricing.Quote{},
		&providerdomain.ProviderConfig{},
		&jobdomain.Job{},
	)
}

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)
