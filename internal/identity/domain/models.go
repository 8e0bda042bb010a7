package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier gates catalog parameters and enumerated values. Tiers are a set, not
// an ordinal scale: gating uses membership plus the "all" wildcard and an
// admin bypass.
type Tier string

const (
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierStudio  Tier = "studio"
	TierAdmin   Tier = "admin"

	// TierAll is the wildcard accepted inside access_tiers lists.
	TierAll = "all"
)

func ParseTier(raw string) Tier {
	switch Tier(raw) {
	case TierPro:
		return TierPro
	case TierStudio:
		return TierStudio
	case TierAdmin:
		return TierAdmin
	default:
		return TierStarter
	}
}

type PrincipalKind string

const (
	PrincipalKindUser  PrincipalKind = "user"
	PrincipalKindGuest PrincipalKind = "guest"
)

// Principal is the tagged sum of User and Guest identities. Exactly one of
// the two sides is meaningful, selected by Kind.
type Principal struct {
	Kind    PrincipalKind
	UserID  snowflake.ID
	GuestID snowflake.ID
	Tier    Tier
}

func UserPrincipal(id snowflake.ID, tier Tier) Principal {
	return Principal{Kind: PrincipalKindUser, UserID: id, Tier: tier}
}

func GuestPrincipal(id snowflake.ID) Principal {
	return Principal{Kind: PrincipalKindGuest, GuestID: id, Tier: TierStarter}
}

func (p Principal) ID() snowflake.ID {
	if p.Kind == PrincipalKindGuest {
		return p.GuestID
	}
	return p.UserID
}

func (p Principal) IsGuest() bool { return p.Kind == PrincipalKindGuest }

func (p Principal) IsAdmin() bool { return p.Kind == PrincipalKindUser && p.Tier == TierAdmin }

// User balances derive from the ledger; BalanceCache is advisory only.
type User struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Email        string       `json:"email" gorm:"type:text;not null;uniqueIndex:ux_users_email"`
	PasswordHash string       `json:"-" gorm:"type:text;not null"`
	DisplayName  string       `json:"display_name" gorm:"type:text;not null"`
	Tier         Tier         `json:"tier" gorm:"type:text;not null;default:starter"`
	BalanceCache int64        `json:"balance_cache" gorm:"not null;default:0"`
	DeleteAfter  *time.Time   `json:"delete_after,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Guest is the anonymous principal. Its Balance column is the source of
// truth, mutated atomically with ledger writes.
type Guest struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Token     string       `json:"token" gorm:"type:text;not null;uniqueIndex:ux_guests_token"`
	Balance   int64        `json:"balance" gorm:"not null;default:0"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Guest) TableName() string { return "guests" }
