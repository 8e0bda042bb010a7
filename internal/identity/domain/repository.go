package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	InsertGuest(ctx context.Context, db *gorm.DB, guest *Guest) error
	FindGuestByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Guest, error)
	FindGuestByToken(ctx context.Context, db *gorm.DB, token string) (*Guest, error)
}
