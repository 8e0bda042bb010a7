package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() identitydomain.Repository {
	return &repo{}
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, u *identitydomain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, password_hash, display_name, tier, balance_cache, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.DisplayName,
		u.Tier,
		u.BalanceCache,
		u.CreatedAt,
		u.UpdatedAt,
	).Error
}

func (r *repo) FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*identitydomain.User, error) {
	var user identitydomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, password_hash, display_name, tier, balance_cache, delete_after, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*identitydomain.User, error) {
	var user identitydomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, password_hash, display_name, tier, balance_cache, delete_after, created_at, updated_at
		 FROM users WHERE email = ?`,
		email,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) InsertGuest(ctx context.Context, db *gorm.DB, g *identitydomain.Guest) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO guests (id, token, balance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		g.ID,
		g.Token,
		g.Balance,
		g.CreatedAt,
		g.UpdatedAt,
	).Error
}

func (r *repo) FindGuestByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*identitydomain.Guest, error) {
	var guest identitydomain.Guest
	err := db.WithContext(ctx).Raw(
		`SELECT id, token, balance, created_at, updated_at FROM guests WHERE id = ?`,
		id,
	).Scan(&guest).Error
	if err != nil {
		return nil, err
	}
	if guest.ID == 0 {
		return nil, nil
	}
	return &guest, nil
}

func (r *repo) FindGuestByToken(ctx context.Context, db *gorm.DB, token string) (*identitydomain.Guest, error) {
	var guest identitydomain.Guest
	err := db.WithContext(ctx).Raw(
		`SELECT id, token, balance, created_at, updated_at FROM guests WHERE token = ?`,
		token,
	).Scan(&guest).Error
	if err != nil {
		return nil, err
	}
	if guest.ID == 0 {
		return nil, nil
	}
	return &guest, nil
}
