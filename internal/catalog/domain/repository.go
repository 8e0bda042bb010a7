package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Kind       ModelKind
	ActiveOnly bool
	AfterID    snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, m *AIModel) error
	Update(ctx context.Context, db *gorm.DB, m *AIModel) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AIModel, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*AIModel, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AIModel, error)
}
