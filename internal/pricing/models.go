package pricing

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// LineItem is one component of a quote breakdown.
type LineItem struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// Quote is the computed credit cost for one generation. A quote is frozen
// into the job row at creation; later pricing changes never reprice a job.
type Quote struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	JobID     snowflake.ID   `json:"job_id" gorm:"index"`
	ModelID   snowflake.ID   `json:"model_id" gorm:"not null;index"`
	BaseCost  int64          `json:"base_cost" gorm:"not null"`
	Total     int64          `json:"total" gorm:"not null"`
	Breakdown datatypes.JSON `json:"breakdown"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Quote) TableName() string { return "pricing_quotes" }
