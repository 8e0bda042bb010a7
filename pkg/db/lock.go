package db

import "gorm.io/gorm"

// LockForUpdate returns the row-lock suffix for the active dialect. SQLite
// has no FOR UPDATE; its writer lock already serializes transactions.
func LockForUpdate(db *gorm.DB) string {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
