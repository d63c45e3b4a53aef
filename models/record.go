package models

import (
	"time"

	"gorm.io/datatypes"
)

// Record is one row of a processed dataset plus its suggested changes and
// review decision. The (dataset_id, row_index) pair is unique so redelivered
// processing jobs cannot duplicate rows.
type Record struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DatasetID  string            `gorm:"size:64;not null;uniqueIndex:idx_record_dataset_row"`
	RowIndex   int               `gorm:"not null;uniqueIndex:idx_record_dataset_row"`
	Data       datatypes.JSONMap `gorm:"not null"`
	Changes    datatypes.JSONMap
	Reviewed   bool   `gorm:"default:false;not null;index"`
	Approved   *bool  // nil until a decision is recorded
	Comments   string `gorm:"size:512"`
	ReviewedAt *time.Time
}
