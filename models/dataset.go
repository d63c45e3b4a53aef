package models

import "time"

// Dataset status values. Transitions only move forward along
// uploaded -> processing -> processed -> reviewing -> completed,
// with processing -> error as the absorbing failure branch.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusReviewing  = "reviewing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Dataset represents one uploaded tabular file and its pipeline state.
type Dataset struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DatasetID      string    `gorm:"size:64;not null;uniqueIndex"`
	UserID         uint      `gorm:"index;not null"`
	OrganizationID uint      `gorm:"index;not null"`
	Filename       string    `gorm:"size:255;not null"`
	Size           int64     `gorm:"not null"`
	StoreRef       string    `gorm:"size:512;not null"` // object store reference for the raw bytes
	Status         string    `gorm:"size:16;not null;default:uploaded;index"`
	UploadedAt     time.Time `gorm:"not null;index"`
}

// ValidStatus reports whether s is one of the known dataset statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusReviewing, StatusCompleted, StatusError:
		return true
	}
	return false
}
