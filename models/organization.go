package models

import "time"

// Organization groups users; dataset access is owner-or-same-organization.
type Organization struct {
	ID          uint `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string `gorm:"size:255;uniqueIndex;not null"`
	Description string `gorm:"size:512"`
}
