package models

import "time"

// SavedNote records a card successfully stored on the note service.
type SavedNote struct {
	ID              uint   `gorm:"primaryKey"`
	Word            string `gorm:"size:255;not null;index"`
	NoteID          int64  `gorm:"not null;index"`
	Model           string `gorm:"size:255"`
	ExplanationJSON string `gorm:"type:text;not null"`
	CreatedAt       time.Time
}
