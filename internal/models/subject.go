package models

import (
	"time"

	"github.com/google/uuid"
)

// Subject is the startup a conversation is about.
type Subject struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	OwnerID   uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time
}

func (Subject) TableName() string { return "startups" }
