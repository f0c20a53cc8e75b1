package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the read-only directory view of an account. Accounts are owned by
// the identity service; this table is only ever read here.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email       string    `gorm:"uniqueIndex;not null"`
	DisplayName string    `gorm:"not null"`
	Role        Role      `gorm:"type:varchar(32);not null"`
	AvatarURL   string
	CreatedAt   time.Time
}
