package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

type Message struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_messages_conversation_seq,priority:1;index:idx_messages_conversation_created,priority:1"`
	Seq            int64       `gorm:"not null;uniqueIndex:idx_messages_conversation_seq,priority:2"`
	SenderID       uuid.UUID   `gorm:"type:uuid;not null"`
	SenderRole     Role        `gorm:"type:varchar(32);not null"`
	Text           string      `gorm:"type:text;not null"`
	Type           MessageType `gorm:"type:varchar(16);not null;default:'text'"`
	CreatedAt      time.Time   `gorm:"not null;index:idx_messages_conversation_created,priority:2"`

	ReadBy []uuid.UUID `gorm:"-"`
}

type MessageRead struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReadAt    time.Time
}

func (MessageRead) TableName() string { return "message_reads" }
