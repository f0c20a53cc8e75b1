package models

import (
	"time"

	"github.com/google/uuid"
)

type LastMessage struct {
	Content  string
	SentAt   *time.Time
	SenderID *uuid.UUID `gorm:"type:uuid"`
}

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SubjectID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_conversations_pair_subject,priority:2"`
	// PairKey is the sorted "a:b" of both participants for two-party chats
	// and NULL for team chats.
	PairKey          *string     `gorm:"uniqueIndex:idx_conversations_pair_subject,priority:1"`
	IsTeamChat       bool        `gorm:"not null;default:false"`
	CreatedBy        uuid.UUID   `gorm:"type:uuid;not null"`
	FirstMessageSent bool        `gorm:"not null;default:false"`
	InitiatedBy      *uuid.UUID  `gorm:"type:uuid"`
	LastMessage      LastMessage `gorm:"embedded;embeddedPrefix:last_message_"`
	LastMessageAt    time.Time   `gorm:"not null;index"`
	MessageCount     int64       `gorm:"not null;default:0"`
	CreatedAt        time.Time

	Participants []Participant `gorm:"foreignKey:ConversationID"`
}

// Participant keeps the role a user had when they joined the conversation.
type Participant struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Role           Role      `gorm:"type:varchar(32);not null"`
	Position       int       `gorm:"not null"`
	JoinedAt       time.Time
}

func (Participant) TableName() string { return "conversation_participants" }

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	_, ok := c.Participant(userID)
	return ok
}

func (c *Conversation) Participant(userID uuid.UUID) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Conversation) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Participants))
	for i, p := range c.Participants {
		ids[i] = p.UserID
	}
	return ids
}

// PairKey is order independent: PairKey(a, b) == PairKey(b, a).
func PairKey(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}
