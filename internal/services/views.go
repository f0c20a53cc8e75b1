package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/dealroom-chat/internal/models"
)

type ParticipantView struct {
	UserID      uuid.UUID   `json:"user_id"`
	Role        models.Role `json:"role"`
	DisplayName string      `json:"display_name"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
}

type LastMessageView struct {
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
	SenderID uuid.UUID `json:"sender_id"`
}

type ConversationView struct {
	ID               uuid.UUID         `json:"id"`
	SubjectID        uuid.UUID         `json:"subject_id"`
	IsTeamChat       bool              `json:"is_team_chat"`
	CreatedBy        uuid.UUID         `json:"created_by"`
	FirstMessageSent bool              `json:"first_message_sent"`
	InitiatedBy      *uuid.UUID        `json:"initiated_by,omitempty"`
	Participants     []ParticipantView `json:"participants"`
	LastMessage      *LastMessageView  `json:"last_message,omitempty"`
	LastMessageAt    time.Time         `json:"last_message_at"`
	CreatedAt        time.Time         `json:"created_at"`
	Channel          string            `json:"channel"`
}

type SenderView struct {
	ID          uuid.UUID   `json:"id"`
	DisplayName string      `json:"display_name,omitempty"`
	Role        models.Role `json:"role"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
}

type MessageView struct {
	ID             uuid.UUID          `json:"id"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	Seq            int64              `json:"seq"`
	SenderID       uuid.UUID          `json:"sender_id"`
	SenderRole     models.Role        `json:"sender_role"`
	Sender         SenderView         `json:"sender"`
	Text           string             `json:"text"`
	Type           models.MessageType `json:"type"`
	ReadBy         []uuid.UUID        `json:"read_by"`
	CreatedAt      time.Time          `json:"created_at"`
}

type MessagePage struct {
	Messages []MessageView `json:"messages"`
	Page     int           `json:"page,omitempty"`
	Limit    int           `json:"limit"`
	HasMore  bool          `json:"has_more"`
	// NextBefore is the created_at of the oldest message on the page.
	NextBefore *time.Time `json:"next_before,omitempty"`
	// NextBeforeSeq continues to the next older page without skipping
	// messages that share NextBefore's timestamp.
	NextBeforeSeq *int64 `json:"next_before_seq,omitempty"`
}

type ReadReceipt struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Marked         int64     `json:"marked"`
	ReadAt         time.Time `json:"read_at"`
}

func participantViews(conv *models.Conversation, users map[uuid.UUID]models.User) []ParticipantView {
	out := make([]ParticipantView, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		v := ParticipantView{UserID: p.UserID, Role: p.Role}
		if u, ok := users[p.UserID]; ok {
			v.DisplayName = u.DisplayName
			v.AvatarURL = u.AvatarURL
		}
		out = append(out, v)
	}
	return out
}

func lastMessageView(lm models.LastMessage) *LastMessageView {
	if lm.SentAt == nil || lm.SenderID == nil {
		return nil
	}
	return &LastMessageView{Content: lm.Content, SentAt: *lm.SentAt, SenderID: *lm.SenderID}
}

func messageView(m *models.Message, sender SenderView) MessageView {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []uuid.UUID{}
	}
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		SenderRole:     m.SenderRole,
		Sender:         sender,
		Text:           m.Text,
		Type:           m.Type,
		ReadBy:         readBy,
		CreatedAt:      m.CreatedAt,
	}
}
