package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/dealroom-chat/internal/database"
	"github.com/thereayou/dealroom-chat/internal/models"
)

// CurrentUser is the authenticated caller as resolved from the access token
// and the user directory.
type CurrentUser struct {
	ID        uuid.UUID
	Role      models.Role
	Name      string
	Email     string
	AvatarURL string
}

func CurrentUserFrom(u *models.User) CurrentUser {
	return CurrentUser{ID: u.ID, Role: u.Role, Name: u.DisplayName, Email: u.Email, AvatarURL: u.AvatarURL}
}

type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
}

type SubjectChecker interface {
	SubjectExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindConversationByPair(ctx context.Context, pairKey string, subjectID uuid.UUID) (*models.Conversation, error)
	ListUserConversations(ctx context.Context, userID uuid.UUID, limit int) ([]models.Conversation, error)

	AppendMessage(ctx context.Context, conversationID uuid.UUID, build database.BuildMessage) (*models.Message, *models.Conversation, error)
	ListMessagesPage(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, error)
	ListMessagesBefore(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]models.Message, error)
	ListMessagesBeforeSeq(ctx context.Context, conversationID uuid.UUID, seq int64, limit int) ([]models.Message, error)
	ListLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (int64, error)
}

// Publisher pushes an event to everyone subscribed to a conversation.
type Publisher interface {
	Publish(ctx context.Context, conversationID uuid.UUID, event string, payload any) error
}

var (
	_ UserDirectory     = (*database.Database)(nil)
	_ SubjectChecker    = (*database.Database)(nil)
	_ ConversationStore = (*database.Database)(nil)
)
