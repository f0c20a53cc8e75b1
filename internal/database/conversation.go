package database

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thereayou/dealroom-chat/internal/models"
)

func orderedParticipants(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// CreateConversation inserts the conversation and its participants in one
// transaction. A clash on (pair_key, subject_id) comes back as ErrConflict.
func (d *Database) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(conv).Error; err != nil {
			return conflict(err, "conversation already exists")
		}
		for i := range conv.Participants {
			conv.Participants[i].ConversationID = conv.ID
			conv.Participants[i].Position = i
		}
		return tx.Create(&conv.Participants).Error
	})
}

func (d *Database) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := d.db.WithContext(ctx).
		Preload("Participants", orderedParticipants).
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "conversation")
	}
	return &conv, nil
}

func (d *Database) FindConversationByPair(ctx context.Context, pairKey string, subjectID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := d.db.WithContext(ctx).
		Preload("Participants", orderedParticipants).
		Where("pair_key = ? AND subject_id = ? AND is_team_chat = ?", pairKey, subjectID, false).
		First(&conv).Error
	if err != nil {
		return nil, notFound(err, "conversation")
	}
	return &conv, nil
}

// ListUserConversations returns the user's conversations, most recently
// active first.
func (d *Database) ListUserConversations(ctx context.Context, userID uuid.UUID, limit int) ([]models.Conversation, error) {
	var convs []models.Conversation

	member := d.db.Model(&models.Participant{}).Select("conversation_id").Where("user_id = ?", userID)
	query := d.db.WithContext(ctx).
		Preload("Participants", orderedParticipants).
		Where("id IN (?)", member).
		Order("last_message_at DESC").
		Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}
