package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thereayou/dealroom-chat/internal/models"
	"github.com/thereayou/dealroom-chat/pkg/apperrors"
)

// BuildMessage inspects the locked conversation and returns the message to
// append. Returning an error aborts the append.
type BuildMessage func(conv *models.Conversation) (*models.Message, error)

// AppendMessage locks the conversation row, lets build validate against the
// current state, then inserts the message and moves the last-message
// projection forward, all in one transaction.
func (d *Database) AppendMessage(ctx context.Context, conversationID uuid.UUID, build BuildMessage) (*models.Message, *models.Conversation, error) {
	var (
		msg  *models.Message
		conv models.Conversation
	)

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&conv, "id = ?", conversationID).Error
		if err != nil {
			return notFound(err, "conversation")
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Order("position ASC").Find(&conv.Participants).Error; err != nil {
			return err
		}

		msg, err = build(&conv)
		if err != nil {
			return err
		}

		msg.ConversationID = conv.ID
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		if msg.Type == "" {
			msg.Type = models.MessageTypeText
		}
		msg.Seq = conv.MessageCount + 1
		msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Microsecond)
		if msg.CreatedAt.Before(conv.LastMessageAt) {
			msg.CreatedAt = conv.LastMessageAt
		}

		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		read := models.MessageRead{MessageID: msg.ID, UserID: msg.SenderID, ReadAt: msg.CreatedAt}
		if err := tx.Create(&read).Error; err != nil {
			return err
		}

		err = tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]any{
			"last_message_content":   msg.Text,
			"last_message_sent_at":   msg.CreatedAt,
			"last_message_sender_id": msg.SenderID,
			"last_message_at":        msg.CreatedAt,
			"message_count":          msg.Seq,
		}).Error
		if err != nil {
			return err
		}

		if msg.Type == models.MessageTypeText && !conv.FirstMessageSent {
			res := tx.Model(&models.Conversation{}).
				Where("id = ? AND first_message_sent = ?", conv.ID, false).
				Updates(map[string]any{"first_message_sent": true, "initiated_by": msg.SenderID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: first message already recorded", apperrors.ErrConflict)
			}
			sender := msg.SenderID
			conv.FirstMessageSent = true
			conv.InitiatedBy = &sender
		}

		sentAt, sender := msg.CreatedAt, msg.SenderID
		conv.LastMessage = models.LastMessage{Content: msg.Text, SentAt: &sentAt, SenderID: &sender}
		conv.LastMessageAt = msg.CreatedAt
		conv.MessageCount = msg.Seq
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	msg.ReadBy = []uuid.UUID{msg.SenderID}
	return msg, &conv, nil
}

// ListMessagesPage returns messages in send order starting at offset.
func (d *Database) ListMessagesPage(ctx context.Context, conversationID uuid.UUID, offset, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := d.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, d.loadReadBy(ctx, messages)
}

// ListMessagesBefore returns up to limit messages created strictly before
// the cursor, oldest first.
func (d *Database) ListMessagesBefore(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]models.Message, error) {
	query := d.db.WithContext(ctx).
		Where("conversation_id = ? AND created_at < ?", conversationID, before.UTC())
	return d.newestFirst(ctx, query, limit)
}

// ListMessagesBeforeSeq returns up to limit messages that precede seq in
// send order, oldest first. Unlike a timestamp cursor it never skips
// messages that share a created_at.
func (d *Database) ListMessagesBeforeSeq(ctx context.Context, conversationID uuid.UUID, seq int64, limit int) ([]models.Message, error) {
	query := d.db.WithContext(ctx).
		Where("conversation_id = ? AND seq < ?", conversationID, seq)
	return d.newestFirst(ctx, query, limit)
}

// ListLatestMessages returns the newest limit messages, oldest first.
func (d *Database) ListLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	query := d.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	return d.newestFirst(ctx, query, limit)
}

func (d *Database) newestFirst(ctx context.Context, query *gorm.DB, limit int) ([]models.Message, error) {
	var messages []models.Message
	if err := query.Order("seq DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// flip back so the oldest message comes first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, d.loadReadBy(ctx, messages)
}

func (d *Database) loadReadBy(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(messages))
	index := make(map[uuid.UUID]int, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
		index[m.ID] = i
		messages[i].ReadBy = []uuid.UUID{}
	}

	var reads []models.MessageRead
	err := d.db.WithContext(ctx).
		Where("message_id IN ?", ids).
		Order("read_at ASC").
		Find(&reads).Error
	if err != nil {
		return err
	}
	for _, r := range reads {
		i := index[r.MessageID]
		messages[i].ReadBy = append(messages[i].ReadBy, r.UserID)
	}
	return nil
}

// MarkConversationRead adds userID to the read set of every message in the
// conversation and reports how many messages were newly marked.
func (d *Database) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) (int64, error) {
	var marked int64

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alreadyRead := tx.Model(&models.MessageRead{}).Select("message_id").Where("user_id = ?", userID)

		var ids []uuid.UUID
		err := tx.Model(&models.Message{}).
			Where("conversation_id = ?", conversationID).
			Where("id NOT IN (?)", alreadyRead).
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}

		at = at.UTC().Truncate(time.Microsecond)
		reads := make([]models.MessageRead, len(ids))
		for i, id := range ids {
			reads[i] = models.MessageRead{MessageID: id, UserID: userID, ReadAt: at}
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(reads, 200)
		marked = res.RowsAffected
		return res.Error
	})

	return marked, err
}
