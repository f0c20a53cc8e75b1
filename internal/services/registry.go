package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thereayou/dealroom-chat/internal/models"
	"github.com/thereayou/dealroom-chat/internal/policy"
	"github.com/thereayou/dealroom-chat/pkg/apperrors"
)

// Registry owns conversation membership: who talks to whom about which
// subject.
type Registry struct {
	store    ConversationStore
	users    UserDirectory
	subjects SubjectChecker
	now      func() time.Time
	logger   *slog.Logger
}

func NewRegistry(store ConversationStore, users UserDirectory, subjects SubjectChecker, now func() time.Time, logger *slog.Logger) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		store:    store,
		users:    users,
		subjects: subjects,
		now:      now,
		logger:   logger.With("component", "registry"),
	}
}

// FindOrCreate returns the two-party conversation between initiator and
// recipient about subjectID, creating it when it does not exist yet. The
// second return value reports whether it was created by this call.
func (r *Registry) FindOrCreate(ctx context.Context, initiatorID uuid.UUID, initiatorRole models.Role, recipientID uuid.UUID, recipientRole models.Role, subjectID uuid.UUID) (*models.Conversation, bool, error) {
	if initiatorID == recipientID {
		return nil, false, apperrors.InvalidArgument("cannot start a conversation with yourself")
	}
	if !initiatorRole.Valid() {
		return nil, false, apperrors.InvalidArgument("unknown initiator role %q", initiatorRole)
	}
	if !recipientRole.Valid() {
		return nil, false, apperrors.InvalidArgument("unknown recipient role %q", recipientRole)
	}

	users, err := r.users.GetUsers(ctx, []uuid.UUID{initiatorID, recipientID})
	if err != nil {
		return nil, false, fmt.Errorf("resolve participants: %w", err)
	}
	if _, ok := users[initiatorID]; !ok {
		return nil, false, apperrors.InvalidArgument("initiator %s is unknown", initiatorID)
	}
	recipient, ok := users[recipientID]
	if !ok {
		return nil, false, apperrors.InvalidArgument("recipient %s is unknown", recipientID)
	}
	if recipient.Role != recipientRole {
		return nil, false, apperrors.InvalidArgument("recipient %s is not a %s", recipientID, recipientRole)
	}

	if err := r.requireSubject(ctx, subjectID); err != nil {
		return nil, false, err
	}

	if !policy.CanInitiate(initiatorRole, recipientRole) {
		return nil, false, apperrors.Forbidden("a %s cannot start a conversation with a %s", initiatorRole, recipientRole)
	}

	key := models.PairKey(initiatorID, recipientID)
	existing, err := r.store.FindConversationByPair(ctx, key, subjectID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	now := r.now().UTC().Truncate(time.Microsecond)
	conv := &models.Conversation{
		ID:            uuid.New(),
		SubjectID:     subjectID,
		PairKey:       &key,
		CreatedBy:     initiatorID,
		LastMessageAt: now,
		CreatedAt:     now,
		Participants: []models.Participant{
			{UserID: initiatorID, Role: initiatorRole, JoinedAt: now},
			{UserID: recipientID, Role: recipientRole, JoinedAt: now},
		},
	}

	err = r.store.CreateConversation(ctx, conv)
	if errors.Is(err, apperrors.ErrConflict) {
		// lost the race to a concurrent create; the winner's row is the answer
		r.logger.Debug("conversation created concurrently, re-reading", "pair", key, "subject_id", subjectID)
		existing, err := r.store.FindConversationByPair(ctx, key, subjectID)
		if err != nil {
			return nil, false, fmt.Errorf("re-read after conflict: %w", err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	r.logger.Info("conversation created",
		"conversation_id", conv.ID, "initiator_id", initiatorID, "recipient_id", recipientID, "subject_id", subjectID)
	return conv, true, nil
}

// CreateTeamChat opens a new team conversation between creator and members.
// Team chats are never deduplicated.
func (r *Registry) CreateTeamChat(ctx context.Context, creator CurrentUser, memberIDs []uuid.UUID, subjectID uuid.UUID) (*models.Conversation, error) {
	if creator.Role != models.RoleTeamMember {
		return nil, apperrors.Forbidden("only team members can create team chats")
	}

	ids := []uuid.UUID{creator.ID}
	seen := map[uuid.UUID]bool{creator.ID: true}
	for _, id := range memberIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) < 2 {
		return nil, apperrors.InvalidArgument("a team chat needs at least one other member")
	}

	users, err := r.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve members: %w", err)
	}
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			return nil, apperrors.InvalidArgument("member %s is unknown", id)
		}
		if u.Role != models.RoleTeamMember {
			return nil, apperrors.InvalidArgument("member %s is not a team member", id)
		}
	}

	if err := r.requireSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	now := r.now().UTC().Truncate(time.Microsecond)
	conv := &models.Conversation{
		ID:            uuid.New(),
		SubjectID:     subjectID,
		IsTeamChat:    true,
		CreatedBy:     creator.ID,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	for _, id := range ids {
		conv.Participants = append(conv.Participants, models.Participant{UserID: id, Role: models.RoleTeamMember, JoinedAt: now})
	}

	if err := r.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	r.logger.Info("team chat created", "conversation_id", conv.ID, "creator_id", creator.ID, "members", len(ids))
	return conv, nil
}

func (r *Registry) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Conversation, error) {
	return r.store.ListUserConversations(ctx, userID, limit)
}

// GetIfParticipant loads the conversation if userID takes part in it. It
// fails with ErrNotFound or ErrNotParticipant; callers facing the outside
// world conceal the difference.
func (r *Registry) GetIfParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}
	return conv, nil
}

func (r *Registry) requireSubject(ctx context.Context, subjectID uuid.UUID) error {
	if subjectID == uuid.Nil {
		return apperrors.InvalidArgument("subject id is required")
	}
	ok, err := r.subjects.SubjectExists(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("check subject: %w", err)
	}
	if !ok {
		return apperrors.InvalidArgument("subject %s does not exist", subjectID)
	}
	return nil
}
