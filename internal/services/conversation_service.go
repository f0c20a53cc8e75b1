package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/thereayou/dealroom-chat/internal/fanout"
	"github.com/thereayou/dealroom-chat/internal/models"
	"github.com/thereayou/dealroom-chat/internal/policy"
	"github.com/thereayou/dealroom-chat/pkg/apperrors"
)

type Options struct {
	MaxMessageLength  int
	DefaultPageSize   int
	MaxPageSize       int
	ConversationLimit int
	PublishTimeout    time.Duration
	Now               func() time.Time
}

func (o *Options) setDefaults() {
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = 5000
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 100
	}
	if o.DefaultPageSize <= 0 || o.DefaultPageSize > o.MaxPageSize {
		o.DefaultPageSize = min(50, o.MaxPageSize)
	}
	if o.ConversationLimit <= 0 {
		o.ConversationLimit = 50
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 3 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// MessageQuery selects a page of history: an offset page, messages strictly
// older than Before, or messages preceding BeforeSeq. At most one of the
// three may be set; with none the newest messages are returned.
type MessageQuery struct {
	Page      int
	Limit     int
	Before    *time.Time
	BeforeSeq int64
}

type CreateConversationInput struct {
	RecipientID   uuid.UUID
	RecipientRole models.Role
	SubjectID     uuid.UUID
}

// ConversationService is what the HTTP layer talks to. Every method takes
// the authenticated caller and never reveals whether a conversation the
// caller is not part of exists.
type ConversationService struct {
	registry  *Registry
	store     ConversationStore
	users     UserDirectory
	publisher Publisher
	channels  fanout.Channels
	opts      Options
	logger    *slog.Logger

	inflight sync.WaitGroup
}

func NewConversationService(registry *Registry, store ConversationStore, users UserDirectory, publisher Publisher, channels fanout.Channels, opts Options, logger *slog.Logger) *ConversationService {
	opts.setDefaults()
	return &ConversationService{
		registry:  registry,
		store:     store,
		users:     users,
		publisher: publisher,
		channels:  channels,
		opts:      opts,
		logger:    logger.With("component", "conversations"),
	}
}

func (s *ConversationService) CreateOrGetConversation(ctx context.Context, caller CurrentUser, in CreateConversationInput) (*ConversationView, bool, error) {
	conv, created, err := s.registry.FindOrCreate(ctx, caller.ID, caller.Role, in.RecipientID, in.RecipientRole, in.SubjectID)
	if err != nil {
		return nil, false, err
	}
	view, err := s.conversationView(ctx, conv)
	return view, created, err
}

// CreateTeamChat opens a team chat and posts a system message announcing it.
func (s *ConversationService) CreateTeamChat(ctx context.Context, caller CurrentUser, memberIDs []uuid.UUID, subjectID uuid.UUID) (*ConversationView, error) {
	conv, err := s.registry.CreateTeamChat(ctx, caller, memberIDs, subjectID)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("%s created the team chat", displayName(caller))
	_, updated, err := s.store.AppendMessage(ctx, conv.ID, func(*models.Conversation) (*models.Message, error) {
		return &models.Message{
			SenderID:   caller.ID,
			SenderRole: caller.Role,
			Text:       text,
			Type:       models.MessageTypeSystem,
			CreatedAt:  s.opts.Now(),
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("post team chat greeting: %w", err)
	}
	return s.conversationView(ctx, updated)
}

func (s *ConversationService) ListConversations(ctx context.Context, caller CurrentUser, limit int) ([]ConversationView, error) {
	if limit < 0 {
		return nil, apperrors.InvalidArgument("limit must not be negative")
	}
	if limit == 0 || limit > s.opts.ConversationLimit {
		limit = s.opts.ConversationLimit
	}

	convs, err := s.registry.ListForUser(ctx, caller.ID, limit)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for i := range convs {
		ids = append(ids, convs[i].ParticipantIDs()...)
	}
	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}

	out := make([]ConversationView, 0, len(convs))
	for i := range convs {
		out = append(out, s.buildConversationView(&convs[i], users))
	}
	return out, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, caller CurrentUser, conversationID uuid.UUID) (*ConversationView, error) {
	conv, err := s.registry.GetIfParticipant(ctx, conversationID, caller.ID)
	if err != nil {
		return nil, apperrors.Conceal(err)
	}
	return s.conversationView(ctx, conv)
}

// SendMessage appends text to the conversation on behalf of caller and fans
// it out to subscribers. The role the caller holds right now decides whether
// they may open a thread, and is recorded on the message.
func (s *ConversationService) SendMessage(ctx context.Context, caller CurrentUser, conversationID uuid.UUID, text string) (*MessageView, error) {
	text = strings.TrimSpace(text)

	msg, _, err := s.store.AppendMessage(ctx, conversationID, func(conv *models.Conversation) (*models.Message, error) {
		if !conv.HasParticipant(caller.ID) {
			return nil, apperrors.ErrNotParticipant
		}
		if !conv.IsTeamChat && !conv.FirstMessageSent && !policy.CanStartThread(caller.Role) {
			return nil, apperrors.Forbidden("only a provider can send the first message")
		}
		if err := s.validateText(text); err != nil {
			return nil, err
		}
		return &models.Message{
			SenderID:   caller.ID,
			SenderRole: caller.Role,
			Text:       text,
			Type:       models.MessageTypeText,
			CreatedAt:  s.opts.Now(),
		}, nil
	})
	if err != nil {
		return nil, apperrors.Conceal(err)
	}

	view := messageView(msg, SenderView{
		ID:          caller.ID,
		DisplayName: caller.Name,
		Role:        caller.Role,
		AvatarURL:   caller.AvatarURL,
	})
	s.publishAsync(ctx, msg.ConversationID, fanout.EventNewMessage, view)

	s.logger.Debug("message sent", "conversation_id", msg.ConversationID, "message_id", msg.ID, "seq", msg.Seq)
	return &view, nil
}

func (s *ConversationService) validateText(text string) error {
	if text == "" {
		return apperrors.InvalidArgument("message text is empty")
	}
	if n := utf8.RuneCountInString(text); n > s.opts.MaxMessageLength {
		return apperrors.InvalidArgument("message is %d characters, the limit is %d", n, s.opts.MaxMessageLength)
	}
	return nil
}

func (s *ConversationService) ListMessages(ctx context.Context, caller CurrentUser, conversationID uuid.UUID, q MessageQuery) (*MessagePage, error) {
	if _, err := s.registry.GetIfParticipant(ctx, conversationID, caller.ID); err != nil {
		return nil, apperrors.Conceal(err)
	}

	if q.Page < 0 || q.Limit < 0 || q.BeforeSeq < 0 {
		return nil, apperrors.InvalidArgument("page, limit and before_seq must not be negative")
	}
	selectors := 0
	for _, set := range []bool{q.Page > 0, q.Before != nil, q.BeforeSeq > 0} {
		if set {
			selectors++
		}
	}
	if selectors > 1 {
		return nil, apperrors.InvalidArgument("page, before and before_seq cannot be combined")
	}
	limit := q.Limit
	if limit == 0 {
		limit = s.opts.DefaultPageSize
	}
	limit = min(limit, s.opts.MaxPageSize)

	var (
		messages []models.Message
		err      error
	)
	page := &MessagePage{Limit: limit}

	switch {
	case q.Page > 0:
		page.Page = q.Page
		messages, err = s.store.ListMessagesPage(ctx, conversationID, (q.Page-1)*limit, limit+1)
		if err == nil && len(messages) > limit {
			page.HasMore = true
			messages = messages[:limit]
		}
	default:
		switch {
		case q.BeforeSeq > 0:
			messages, err = s.store.ListMessagesBeforeSeq(ctx, conversationID, q.BeforeSeq, limit+1)
		case q.Before != nil:
			messages, err = s.store.ListMessagesBefore(ctx, conversationID, *q.Before, limit+1)
		default:
			messages, err = s.store.ListLatestMessages(ctx, conversationID, limit+1)
		}
		if err == nil && len(messages) > limit {
			page.HasMore = true
			messages = messages[1:]
		}
		if page.HasMore && len(messages) > 0 {
			oldest, seq := messages[0].CreatedAt, messages[0].Seq
			page.NextBefore = &oldest
			page.NextBeforeSeq = &seq
		}
	}
	if err != nil {
		return nil, err
	}

	senders, err := s.senders(ctx, messages)
	if err != nil {
		return nil, err
	}

	page.Messages = make([]MessageView, 0, len(messages))
	for i := range messages {
		page.Messages = append(page.Messages, messageView(&messages[i], senders[messages[i].SenderID]))
	}
	return page, nil
}

// MarkRead adds caller to the read set of every message in the conversation.
func (s *ConversationService) MarkRead(ctx context.Context, caller CurrentUser, conversationID uuid.UUID) (*ReadReceipt, error) {
	if _, err := s.registry.GetIfParticipant(ctx, conversationID, caller.ID); err != nil {
		return nil, apperrors.Conceal(err)
	}

	at := s.opts.Now().UTC()
	marked, err := s.store.MarkConversationRead(ctx, conversationID, caller.ID, at)
	if err != nil {
		return nil, err
	}

	receipt := &ReadReceipt{ConversationID: conversationID, UserID: caller.ID, Marked: marked, ReadAt: at}
	if marked > 0 {
		s.publishAsync(ctx, conversationID, fanout.EventMessagesRead, receipt)
	}
	return receipt, nil
}

// Wait blocks until every in-flight publish has finished.
func (s *ConversationService) Wait() {
	s.inflight.Wait()
}

// publishAsync delivers off the caller's path with its own deadline. A
// failed publish only degrades realtime delivery; the write already
// committed.
func (s *ConversationService) publishAsync(ctx context.Context, conversationID uuid.UUID, event string, payload any) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()

		if err := s.publisher.Publish(pctx, conversationID, event, payload); err != nil {
			s.logger.Warn("realtime publish failed",
				"conversation_id", conversationID, "event", event, "error", err)
		}
	}()
}

func (s *ConversationService) senders(ctx context.Context, messages []models.Message) (map[uuid.UUID]SenderView, error) {
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, m := range messages {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			ids = append(ids, m.SenderID)
		}
	}

	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve senders: %w", err)
	}

	out := make(map[uuid.UUID]SenderView, len(ids))
	for _, m := range messages {
		if _, ok := out[m.SenderID]; ok {
			continue
		}
		v := SenderView{ID: m.SenderID, Role: m.SenderRole}
		if u, ok := users[m.SenderID]; ok {
			v.DisplayName = u.DisplayName
			v.AvatarURL = u.AvatarURL
		}
		out[m.SenderID] = v
	}
	return out, nil
}

func (s *ConversationService) conversationView(ctx context.Context, conv *models.Conversation) (*ConversationView, error) {
	users, err := s.users.GetUsers(ctx, conv.ParticipantIDs())
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}
	view := s.buildConversationView(conv, users)
	return &view, nil
}

func (s *ConversationService) buildConversationView(conv *models.Conversation, users map[uuid.UUID]models.User) ConversationView {
	return ConversationView{
		ID:               conv.ID,
		SubjectID:        conv.SubjectID,
		IsTeamChat:       conv.IsTeamChat,
		CreatedBy:        conv.CreatedBy,
		FirstMessageSent: conv.FirstMessageSent,
		InitiatedBy:      conv.InitiatedBy,
		Participants:     participantViews(conv, users),
		LastMessage:      lastMessageView(conv.LastMessage),
		LastMessageAt:    conv.LastMessageAt,
		CreatedAt:        conv.CreatedAt,
		Channel:          s.channels.Name(conv.ID),
	}
}

func displayName(u CurrentUser) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
