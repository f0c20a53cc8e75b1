package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/dealroom-chat/internal/handlers/dto"
	"github.com/thereayou/dealroom-chat/internal/middleware"
	"github.com/thereayou/dealroom-chat/internal/models"
	"github.com/thereayou/dealroom-chat/internal/services"
	"github.com/thereayou/dealroom-chat/pkg/apperrors"
)

type ConversationHandler struct {
	svc *services.ConversationService
}

func NewConversationHandler(svc *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// Create finds or opens the conversation between the caller and a recipient
// about a subject. 201 when it was created, 200 when it already existed.
func (h *ConversationHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := models.ParseRole(req.RecipientRole)
	if err != nil {
		badRequest(c, err)
		return
	}

	view, created, err := h.svc.CreateOrGetConversation(c.Request.Context(), user, services.CreateConversationInput{
		RecipientID:   uuid.MustParse(req.RecipientID),
		RecipientRole: role,
		SubjectID:     uuid.MustParse(req.SubjectID),
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": view, "created": created})
}

func (h *ConversationHandler) CreateTeam(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateTeamChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	members := make([]uuid.UUID, len(req.MemberIDs))
	for i, id := range req.MemberIDs {
		members[i] = uuid.MustParse(id)
	}

	view, err := h.svc.CreateTeamChat(c.Request.Context(), user, members, uuid.MustParse(req.SubjectID))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": view})
}

func (h *ConversationHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var q dto.ListConversationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	convs, err := h.svc.ListConversations(c.Request.Context(), user, q.Limit)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.svc.GetConversation(c.Request.Context(), user, id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": view})
}

func (h *ConversationHandler) ListMessages(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var q dto.ListMessagesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	query := services.MessageQuery{Page: q.Page, Limit: q.Limit, BeforeSeq: q.BeforeSeq}
	if q.Before != "" {
		before, err := time.Parse(time.RFC3339Nano, q.Before)
		if err != nil {
			middleware.Abort(c, apperrors.InvalidArgument("before must be an RFC 3339 timestamp"))
			return
		}
		query.Before = &before
	}

	page, err := h.svc.ListMessages(c.Request.Context(), user, id, query)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ConversationHandler) SendMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), user, id, req.Text)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	receipt, err := h.svc.MarkRead(c.Request.Context(), user, id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}
