package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/dealroom-chat/internal/handlers/dto"
	"github.com/thereayou/dealroom-chat/internal/middleware"
	"github.com/thereayou/dealroom-chat/internal/services"
	"github.com/thereayou/dealroom-chat/internal/websocket"
	"github.com/thereayou/dealroom-chat/pkg/auth"
)

type RealtimeHandler struct {
	authorizer *services.ChannelAuthorizer
	convs      *services.ConversationService
	hub        *websocket.Hub
}

func NewRealtimeHandler(authorizer *services.ChannelAuthorizer, convs *services.ConversationService, hub *websocket.Hub) *RealtimeHandler {
	return &RealtimeHandler{authorizer: authorizer, convs: convs, hub: hub}
}

// Authorize issues a subscription grant for a conversation channel.
func (h *RealtimeHandler) Authorize(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.ChannelAuthRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}

	grant, err := h.authorizer.Authorize(c.Request.Context(), user, req.ChannelName, req.SocketID)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// Presence lists the participants currently subscribed to the conversation
// on this instance.
func (h *RealtimeHandler) Presence(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	conv, err := h.convs.GetConversation(c.Request.Context(), user, id)
	if err != nil {
		middleware.Abort(c, err)
		return
	}

	members := h.hub.Members(conv.Channel)
	if members == nil {
		members = []auth.ChannelMember{}
	}
	c.JSON(http.StatusOK, gin.H{"channel": conv.Channel, "members": members, "count": len(members)})
}
