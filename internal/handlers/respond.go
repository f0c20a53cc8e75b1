package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/dealroom-chat/internal/middleware"
	"github.com/thereayou/dealroom-chat/internal/services"
	"github.com/thereayou/dealroom-chat/pkg/apperrors"
)

func currentUser(c *gin.Context) (services.CurrentUser, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.Abort(c, apperrors.ErrUnauthenticated)
	}
	return user, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		middleware.Abort(c, apperrors.InvalidArgument("%s is not a valid id", name))
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	middleware.Abort(c, apperrors.InvalidArgument("%s", err.Error()))
}
