package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/thereayou/dealroom-chat/internal/fanout"
	"github.com/thereayou/dealroom-chat/pkg/apperrors"
	"github.com/thereayou/dealroom-chat/pkg/auth"
)

type GrantSigner interface {
	Sign(socketID, channel string, member auth.ChannelMember) (string, error)
}

// ChannelGrant is handed back to the client, which presents Auth when
// subscribing on its socket.
type ChannelGrant struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data"`
}

// ChannelAuthorizer issues subscription grants for conversation channels,
// and only to participants.
type ChannelAuthorizer struct {
	registry *Registry
	signer   GrantSigner
	channels fanout.Channels
	logger   *slog.Logger
}

func NewChannelAuthorizer(registry *Registry, signer GrantSigner, channels fanout.Channels, logger *slog.Logger) *ChannelAuthorizer {
	return &ChannelAuthorizer{
		registry: registry,
		signer:   signer,
		channels: channels,
		logger:   logger.With("component", "channel_auth"),
	}
}

func (a *ChannelAuthorizer) Authorize(ctx context.Context, caller CurrentUser, channel, socketID string) (*ChannelGrant, error) {
	if socketID == "" {
		return nil, apperrors.InvalidArgument("socket_id is required")
	}
	conversationID, err := a.channels.Parse(channel)
	if err != nil {
		return nil, apperrors.InvalidArgument("malformed channel name")
	}

	if _, err := a.registry.GetIfParticipant(ctx, conversationID, caller.ID); err != nil {
		if apperrors.IsMembershipFailure(err) {
			a.logger.Info("channel subscription refused", "user_id", caller.ID, "channel", channel)
			return nil, apperrors.Forbidden("not allowed to subscribe to %s", channel)
		}
		return nil, err
	}

	member := auth.ChannelMember{
		UserID:   caller.ID.String(),
		UserInfo: auth.MemberInfo{Name: displayName(caller), Role: caller.Role.String()},
	}
	signed, err := a.signer.Sign(socketID, channel, member)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(member)
	if err != nil {
		return nil, err
	}

	return &ChannelGrant{Auth: signed, ChannelData: string(data)}, nil
}
