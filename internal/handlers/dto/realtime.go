package dto

// ChannelAuthRequest accepts both JSON and form bodies, the way realtime
// client libraries post them.
type ChannelAuthRequest struct {
	SocketID    string `json:"socket_id" form:"socket_id"`
	ChannelName string `json:"channel_name" form:"channel_name"`
}
