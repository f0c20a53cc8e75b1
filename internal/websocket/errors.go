package websocket

import "errors"

var (
	ErrClientQueueFull = errors.New("client message queue is full")
	ErrClientClosed    = errors.New("client connection closed")
	ErrInvalidFrame    = errors.New("invalid frame")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotSubscribed   = errors.New("not subscribed to channel")
	ErrHubStopped      = errors.New("hub stopped")
)
