package websocket

import (
	"errors"

	"github.com/thereayou/livechat/internal/apperr"
)

var (
	ErrClientQueueFull = errors.New("client message queue is full")
	ErrHubStopped      = errors.New("hub is stopped")
	ErrNotInRoom       = apperr.Forbidden("join the room first")
)
