package service

import "errors"

// ErrAlreadyRunning is returned by StartServer when the server is running.
var ErrAlreadyRunning = errors.New("server is already running")

// ErrChatQueueFull is returned by BroadcastAsync when the pending chat queue
// cannot accept another message.
var ErrChatQueueFull = errors.New("pending chat queue is full")
