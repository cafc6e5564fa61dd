package controller

import "errors"

// Sentinel errors used for wrapping so callers can classify via errors.Is,
// mirroring the teacher's internal/server/errors.go.
var (
	ErrListen        = errors.New("controller: listen")
	ErrAccept        = errors.New("controller: accept")
	ErrHandshake     = errors.New("controller: handshake")
	ErrHandshakeBusy = errors.New("controller: session table full")
	ErrConnRead      = errors.New("controller: conn_read")
	ErrConnWrite     = errors.New("controller: conn_write")
	ErrShutdown      = errors.New("controller: shutdown timeout")
)
