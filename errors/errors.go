package errors

import "fmt"

var (
	ErrNoCredential   = fmt.Errorf("no session credential available")
	ErrNotConnected   = fmt.Errorf("transport is not connected")
	ErrNoActiveRoom   = fmt.Errorf("no chat room is currently open")
	ErrAckTimeout     = fmt.Errorf("send acknowledgment timed out")
	ErrUnknownFrame   = fmt.Errorf("unknown frame event")
	ErrInvalidPayload = fmt.Errorf("invalid frame payload")
	ErrUnknownPending = fmt.Errorf("no pending send with this id")
)
