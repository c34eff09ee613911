package interfaces

import "context"

// -----------------------------------------------------------------------------
// IServer is a long-running listener owned by main.
// -----------------------------------------------------------------------------

type IServer interface {

	// -----------------------------------------------------------------------------
	// Start blocks until the server stops or fails.
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// IMessageSender writes one JSON message to a client connection.
// -----------------------------------------------------------------------------

type IMessageSender interface {
	SendJSON(v interface{}) error
}
