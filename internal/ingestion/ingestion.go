// Package ingestion maintains a live stream of chat events from the
// platform, failing over between a push-event WebSocket source and a
// line-oriented IRC-style fallback.
package ingestion

import (
	"context"

	"clipbot/internal/models"
)

// Source is the contract both event sources implement: a connectable,
// restartable producer of models.Event values. Connect blocks only long
// enough to establish the connection; event delivery happens on the
// channel returned by Events, fed by the source's own background reader.
type Source interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	SourceName() string
	Events() <-chan models.Event

	// Done returns the channel for the connection established by the most
	// recent successful Connect; it is closed when that connection's read
	// loop exits, whether from a clean Disconnect or a silent drop (socket
	// error, session_reconnect). The coordinator selects on it to notice a
	// mid-stream disconnect that never produces another event.
	Done() <-chan struct{}
}

// TokenSource supplies the bearer token a Source needs to authenticate.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}
