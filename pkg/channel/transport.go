package channel

import "context"

// Role names the end of the channel a transport serves.
type Role string

const (
	// RolePrimary is the main meeting session.
	RolePrimary Role = "primary"
	// RolePopout is the detached remote-control process.
	RolePopout Role = "popout"
)

// Transport moves envelopes between the two coordinators. Send is
// fire-and-forget: an error means the message certainly did not go out,
// but a nil error is no delivery guarantee. Receive's channel is closed
// by Close.
type Transport interface {
	Send(ctx context.Context, env Envelope) error
	Receive() <-chan Envelope
	Close() error
}
