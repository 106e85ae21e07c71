// Package transport abstracts the chat/voice server connection consumed by
// the master and the worker bots. The real voice-protocol client is an
// external collaborator; chorus only depends on the Conn interface below.
// LocalServer (local.go) is an in-process implementation used by local mode
// and the test suites.
package transport

import (
	"context"
	"errors"

	"chorus/pkg/protocol"
)

// ErrDisconnected is returned by Conn methods after the connection has been
// torn down.
var ErrDisconnected = errors.New("transport: connection is closed")

// ConnectOptions carries everything a connection needs to come up.
type ConnectOptions struct {
	Address  string
	Name     string
	Identity protocol.Identity
	// Channel is the channel path to join after connect. Empty means the
	// server default channel.
	Channel string
	// Verbose gates protocol tracing on stderr: 1 commands, 2 packets,
	// 3 raw datagrams.
	Verbose int
}

// Conn is the narrow facade over one server connection. Lookup methods
// return ok=false when the subject cannot be located (not an error); the
// error return is reserved for transport faults.
type Conn interface {
	// MyID returns the connection's own client identity.
	MyID(ctx context.Context) (protocol.ClientID, error)

	// CurrentChannel returns the channel this connection currently sits in.
	CurrentChannel(ctx context.Context) (protocol.ChannelID, error)

	// ChannelOfUser resolves the channel a user currently occupies.
	ChannelOfUser(ctx context.Context, id protocol.ClientID) (protocol.ChannelID, bool, error)

	// ChannelPathOfUser resolves the full path of the channel a user
	// occupies, suitable as a connect target for a new bot.
	ChannelPathOfUser(ctx context.Context, id protocol.ClientID) (string, bool, error)

	// SendMessageToUser delivers a private text message.
	SendMessageToUser(ctx context.Context, id protocol.ClientID, text string) error

	// SetDescription publishes a description on the connection's client.
	SetDescription(ctx context.Context, text string) error

	// Subscribe registers interest in presence updates for a channel.
	Subscribe(ctx context.Context, id protocol.ChannelID) error

	// Events returns the inbound event stream. The channel is closed when
	// the connection drops or Disconnect is called.
	Events() <-chan protocol.Event

	// Disconnect tears the connection down with a user-visible reason.
	// It is idempotent.
	Disconnect(ctx context.Context, reason string) error
}

// Dialer establishes connections. The master uses one connection for
// itself and dials one more per spawned bot.
type Dialer interface {
	Dial(ctx context.Context, opts ConnectOptions) (Conn, error)
}
