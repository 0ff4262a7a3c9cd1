// Package transport provides the message-framed connections readers and the
// library server talk over.
package transport

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrClosed is returned by operations on a connection closed locally.
	ErrClosed = errors.New("transport closed")
	// ErrMessageTooLarge is returned when a message exceeds the frame limit.
	ErrMessageTooLarge = errors.New("message too large")
)

// DefaultMaxMessageSize bounds a single framed message.
const DefaultMaxMessageSize = 64 * 1024

// Conn is a reliable, ordered connection that preserves message boundaries.
// One message written is one message read on the other side.
type Conn interface {
	// ReadMessage blocks until a whole message arrives.
	ReadMessage() (string, error)
	// WriteMessage sends one message. It must not be called concurrently.
	WriteMessage(msg string) error
	// Close closes the connection and unblocks pending reads.
	Close() error
	// RemoteAddr returns the address of the remote end.
	RemoteAddr() net.Addr
}

// Listener accepts incoming connections.
type Listener interface {
	// Accept waits for the next connection.
	Accept() (Conn, error)
	// Close stops listening. Pending Accept calls return an error.
	Close() error
	// Addr returns the listening address.
	Addr() net.Addr
}

// Dialer opens a connection to a server.
type Dialer func(ctx context.Context, addr string) (Conn, error)

// StateHandler is called when a transport's state changes.
type StateHandler func(event Event)

// Event represents transport state change events.
type Event int

const (
	// EventConnected is fired when the transport connects.
	EventConnected Event = iota
	// EventDisconnected is fired when the transport disconnects.
	EventDisconnected
	// EventReconnecting is fired when the transport is attempting to reconnect.
	EventReconnecting
	// EventError is fired when an error occurs.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
