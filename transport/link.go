package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"
)

// DefaultInboxSize is the number of received messages a Link buffers.
const DefaultInboxSize = 64

// LinkConfig configures a Link.
type LinkConfig struct {
	// InboxSize is the receive buffer length. Defaults to DefaultInboxSize.
	InboxSize int

	// Logger for link events. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Link owns a Conn. Exactly one goroutine reads the connection and feeds an
// inbox channel; writes are serialized. The inbox is closed when the
// connection fails or is closed, after which Err reports why.
type Link struct {
	conn Conn
	log  *slog.Logger

	inbox   chan string
	closing chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	err       error
}

// NewLink starts reading conn.
func NewLink(conn Conn, cfg LinkConfig) *Link {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Link{
		conn:    conn,
		log:     logger.WithGroup("link"),
		inbox:   make(chan string, cfg.InboxSize),
		closing: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Link) readLoop() {
	defer close(l.inbox)
	for {
		msg, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closing:
				l.err = ErrClosed
			default:
				l.err = err
				l.log.Debug("read failed", "remote", l.RemoteAddr(), "error", err)
			}
			return
		}
		select {
		case l.inbox <- msg:
		case <-l.closing:
			l.err = ErrClosed
			return
		}
	}
}

// Send writes one message. ctx is only checked before writing; the
// underlying Conn bounds the write itself.
func (l *Link) Send(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.closing:
		return ErrClosed
	default:
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(msg)
}

// Recv returns the next received message. It returns Err once the inbox is
// drained after the connection ends.
func (l *Link) Recv(ctx context.Context) (string, error) {
	select {
	case msg, ok := <-l.inbox:
		if !ok {
			return "", l.err
		}
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Messages exposes the inbox for callers that select over other channels.
// A closed channel means the link is done; see Err.
func (l *Link) Messages() <-chan string {
	return l.inbox
}

// Err reports why the link ended. It is only valid after Messages is closed.
func (l *Link) Err() error {
	return l.err
}

// RemoteAddr returns the remote address of the connection.
func (l *Link) RemoteAddr() net.Addr {
	return l.conn.RemoteAddr()
}

// Close closes the connection. It is safe to call more than once.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closing)
		err = l.conn.Close()
	})
	return err
}
