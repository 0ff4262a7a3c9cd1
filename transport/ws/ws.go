// Package ws carries messages as WebSocket text frames. The server side is an
// http.Handler that hands upgraded connections to an Accept loop.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kabili207/ebook-go/transport"
)

// Config configures WebSocket connections.
type Config struct {
	// MaxMessageSize bounds a single frame. Defaults to
	// transport.DefaultMaxMessageSize.
	MaxMessageSize int

	// WriteTimeout bounds each write. Zero means no deadline.
	WriteTimeout time.Duration

	// CheckOrigin validates the Origin header of upgrade requests. If nil,
	// every origin is accepted.
	CheckOrigin func(r *http.Request) bool

	// Logger for upgrade failures. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Conn is a message connection over a WebSocket.
type Conn struct {
	wc  *websocket.Conn
	cfg Config
}

var _ transport.Conn = (*Conn)(nil)

func newConn(wc *websocket.Conn, cfg Config) *Conn {
	wc.SetReadLimit(int64(cfg.MaxMessageSize))
	return &Conn{wc: wc, cfg: cfg}
}

// Dial opens a WebSocket to url, for example ws://host:8080/ws.
func Dial(ctx context.Context, url string, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	wc, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newConn(wc, cfg), nil
}

// Dialer returns a transport.Dialer using cfg.
func Dialer(cfg Config) transport.Dialer {
	return func(ctx context.Context, url string) (transport.Conn, error) {
		return Dial(ctx, url, cfg)
	}
}

func (c *Conn) ReadMessage() (string, error) {
	for {
		typ, data, err := c.wc.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", fmt.Errorf("%w: %v", transport.ErrMessageTooLarge, err)
			}
			return "", err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (c *Conn) WriteMessage(msg string) error {
	if len(msg) > c.cfg.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", transport.ErrMessageTooLarge, len(msg))
	}
	if c.cfg.WriteTimeout > 0 {
		if err := c.wc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return c.wc.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *Conn) Close() error {
	c.wc.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.wc.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.wc.RemoteAddr()
}

// Acceptor upgrades HTTP requests and queues the connections for Accept.
type Acceptor struct {
	upgrader websocket.Upgrader
	cfg      Config
	log      *slog.Logger
	addr     net.Addr

	conns     chan *Conn
	done      chan struct{}
	closeOnce sync.Once
}

var (
	_ transport.Listener = (*Acceptor)(nil)
	_ http.Handler       = (*Acceptor)(nil)
)

// NewAcceptor creates an Acceptor. addr is reported by Addr and is usually
// the HTTP server's listen address.
func NewAcceptor(addr net.Addr, cfg Config) *Acceptor {
	cfg = cfg.withDefaults()
	return &Acceptor{
		upgrader: websocket.Upgrader{CheckOrigin: cfg.CheckOrigin},
		cfg:      cfg,
		log:      cfg.Logger.WithGroup("ws"),
		addr:     addr,
		conns:    make(chan *Conn),
		done:     make(chan struct{}),
	}
}

func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-a.done:
		http.Error(w, "server closing", http.StatusServiceUnavailable)
		return
	default:
	}

	wc, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(wc, a.cfg)
	select {
	case a.conns <- c:
	case <-a.done:
		c.Close()
	case <-r.Context().Done():
		c.Close()
	}
}

func (a *Acceptor) Accept() (transport.Conn, error) {
	select {
	case c := <-a.conns:
		return c, nil
	case <-a.done:
		return nil, net.ErrClosed
	}
}

func (a *Acceptor) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	return nil
}

func (a *Acceptor) Addr() net.Addr {
	return a.addr
}
