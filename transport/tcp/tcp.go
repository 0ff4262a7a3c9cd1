// Package tcp carries messages over TCP as varint length-prefixed frames.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/libp2p/go-msgio"

	"github.com/kabili207/ebook-go/transport"
)

// Config configures TCP connections.
type Config struct {
	// MaxMessageSize bounds a single frame. Defaults to
	// transport.DefaultMaxMessageSize.
	MaxMessageSize int

	// WriteTimeout bounds each write. Zero means no deadline.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	return c
}

// Conn is a framed message connection over any stream connection.
type Conn struct {
	nc  net.Conn
	r   msgio.ReadCloser
	w   msgio.WriteCloser
	cfg Config
}

var _ transport.Conn = (*Conn)(nil)

// NewConn frames messages over nc.
func NewConn(nc net.Conn, cfg Config) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		nc:  nc,
		r:   msgio.NewVarintReaderSize(nc, cfg.MaxMessageSize),
		w:   msgio.NewVarintWriter(nc),
		cfg: cfg,
	}
}

// Dial connects to a server at addr.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(nc, cfg), nil
}

// Dialer returns a transport.Dialer using cfg.
func Dialer(cfg Config) transport.Dialer {
	return func(ctx context.Context, addr string) (transport.Conn, error) {
		return Dial(ctx, addr, cfg)
	}
}

func (c *Conn) ReadMessage() (string, error) {
	b, err := c.r.ReadMsg()
	if err != nil {
		if errors.Is(err, msgio.ErrMsgTooLarge) {
			return "", fmt.Errorf("%w: %v", transport.ErrMessageTooLarge, err)
		}
		return "", err
	}
	msg := string(b)
	c.r.ReleaseMsg(b)
	return msg, nil
}

func (c *Conn) WriteMessage(msg string) error {
	if len(msg) > c.cfg.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", transport.ErrMessageTooLarge, len(msg))
	}
	if c.cfg.WriteTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return c.w.WriteMsg([]byte(msg))
}

func (c *Conn) Close() error {
	return c.nc.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Listener accepts framed TCP connections.
type Listener struct {
	nl  net.Listener
	cfg Config
}

var _ transport.Listener = (*Listener)(nil)

// Listen binds addr.
func Listen(addr string, cfg Config) (*Listener, error) {
	nl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{nl: nl, cfg: cfg}, nil
}

func (l *Listener) Accept() (transport.Conn, error) {
	nc, err := l.nl.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(nc, l.cfg), nil
}

func (l *Listener) Close() error {
	return l.nl.Close()
}

func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}
