// Package serial carries messages over a serial line.
//
// Messages are varint length-prefixed frames, the same framing as the TCP
// transport, so a reader can reach the library over a null-modem cable or a
// USB serial adapter.
package serial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/libp2p/go-msgio"
	"go.bug.st/serial"

	"github.com/kabili207/ebook-go/transport"
)

// Compile-time interface checks.
var (
	_ transport.Conn     = (*Conn)(nil)
	_ transport.Listener = (*Listener)(nil)
)

// DefaultBaudRate is the default baud rate.
const DefaultBaudRate = 115200

// Config holds the configuration for a serial transport.
type Config struct {
	// Port is the serial port path (e.g., "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// MaxMessageSize bounds a single frame. Defaults to
	// transport.DefaultMaxMessageSize.
	MaxMessageSize int
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
	// StateHandler, if set, is told when the port opens and closes.
	StateHandler transport.StateHandler
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// portAddr is the net.Addr of a serial port.
type portAddr string

func (a portAddr) Network() string { return "serial" }
func (a portAddr) String() string  { return string(a) }

// Conn is a framed message connection over a serial port.
type Conn struct {
	port io.ReadWriteCloser
	addr portAddr
	r    msgio.ReadCloser
	w    msgio.WriteCloser
	cfg  Config
	log  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Open opens the configured serial port.
func Open(cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	if cfg.Port == "" {
		return nil, errors.New("serial port is required")
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("opening serial port: %w", err)
	}

	c := NewConn(port, cfg)
	c.log.Info("opened serial port", "port", cfg.Port, "baud", cfg.BaudRate)
	if cfg.StateHandler != nil {
		cfg.StateHandler(transport.EventConnected)
	}
	return c, nil
}

// NewConn frames messages over an already open port. cfg.Port names it.
func NewConn(port io.ReadWriteCloser, cfg Config) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		port:   port,
		addr:   portAddr(cfg.Port),
		r:      msgio.NewVarintReaderSize(port, cfg.MaxMessageSize),
		w:      msgio.NewVarintWriter(port),
		cfg:    cfg,
		log:    cfg.Logger.WithGroup("serial"),
		closed: make(chan struct{}),
	}
}

func (c *Conn) ReadMessage() (string, error) {
	b, err := c.r.ReadMsg()
	if err != nil {
		if errors.Is(err, msgio.ErrMsgTooLarge) {
			return "", fmt.Errorf("%w: %v", transport.ErrMessageTooLarge, err)
		}
		select {
		case <-c.closed:
		default:
			c.log.Error("serial read error", "port", c.addr, "error", err)
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
	if err := c.w.WriteMsg([]byte(msg)); err != nil {
		return fmt.Errorf("writing to serial port: %w", err)
	}
	return nil
}

// Close closes the port.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.port.Close()
		if c.cfg.StateHandler != nil {
			c.cfg.StateHandler(transport.EventDisconnected)
		}
	})
	return err
}

// Closed is closed once the connection is closed.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.addr
}

// Listener serves one reader at a time over a serial port. Accept opens the
// port, and the next Accept waits until that connection is closed before
// reopening it.
type Listener struct {
	cfg  Config
	open func(Config) (*Conn, error)

	mu      sync.Mutex
	current *Conn
	done    chan struct{}
	once    sync.Once
}

// Listen returns a Listener for the configured port. The port is not opened
// until Accept.
func Listen(cfg Config) *Listener {
	return &Listener{
		cfg:  cfg.withDefaults(),
		open: Open,
		done: make(chan struct{}),
	}
}

func (l *Listener) Accept() (transport.Conn, error) {
	l.mu.Lock()
	prev := l.current
	l.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.Closed():
		case <-l.done:
			return nil, net.ErrClosed
		}
	}
	select {
	case <-l.done:
		return nil, net.ErrClosed
	default:
	}

	c, err := l.open(l.cfg)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = c
	l.mu.Unlock()
	return c, nil
}

// Close stops accepting and closes the open connection, if any.
func (l *Listener) Close() error {
	l.once.Do(func() { close(l.done) })
	l.mu.Lock()
	c := l.current
	l.mu.Unlock()
	if c != nil {
		return c.Close()
	}
	return nil
}

func (l *Listener) Addr() net.Addr {
	return portAddr(l.cfg.Port)
}
