// Package reader provides the e-book reader client.
//
// A Client introduces itself to a library server over a transport.Conn and
// keeps a local post.Store in step with the server's posts. Exactly one
// goroutine reads the connection: responses go to the single in-flight
// exchange, while pushed posts and chat handshake messages are handled from
// an event queue. In pull mode a poller refreshes the current page on a
// timer and whenever a command runs; in push mode the client runs a full
// sync at start and, optionally, on a resync interval.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/core/post"
	"github.com/kabili207/ebook-go/core/stream"
	"github.com/kabili207/ebook-go/transport"
)

const (
	// DefaultPollInterval is how often a pull-mode reader refreshes the
	// current page.
	DefaultPollInterval = 5 * time.Second

	// DefaultResponseTimeout bounds the wait for a single-message response.
	DefaultResponseTimeout = 30 * time.Second

	// eventQueueSize is the number of unsolicited messages buffered for the
	// event loop.
	eventQueueSize = 64

	// responseBacklog is the number of responses buffered for an exchange.
	responseBacklog = 16
)

var (
	// ErrNotActive is returned by commands issued before the reader has
	// introduced itself or after it has shut down.
	ErrNotActive = errors.New("reader not active")

	// ErrResponseTimeout is returned when the server does not answer a
	// request in time.
	ErrResponseTimeout = errors.New("response timeout")

	// ErrExchangeAbandoned is the disconnect reason after a caller gave up
	// on a request before its response arrived.
	ErrExchangeAbandoned = errors.New("exchange abandoned")
)

// State is the client lifecycle state.
type State int

const (
	// StateConnecting clients have not sent Intro yet.
	StateConnecting State = iota
	// StateActive clients accept commands.
	StateActive
	// StateShuttingDown clients are leaving.
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

// OwnPostStatus selects the read status given to posts this reader uploads.
type OwnPostStatus uint8

const (
	// OwnPostsRead stores the reader's own posts as read.
	OwnPostsRead OwnPostStatus = iota
	// OwnPostsUnread stores the reader's own posts as unread.
	OwnPostsUnread
)

func (s OwnPostStatus) status() post.ReadStatus {
	if s == OwnPostsUnread {
		return post.Unread
	}
	return post.Read
}

// Config configures a reader Client.
type Config struct {
	// Username is announced in Intro and used as the sender of posts and
	// chat messages. Required.
	Username string

	// Mode selects pull or push synchronisation. Default: pull.
	Mode codec.SyncMode

	// ChatAddr is the host other readers send chat datagrams to. If empty
	// the server uses the connection's remote host.
	ChatAddr string

	// Chat is the datagram socket for peer chat. If nil, chat commands
	// return ErrChatDisabled and invitations are rejected.
	Chat ChatConn

	// Posts is the local post cache. Defaults to a MemoryStore.
	Posts post.Store

	// OwnPostStatus is the status of the reader's own uploads in the local
	// store. Default: read.
	OwnPostStatus OwnPostStatus

	// PollInterval is the pull-mode refresh interval. Default: 5 seconds.
	PollInterval time.Duration

	// ResyncInterval enables a periodic full sync in push mode. Zero
	// disables it.
	ResyncInterval time.Duration

	// ResponseTimeout bounds the wait for single-message responses. A
	// timeout closes the connection. Default: 30 seconds.
	ResponseTimeout time.Duration

	// StreamTimeout bounds each wait inside a stream transfer. A timeout
	// closes the connection. Default: stream.DefaultTimeout.
	StreamTimeout time.Duration

	// Events receives notifications for the user interface.
	Events Events

	// Clock drives the poller and resync timers. Defaults to the real clock.
	Clock clockwork.Clock

	// Logger for reader events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// currentPage is the page last shown by Display.
type currentPage struct {
	book string
	page int
}

// Client is an e-book reader connected to a library server.
type Client struct {
	cfg   Config
	log   *slog.Logger
	link  *transport.Link
	posts post.Store
	peers *Peers

	// exchange serializes every message this client sends, so a request
	// and the stream it starts never interleave with another send.
	exchange sync.Mutex
	events   chan codec.Payload

	poll   *poller
	resync *poller

	mu       sync.RWMutex
	state    State
	current  *currentPage
	inflight chan string
	fault    error
	cancel   context.CancelFunc
	life     context.Context
	ready    chan struct{}
	done     chan struct{}
}

// NewClient creates a reader over conn. Start must be called to introduce
// the reader and run its loops.
func NewClient(conn transport.Conn, cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = codec.ModePull
	}
	if cfg.Posts == nil {
		cfg.Posts = post.NewMemoryStore()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = stream.DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	log := logger.WithGroup("reader").With("user", cfg.Username)
	c := &Client{
		cfg:    cfg,
		log:    log,
		link:   transport.NewLink(conn, transport.LinkConfig{Logger: logger}),
		posts:  cfg.Posts,
		peers:  NewPeers(),
		events: make(chan codec.Payload, eventQueueSize),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.poll = newPoller(cfg.Clock, cfg.PollInterval, c.refreshCurrent, log.With("loop", "poll"))
	if cfg.ResyncInterval > 0 {
		c.resync = newPoller(cfg.Clock, cfg.ResyncInterval, c.resyncAll, log.With("loop", "resync"))
	}
	return c
}

// Posts returns the local post store.
func (c *Client) Posts() post.Store {
	return c.posts
}

// Peers returns the readers this client can chat with.
func (c *Client) Peers() *Peers {
	return c.peers
}

// State returns the client lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Ready is closed once the reader has introduced itself.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Done is closed when Start returns.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Start introduces the reader and runs its loops. It blocks until the
// reader exits, the connection fails, or ctx is cancelled. Exit and
// cancellation are not errors.
func (c *Client) Start(ctx context.Context) error {
	defer close(c.done)
	defer c.link.Close()

	if c.cfg.Username == "" {
		return errors.New("reader: username required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.life = ctx
	c.mu.Unlock()

	intro := &codec.Intro{Username: c.cfg.Username, Mode: c.cfg.Mode, Addr: c.cfg.ChatAddr}
	if err := c.link.Send(ctx, intro.Encode()); err != nil {
		return fmt.Errorf("intro: %w", err)
	}
	c.setState(StateActive)
	close(c.ready)
	c.log.Info("connected", "mode", c.cfg.Mode, "remote", c.link.RemoteAddr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.eventLoop(gctx) })
	if c.cfg.Chat != nil {
		g.Go(func() error { return c.chatLoop(gctx) })
	}

	switch c.cfg.Mode {
	case codec.ModePush:
		g.Go(func() error {
			if _, err := c.SyncAll(gctx); err != nil && gctx.Err() == nil {
				c.log.Warn("initial sync failed", "error", err)
			}
			if c.resync != nil {
				c.resync.run(gctx)
			}
			return nil
		})
	default:
		g.Go(func() error {
			c.poll.run(gctx)
			return nil
		})
	}

	err := g.Wait()
	c.setState(StateShuttingDown)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, transport.ErrClosed) {
		c.log.Info("disconnected", "error", err)
		c.cfg.Events.disconnected(err)
		return err
	}
	c.log.Info("disconnected")
	return nil
}

// Stop cancels the reader's loops without saying goodbye. Use Exit for an
// orderly shutdown.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// readLoop is the only reader of the connection.
func (c *Client) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-c.link.Messages():
			if !ok {
				if c.State() == StateShuttingDown {
					return nil
				}
				c.mu.RLock()
				fault := c.fault
				c.mu.RUnlock()
				if fault != nil {
					return fault
				}
				return c.link.Err()
			}
			c.route(raw)
		}
	}
}

// route hands unsolicited messages to the event loop and everything else to
// the in-flight exchange.
func (c *Client) route(raw string) {
	msg, err := codec.Parse(raw)
	if err != nil {
		if codec.Recoverable(err) {
			c.log.Warn("ignoring bad message", "error", err)
			return
		}
		c.log.Error("parse failed", "error", err)
		return
	}

	switch msg.(type) {
	case *codec.NewSinglePost, *codec.RelayStartChatReq, *codec.StartChatResp:
		select {
		case c.events <- msg:
		default:
			c.log.Warn("event queue full, dropping message", "type", msg.Type())
		}
		return
	}

	c.mu.RLock()
	inflight := c.inflight
	c.mu.RUnlock()
	if inflight == nil {
		c.log.Debug("no exchange waiting, dropping response", "type", msg.Type())
		return
	}
	select {
	case inflight <- raw:
	default:
		c.log.Warn("exchange backlog full, dropping response", "type", msg.Type())
	}
}
