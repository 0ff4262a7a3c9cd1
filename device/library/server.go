// Package library provides the e-book library server.
//
// The server hosts the books of a content.Provider, accepts reader
// connections, and keeps the forum posts readers attach to page lines. Each
// connection is served by one Session goroutine which handles requests in
// order, streams page text and posts, queues pushed posts between requests,
// and brokers chat invitations between readers.
//
// Storage is pluggable through post.Store and SessionRegistry; the in-memory
// implementations are used when none are configured.
package library

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kabili207/ebook-go/core/content"
	"github.com/kabili207/ebook-go/core/post"
	"github.com/kabili207/ebook-go/core/stream"
	"github.com/kabili207/ebook-go/transport"
)

// DefaultPublishTimeout bounds a single post publisher call.
const DefaultPublishTimeout = 10 * time.Second

// PostPublisher mirrors accepted posts outside the server, such as to an
// MQTT broker.
type PostPublisher interface {
	PublishPost(ctx context.Context, p *post.Post) error
}

// ServerConfig configures a library Server.
type ServerConfig struct {
	// Content serves the hosted books. Required.
	Content content.Provider

	// Storage backends. In-memory implementations are used if nil.
	Posts    post.Store
	Sessions SessionRegistry

	// IDs hands out post IDs. Defaults to an allocator starting at
	// post.FirstID.
	IDs *post.Allocator

	// Publishers receive every accepted post after the author is answered.
	Publishers []PostPublisher

	// StreamTimeout bounds each wait for a reader acknowledgement during a
	// stream. Default: stream.DefaultTimeout.
	StreamTimeout time.Duration

	// InviteTimeout is how long a chat invitation waits for an answer.
	// Default: 2 minutes.
	InviteTimeout time.Duration

	// UploadRate limits uploads per session. Zero disables the limit.
	UploadRate rate.Limit
	// UploadBurst is the limiter burst. Defaults to 1 when UploadRate is set.
	UploadBurst int

	// OutboxSize bounds the unsolicited messages queued per session.
	OutboxSize int

	// Metrics records server statistics. May be nil.
	Metrics *Metrics

	// Clock drives invitation expiry. Defaults to the real clock.
	Clock clockwork.Clock

	// Logger for server events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Server is the library server.
type Server struct {
	cfg     ServerConfig
	log     *slog.Logger
	invites *Invites

	mu     sync.Mutex
	cancel context.CancelFunc

	nextSession atomic.Uint64
	background  sync.WaitGroup
}

// NewServer creates a library server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Posts == nil {
		cfg.Posts = post.NewMemoryStore()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewMemoryRegistry()
	}
	if cfg.IDs == nil {
		cfg.IDs = post.NewAllocator()
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = stream.DefaultTimeout
	}
	if cfg.UploadRate > 0 && cfg.UploadBurst <= 0 {
		cfg.UploadBurst = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	s := &Server{
		cfg: cfg,
		log: logger.WithGroup("library"),
	}
	s.invites = NewInvites(InvitesConfig{
		Timeout:  cfg.InviteTimeout,
		Clock:    cfg.Clock,
		Logger:   logger,
		OnExpire: s.onInviteExpired,
	})
	return s
}

// Posts returns the server's post store.
func (s *Server) Posts() post.Store {
	return s.cfg.Posts
}

// Sessions returns the registry of introduced sessions.
func (s *Server) Sessions() SessionRegistry {
	return s.cfg.Sessions
}

// Start runs the server's background loops (invitation expiry). Blocks
// until the context is cancelled. Typically called in a goroutine:
//
//	go server.Start(ctx)
func (s *Server) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.invites.Start(ctx)
}

// Stop cancels the server's background loops.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Serve accepts connections from ln and serves each in its own goroutine
// until ctx is cancelled or ln fails. It closes ln and waits for every
// session to end before returning. Cancellation is not an error.
func (s *Server) Serve(ctx context.Context, ln transport.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		return nil
	})

	g.Go(func() error {
		s.log.Info("accepting readers", "addr", ln.Addr())
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return err
			}
			g.Go(func() error {
				s.HandleConn(ctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	s.background.Wait()
	return err
}

// HandleConn serves one reader connection until it exits, fails, or ctx is
// cancelled. The connection is closed on return.
func (s *Server) HandleConn(ctx context.Context, conn transport.Conn) {
	sess := newSession(s, conn)
	s.cfg.Metrics.sessionOpened()
	defer s.cfg.Metrics.sessionClosed()

	sess.log.Info("reader connected", "remote", conn.RemoteAddr())
	if err := sess.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		sess.log.Info("session ended", "error", err)
	} else {
		sess.log.Info("session ended")
	}
}

// publish hands p to every publisher without blocking the session.
func (s *Server) publish(ctx context.Context, p *post.Post) {
	for _, pub := range s.cfg.Publishers {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultPublishTimeout)
			defer cancel()
			if err := pub.PublishPost(pctx, p); err != nil {
				s.log.Warn("publish failed", "post", p.ID, "error", err)
			}
		}()
	}
}

func (s *Server) onInviteExpired(inv Invitation) {
	s.cfg.Metrics.invite("expired")
	s.log.Info("chat invitation expired", "inviter", inv.Inviter, "target", inv.Target)
}
