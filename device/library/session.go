package library

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/core/stream"
	"github.com/kabili207/ebook-go/transport"
)

// SessionState is the lifecycle state of a reader session.
type SessionState int

const (
	// StateAwaitingIntro sessions ignore everything but a valid Intro.
	StateAwaitingIntro SessionState = iota
	// StateActive sessions are registered and handle requests.
	StateActive
	// StateClosing sessions are being removed from routing.
	StateClosing
	// StateClosed sessions have released their connection.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingIntro:
		return "awaiting-intro"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// errExit ends a session after the reader says goodbye.
var errExit = errors.New("reader exited")

// Session is the server side of one reader connection. Requests are
// handled one at a time on the session goroutine; other goroutines reach
// the reader only through Deliver.
//
// log is set again by introduce before the session is registered and is
// only used on the session goroutine. Other goroutines log through srv.log.
type Session struct {
	srv     *Server
	link    *transport.Link
	log     *slog.Logger
	id      uint64
	outbox  *Outbox
	limiter *rate.Limiter

	mu       sync.RWMutex
	state    SessionState
	username string
	mode     codec.SyncMode
	addr     string
}

func newSession(srv *Server, conn transport.Conn) *Session {
	id := srv.nextSession.Add(1)
	s := &Session{
		srv:    srv,
		id:     id,
		link:   transport.NewLink(conn, transport.LinkConfig{Logger: srv.log}),
		log:    srv.log.With("session", id),
		outbox: NewOutbox(srv.cfg.OutboxSize),
	}
	if srv.cfg.UploadRate > 0 {
		s.limiter = rate.NewLimiter(srv.cfg.UploadRate, srv.cfg.UploadBurst)
	}
	return s
}

// Username returns the name announced in Intro.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Mode returns the sync mode announced in Intro.
func (s *Session) Mode() codec.SyncMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Addr returns the host the reader accepts chat datagrams on.
func (s *Session) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RemoteAddr returns the address of the reader's connection.
func (s *Session) RemoteAddr() net.Addr {
	return s.link.RemoteAddr()
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Deliver queues an unsolicited message for the reader. It is written
// between requests, never inside a stream. Returns false if dropped.
func (s *Session) Deliver(msg string, priority uint8) bool {
	if s.State() != StateActive {
		return false
	}
	if !s.outbox.Push(msg, priority) {
		s.srv.log.Warn("outbox full, dropping message", "session", s.id, "user", s.Username())
		s.srv.cfg.Metrics.dropped("outbox_full")
		return false
	}
	return true
}

func (s *Session) streamOptions() stream.Options {
	return stream.Options{Timeout: s.srv.cfg.StreamTimeout, Logger: s.log}
}

func (s *Session) run(ctx context.Context) error {
	defer s.close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-s.link.Messages():
			if !ok {
				return s.link.Err()
			}
			if err := s.handleRaw(ctx, raw); err != nil {
				if errors.Is(err, errExit) {
					return nil
				}
				return err
			}

		case <-s.outbox.Ready():
			if err := s.flushOutbox(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleRaw(ctx context.Context, raw string) error {
	msg, err := codec.Parse(raw)
	if err != nil {
		if codec.Recoverable(err) {
			s.log.Warn("ignoring bad message", "error", err)
			s.srv.cfg.Metrics.dropped("malformed")
			return nil
		}
		return err
	}
	s.srv.cfg.Metrics.received(string(msg.Type()))

	if s.State() == StateAwaitingIntro {
		intro, ok := msg.(*codec.Intro)
		if !ok || intro.Username == "" {
			s.log.Debug("ignoring message before intro", "type", msg.Type())
			s.srv.cfg.Metrics.dropped("before_intro")
			return nil
		}
		s.introduce(intro)
		return nil
	}

	err = s.dispatch(ctx, msg)
	if errors.Is(err, stream.ErrStreamTimeout) {
		s.log.Warn("stream abandoned", "type", msg.Type(), "error", err)
		return nil
	}
	return err
}

func (s *Session) introduce(intro *codec.Intro) {
	addr := intro.Addr
	if addr == "" {
		addr = remoteHost(s.link.RemoteAddr())
	}

	s.log = s.log.With("user", intro.Username)

	s.mu.Lock()
	s.username = intro.Username
	s.mode = intro.Mode
	s.addr = addr
	s.state = StateActive
	s.mu.Unlock()

	if prev := s.srv.cfg.Sessions.Add(s); prev != nil {
		s.log.Warn("username already connected, routing to newest session", "previous", prev.id)
	}
	s.log.Info("reader introduced", "mode", intro.Mode, "addr", addr)
}

func (s *Session) flushOutbox(ctx context.Context) error {
	for {
		msg, ok := s.outbox.Pop()
		if !ok {
			return nil
		}
		if err := s.link.Send(ctx, msg); err != nil {
			return err
		}
	}
}

// reply sends a response to the current request.
func (s *Session) reply(ctx context.Context, msg codec.Payload) error {
	return s.link.Send(ctx, msg.Encode())
}

func (s *Session) close() {
	wasActive := s.State() == StateActive
	s.setState(StateClosing)

	if wasActive {
		if err := s.srv.cfg.Sessions.Remove(s); err == nil {
			if n := s.srv.invites.DropUser(s.Username()); n > 0 {
				s.log.Debug("discarded pending invitations", "count", n)
			}
		}
	}
	s.link.Close()
	s.setState(StateClosed)
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
