package library

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultInviteTimeout is how long a chat invitation waits for an answer.
	DefaultInviteTimeout = 2 * time.Minute

	// inviteCheckInterval is the resolution of the expiry loop.
	inviteCheckInterval = time.Second
)

// Invitation is a chat request relayed to Target and not yet answered.
type Invitation struct {
	Inviter     string
	InviterAddr string
	InviterPort int
	Target      string

	sentAt time.Time
}

type inviteKey struct {
	inviter, target string
}

// InvitesConfig configures an Invites tracker.
type InvitesConfig struct {
	// Timeout is how long an invitation stays pending. Default: 2 minutes.
	Timeout time.Duration

	// OnExpire is called, outside the lock, for each expired invitation.
	OnExpire func(inv Invitation)

	// Clock drives expiry. Defaults to the real clock.
	Clock clockwork.Clock

	// Logger for tracker events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Invites tracks pending chat invitations.
type Invites struct {
	cfg     InvitesConfig
	log     *slog.Logger
	mu      sync.Mutex
	pending map[inviteKey]*Invitation
	cancel  context.CancelFunc
}

// NewInvites creates an invitation tracker.
func NewInvites(cfg InvitesConfig) *Invites {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultInviteTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Invites{
		cfg:     cfg,
		log:     logger.WithGroup("invites"),
		pending: make(map[inviteKey]*Invitation),
	}
}

// Track records an invitation. An earlier invitation between the same pair
// is replaced.
func (t *Invites) Track(inv Invitation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inv.sentAt = t.cfg.Clock.Now()
	t.pending[inviteKey{inv.Inviter, inv.Target}] = &inv
}

// Resolve removes and returns the invitation from inviter to target.
func (t *Invites) Resolve(inviter, target string) (Invitation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := inviteKey{inviter, target}
	inv, ok := t.pending[key]
	if !ok {
		return Invitation{}, false
	}
	delete(t.pending, key)
	return *inv, true
}

// DropUser discards every invitation sent by or to username.
func (t *Invites) DropUser(username string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key := range t.pending {
		if key.inviter == username || key.target == username {
			delete(t.pending, key)
			n++
		}
	}
	return n
}

// PendingCount returns the number of pending invitations.
func (t *Invites) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Start runs the expiry loop. Blocks until the context is cancelled.
func (t *Invites) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	ticker := t.cfg.Clock.NewTicker(inviteCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.expire()
		}
	}
}

// Stop cancels the expiry loop.
func (t *Invites) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Invites) expire() {
	t.mu.Lock()
	now := t.cfg.Clock.Now()
	var expired []Invitation
	for key, inv := range t.pending {
		if now.Sub(inv.sentAt) >= t.cfg.Timeout {
			expired = append(expired, *inv)
			delete(t.pending, key)
		}
	}
	t.mu.Unlock()

	for _, inv := range expired {
		t.log.Debug("invitation expired", "inviter", inv.Inviter, "target", inv.Target)
		if t.cfg.OnExpire != nil {
			t.cfg.OnExpire(inv)
		}
	}
}
