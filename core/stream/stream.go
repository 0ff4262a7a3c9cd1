// Package stream implements the acknowledged list transfer used for page text
// and post syncs.
//
// A transfer named N runs:
//
//	sender                  receiver
//	BeginN          ->
//	                <-      BeginNAck
//	item            ->
//	                <-      NItemAck
//	...
//	EndN            ->
//
// Every wait is bounded by Options.Timeout.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kabili207/ebook-go/core/codec"
)

// DefaultTimeout bounds each wait for a peer message.
const DefaultTimeout = 30 * time.Second

// ErrStreamTimeout is returned when the peer does not answer in time.
var ErrStreamTimeout = errors.New("stream timeout")

// Conn is the message channel a transfer runs over.
type Conn interface {
	Send(ctx context.Context, msg string) error
	Recv(ctx context.Context) (string, error)
}

// Options controls a transfer.
type Options struct {
	// Timeout bounds each wait. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Logger for skipped messages. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Send transfers items, each an encoded message, as stream name.
func Send(ctx context.Context, conn Conn, name codec.StreamName, items []string, opts Options) error {
	opts = opts.withDefaults()

	if err := conn.Send(ctx, codec.Encode(name.Begin())); err != nil {
		return fmt.Errorf("send %s: %w", name.Begin(), err)
	}
	if err := await(ctx, conn, name.BeginAck(), opts); err != nil {
		return err
	}

	for i, item := range items {
		if err := conn.Send(ctx, item); err != nil {
			return fmt.Errorf("send %s item %d: %w", name, i, err)
		}
		if err := await(ctx, conn, name.ItemAck(), opts); err != nil {
			return err
		}
	}

	if err := conn.Send(ctx, codec.Encode(name.End())); err != nil {
		return fmt.Errorf("send %s: %w", name.End(), err)
	}
	return nil
}

// Receive waits for stream name to begin and returns its items in order.
func Receive(ctx context.Context, conn Conn, name codec.StreamName, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	if err := await(ctx, conn, name.Begin(), opts); err != nil {
		return nil, err
	}
	if err := conn.Send(ctx, codec.Encode(name.BeginAck())); err != nil {
		return nil, fmt.Errorf("send %s: %w", name.BeginAck(), err)
	}

	end := codec.Encode(name.End())
	ack := codec.Encode(name.ItemAck())
	var items []string
	for {
		msg, err := recv(ctx, conn, name.End(), opts)
		if err != nil {
			return nil, err
		}
		if msg == end {
			return items, nil
		}
		items = append(items, msg)
		if err := conn.Send(ctx, ack); err != nil {
			return nil, fmt.Errorf("send %s: %w", name.ItemAck(), err)
		}
	}
}

// await reads until the message equals want, skipping anything else.
func await(ctx context.Context, conn Conn, want codec.Type, opts Options) error {
	wctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	expected := codec.Encode(want)
	for {
		msg, err := conn.Recv(wctx)
		if err != nil {
			return waitError(ctx, want, err)
		}
		if msg == expected {
			return nil
		}
		opts.Logger.Debug("skipping unexpected stream message", "want", want, "got", msg)
	}
}

func recv(ctx context.Context, conn Conn, want codec.Type, opts Options) (string, error) {
	wctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	msg, err := conn.Recv(wctx)
	if err != nil {
		return "", waitError(ctx, want, err)
	}
	return msg, nil
}

func waitError(parent context.Context, want codec.Type, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: waiting for %s", ErrStreamTimeout, want)
	}
	return fmt.Errorf("waiting for %s: %w", want, err)
}
