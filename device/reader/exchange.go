package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/core/stream"
	"github.com/kabili207/ebook-go/transport"
)

// RemoteError is a request the server refused. Reason is the text the
// server sent, such as "Page not found".
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	return "server: " + e.Reason
}

// exchangeConn is the stream.Conn of one exchange. Sends go straight to the
// link; receives come from the read loop.
type exchangeConn struct {
	c     *Client
	inbox chan string
}

func (x *exchangeConn) Send(ctx context.Context, msg string) error {
	return x.c.link.Send(ctx, msg)
}

func (x *exchangeConn) Recv(ctx context.Context) (string, error) {
	select {
	case msg := <-x.inbox:
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-x.c.done:
		return "", transport.ErrClosed
	}
}

// begin takes the exchange lock and routes responses to the returned conn
// until end is called.
func (c *Client) begin() (*exchangeConn, func()) {
	c.exchange.Lock()
	x := &exchangeConn{c: c, inbox: make(chan string, responseBacklog)}

	c.mu.Lock()
	c.inflight = x.inbox
	c.mu.Unlock()

	return x, func() {
		c.mu.Lock()
		c.inflight = nil
		c.mu.Unlock()
		c.exchange.Unlock()
	}
}

func (c *Client) checkActive() error {
	if c.State() != StateActive {
		return ErrNotActive
	}
	return nil
}

// send writes a message that has no response.
func (c *Client) send(ctx context.Context, msg codec.Payload) error {
	if err := c.checkActive(); err != nil {
		return err
	}
	c.exchange.Lock()
	defer c.exchange.Unlock()
	return c.link.Send(ctx, msg.Encode())
}

// request sends req and waits for a single response message.
func (c *Client) request(ctx context.Context, req codec.Payload) (codec.Payload, error) {
	if err := c.checkActive(); err != nil {
		return nil, err
	}
	x, end := c.begin()
	defer end()

	if err := x.Send(ctx, req.Encode()); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Type(), err)
	}

	wctx, cancel := context.WithTimeout(ctx, c.cfg.ResponseTimeout)
	defer cancel()
	for {
		raw, err := x.Recv(wctx)
		if err != nil {
			if wctx.Err() != nil && ctx.Err() == nil {
				err = fmt.Errorf("%s: %w", req.Type(), ErrResponseTimeout)
			} else {
				err = fmt.Errorf("%s: %w", req.Type(), err)
			}
			c.desync(err)
			return nil, err
		}
		resp, err := codec.Parse(raw)
		if err != nil {
			c.log.Warn("ignoring bad response", "request", req.Type(), "error", err)
			continue
		}
		if _, ok := resp.(*codec.StreamControl); ok {
			c.log.Debug("skipping stream message outside a stream", "type", resp.Type())
			continue
		}
		return resp, nil
	}
}

// requestStream sends req and receives the stream the server answers with.
func (c *Client) requestStream(ctx context.Context, req codec.Payload, name codec.StreamName) ([]string, error) {
	if err := c.checkActive(); err != nil {
		return nil, err
	}
	x, end := c.begin()
	defer end()

	if err := x.Send(ctx, req.Encode()); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Type(), err)
	}
	items, err := stream.Receive(ctx, x, name, stream.Options{Timeout: c.cfg.StreamTimeout, Logger: c.log})
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		c.desync(err)
		return nil, err
	}
	return items, nil
}

// desync closes the link after an exchange was abandoned, whether by a
// timeout, the caller's context, or a broken stream. Messages carry no
// request IDs, so a late answer would otherwise be taken as the response to
// the next request. Start returns the fault and reports it through
// Disconnected. Nothing is recorded when the link is already gone or the
// reader is shutting down.
func (c *Client) desync(err error) {
	if errors.Is(err, transport.ErrClosed) {
		return
	}

	c.mu.Lock()
	if c.life != nil && c.life.Err() != nil {
		c.mu.Unlock()
		return
	}
	if !errors.Is(err, ErrResponseTimeout) && !errors.Is(err, stream.ErrStreamTimeout) &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		err = fmt.Errorf("%w: %v", ErrExchangeAbandoned, err)
	}
	if c.fault == nil {
		c.fault = err
	}
	c.mu.Unlock()

	c.log.Warn("closing link after abandoned exchange", "error", err)
	c.link.Close()
}
