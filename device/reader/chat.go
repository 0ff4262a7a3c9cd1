package reader

import (
	"context"
	"errors"
	"net"

	"github.com/kabili207/ebook-go/core/codec"
)

var (
	// ErrChatDisabled is returned by chat commands when no chat socket is
	// configured.
	ErrChatDisabled = errors.New("chat disabled")

	// ErrChatExists is returned by ChatRequest when a chat with the target
	// is already set up.
	ErrChatExists = errors.New("chat already set up")
)

// ChatConn is a best-effort datagram socket. *udp.Conn implements it.
type ChatConn interface {
	Port() int
	SendTo(host string, port int, msg string) error
	Receive() (string, net.Addr, error)
	Close() error
}

// answerInvite asks the user about a relayed invitation and sends the
// answer back through the server.
func (c *Client) answerInvite(ctx context.Context, req *codec.RelayStartChatReq) {
	accept := c.cfg.Chat != nil && c.cfg.Events.chatInvite(req.Inviter)

	var resp *codec.RelayStartChatResp
	if accept {
		peer := Peer{Name: req.Inviter, Addr: req.Addr, Port: req.Port}
		c.peers.Add(peer)
		resp = &codec.RelayStartChatResp{
			Accept:      true,
			Port:        c.cfg.Chat.Port(),
			Inviter:     req.Inviter,
			InviterPort: req.Port,
		}
		c.log.Info("accepted chat", "peer", req.Inviter)
		c.cfg.Events.chatAccepted(peer)
	} else {
		resp = &codec.RelayStartChatResp{Inviter: req.Inviter}
		c.log.Info("rejected chat", "peer", req.Inviter)
	}

	if err := c.send(ctx, resp); err != nil && ctx.Err() == nil {
		c.log.Warn("answering chat invitation", "peer", req.Inviter, "error", err)
	}
}

// handleChatResp records the outcome of this reader's invitation.
func (c *Client) handleChatResp(resp *codec.StartChatResp) {
	switch resp.Result {
	case codec.ResultAccept:
		peer := Peer{Name: resp.Peer, Addr: resp.Addr, Port: resp.Port}
		c.peers.Add(peer)
		c.log.Info("chat accepted", "peer", resp.Peer)
		c.cfg.Events.chatAccepted(peer)
	case codec.ResultReject:
		c.log.Info("chat rejected", "peer", resp.Peer)
		c.cfg.Events.chatRejected(resp.Peer)
	default:
		c.log.Info("chat request failed", "reason", resp.Reason)
		c.cfg.Events.chatFailed(resp.Reason)
	}
}

// chatLoop reads chat datagrams until ctx is cancelled.
func (c *Client) chatLoop(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.cfg.Chat.Close()
	}()

	for {
		raw, from, err := c.cfg.Chat.Receive()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("chat socket failed", "error", err)
			}
			return nil
		}
		msg, err := codec.Parse(raw)
		if err != nil {
			c.log.Debug("ignoring bad chat datagram", "from", from, "error", err)
			continue
		}
		chat, ok := msg.(*codec.NewChatMessage)
		if !ok {
			c.log.Debug("ignoring non-chat datagram", "from", from, "type", msg.Type())
			continue
		}
		c.cfg.Events.chatMessage(chat.Sender, chat.Text)
	}
}
