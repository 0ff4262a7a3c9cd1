package library

import (
	"context"

	"github.com/kabili207/ebook-go/core/codec"
)

// Chat broker reasons.
const (
	ReasonNoSuchUser = "User does not exist"
	ReasonSelfChat   = "Cannot chat with yourself"
)

// handleStartChat relays an invitation from this reader to the target.
// If the target is not connected the inviter is told at once.
func (s *Session) handleStartChat(ctx context.Context, req *codec.StartChatReq) error {
	target := s.srv.cfg.Sessions.Get(req.Target)
	switch {
	case target == nil:
		s.srv.cfg.Metrics.invite("no_such_user")
		return s.reply(ctx, &codec.StartChatResp{Result: codec.ResultError, Reason: ReasonNoSuchUser})
	case target == s:
		s.srv.cfg.Metrics.invite("self")
		return s.reply(ctx, &codec.StartChatResp{Result: codec.ResultError, Reason: ReasonSelfChat})
	}

	inviter := s.Username()
	s.srv.invites.Track(Invitation{
		Inviter:     inviter,
		InviterAddr: s.Addr(),
		InviterPort: req.Port,
		Target:      req.Target,
	})

	relay := &codec.RelayStartChatReq{Inviter: inviter, Addr: s.Addr(), Port: req.Port}
	if !target.Deliver(relay.Encode(), PriorityChat) {
		s.srv.invites.Resolve(inviter, req.Target)
		s.srv.cfg.Metrics.invite("undeliverable")
		return s.reply(ctx, &codec.StartChatResp{Result: codec.ResultError, Reason: ReasonNoSuchUser})
	}
	s.srv.cfg.Metrics.invite("relayed")
	s.log.Info("relayed chat invitation", "target", req.Target, "port", req.Port)
	return nil
}

// handleRelayStartChatResp forwards this reader's answer to the inviter.
// Answers to unknown invitations are ignored.
func (s *Session) handleRelayStartChatResp(resp *codec.RelayStartChatResp) {
	inv, ok := s.srv.invites.Resolve(resp.Inviter, s.Username())
	if !ok {
		s.log.Warn("ignoring answer to unknown invitation", "inviter", resp.Inviter)
		s.srv.cfg.Metrics.dropped("unknown_invitation")
		return
	}

	inviter := s.srv.cfg.Sessions.Get(inv.Inviter)
	if inviter == nil {
		s.log.Info("inviter left before answer", "inviter", inv.Inviter)
		return
	}

	var msg *codec.StartChatResp
	if resp.Accept {
		msg = &codec.StartChatResp{
			Result:    codec.ResultAccept,
			Peer:      s.Username(),
			Addr:      s.Addr(),
			Port:      resp.Port,
			LocalPort: inv.InviterPort,
		}
		s.srv.cfg.Metrics.invite("accepted")
	} else {
		msg = &codec.StartChatResp{Result: codec.ResultReject, Peer: s.Username()}
		s.srv.cfg.Metrics.invite("rejected")
	}
	inviter.Deliver(msg.Encode(), PriorityChat)
	s.log.Info("forwarded chat answer", "inviter", inv.Inviter, "result", msg.Result)
}
