package library

import (
	"context"

	"github.com/kabili207/ebook-go/core/codec"
)

// dispatch handles one request from an introduced reader. The request,
// including any stream it starts, is finished before the next is read.
func (s *Session) dispatch(ctx context.Context, msg codec.Payload) error {
	switch m := msg.(type) {
	case *codec.Exit:
		s.log.Info("reader said goodbye")
		return errExit
	case *codec.DisplayReq:
		return s.handleDisplay(ctx, m)
	case *codec.UploadPost:
		return s.handleUpload(ctx, m)
	case *codec.GetPostsIDReq:
		return s.handleGetPostsID(ctx, m)
	case *codec.SyncPostsReq:
		return s.handleSyncPosts(ctx, m)
	case *codec.GetPostsLocReq:
		return s.handleGetPostsLoc(ctx, m)
	case *codec.StartChatReq:
		return s.handleStartChat(ctx, m)
	case *codec.RelayStartChatResp:
		s.handleRelayStartChatResp(m)
		return nil
	case *codec.Intro:
		s.log.Warn("ignoring repeated intro", "username", m.Username)
		s.srv.cfg.Metrics.dropped("repeated_intro")
		return nil
	default:
		s.log.Debug("ignoring unexpected message", "type", msg.Type())
		s.srv.cfg.Metrics.dropped("unexpected")
		return nil
	}
}
