package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/core/content"
	"github.com/kabili207/ebook-go/core/post"
	"github.com/kabili207/ebook-go/core/stream"
)

// Reasons reported to readers in Error and UploadPostResp messages.
const (
	ReasonBookNotFound = "Book not found"
	ReasonPageNotFound = "Page not found"
	ReasonLineNotFound = "Line not found"
	ReasonRateLimited  = "Rate limit exceeded"
	ReasonInternal     = "Internal error"
)

// ValidationError is a request that names content the library does not have.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string { return e.Reason }
func (e *ValidationError) Unwrap() error { return e.Err }

// validatePage checks book, then page.
func (s *Server) validatePage(book string, page int) error {
	err := content.Locate(s.cfg.Content, book, page, 0)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, content.ErrBookNotFound):
		return &ValidationError{Reason: ReasonBookNotFound, Err: err}
	case errors.Is(err, content.ErrPageNotFound):
		return &ValidationError{Reason: ReasonPageNotFound, Err: err}
	default:
		return &ValidationError{Reason: ReasonInternal, Err: err}
	}
}

// validateLine checks book, then page, then line.
func (s *Server) validateLine(book string, page, line int) error {
	if err := s.validatePage(book, page); err != nil {
		return err
	}
	if !s.cfg.Content.HasLine(book, page, line) {
		return &ValidationError{
			Reason: ReasonLineNotFound,
			Err:    fmt.Errorf("%w: %s page %d line %d", content.ErrLineNotFound, book, page, line),
		}
	}
	return nil
}

func reasonOf(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return ReasonInternal
}

// sendStream runs a stream transfer of encoded items to the reader.
func (s *Session) sendStream(ctx context.Context, name codec.StreamName, items []string) error {
	if err := stream.Send(ctx, s.link, name, items, s.streamOptions()); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	s.srv.cfg.Metrics.streamed(string(name), len(items))
	return nil
}

func errorItem(err error) []string {
	return []string{(&codec.Error{Reason: reasonOf(err)}).Encode()}
}

func postItems(posts []*post.Post) []string {
	items := make([]string, len(posts))
	for i, p := range posts {
		items[i] = (&codec.Post{Post: p}).Encode()
	}
	return items
}

func (s *Session) handleDisplay(ctx context.Context, req *codec.DisplayReq) error {
	if err := s.srv.validatePage(req.Book, req.Page); err != nil {
		s.log.Debug("display rejected", "book", req.Book, "page", req.Page, "error", err)
		return s.sendStream(ctx, codec.StreamDisplayResp, errorItem(err))
	}

	lines, err := s.srv.cfg.Content.Page(req.Book, req.Page)
	if err != nil {
		s.log.Error("reading page", "book", req.Book, "page", req.Page, "error", err)
		return s.sendStream(ctx, codec.StreamDisplayResp, errorItem(err))
	}

	items := make([]string, len(lines))
	for i, l := range lines {
		items[i] = (&codec.Line{Number: l.Number, Text: l.Text}).Encode()
	}
	return s.sendStream(ctx, codec.StreamDisplayResp, items)
}

func (s *Session) handleUpload(ctx context.Context, req *codec.UploadPost) error {
	if s.limiter != nil && !s.limiter.Allow() {
		s.srv.cfg.Metrics.rejected(ReasonRateLimited)
		return s.reply(ctx, &codec.UploadPostResp{Reason: ReasonRateLimited})
	}

	if err := s.srv.validateLine(req.Book, req.Page, req.Line); err != nil {
		reason := reasonOf(err)
		s.log.Debug("upload rejected", "book", req.Book, "page", req.Page, "line", req.Line, "reason", reason)
		s.srv.cfg.Metrics.rejected(reason)
		return s.reply(ctx, &codec.UploadPostResp{Reason: reason})
	}

	sender := req.Sender
	if sender == "" {
		sender = s.Username()
	}
	p := &post.Post{
		ID:      s.srv.cfg.IDs.Next(),
		Sender:  sender,
		Book:    req.Book,
		Page:    req.Page,
		Line:    req.Line,
		Content: req.Content,
		Status:  post.Unread,
	}
	if err := s.srv.cfg.Posts.Insert(p); err != nil {
		s.log.Error("storing post", "post", p.ID, "error", err)
		s.srv.cfg.Metrics.rejected(ReasonInternal)
		return s.reply(ctx, &codec.UploadPostResp{Reason: ReasonInternal})
	}
	s.srv.cfg.Metrics.uploaded(s.srv.cfg.Posts.Count())
	s.log.Info("post stored", "post", p.ID, "book", p.Book, "page", p.Page, "line", p.Line)

	if err := s.reply(ctx, &codec.UploadPostResp{OK: true, ID: p.ID}); err != nil {
		return err
	}

	s.srv.broadcast(s, p)
	s.srv.publish(ctx, p)
	return nil
}

// broadcast queues p for every push-mode session except the author's.
func (s *Server) broadcast(author *Session, p *post.Post) {
	msg := (&codec.NewSinglePost{Post: p}).Encode()
	n := 0
	for _, target := range pushTargets(s.cfg.Sessions, author) {
		if target.Deliver(msg, PriorityPost) {
			n++
		}
	}
	s.cfg.Metrics.pushed(n)
}

func (s *Session) handleGetPostsID(ctx context.Context, req *codec.GetPostsIDReq) error {
	if err := s.srv.validatePage(req.Book, req.Page); err != nil {
		return s.reply(ctx, &codec.Error{Reason: reasonOf(err)})
	}
	ids := s.srv.cfg.Posts.IDsOnPage(req.Book, req.Page).Sorted()
	return s.reply(ctx, &codec.GetPostsIDResp{IDs: ids})
}

func (s *Session) handleSyncPosts(ctx context.Context, req *codec.SyncPostsReq) error {
	missing := s.srv.cfg.Posts.Difference(post.NewIDSet(req.Known...))
	s.log.Debug("full sync", "known", len(req.Known), "sending", len(missing))
	return s.sendStream(ctx, codec.StreamSyncPostsResp, postItems(missing))
}

func (s *Session) handleGetPostsLoc(ctx context.Context, req *codec.GetPostsLocReq) error {
	if err := s.srv.validatePage(req.Book, req.Page); err != nil {
		return s.sendStream(ctx, codec.StreamGetPostsLocResp, errorItem(err))
	}

	known := post.NewIDSet(req.Known...)
	var missing []*post.Post
	for _, p := range s.srv.cfg.Posts.ByPage(req.Book, req.Page) {
		if !known.Has(p.ID) {
			missing = append(missing, p)
		}
	}
	return s.sendStream(ctx, codec.StreamGetPostsLocResp, postItems(missing))
}
