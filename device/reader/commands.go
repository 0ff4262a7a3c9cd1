package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/core/post"
)

// ErrNoCurrentPage is returned by page-relative commands before Display.
var ErrNoCurrentPage = errors.New("no page displayed")

// Line markers shown beside displayed lines.
const (
	MarkerNone   = ' '
	MarkerUnread = 'n'
	MarkerRead   = 'm'
)

// ViewLine is one displayed line with its post marker.
type ViewLine struct {
	Number int
	Text   string
	Marker byte
}

// PageView is a displayed page.
type PageView struct {
	Book  string
	Page  int
	Lines []ViewLine
}

func (v *PageView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Book '%s', Page %d:\n", v.Book, v.Page)
	for _, l := range v.Lines {
		fmt.Fprintf(&b, "%c  %d %s\n", l.Marker, l.Number, l.Text)
	}
	return b.String()
}

// Marker returns the marker for a line: MarkerNone without posts,
// MarkerUnread if any post is unread, MarkerRead otherwise.
func Marker(posts []*post.Post) byte {
	if len(posts) == 0 {
		return MarkerNone
	}
	for _, p := range posts {
		if p.Status == post.Unread {
			return MarkerUnread
		}
	}
	return MarkerRead
}

// Display fetches a page and makes it the current page. In pull mode the
// page's posts are refreshed first so the markers are current.
func (c *Client) Display(ctx context.Context, book string, page int) (*PageView, error) {
	if c.cfg.Mode == codec.ModePull {
		if _, err := c.Refresh(ctx, book, page); err != nil {
			return nil, err
		}
	}

	items, err := c.requestStream(ctx, &codec.DisplayReq{Book: book, Page: page}, codec.StreamDisplayResp)
	if err != nil {
		return nil, err
	}

	view := &PageView{Book: book, Page: page}
	for _, item := range items {
		msg, err := codec.Parse(item)
		if err != nil {
			c.log.Warn("ignoring bad page line", "error", err)
			continue
		}
		switch m := msg.(type) {
		case *codec.Line:
			view.Lines = append(view.Lines, ViewLine{
				Number: m.Number,
				Text:   m.Text,
				Marker: Marker(c.posts.ByLine(book, page, m.Number)),
			})
		case *codec.Error:
			return nil, &RemoteError{Reason: m.Reason}
		}
	}

	c.setCurrentPage(book, page)
	c.poll.postpone()
	return view, nil
}

// PostToForum uploads a post on a line of the current page and stores it
// locally with the configured own-post status.
func (c *Client) PostToForum(ctx context.Context, line int, text string) (post.ID, error) {
	cur := c.currentPage()
	if cur == nil {
		return 0, ErrNoCurrentPage
	}
	defer c.poll.kick()

	req := &codec.UploadPost{
		Sender:  c.cfg.Username,
		Book:    cur.book,
		Page:    cur.page,
		Line:    line,
		Content: text,
	}
	resp, err := c.request(ctx, req)
	if err != nil {
		return 0, err
	}

	switch m := resp.(type) {
	case *codec.UploadPostResp:
		if !m.OK {
			return 0, &RemoteError{Reason: m.Reason}
		}
		c.insert(&post.Post{
			ID:      m.ID,
			Sender:  c.cfg.Username,
			Book:    cur.book,
			Page:    cur.page,
			Line:    line,
			Content: text,
		}, c.cfg.OwnPostStatus.status())
		c.log.Info("posted", "post", m.ID, "book", cur.book, "page", cur.page, "line", line)
		return m.ID, nil
	case *codec.Error:
		return 0, &RemoteError{Reason: m.Reason}
	default:
		return 0, fmt.Errorf("unexpected %s response to %s", resp.Type(), codec.TypeUploadPost)
	}
}

// ReadPost returns the posts on a line of the current page, with the status
// they had before this call, and marks them read.
func (c *Client) ReadPost(line int) ([]*post.Post, error) {
	cur := c.currentPage()
	if cur == nil {
		return nil, ErrNoCurrentPage
	}
	defer c.poll.kick()

	posts := c.posts.ByLine(cur.book, cur.page, line)
	for _, p := range posts {
		if err := c.posts.SetRead(p.ID); err != nil {
			return posts, fmt.Errorf("marking post %d read: %w", p.ID, err)
		}
	}
	return posts, nil
}

// ChatRequest asks the server to invite another reader to chat. The outcome
// arrives later through Events.
func (c *Client) ChatRequest(ctx context.Context, user string) error {
	if c.cfg.Chat == nil {
		return ErrChatDisabled
	}
	if c.peers.Has(user) {
		return ErrChatExists
	}
	defer c.poll.kick()

	if err := c.send(ctx, &codec.StartChatReq{Target: user, Port: c.cfg.Chat.Port()}); err != nil {
		return err
	}
	c.log.Info("requested chat", "target", user)
	return nil
}

// Chat sends a chat datagram to a peer. Delivery is not confirmed.
func (c *Client) Chat(user, text string) error {
	if c.cfg.Chat == nil {
		return ErrChatDisabled
	}
	peer, err := c.peers.Get(user)
	if err != nil {
		return err
	}
	defer c.poll.kick()

	msg := &codec.NewChatMessage{Sender: c.cfg.Username, Text: text}
	return c.cfg.Chat.SendTo(peer.Addr, peer.Port, msg.Encode())
}

// Exit says goodbye to the server and shuts the reader down.
func (c *Client) Exit(ctx context.Context) error {
	err := c.send(ctx, &codec.Exit{Username: c.cfg.Username})
	c.setState(StateShuttingDown)
	c.link.Close()
	c.Stop()
	if err != nil && !errors.Is(err, ErrNotActive) {
		return fmt.Errorf("exit: %w", err)
	}
	return nil
}
