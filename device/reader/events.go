package reader

import (
	"context"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/core/post"
)

// Events are the callbacks a user interface registers. Any may be nil. They
// run on the client's event goroutine, so a slow callback delays later
// events but never the connection.
type Events struct {
	// NewPost is called for each post pushed by the server. onPage reports
	// whether it belongs to the page last displayed.
	NewPost func(p *post.Post, onPage bool)

	// NewPosts is called when a pull-mode refresh finds posts on the
	// current page.
	NewPosts func(book string, page, count int)

	// ChatInvite asks whether to accept a chat from another reader. A nil
	// callback rejects every invitation.
	ChatInvite func(from string) bool

	// ChatAccepted is called when a peer has accepted this reader's
	// invitation or when this reader accepted one.
	ChatAccepted func(peer Peer)

	// ChatRejected is called when a peer declined this reader's invitation.
	ChatRejected func(peer string)

	// ChatFailed is called when the server could not relay an invitation.
	ChatFailed func(reason string)

	// ChatMessage is called for each chat datagram received.
	ChatMessage func(from, text string)

	// Disconnected is called when the connection to the server is lost.
	Disconnected func(err error)
}

func (e Events) newPost(p *post.Post, onPage bool) {
	if e.NewPost != nil {
		e.NewPost(p, onPage)
	}
}

func (e Events) newPosts(book string, page, count int) {
	if e.NewPosts != nil {
		e.NewPosts(book, page, count)
	}
}

func (e Events) chatInvite(from string) bool {
	return e.ChatInvite != nil && e.ChatInvite(from)
}

func (e Events) chatAccepted(p Peer) {
	if e.ChatAccepted != nil {
		e.ChatAccepted(p)
	}
}

func (e Events) chatRejected(peer string) {
	if e.ChatRejected != nil {
		e.ChatRejected(peer)
	}
}

func (e Events) chatFailed(reason string) {
	if e.ChatFailed != nil {
		e.ChatFailed(reason)
	}
}

func (e Events) chatMessage(from, text string) {
	if e.ChatMessage != nil {
		e.ChatMessage(from, text)
	}
}

func (e Events) disconnected(err error) {
	if e.Disconnected != nil {
		e.Disconnected(err)
	}
}

// eventLoop handles unsolicited server messages in arrival order.
func (c *Client) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.events:
			c.handleEvent(ctx, msg)
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, msg codec.Payload) {
	switch m := msg.(type) {
	case *codec.NewSinglePost:
		if !c.insert(m.Post, post.Unread) {
			c.log.Debug("pushed post already held", "post", m.Post.ID)
			return
		}
		cur := c.currentPage()
		onPage := cur != nil && cur.book == m.Post.Book && cur.page == m.Post.Page
		c.log.Debug("post pushed", "post", m.Post.ID, "on_page", onPage)
		c.cfg.Events.newPost(m.Post.Clone(), onPage)

	case *codec.RelayStartChatReq:
		c.answerInvite(ctx, m)

	case *codec.StartChatResp:
		c.handleChatResp(m)
	}
}
