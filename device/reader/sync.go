package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/core/post"
)

// SyncAll fetches every server post this reader does not hold. Returns the
// number of posts added.
func (c *Client) SyncAll(ctx context.Context) (int, error) {
	known := c.posts.AllIDs().Sorted()
	items, err := c.requestStream(ctx, &codec.SyncPostsReq{Known: known}, codec.StreamSyncPostsResp)
	if err != nil {
		return 0, err
	}
	n, err := c.insertItems(items)
	if err != nil {
		return n, err
	}
	c.log.Debug("full sync", "known", len(known), "added", n)
	return n, nil
}

// SyncPage fetches the posts on one page this reader does not hold.
func (c *Client) SyncPage(ctx context.Context, book string, page int) (int, error) {
	known := c.posts.IDsOnPage(book, page).Sorted()
	req := &codec.GetPostsLocReq{Book: book, Page: page, Known: known}
	items, err := c.requestStream(ctx, req, codec.StreamGetPostsLocResp)
	if err != nil {
		return 0, err
	}
	n, err := c.insertItems(items)
	if err != nil {
		return n, err
	}
	c.log.Debug("page sync", "book", book, "page", page, "known", len(known), "added", n)
	return n, nil
}

// PostIDs asks the server for the IDs of the posts on a page.
func (c *Client) PostIDs(ctx context.Context, book string, page int) ([]post.ID, error) {
	resp, err := c.request(ctx, &codec.GetPostsIDReq{Book: book, Page: page})
	if err != nil {
		return nil, err
	}
	switch m := resp.(type) {
	case *codec.GetPostsIDResp:
		return m.IDs, nil
	case *codec.Error:
		return nil, &RemoteError{Reason: m.Reason}
	default:
		return nil, fmt.Errorf("unexpected %s response to %s", resp.Type(), codec.TypeGetPostsIDReq)
	}
}

// Refresh checks a page for posts this reader lacks and fetches only those.
// Returns the number of posts added.
func (c *Client) Refresh(ctx context.Context, book string, page int) (int, error) {
	ids, err := c.PostIDs(ctx, book, page)
	if err != nil {
		return 0, err
	}
	if len(c.posts.Unknown(ids)) == 0 {
		return 0, nil
	}
	return c.SyncPage(ctx, book, page)
}

// insertItems stores the posts of a sync stream as unread. An Error item is
// returned as a *RemoteError.
func (c *Client) insertItems(items []string) (int, error) {
	added := 0
	for _, item := range items {
		msg, err := codec.Parse(item)
		if err != nil {
			c.log.Warn("ignoring bad stream item", "error", err)
			continue
		}
		switch m := msg.(type) {
		case *codec.Post:
			if c.insert(m.Post, post.Unread) {
				added++
			}
		case *codec.Error:
			return added, &RemoteError{Reason: m.Reason}
		default:
			c.log.Warn("ignoring unexpected stream item", "type", msg.Type())
		}
	}
	return added, nil
}

// insert stores a copy of p with the given status. Posts already held keep
// their status. Returns true if p was new.
func (c *Client) insert(p *post.Post, status post.ReadStatus) bool {
	cp := p.Clone()
	cp.Status = status
	if err := c.posts.Insert(cp); err != nil {
		if !errors.Is(err, post.ErrDuplicatePost) {
			c.log.Error("storing post", "post", p.ID, "error", err)
		}
		return false
	}
	return true
}

// refreshCurrent is the pull-mode poll step.
func (c *Client) refreshCurrent(ctx context.Context) {
	cur := c.currentPage()
	if cur == nil {
		return
	}
	n, err := c.Refresh(ctx, cur.book, cur.page)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("refresh failed", "book", cur.book, "page", cur.page, "error", err)
		}
		return
	}
	if n > 0 {
		c.log.Debug("new posts on current page", "count", n)
		c.cfg.Events.newPosts(cur.book, cur.page, n)
	}
}

// resyncAll is the push-mode resync step.
func (c *Client) resyncAll(ctx context.Context) {
	if _, err := c.SyncAll(ctx); err != nil && ctx.Err() == nil {
		c.log.Warn("resync failed", "error", err)
	}
}

func (c *Client) currentPage() *currentPage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	cur := *c.current
	return &cur
}

func (c *Client) setCurrentPage(book string, page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = &currentPage{book: book, page: page}
}
