// Package post defines forum posts, the stores that hold them, and the ID-set
// helpers used to reconcile a reader's local posts with the server's.
//
// A post is attached to one line of one page of one book. The server is the
// only party that assigns post IDs; readers keep a local subset of the server's
// posts and track which of them they have read.
package post

import "strconv"

// ID identifies a post. IDs are unique for the lifetime of a server process.
type ID uint32

// String returns the decimal form of the ID, as it appears on the wire.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal post ID.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return ID(v), nil
}

// ReadStatus records whether a reader has viewed a post.
type ReadStatus uint8

const (
	// Unread is the status of a post a reader has not viewed yet.
	Unread ReadStatus = iota
	// Read is the status of a post a reader has viewed.
	Read
)

func (s ReadStatus) String() string {
	switch s {
	case Unread:
		return "unread"
	case Read:
		return "read"
	default:
		return "unknown"
	}
}

// Post is a forum annotation on a single line of a book page.
type Post struct {
	ID     ID
	Sender string
	Book   string
	Page   int
	Line   int

	// Content is free text. It is always the last field of an encoded post
	// and may contain the wire delimiter.
	Content string

	// Status is only meaningful in a reader's local store. The server stores
	// every post as Unread.
	Status ReadStatus
}

// Clone returns a copy of the post.
func (p *Post) Clone() *Post {
	c := *p
	return &c
}
