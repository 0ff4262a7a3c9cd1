package post

import "errors"

var (
	// ErrPostNotFound is returned when a post lookup by ID fails.
	ErrPostNotFound = errors.New("post not found")

	// ErrDuplicatePost is returned when inserting a post whose ID is already
	// stored. The stored post is left untouched.
	ErrDuplicatePost = errors.New("duplicate post id")
)

// Store is the interface for post storage backends.
// The default in-memory implementation is MemoryStore.
//
// Implementations return copies, so callers may not mutate stored posts
// except through SetRead.
type Store interface {
	// Insert adds a post. Returns ErrDuplicatePost if the ID is taken.
	Insert(p *Post) error

	// Get returns the post with the given ID.
	Get(id ID) (*Post, bool)

	// SetRead marks a post as read. Marking an already read post is a no-op.
	// Returns ErrPostNotFound if the ID is not stored; nothing is created.
	SetRead(id ID) error

	// ByBook returns every post on the book, ordered by ID.
	ByBook(book string) []*Post

	// ByPage returns every post on one page of a book, ordered by ID.
	ByPage(book string, page int) []*Post

	// ByLine returns every post on one line of a page, ordered by ID.
	ByLine(book string, page, line int) []*Post

	// AllIDs returns the IDs of every stored post.
	AllIDs() IDSet

	// IDsOnPage returns the IDs of the posts on one page of a book.
	IDsOnPage(book string, page int) IDSet

	// Difference returns the stored posts whose IDs are not in known,
	// ordered by ID.
	Difference(known IDSet) []*Post

	// Unknown returns the IDs from ids that are not stored, in input order.
	Unknown(ids []ID) []ID

	// Count returns the number of stored posts.
	Count() int
}
