package post

import (
	"cmp"
	"slices"
	"sync"
)

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store keyed by post ID. A single RWMutex
// serializes writers against readers; post volume is modest.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[ID]*Post
}

// NewMemoryStore creates an empty in-memory post store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts: make(map[ID]*Post),
	}
}

// Insert stores a copy of p.
func (s *MemoryStore) Insert(p *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[p.ID]; ok {
		return ErrDuplicatePost
	}
	s.posts[p.ID] = p.Clone()
	return nil
}

// Get returns a copy of the post with the given ID.
func (s *MemoryStore) Get(id ID) (*Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// SetRead marks the post as read.
func (s *MemoryStore) SetRead(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return ErrPostNotFound
	}
	p.Status = Read
	return nil
}

// ByBook returns every post on the book.
func (s *MemoryStore) ByBook(book string) []*Post {
	return s.filter(func(p *Post) bool {
		return p.Book == book
	})
}

// ByPage returns every post on a page.
func (s *MemoryStore) ByPage(book string, page int) []*Post {
	return s.filter(func(p *Post) bool {
		return p.Book == book && p.Page == page
	})
}

// ByLine returns every post on a line.
func (s *MemoryStore) ByLine(book string, page, line int) []*Post {
	return s.filter(func(p *Post) bool {
		return p.Book == book && p.Page == page && p.Line == line
	})
}

// AllIDs returns the IDs of every stored post.
func (s *MemoryStore) AllIDs() IDSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(IDSet, len(s.posts))
	for id := range s.posts {
		ids.Add(id)
	}
	return ids
}

// IDsOnPage returns the IDs of the posts on a page.
func (s *MemoryStore) IDsOnPage(book string, page int) IDSet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(IDSet)
	for id, p := range s.posts {
		if p.Book == book && p.Page == page {
			ids.Add(id)
		}
	}
	return ids
}

// Difference returns the stored posts not in known.
func (s *MemoryStore) Difference(known IDSet) []*Post {
	return s.filter(func(p *Post) bool {
		return !known.Has(p.ID)
	})
}

// Unknown returns the IDs that are not stored.
func (s *MemoryStore) Unknown(ids []ID) []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []ID
	for _, id := range ids {
		if _, ok := s.posts[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Count returns the number of stored posts.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// filter returns copies of the posts matching fn, ordered by ID.
func (s *MemoryStore) filter(fn func(p *Post) bool) []*Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Post
	for _, p := range s.posts {
		if fn(p) {
			result = append(result, p.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *Post) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}
