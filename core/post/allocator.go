package post

import "sync"

// FirstID is the first ID handed out by a new Allocator.
const FirstID ID = 1000

// Allocator hands out strictly increasing post IDs. It is safe for
// concurrent use.
type Allocator struct {
	mu   sync.Mutex
	next ID
}

// NewAllocator creates an Allocator whose first ID is FirstID.
func NewAllocator() *Allocator {
	return NewAllocatorFrom(FirstID)
}

// NewAllocatorFrom creates an Allocator whose first ID is first.
func NewAllocatorFrom(first ID) *Allocator {
	return &Allocator{next: first}
}

// Next returns a new ID, never returned before by this Allocator.
func (a *Allocator) Next() ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}
