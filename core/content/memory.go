package content

import (
	"slices"
	"sync"
)

// MemoryProvider is a Provider holding book text in memory.
type MemoryProvider struct {
	mu    sync.RWMutex
	books map[string]*memoryBook
	order []string
}

type memoryBook struct {
	Book
	pages [][]string
}

var _ Provider = (*MemoryProvider)(nil)

// NewMemoryProvider creates an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{books: make(map[string]*memoryBook)}
}

// AddBook adds or replaces a book. Each element of pages is the text of one
// page, one string per line, starting with page 1.
func (p *MemoryProvider) AddBook(name, author string, pages ...[]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.books[name]; !exists {
		p.order = append(p.order, name)
	}
	copied := make([][]string, len(pages))
	for i, page := range pages {
		copied[i] = slices.Clone(page)
	}
	p.books[name] = &memoryBook{Book: Book{Name: name, Author: author}, pages: copied}
}

func (p *MemoryProvider) Books() []Book {
	p.mu.RLock()
	defer p.mu.RUnlock()

	books := make([]Book, 0, len(p.order))
	for _, name := range p.order {
		books = append(books, p.books[name].Book)
	}
	return books
}

func (p *MemoryProvider) HasBook(book string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.books[book]
	return ok
}

func (p *MemoryProvider) HasPage(book string, page int) bool {
	_, ok := p.page(book, page)
	return ok
}

func (p *MemoryProvider) HasLine(book string, page, line int) bool {
	lines, ok := p.page(book, page)
	return ok && line >= 1 && line <= len(lines)
}

func (p *MemoryProvider) Page(book string, page int) ([]Line, error) {
	if err := Locate(p, book, page, 0); err != nil {
		return nil, err
	}
	text, _ := p.page(book, page)
	lines := make([]Line, len(text))
	for i, t := range text {
		lines[i] = Line{Number: i + 1, Text: t}
	}
	return lines, nil
}

func (p *MemoryProvider) page(book string, page int) ([]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	b, ok := p.books[book]
	if !ok || page < 1 || page > len(b.pages) {
		return nil, false
	}
	return b.pages[page-1], true
}
