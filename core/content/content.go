// Package content serves the text of the books hosted by the library server.
package content

import (
	"errors"
	"fmt"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrPageNotFound = errors.New("page not found")
	ErrLineNotFound = errors.New("line not found")
)

// Book describes a hosted book. Name is also its directory on disk.
type Book struct {
	Name   string
	Author string
}

// Line is one numbered line of page text. Numbers start at 1.
type Line struct {
	Number int
	Text   string
}

// Provider gives read access to book text. Implementations must be safe for
// concurrent use.
type Provider interface {
	Books() []Book
	HasBook(book string) bool
	HasPage(book string, page int) bool
	HasLine(book string, page, line int) bool
	// Page returns the lines of a page in order.
	Page(book string, page int) ([]Line, error)
}

// Locate checks book, then page, then line, and returns the error for the
// first that does not exist. A line of 0 skips the line check.
func Locate(p Provider, book string, page, line int) error {
	if !p.HasBook(book) {
		return fmt.Errorf("%w: %q", ErrBookNotFound, book)
	}
	if !p.HasPage(book, page) {
		return fmt.Errorf("%w: %s page %d", ErrPageNotFound, book, page)
	}
	if line != 0 && !p.HasLine(book, page, line) {
		return fmt.Errorf("%w: %s page %d line %d", ErrLineNotFound, book, page, line)
	}
	return nil
}
