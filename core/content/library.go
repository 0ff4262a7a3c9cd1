package content

import (
	"bufio"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// BooklistFile is the index of hosted books, one "dir,author" per line.
const BooklistFile = "booklist"

// DefaultCacheSize is the number of parsed pages a Library keeps.
const DefaultCacheSize = 256

// LibraryConfig configures a Library.
type LibraryConfig struct {
	// Fs holds the books. Defaults to the OS filesystem.
	Fs afero.Fs

	// Root is the directory holding the booklist and book directories.
	Root string

	// CacheSize bounds the page cache. Defaults to DefaultCacheSize.
	CacheSize int

	// Logger for library events. If nil, slog.Default() is used.
	Logger *slog.Logger
}

type pageKey struct {
	book string
	page int
}

type libraryBook struct {
	Book
	pages int
}

// Library is a Provider backed by a directory of page files:
//
//	<root>/booklist
//	<root>/<book>/<book>_page1
//	<root>/<book>/<book>_page2
//
// Each page line has the form "   <n> <text>". Pages are parsed on first use
// and cached.
type Library struct {
	fs    afero.Fs
	root  string
	books map[string]*libraryBook
	order []string
	cache *lru.Cache[pageKey, []Line]
	log   *slog.Logger
}

var _ Provider = (*Library)(nil)

// OpenLibrary reads the booklist and checks every listed book directory.
// A missing booklist or book directory is an error.
func OpenLibrary(cfg LibraryConfig) (*Library, error) {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[pageKey, []Line](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}

	l := &Library{
		fs:    cfg.Fs,
		root:  cfg.Root,
		books: make(map[string]*libraryBook),
		cache: cache,
		log:   logger.WithGroup("content"),
	}
	if err := l.loadBooklist(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) loadBooklist() error {
	data, err := afero.ReadFile(l.fs, path.Join(l.root, BooklistFile))
	if err != nil {
		return fmt.Errorf("read booklist: %w", err)
	}

	for i, raw := range strings.Split(string(data), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, author, _ := strings.Cut(raw, ",")
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("booklist line %d: empty book name", i+1)
		}

		pages, err := l.countPages(name)
		if err != nil {
			return err
		}
		l.books[name] = &libraryBook{
			Book:  Book{Name: name, Author: strings.TrimSpace(author)},
			pages: pages,
		}
		l.order = append(l.order, name)
		l.log.Info("loaded book", "book", name, "pages", pages)
	}
	return nil
}

// countPages returns the number of consecutive page files starting at 1.
func (l *Library) countPages(book string) (int, error) {
	dir := path.Join(l.root, book)
	ok, err := afero.DirExists(l.fs, dir)
	if err != nil {
		return 0, fmt.Errorf("stat book %q: %w", book, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: directory %s", ErrBookNotFound, dir)
	}

	n := 0
	for {
		ok, err := afero.Exists(l.fs, l.pagePath(book, n+1))
		if err != nil {
			return 0, fmt.Errorf("stat book %q page %d: %w", book, n+1, err)
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

func (l *Library) pagePath(book string, page int) string {
	return path.Join(l.root, book, book+"_page"+strconv.Itoa(page))
}

// Books returns the hosted books in booklist order.
func (l *Library) Books() []Book {
	books := make([]Book, 0, len(l.order))
	for _, name := range l.order {
		books = append(books, l.books[name].Book)
	}
	return books
}

func (l *Library) HasBook(book string) bool {
	_, ok := l.books[book]
	return ok
}

func (l *Library) HasPage(book string, page int) bool {
	b, ok := l.books[book]
	return ok && page >= 1 && page <= b.pages
}

func (l *Library) HasLine(book string, page, line int) bool {
	lines, err := l.Page(book, page)
	return err == nil && line >= 1 && line <= len(lines)
}

// Page returns the lines of a page, reading the page file on a cache miss.
func (l *Library) Page(book string, page int) ([]Line, error) {
	if err := Locate(l, book, page, 0); err != nil {
		return nil, err
	}

	key := pageKey{book, page}
	if lines, ok := l.cache.Get(key); ok {
		return slices.Clone(lines), nil
	}

	f, err := l.fs.Open(l.pagePath(book, page))
	if err != nil {
		return nil, fmt.Errorf("open %s page %d: %w", book, page, err)
	}
	defer f.Close()

	var lines []Line
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, Line{
			Number: len(lines) + 1,
			Text:   ParseLine(sc.Text()),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s page %d: %w", book, page, err)
	}

	l.cache.Add(key, lines)
	l.log.Debug("cached page", "book", book, "page", page, "lines", len(lines))
	return slices.Clone(lines), nil
}

// ParseLine strips the "   <n> " prefix of a page file line. Lines without
// a numeric prefix are returned with surrounding space trimmed.
func ParseLine(raw string) string {
	raw = strings.TrimRight(raw, " \t\r\n")
	trimmed := strings.TrimLeft(raw, " \t")
	num, text, found := strings.Cut(trimmed, " ")
	if _, err := strconv.Atoi(num); err != nil {
		return trimmed
	}
	if !found {
		return ""
	}
	return text
}
