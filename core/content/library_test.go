package content

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func writeFile(t *testing.T, fs afero.Fs, name string, lines ...string) {
	t.Helper()
	if err := afero.WriteFile(fs, name, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestLibrary(t *testing.T) (*Library, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "books/booklist", "shelley,Mary Shelley", "joyce,James Joyce")
	writeFile(t, fs, "books/shelley/shelley_page1", "   1 You will rejoice to hear", "   2 that no disaster")
	writeFile(t, fs, "books/shelley/shelley_page2",
		"   1 I am already far north",
		"   2 of London",
		"   3 and as I walk",
		"   4 in the streets",
		"   5 of Petersburgh,",
		"   6 I feel a cold",
		"   7 northern breeze",
		"   8 play upon my cheeks,",
		"   9 which braces my nerves # and fills me",
	)
	writeFile(t, fs, "books/joyce/joyce_page1", "   1 Stately, plump Buck Mulligan")

	lib, err := OpenLibrary(LibraryConfig{Fs: fs, Root: "books", CacheSize: 2})
	if err != nil {
		t.Fatalf("OpenLibrary() error = %v", err)
	}
	return lib, fs
}

func TestOpenLibrary_Books(t *testing.T) {
	lib, _ := newTestLibrary(t)

	want := []Book{{Name: "shelley", Author: "Mary Shelley"}, {Name: "joyce", Author: "James Joyce"}}
	if diff := cmp.Diff(want, lib.Books()); diff != "" {
		t.Errorf("Books() mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenLibrary_MissingBooklist(t *testing.T) {
	_, err := OpenLibrary(LibraryConfig{Fs: afero.NewMemMapFs(), Root: "books"})
	if err == nil {
		t.Fatal("expected error for missing booklist")
	}
}

func TestOpenLibrary_MissingBookDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "books/booklist", "exupery,Antoine de Saint-Exupery")

	_, err := OpenLibrary(LibraryConfig{Fs: fs, Root: "books"})
	if !errors.Is(err, ErrBookNotFound) {
		t.Errorf("OpenLibrary() error = %v, want ErrBookNotFound", err)
	}
}

func TestLibrary_Has(t *testing.T) {
	lib, _ := newTestLibrary(t)

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"book", lib.HasBook("shelley"), true},
		{"missing book", lib.HasBook("exupery"), false},
		{"page", lib.HasPage("shelley", 2), true},
		{"page zero", lib.HasPage("shelley", 0), false},
		{"page past end", lib.HasPage("shelley", 3), false},
		{"line", lib.HasLine("shelley", 2, 9), true},
		{"line past end", lib.HasLine("shelley", 2, 10), false},
		{"line on missing page", lib.HasLine("joyce", 2, 1), false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLibrary_Page(t *testing.T) {
	lib, _ := newTestLibrary(t)

	lines, err := lib.Page("shelley", 2)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if len(lines) != 9 {
		t.Fatalf("len(lines) = %d, want 9", len(lines))
	}
	for i, l := range lines {
		if l.Number != i+1 {
			t.Errorf("lines[%d].Number = %d, want %d", i, l.Number, i+1)
		}
	}
	if lines[8].Text != "which braces my nerves # and fills me" {
		t.Errorf("lines[8].Text = %q", lines[8].Text)
	}
}

func TestLibrary_PageCached(t *testing.T) {
	lib, fs := newTestLibrary(t)

	first, err := lib.Page("shelley", 1)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	// Rewriting the file does not affect the cached page.
	writeFile(t, fs, "books/shelley/shelley_page1", "   1 changed")

	second, err := lib.Page("shelley", 1)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached page changed (-first +second):\n%s", diff)
	}

	second[0].Text = "mutated"
	third, _ := lib.Page("shelley", 1)
	if third[0].Text == "mutated" {
		t.Error("Page() should return a copy of the cached lines")
	}
}

func TestLibrary_PageErrors(t *testing.T) {
	lib, _ := newTestLibrary(t)

	if _, err := lib.Page("exupery", 1); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("Page(exupery) error = %v, want ErrBookNotFound", err)
	}
	if _, err := lib.Page("shelley", 7); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("Page(shelley, 7) error = %v, want ErrPageNotFound", err)
	}
}

func TestLocate_Order(t *testing.T) {
	lib, _ := newTestLibrary(t)

	tests := []struct {
		book       string
		page, line int
		want       error
	}{
		{"exupery", 0, 0, ErrBookNotFound},
		{"exupery", 2, 9, ErrBookNotFound},
		{"shelley", 5, 100, ErrPageNotFound},
		{"shelley", 2, 100, ErrLineNotFound},
		{"shelley", 2, 9, nil},
	}
	for _, tt := range tests {
		err := Locate(lib, tt.book, tt.page, tt.line)
		if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
			t.Errorf("Locate(%s, %d, %d) = %v, want %v", tt.book, tt.page, tt.line, err, tt.want)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"   1 It was a dreary night", "It was a dreary night"},
		{"  12 two  spaces kept", "two  spaces kept"},
		{"   3", ""},
		{"no number here", "no number here"},
		{"   4 trailing   ", "trailing"},
	}
	for _, tt := range tests {
		if got := ParseLine(tt.raw); got != tt.want {
			t.Errorf("ParseLine(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
