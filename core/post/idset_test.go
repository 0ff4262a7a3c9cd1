package post

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFormatParseIDs(t *testing.T) {
	tests := []struct {
		ids  []ID
		wire string
	}{
		{nil, ""},
		{[]ID{1000}, "1000"},
		{[]ID{1000, 1001, 1042}, "1000,1001,1042"},
	}
	for _, tt := range tests {
		if got := FormatIDs(tt.ids); got != tt.wire {
			t.Errorf("FormatIDs(%v) = %q, want %q", tt.ids, got, tt.wire)
		}
		got, err := ParseIDs(tt.wire)
		if err != nil {
			t.Fatalf("ParseIDs(%q) failed: %v", tt.wire, err)
		}
		if diff := cmp.Diff(tt.ids, got); diff != "" {
			t.Errorf("ParseIDs(%q) mismatch (-want +got):\n%s", tt.wire, diff)
		}
	}
}

func TestParseIDs_Invalid(t *testing.T) {
	for _, s := range []string{"1,,2", "abc", "1,-2", "99999999999"} {
		if _, err := ParseIDs(s); err == nil {
			t.Errorf("ParseIDs(%q) expected error", s)
		}
	}
}

func TestIDSet(t *testing.T) {
	s := NewIDSet(3, 1, 2)
	if !s.Has(1) || s.Has(4) {
		t.Error("Has returned wrong membership")
	}
	s.Add(4)
	if diff := cmp.Diff([]ID{1, 2, 3, 4}, s.Sorted()); diff != "" {
		t.Errorf("Sorted mismatch (-want +got):\n%s", diff)
	}

	var empty IDSet
	if empty.Has(1) {
		t.Error("nil set should hold nothing")
	}
}

func TestAllocator_StrictlyIncreasing(t *testing.T) {
	a := NewAllocator()
	if got := a.Next(); got != FirstID {
		t.Errorf("first ID = %d, want %d", got, FirstID)
	}
	prev := FirstID
	for i := 0; i < 100; i++ {
		id := a.Next()
		if id <= prev {
			t.Fatalf("ID %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}
