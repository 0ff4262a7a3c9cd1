package codec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kabili207/ebook-go/core/post"
)

func TestParse_RoundTrip(t *testing.T) {
	p := &post.Post{ID: 1000, Sender: "alice", Book: "shelley", Page: 2, Line: 9, Content: "so #bleak# here"}

	payloads := []Payload{
		&Intro{Username: "alice", Mode: ModePush, Addr: "10.0.0.1"},
		&Exit{Username: "alice"},
		&DisplayReq{Book: "shelley", Page: 2},
		&Line{Number: 9, Text: "   9 It was a dreary night of November #"},
		&UploadPost{Sender: "alice", Book: "shelley", Page: 2, Line: 9, Content: "a#b#c"},
		&UploadPostResp{OK: true, ID: 1000},
		&UploadPostResp{Reason: "Book not found"},
		&GetPostsIDReq{Book: "shelley", Page: 2},
		&GetPostsIDResp{IDs: []post.ID{1000, 1001}},
		&GetPostsIDResp{},
		&SyncPostsReq{Known: []post.ID{1, 3}},
		&SyncPostsReq{},
		&GetPostsLocReq{Book: "shelley", Page: 2, Known: []post.ID{1000}},
		&Post{Post: p},
		&NewSinglePost{Post: p},
		&Error{Reason: "Page not found"},
		&StartChatReq{Target: "bob", Port: 5000},
		&RelayStartChatReq{Inviter: "alice", Addr: "10.0.0.1", Port: 5000},
		&RelayStartChatResp{Accept: true, Port: 5001, Inviter: "alice", InviterPort: 5000},
		&RelayStartChatResp{Inviter: "alice"},
		&StartChatResp{Result: ResultAccept, Peer: "bob", Addr: "10.0.0.2", Port: 5001, LocalPort: 5000},
		&StartChatResp{Result: ResultReject, Peer: "bob"},
		&StartChatResp{Result: ResultError, Reason: "User does not exist"},
		&NewChatMessage{Sender: "alice", Text: "hi # there"},
		&StreamControl{Tag: StreamSyncPostsResp.ItemAck()},
	}

	for _, want := range payloads {
		raw := want.Encode()
		got, err := Parse(raw)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", raw, err)
			continue
		}
		if got.Type() != want.Type() {
			t.Errorf("Parse(%q).Type() = %s, want %s", raw, got.Type(), want.Type())
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Parse(%q) mismatch (-want +got):\n%s", raw, diff)
		}
	}
}

func TestParse_ContentWithDelimiters(t *testing.T) {
	got, err := Parse(Encode(TypeUploadPost, "alice", "shelley", "2", "9", "a#b#c"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	up, ok := got.(*UploadPost)
	if !ok {
		t.Fatalf("Parse() = %T, want *UploadPost", got)
	}
	if up.Content != "a#b#c" {
		t.Errorf("Content = %q, want %q", up.Content, "a#b#c")
	}
}

func TestParse_InvalidFields(t *testing.T) {
	tests := []string{
		"#DisplayReq#shelley#two",
		"#Line#x#text",
		"#UploadPost#alice#shelley#2#nine#hello",
		"#UploadPostResp#Success#abc",
		"#SyncPostsReq#1,,2",
		"#Intro#alice#sometimes#10.0.0.1",
		"#Post#-1#alice#shelley#2#9#x",
		"#StartChatReq#bob#port",
	}
	for _, raw := range tests {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformedMessage", raw, err)
		}
	}
}

func TestParse_Unknown(t *testing.T) {
	if _, err := Parse("#Ping"); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Parse(#Ping) error = %v, want ErrUnknownMessage", err)
	}
}

func TestSyncMode_Valid(t *testing.T) {
	for _, m := range []SyncMode{ModePull, ModePush} {
		if !m.Valid() {
			t.Errorf("%q.Valid() = false", m)
		}
	}
	if SyncMode("poll").Valid() {
		t.Error(`"poll".Valid() = true`)
	}
}
