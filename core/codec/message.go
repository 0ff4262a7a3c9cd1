// Package codec implements the delimited text messages exchanged between the
// library server, its readers and chat peers.
//
// A message is a tag followed by zero or more fields, each introduced by the
// delimiter:
//
//	#UploadPost#alice#shelley#2#9#a comment, maybe with # in it
//
// Every tag has a fixed arity, or for variant messages an arity selected by
// the first field. Only the first arity-1 delimiters are structural; the last
// field is taken verbatim, so free text is always encoded last.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the tag and fields of a message.
const Delimiter = "#"

var (
	// ErrMalformedMessage is returned when a message is empty, lacks the
	// leading delimiter, carries too few fields or has an invalid field.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownMessage is returned when the tag is not registered.
	ErrUnknownMessage = errors.New("unknown message type")
)

// Type is a message tag.
type Type string

// Message tags.
const (
	TypeIntro              Type = "Intro"
	TypeExit               Type = "Exit"
	TypeDisplayReq         Type = "DisplayReq"
	TypeLine               Type = "Line"
	TypeUploadPost         Type = "UploadPost"
	TypeUploadPostResp     Type = "UploadPostResp"
	TypeGetPostsIDReq      Type = "GetPostsIDReq"
	TypeGetPostsIDResp     Type = "GetPostsIDResp"
	TypeSyncPostsReq       Type = "SyncPostsReq"
	TypeGetPostsLocReq     Type = "GetPostsLocReq"
	TypePost               Type = "Post"
	TypeNewSinglePost      Type = "NewSinglePost"
	TypeError              Type = "Error"
	TypeStartChatReq       Type = "StartChatReq"
	TypeRelayStartChatReq  Type = "RelayStartChatReq"
	TypeRelayStartChatResp Type = "RelayStartChatResp"
	TypeStartChatResp      Type = "StartChatResp"
	TypeNewChatMessage     Type = "NewChatMessage"
)

// StreamName names a stream transfer. Each name derives four control tags.
type StreamName string

// Stream names.
const (
	StreamDisplayResp     StreamName = "DisplayResp"
	StreamSyncPostsResp   StreamName = "SyncPostsResp"
	StreamGetPostsLocResp StreamName = "GetPostsLocResp"
)

// Streams lists every stream name known to the codec.
var Streams = []StreamName{StreamDisplayResp, StreamSyncPostsResp, StreamGetPostsLocResp}

// Begin returns the tag that opens the stream.
func (n StreamName) Begin() Type { return Type("Begin" + string(n)) }

// BeginAck returns the tag acknowledging the stream opening.
func (n StreamName) BeginAck() Type { return Type("Begin" + string(n) + "Ack") }

// ItemAck returns the tag acknowledging one stream item.
func (n StreamName) ItemAck() Type { return Type(string(n) + "ItemAck") }

// End returns the tag that closes the stream.
func (n StreamName) End() Type { return Type("End" + string(n)) }

// Variant selectors carried as the first field of variant messages.
const (
	ResultSuccess = "Success"
	ResultAccept  = "Accept"
	ResultReject  = "Reject"
	ResultError   = "Error"
)

// arity returns the number of fields the tag carries given its first field.
// ok is false when the first field is not a valid variant selector.
type arity func(first string) (n int, ok bool)

func fixed(n int) arity {
	return func(string) (int, bool) { return n, true }
}

func variant(arities map[string]int) arity {
	return func(first string) (int, bool) {
		n, ok := arities[first]
		return n, ok
	}
}

var arities = map[Type]arity{
	TypeIntro:             fixed(3),
	TypeExit:              fixed(1),
	TypeDisplayReq:        fixed(2),
	TypeLine:              fixed(2),
	TypeUploadPost:        fixed(5),
	TypeGetPostsIDReq:     fixed(2),
	TypeGetPostsIDResp:    fixed(1),
	TypeSyncPostsReq:      fixed(1),
	TypeGetPostsLocReq:    fixed(3),
	TypePost:              fixed(6),
	TypeNewSinglePost:     fixed(6),
	TypeError:             fixed(1),
	TypeStartChatReq:      fixed(2),
	TypeRelayStartChatReq: fixed(3),
	TypeNewChatMessage:    fixed(2),
	TypeUploadPostResp: variant(map[string]int{
		ResultSuccess: 2,
		ResultError:   2,
	}),
	TypeRelayStartChatResp: variant(map[string]int{
		ResultAccept: 4,
		ResultReject: 2,
	}),
	TypeStartChatResp: variant(map[string]int{
		ResultAccept: 5,
		ResultReject: 2,
		ResultError:  2,
	}),
}

func init() {
	for _, n := range Streams {
		for _, t := range []Type{n.Begin(), n.BeginAck(), n.ItemAck(), n.End()} {
			arities[t] = fixed(0)
		}
	}
}

// Known reports whether t is a registered tag.
func Known(t Type) bool {
	_, ok := arities[t]
	return ok
}

// Message is a decoded message: its tag and its fields in order.
type Message struct {
	Type   Type
	Fields []string
}

// Field returns the i'th field, or "" if there is none.
func (m *Message) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return m.Fields[i]
}

// String encodes the message.
func (m *Message) String() string {
	return Encode(m.Type, m.Fields...)
}

// Encode joins a tag and its fields into a message.
func Encode(t Type, fields ...string) string {
	var b strings.Builder
	b.WriteString(Delimiter)
	b.WriteString(string(t))
	for _, f := range fields {
		b.WriteString(Delimiter)
		b.WriteString(f)
	}
	return b.String()
}

// Decode splits a message into its tag and fields. The last field of a
// message is returned verbatim even if it contains the delimiter.
func Decode(raw string) (*Message, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedMessage)
	}
	if !strings.HasPrefix(raw, Delimiter) {
		return nil, fmt.Errorf("%w: missing leading delimiter", ErrMalformedMessage)
	}

	tag, rest, hasFields := strings.Cut(raw[len(Delimiter):], Delimiter)
	if tag == "" {
		return nil, fmt.Errorf("%w: empty tag", ErrMalformedMessage)
	}
	ar, ok := arities[Type(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}

	first, _, _ := strings.Cut(rest, Delimiter)
	n, ok := ar(first)
	if !ok {
		return nil, fmt.Errorf("%w: %s: invalid variant %q", ErrMalformedMessage, tag, first)
	}

	msg := &Message{Type: Type(tag)}
	if n == 0 {
		if hasFields {
			return nil, fmt.Errorf("%w: %s takes no fields", ErrMalformedMessage, tag)
		}
		return msg, nil
	}
	if !hasFields {
		return nil, fmt.Errorf("%w: %s: want %d fields, got 0", ErrMalformedMessage, tag, n)
	}

	msg.Fields = strings.SplitN(rest, Delimiter, n)
	if len(msg.Fields) < n {
		return nil, fmt.Errorf("%w: %s: want %d fields, got %d", ErrMalformedMessage, tag, n, len(msg.Fields))
	}
	return msg, nil
}

// Recoverable reports whether err is a decode error the session should log
// and skip rather than treat as fatal.
func Recoverable(err error) bool {
	return errors.Is(err, ErrMalformedMessage) || errors.Is(err, ErrUnknownMessage)
}
