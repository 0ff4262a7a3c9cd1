package codec

import (
	"fmt"
	"strconv"

	"github.com/kabili207/ebook-go/core/post"
)

// Payload is a typed message. Parse returns one of the types in this file;
// callers switch on the concrete type.
type Payload interface {
	Type() Type
	Encode() string
}

// SyncMode selects how a reader learns about new posts.
type SyncMode string

const (
	// ModePull readers poll the server for new posts.
	ModePull SyncMode = "pull"
	// ModePush readers receive new posts unsolicited.
	ModePush SyncMode = "push"
)

// Valid reports whether m is a known mode.
func (m SyncMode) Valid() bool {
	return m == ModePull || m == ModePush
}

// Intro registers a reader with the server. Addr is the host the reader
// accepts chat datagrams on.
type Intro struct {
	Username string
	Mode     SyncMode
	Addr     string
}

func (*Intro) Type() Type { return TypeIntro }
func (m *Intro) Encode() string {
	return Encode(TypeIntro, m.Username, string(m.Mode), m.Addr)
}

// Exit ends a reader session.
type Exit struct {
	Username string
}

func (*Exit) Type() Type { return TypeExit }
func (m *Exit) Encode() string {
	return Encode(TypeExit, m.Username)
}

// DisplayReq asks for the text of one page.
type DisplayReq struct {
	Book string
	Page int
}

func (*DisplayReq) Type() Type { return TypeDisplayReq }
func (m *DisplayReq) Encode() string {
	return Encode(TypeDisplayReq, m.Book, strconv.Itoa(m.Page))
}

// Line is one line of page text, sent as a DisplayResp stream item.
type Line struct {
	Number int
	Text   string
}

func (*Line) Type() Type { return TypeLine }
func (m *Line) Encode() string {
	return Encode(TypeLine, strconv.Itoa(m.Number), m.Text)
}

// UploadPost submits a new post. The server assigns its ID.
type UploadPost struct {
	Sender  string
	Book    string
	Page    int
	Line    int
	Content string
}

func (*UploadPost) Type() Type { return TypeUploadPost }
func (m *UploadPost) Encode() string {
	return Encode(TypeUploadPost, m.Sender, m.Book, strconv.Itoa(m.Page), strconv.Itoa(m.Line), m.Content)
}

// UploadPostResp reports the result of an upload. On success ID is the
// assigned post ID; otherwise Reason explains the failure.
type UploadPostResp struct {
	OK     bool
	ID     post.ID
	Reason string
}

func (*UploadPostResp) Type() Type { return TypeUploadPostResp }
func (m *UploadPostResp) Encode() string {
	if m.OK {
		return Encode(TypeUploadPostResp, ResultSuccess, m.ID.String())
	}
	return Encode(TypeUploadPostResp, ResultError, m.Reason)
}

// GetPostsIDReq asks for the IDs of every post on a page.
type GetPostsIDReq struct {
	Book string
	Page int
}

func (*GetPostsIDReq) Type() Type { return TypeGetPostsIDReq }
func (m *GetPostsIDReq) Encode() string {
	return Encode(TypeGetPostsIDReq, m.Book, strconv.Itoa(m.Page))
}

// GetPostsIDResp lists the IDs of the posts on the requested page.
type GetPostsIDResp struct {
	IDs []post.ID
}

func (*GetPostsIDResp) Type() Type { return TypeGetPostsIDResp }
func (m *GetPostsIDResp) Encode() string {
	return Encode(TypeGetPostsIDResp, post.FormatIDs(m.IDs))
}

// SyncPostsReq requests every post the reader does not know.
type SyncPostsReq struct {
	Known []post.ID
}

func (*SyncPostsReq) Type() Type { return TypeSyncPostsReq }
func (m *SyncPostsReq) Encode() string {
	return Encode(TypeSyncPostsReq, post.FormatIDs(m.Known))
}

// GetPostsLocReq requests the posts on a page the reader does not know.
type GetPostsLocReq struct {
	Book  string
	Page  int
	Known []post.ID
}

func (*GetPostsLocReq) Type() Type { return TypeGetPostsLocReq }
func (m *GetPostsLocReq) Encode() string {
	return Encode(TypeGetPostsLocReq, m.Book, strconv.Itoa(m.Page), post.FormatIDs(m.Known))
}

// Post carries one post as a sync stream item.
type Post struct {
	Post *post.Post
}

func (*Post) Type() Type { return TypePost }
func (m *Post) Encode() string {
	return Encode(TypePost, postFields(m.Post)...)
}

// NewSinglePost carries a newly uploaded post to push-mode readers.
type NewSinglePost struct {
	Post *post.Post
}

func (*NewSinglePost) Type() Type { return TypeNewSinglePost }
func (m *NewSinglePost) Encode() string {
	return Encode(TypeNewSinglePost, postFields(m.Post)...)
}

// Error is a failure response, or the single item of a failed stream.
type Error struct {
	Reason string
}

func (*Error) Type() Type { return TypeError }
func (m *Error) Encode() string {
	return Encode(TypeError, m.Reason)
}

// StartChatReq asks the server to invite Target to a chat. Port is the
// inviter's chat port.
type StartChatReq struct {
	Target string
	Port   int
}

func (*StartChatReq) Type() Type { return TypeStartChatReq }
func (m *StartChatReq) Encode() string {
	return Encode(TypeStartChatReq, m.Target, strconv.Itoa(m.Port))
}

// RelayStartChatReq forwards a chat invitation to its target.
type RelayStartChatReq struct {
	Inviter string
	Addr    string
	Port    int
}

func (*RelayStartChatReq) Type() Type { return TypeRelayStartChatReq }
func (m *RelayStartChatReq) Encode() string {
	return Encode(TypeRelayStartChatReq, m.Inviter, m.Addr, strconv.Itoa(m.Port))
}

// RelayStartChatResp is the target's answer to an invitation. Port is the
// target's chat port and InviterPort echoes the inviter's.
type RelayStartChatResp struct {
	Accept      bool
	Port        int
	Inviter     string
	InviterPort int
}

func (*RelayStartChatResp) Type() Type { return TypeRelayStartChatResp }
func (m *RelayStartChatResp) Encode() string {
	if m.Accept {
		return Encode(TypeRelayStartChatResp, ResultAccept, strconv.Itoa(m.Port), m.Inviter, strconv.Itoa(m.InviterPort))
	}
	return Encode(TypeRelayStartChatResp, ResultReject, m.Inviter)
}

// StartChatResp tells the inviter how the invitation ended. Result is one of
// ResultAccept, ResultReject or ResultError.
type StartChatResp struct {
	Result    string
	Peer      string
	Addr      string
	Port      int
	LocalPort int
	Reason    string
}

func (*StartChatResp) Type() Type { return TypeStartChatResp }
func (m *StartChatResp) Encode() string {
	switch m.Result {
	case ResultAccept:
		return Encode(TypeStartChatResp, ResultAccept, m.Peer, m.Addr, strconv.Itoa(m.Port), strconv.Itoa(m.LocalPort))
	case ResultReject:
		return Encode(TypeStartChatResp, ResultReject, m.Peer)
	default:
		return Encode(TypeStartChatResp, ResultError, m.Reason)
	}
}

// NewChatMessage is a chat datagram between two readers.
type NewChatMessage struct {
	Sender string
	Text   string
}

func (*NewChatMessage) Type() Type { return TypeNewChatMessage }
func (m *NewChatMessage) Encode() string {
	return Encode(TypeNewChatMessage, m.Sender, m.Text)
}

// StreamControl is one of the field-less stream tags.
type StreamControl struct {
	Tag Type
}

func (m *StreamControl) Type() Type { return m.Tag }
func (m *StreamControl) Encode() string {
	return Encode(m.Tag)
}

// Parse decodes raw into a typed payload.
func Parse(raw string) (Payload, error) {
	msg, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return FromMessage(msg)
}

// FromMessage converts a decoded message into its typed payload.
func FromMessage(msg *Message) (Payload, error) {
	f := fieldReader{msg: msg}
	var p Payload

	switch msg.Type {
	case TypeIntro:
		m := &Intro{Username: f.str(0), Mode: SyncMode(f.str(1)), Addr: f.str(2)}
		if !m.Mode.Valid() {
			f.fail(fmt.Errorf("invalid mode %q", m.Mode))
		}
		p = m
	case TypeExit:
		p = &Exit{Username: f.str(0)}
	case TypeDisplayReq:
		p = &DisplayReq{Book: f.str(0), Page: f.num(1)}
	case TypeLine:
		p = &Line{Number: f.num(0), Text: f.str(1)}
	case TypeUploadPost:
		p = &UploadPost{
			Sender:  f.str(0),
			Book:    f.str(1),
			Page:    f.num(2),
			Line:    f.num(3),
			Content: f.str(4),
		}
	case TypeUploadPostResp:
		if f.str(0) == ResultSuccess {
			p = &UploadPostResp{OK: true, ID: f.id(1)}
		} else {
			p = &UploadPostResp{Reason: f.str(1)}
		}
	case TypeGetPostsIDReq:
		p = &GetPostsIDReq{Book: f.str(0), Page: f.num(1)}
	case TypeGetPostsIDResp:
		p = &GetPostsIDResp{IDs: f.ids(0)}
	case TypeSyncPostsReq:
		p = &SyncPostsReq{Known: f.ids(0)}
	case TypeGetPostsLocReq:
		p = &GetPostsLocReq{Book: f.str(0), Page: f.num(1), Known: f.ids(2)}
	case TypePost:
		p = &Post{Post: f.postAt()}
	case TypeNewSinglePost:
		p = &NewSinglePost{Post: f.postAt()}
	case TypeError:
		p = &Error{Reason: f.str(0)}
	case TypeStartChatReq:
		p = &StartChatReq{Target: f.str(0), Port: f.num(1)}
	case TypeRelayStartChatReq:
		p = &RelayStartChatReq{Inviter: f.str(0), Addr: f.str(1), Port: f.num(2)}
	case TypeRelayStartChatResp:
		if f.str(0) == ResultAccept {
			p = &RelayStartChatResp{Accept: true, Port: f.num(1), Inviter: f.str(2), InviterPort: f.num(3)}
		} else {
			p = &RelayStartChatResp{Inviter: f.str(1)}
		}
	case TypeStartChatResp:
		switch f.str(0) {
		case ResultAccept:
			p = &StartChatResp{Result: ResultAccept, Peer: f.str(1), Addr: f.str(2), Port: f.num(3), LocalPort: f.num(4)}
		case ResultReject:
			p = &StartChatResp{Result: ResultReject, Peer: f.str(1)}
		default:
			p = &StartChatResp{Result: ResultError, Reason: f.str(1)}
		}
	case TypeNewChatMessage:
		p = &NewChatMessage{Sender: f.str(0), Text: f.str(1)}
	default:
		if !Known(msg.Type) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
		}
		p = &StreamControl{Tag: msg.Type}
	}

	if f.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, msg.Type, f.err)
	}
	return p, nil
}

func postFields(p *post.Post) []string {
	return []string{
		p.ID.String(),
		p.Sender,
		p.Book,
		strconv.Itoa(p.Page),
		strconv.Itoa(p.Line),
		p.Content,
	}
}

// fieldReader converts message fields, keeping the first conversion error.
type fieldReader struct {
	msg *Message
	err error
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *fieldReader) str(i int) string {
	return r.msg.Field(i)
}

func (r *fieldReader) num(i int) int {
	v, err := strconv.Atoi(r.msg.Field(i))
	if err != nil {
		r.fail(fmt.Errorf("field %d: %w", i, err))
	}
	return v
}

func (r *fieldReader) id(i int) post.ID {
	v, err := post.ParseID(r.msg.Field(i))
	if err != nil {
		r.fail(fmt.Errorf("field %d: %w", i, err))
	}
	return v
}

func (r *fieldReader) ids(i int) []post.ID {
	v, err := post.ParseIDs(r.msg.Field(i))
	if err != nil {
		r.fail(fmt.Errorf("field %d: %w", i, err))
	}
	return v
}

// postAt reads the six post fields starting at field 0. Posts in transit are
// always Unread.
func (r *fieldReader) postAt() *post.Post {
	return &post.Post{
		ID:      r.id(0),
		Sender:  r.str(1),
		Book:    r.str(2),
		Page:    r.num(3),
		Line:    r.num(4),
		Content: r.str(5),
		Status:  post.Unread,
	}
}
