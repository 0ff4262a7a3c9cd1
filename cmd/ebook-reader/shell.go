package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/kabili207/ebook-go/core/post"
	"github.com/kabili207/ebook-go/device/reader"
)

const usage = `Commands:
  display <book> <page>         show a page and make it current
  post_to_forum <line> <text>   post to a line of the current page
  read_post <line>              show the posts on a line and mark them read
  chat_request <user>           invite another reader to chat
  chat <user> <text>            send a chat message to a peer
  peers                         list chat peers
  help                          show this help
  exit                          leave the server`

var errExit = errors.New("exit")

// invite is a pending chat invitation waiting for a y/n answer.
type invite struct {
	from  string
	reply chan bool
}

// shell runs the interactive reader commands. It writes to out under a lock
// because client events print from another goroutine.
type shell struct {
	client  *reader.Client
	invites chan invite

	mu  sync.Mutex
	out io.Writer
}

func newShell(out io.Writer) *shell {
	return &shell{out: out, invites: make(chan invite)}
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// events returns the client callbacks that report to the shell.
func (s *shell) events(ctx context.Context) reader.Events {
	return reader.Events{
		NewPost: func(p *post.Post, onPage bool) {
			if onPage {
				s.printf("New post on line %d from %s\n", p.Line, p.Sender)
			}
		},
		NewPosts: func(book string, page, count int) {
			s.printf("%d new post(s) in book '%s', page %d\n", count, book, page)
		},
		ChatInvite: func(from string) bool {
			inv := invite{from: from, reply: make(chan bool, 1)}
			select {
			case s.invites <- inv:
			case <-ctx.Done():
				return false
			}
			select {
			case ok := <-inv.reply:
				return ok
			case <-ctx.Done():
				return false
			}
		},
		ChatAccepted: func(p reader.Peer) {
			s.printf("Chatting with %s\n", p.Name)
		},
		ChatRejected: func(peer string) {
			s.printf("%s declined to chat\n", peer)
		},
		ChatFailed: func(reason string) {
			s.printf("Chat request failed: %s\n", reason)
		},
		ChatMessage: func(from, text string) {
			s.printf("[%s] %s\n", from, text)
		},
		Disconnected: func(err error) {
			s.printf("Disconnected from server: %v\n", err)
		},
	}
}

// run reads commands from lines until exit, end of input, or the client
// stops. An invitation takes the next line as its answer.
func (s *shell) run(ctx context.Context, lines <-chan string) error {
	var pending *invite
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.client.Done():
			return nil
		case inv := <-s.invites:
			if pending != nil {
				inv.reply <- false
				continue
			}
			pending = &inv
			s.printf("%s wants to chat. Accept? [y/n] ", inv.from)
		case line, ok := <-lines:
			if !ok {
				return s.client.Exit(ctx)
			}
			if pending != nil {
				answer := strings.ToLower(strings.TrimSpace(line))
				pending.reply <- answer == "y" || answer == "yes"
				pending = nil
				continue
			}
			err := s.exec(ctx, line)
			if errors.Is(err, errExit) {
				return nil
			}
			if err != nil {
				s.printf("Error: %v\n", err)
			}
		}
	}
}

// exec runs one command line.
func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	args := fields[1:]

	switch fields[0] {
	case "display":
		if len(args) != 2 {
			return errors.New("usage: display <book> <page>")
		}
		page, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad page number %q", args[1])
		}
		view, err := s.client.Display(ctx, args[0], page)
		if err != nil {
			return err
		}
		s.printf("%s", view)

	case "post_to_forum":
		if len(args) < 2 {
			return errors.New("usage: post_to_forum <line> <text>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad line number %q", args[0])
		}
		id, err := s.client.PostToForum(ctx, n, restOf(line, 2))
		if err != nil {
			return err
		}
		s.printf("Posted as %d\n", id)

	case "read_post":
		if len(args) != 1 {
			return errors.New("usage: read_post <line>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad line number %q", args[0])
		}
		posts, err := s.client.ReadPost(n)
		if err != nil {
			return err
		}
		s.printPosts(n, posts)

	case "chat_request":
		if len(args) != 1 {
			return errors.New("usage: chat_request <user>")
		}
		if err := s.client.ChatRequest(ctx, args[0]); err != nil {
			return err
		}
		s.printf("Asked %s to chat\n", args[0])

	case "chat":
		if len(args) < 2 {
			return errors.New("usage: chat <user> <text>")
		}
		return s.client.Chat(args[0], restOf(line, 2))

	case "peers":
		for _, p := range s.client.Peers().List() {
			s.printf("%s\t%s:%d\n", p.Name, p.Addr, p.Port)
		}

	case "help":
		s.printf("%s\n", usage)

	case "exit", "q":
		s.printf("Saying goodbye to server...\n")
		if err := s.client.Exit(ctx); err != nil {
			return err
		}
		return errExit

	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return nil
}

func (s *shell) printPosts(line int, posts []*post.Post) {
	s.printf("Posts on line %d:\n", line)
	if len(posts) == 0 {
		s.printf("\tNo posts to display.\n")
		return
	}
	for _, p := range posts {
		flag := ""
		if p.Status == post.Unread {
			flag = "[UNREAD]"
		}
		s.printf("%s\t%d %s: %s\n", flag, p.ID, p.Sender, p.Content)
	}
}

// restOf returns line after its first n fields, with inner spacing intact.
func restOf(line string, n int) string {
	rest := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		j := strings.IndexAny(rest, " \t")
		if j < 0 {
			return ""
		}
		rest = strings.TrimLeft(rest[j:], " \t")
	}
	return rest
}
