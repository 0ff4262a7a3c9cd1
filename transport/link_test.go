package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestLink_SendRecv(t *testing.T) {
	a, b := Pipe()
	la := NewLink(a, LinkConfig{})
	lb := NewLink(b, LinkConfig{})
	defer la.Close()
	defer lb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, msg := range []string{"#Exit#alice", "#Line#1#a#b", ""} {
		if err := la.Send(ctx, msg); err != nil {
			t.Fatalf("Send(%q) error = %v", msg, err)
		}
		got, err := lb.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if got != msg {
			t.Errorf("Recv() = %q, want %q", got, msg)
		}
	}
}

func TestLink_PreservesOrder(t *testing.T) {
	a, b := Pipe()
	la := NewLink(a, LinkConfig{})
	lb := NewLink(b, LinkConfig{InboxSize: 4})
	defer la.Close()
	defer lb.Close()

	ctx := context.Background()
	go func() {
		for i := 0; i < 100; i++ {
			la.Send(ctx, string(rune('a'+i%26)))
		}
	}()
	for i := 0; i < 100; i++ {
		got, err := lb.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if want := string(rune('a' + i%26)); got != want {
			t.Fatalf("message %d = %q, want %q", i, got, want)
		}
	}
}

func TestLink_RecvContextCancel(t *testing.T) {
	a, b := Pipe()
	la := NewLink(a, LinkConfig{})
	defer la.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := la.Recv(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recv() error = %v, want DeadlineExceeded", err)
	}
}

func TestLink_RemoteClose(t *testing.T) {
	a, b := Pipe()
	la := NewLink(a, LinkConfig{})
	defer la.Close()

	b.Close()

	select {
	case _, ok := <-la.Messages():
		if ok {
			t.Fatal("expected closed inbox")
		}
	case <-time.After(time.Second):
		t.Fatal("inbox not closed after remote close")
	}
	if !errors.Is(la.Err(), io.EOF) {
		t.Errorf("Err() = %v, want io.EOF", la.Err())
	}
	if _, err := la.Recv(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Recv() error = %v, want io.EOF", err)
	}
}

func TestLink_LocalClose(t *testing.T) {
	a, b := Pipe()
	defer b.Close()
	la := NewLink(a, LinkConfig{})

	if err := la.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := la.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := la.Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Recv() error = %v, want ErrClosed", err)
	}
	if err := la.Send(context.Background(), "#Exit#alice"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", err)
	}
}

func TestLink_ConcurrentSend(t *testing.T) {
	a, b := Pipe()
	la := NewLink(a, LinkConfig{})
	lb := NewLink(b, LinkConfig{})
	defer la.Close()
	defer lb.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := la.Send(ctx, "#Exit#alice"); err != nil {
					t.Errorf("Send() error = %v", err)
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		if got, err := lb.Recv(ctx); err != nil || got != "#Exit#alice" {
			t.Fatalf("Recv() = %q, %v", got, err)
		}
	}
	wg.Wait()
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		e    Event
		want string
	}{
		{EventConnected, "connected"},
		{EventDisconnected, "disconnected"},
		{EventReconnecting, "reconnecting"},
		{EventError, "error"},
		{Event(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("Event(%d).String() = %q, want %q", tt.e, got, tt.want)
		}
	}
}
