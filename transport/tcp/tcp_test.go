package tcp

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/kabili207/ebook-go/transport"
)

func TestConn_FramesOverPipe(t *testing.T) {
	a, b := net.Pipe()
	ca := NewConn(a, Config{})
	cb := NewConn(b, Config{})
	defer ca.Close()
	defer cb.Close()

	msgs := []string{"#Intro#alice#push#10.0.0.1", "#UploadPost#alice#shelley#2#9#a#b#c", ""}
	go func() {
		for _, m := range msgs {
			if err := ca.WriteMessage(m); err != nil {
				t.Errorf("WriteMessage() error = %v", err)
				return
			}
		}
	}()

	for _, want := range msgs {
		got, err := cb.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if got != want {
			t.Errorf("ReadMessage() = %q, want %q", got, want)
		}
	}
}

func TestConn_MessageTooLarge(t *testing.T) {
	a, b := net.Pipe()
	ca := NewConn(a, Config{MaxMessageSize: 8})
	defer ca.Close()
	defer b.Close()

	err := ca.WriteMessage(strings.Repeat("x", 9))
	if !errors.Is(err, transport.ErrMessageTooLarge) {
		t.Errorf("WriteMessage() error = %v, want ErrMessageTooLarge", err)
	}
}

func TestConn_ReadTooLarge(t *testing.T) {
	a, b := net.Pipe()
	ca := NewConn(a, Config{})
	cb := NewConn(b, Config{MaxMessageSize: 4})
	defer ca.Close()
	defer cb.Close()

	go ca.WriteMessage("#Exit#alice")

	_, err := cb.ReadMessage()
	if !errors.Is(err, transport.ErrMessageTooLarge) {
		t.Errorf("ReadMessage() error = %v, want ErrMessageTooLarge", err)
	}
}

func TestListenDial(t *testing.T) {
	l, err := Listen("127.0.0.1:0", Config{})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer l.Close()

	accepted := make(chan transport.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			t.Errorf("Accept() error = %v", err)
			close(accepted)
			return
		}
		accepted <- c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dialer(Config{WriteTimeout: time.Second})(ctx, l.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	server, ok := <-accepted
	if !ok {
		t.Fatal("no connection accepted")
	}
	defer server.Close()

	if err := client.WriteMessage("#Exit#alice"); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	got, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if got != "#Exit#alice" {
		t.Errorf("ReadMessage() = %q, want %q", got, "#Exit#alice")
	}
}
