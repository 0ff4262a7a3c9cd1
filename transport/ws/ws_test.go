package ws

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kabili207/ebook-go/transport"
)

func TestAcceptorDial(t *testing.T) {
	acc := NewAcceptor(nil, Config{})
	srv := httptest.NewServer(acc)
	defer srv.Close()
	defer acc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dialer(Config{})(ctx, url)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	server, err := acc.Accept()
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	defer server.Close()

	if err := client.WriteMessage("#UploadPost#alice#shelley#2#9#a#b"); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	got, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if got != "#UploadPost#alice#shelley#2#9#a#b" {
		t.Errorf("ReadMessage() = %q", got)
	}

	if err := server.WriteMessage("#UploadPostResp#Success#1000"); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	got, err = client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if got != "#UploadPostResp#Success#1000" {
		t.Errorf("ReadMessage() = %q", got)
	}
}

func TestConn_WriteTooLarge(t *testing.T) {
	acc := NewAcceptor(nil, Config{})
	srv := httptest.NewServer(acc)
	defer srv.Close()
	defer acc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), Config{MaxMessageSize: 4})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	if err := client.WriteMessage("#Exit#alice"); !errors.Is(err, transport.ErrMessageTooLarge) {
		t.Errorf("WriteMessage() error = %v, want ErrMessageTooLarge", err)
	}
}

func TestAcceptor_Close(t *testing.T) {
	acc := NewAcceptor(nil, Config{})
	acc.Close()

	if _, err := acc.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Accept() error = %v, want net.ErrClosed", err)
	}
	if err := acc.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
