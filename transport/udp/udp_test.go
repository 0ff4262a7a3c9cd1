package udp

import (
	"testing"
)

func TestSendReceive(t *testing.T) {
	a, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer a.Close()
	b, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer b.Close()

	if a.Port() == 0 || a.Port() == b.Port() {
		t.Fatalf("unexpected ports %d and %d", a.Port(), b.Port())
	}

	if err := a.SendTo("127.0.0.1", b.Port(), "#NewChatMessage#alice#hi # there"); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	msg, from, err := b.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if msg != "#NewChatMessage#alice#hi # there" {
		t.Errorf("Receive() = %q", msg)
	}
	if from == nil {
		t.Error("Receive() returned nil sender")
	}
}

func TestReceive_AfterClose(t *testing.T) {
	c, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	c.Close()
	if _, _, err := c.Receive(); err == nil {
		t.Error("expected error after Close")
	}
}
