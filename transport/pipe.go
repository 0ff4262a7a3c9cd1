package transport

import (
	"io"
	"net"
	"sync"
)

const pipeBuffer = 16

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

type pipeConn struct {
	in     <-chan string
	out    chan<- string
	done   chan struct{}
	once   *sync.Once
	remote pipeAddr
}

// Pipe returns two in-memory Conns connected to each other. Closing either
// end closes both.
func Pipe() (Conn, Conn) {
	ab := make(chan string, pipeBuffer)
	ba := make(chan string, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &pipeConn{in: ba, out: ab, done: done, once: once, remote: "pipe-b"}
	b := &pipeConn{in: ab, out: ba, done: done, once: once, remote: "pipe-a"}
	return a, b
}

func (c *pipeConn) ReadMessage() (string, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.done:
		return "", io.EOF
	}
}

func (c *pipeConn) WriteMessage(msg string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *pipeConn) RemoteAddr() net.Addr {
	return c.remote
}
