// Package udp carries best-effort chat datagrams between readers.
package udp

import (
	"fmt"
	"net"
	"strconv"
)

// MaxDatagramSize is the largest datagram read.
const MaxDatagramSize = 64 * 1024

// Conn is a bound UDP socket.
type Conn struct {
	pc *net.UDPConn
}

// Listen binds addr. A port of 0 picks a free port.
func Listen(addr string) (*Conn, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	pc, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Conn{pc: pc}, nil
}

// Port returns the bound port.
func (c *Conn) Port() int {
	return c.pc.LocalAddr().(*net.UDPAddr).Port
}

// SendTo writes one datagram to host:port.
func (c *Conn) SendTo(host string, port int, msg string) error {
	ua, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	if _, err := c.pc.WriteToUDP([]byte(msg), ua); err != nil {
		return fmt.Errorf("send to %s: %w", ua, err)
	}
	return nil
}

// Receive blocks until a datagram arrives.
func (c *Conn) Receive() (string, net.Addr, error) {
	buf := make([]byte, MaxDatagramSize)
	n, from, err := c.pc.ReadFromUDP(buf)
	if err != nil {
		return "", nil, err
	}
	return string(buf[:n]), from, nil
}

// Close closes the socket and unblocks Receive.
func (c *Conn) Close() error {
	return c.pc.Close()
}
