package reader

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

// ErrPeerNotFound is returned when no chat has been set up with a reader.
var ErrPeerNotFound = errors.New("no chat with that reader")

// Peer is a reader this client can exchange chat datagrams with.
type Peer struct {
	Name string
	Addr string
	Port int
}

// Peers is a thread-safe set of chat peers keyed by reader name.
type Peers struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

// NewPeers creates an empty peer set.
func NewPeers() *Peers {
	return &Peers{peers: make(map[string]Peer)}
}

// Add records or replaces a peer.
func (p *Peers) Add(peer Peer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[peer.Name] = peer
}

// Get returns the peer with the given name.
func (p *Peers) Get(name string) (Peer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	peer, ok := p.peers[name]
	if !ok {
		return Peer{}, ErrPeerNotFound
	}
	return peer, nil
}

// Has reports whether a chat with name exists.
func (p *Peers) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.peers[name]
	return ok
}

// Remove forgets a peer.
func (p *Peers) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.peers, name)
}

// List returns every peer ordered by name.
func (p *Peers) List() []Peer {
	p.mu.RLock()
	list := make([]Peer, 0, len(p.peers))
	for _, peer := range p.peers {
		list = append(list, peer)
	}
	p.mu.RUnlock()

	slices.SortFunc(list, func(a, b Peer) int { return strings.Compare(a.Name, b.Name) })
	return list
}
