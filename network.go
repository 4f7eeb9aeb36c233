package simwire

import (
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
)

// ErrAddressInUse is returned by Network.Listen when another server
// already claimed the address.
var ErrAddressInUse = errors.New("address already in use")

// ErrNetworkClosed is returned by Listen and Dial after the network has
// been closed.
var ErrNetworkClosed = errors.New("network closed")

// Addr is the address of a simulated endpoint. It implements net.Addr so
// it can travel in peer information.
type Addr string

// Network returns the name of the fabric.
func (a Addr) Network() string { return "sim" }

func (a Addr) String() string { return string(a) }

// Network is an in-memory address space. Addresses are plain strings;
// Listen claims one and Dial binds to one lazily, so a client may be
// created before its server exists.
//
// All methods are safe for concurrent use.
type Network struct {
	mu      sync.Mutex
	servers map[string]*Server
	closed  bool
}

// NewNetwork returns an empty Network.
func NewNetwork() *Network {
	return &Network{servers: make(map[string]*Server)}
}

// Listen claims addr and returns a Server accepting calls there. It
// returns ErrAddressInUse if the address is taken and ErrNetworkClosed
// after Close.
func (n *Network) Listen(addr string, opts ...ServerOption) (*Server, error) {
	if addr == "" {
		return nil, errors.New("listen address must not be empty")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrNetworkClosed
	}
	if _, ok := n.servers[addr]; ok {
		return nil, fmt.Errorf("listen %q: %w", addr, ErrAddressInUse)
	}

	s := newServer(n, addr, opts)
	n.servers[addr] = s
	return s, nil
}

// Dial returns a connection to addr. Binding is lazy: dialing an address
// nobody listens on succeeds, and calls on the connection fail with
// codes.Unavailable until a server claims it.
func (n *Network) Dial(addr string) (grpc.ClientConnInterface, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrNetworkClosed
	}
	return &clientConn{network: n, addr: addr}, nil
}

// Close stops every server and refuses further Listen and Dial calls.
// Calls in flight on existing connections fail with codes.Unavailable.
func (n *Network) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, s := range n.servers {
		s.markStopped()
	}
	n.servers = make(map[string]*Server)
}

// lookup resolves addr to its current server, or nil.
func (n *Network) lookup(addr string) *Server {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.servers[addr]
}

// release frees addr if s still owns it.
func (n *Network) release(addr string, s *Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.servers[addr] == s {
		delete(n.servers, addr)
	}
}
