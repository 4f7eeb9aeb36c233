package simwire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// clientConn is the connection handle Dial returns. It holds no state
// beyond its target address; every call resolves the server afresh, which
// is what makes binding lazy.
type clientConn struct {
	network *Network
	addr    string
}

var _ grpc.ClientConnInterface = (*clientConn)(nil)

// Invoke performs a unary call. The handler runs synchronously in the
// caller's goroutine before Invoke returns.
func (c *clientConn) Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error {
	if err := ctx.Err(); err != nil {
		return toStatusError(err)
	}
	srv, err := c.resolve()
	if err != nil {
		return err
	}

	req, err := marshalMessage(args)
	if err != nil {
		return err
	}

	sts := &unaryTransportStream{method: method}
	resp, err := srv.invoke(ctx, method, req, sts)

	header, trailer := sts.snapshot()
	applyCallOptions(opts, header, trailer, &peer.Peer{Addr: Addr(srv.addr)})

	if err != nil {
		return err
	}
	return unmarshalMessage(resp, reply)
}

// NewStream starts a streaming call. The handler runs in its own
// goroutine; messages pass by rendezvous, so every send blocks until the
// other side receives.
func (c *clientConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, toStatusError(err)
	}
	srv, err := c.resolve()
	if err != nil {
		return nil, err
	}
	return srv.openStream(ctx, method)
}

// resolve looks the target up on the network. A missing server is
// codes.Unavailable, the same way a refused connection surfaces.
func (c *clientConn) resolve() (*Server, error) {
	srv := c.network.lookup(c.addr)
	if srv == nil {
		return nil, status.Errorf(codes.Unavailable, "no server listening on %q", c.addr)
	}
	return srv, nil
}

// applyCallOptions fills the response-bearing call options a finished
// unary call reports back through. Options the fabric has no use for,
// like grpc.StaticMethod, are ignored.
func applyCallOptions(opts []grpc.CallOption, header, trailer metadata.MD, p *peer.Peer) {
	for _, opt := range opts {
		switch o := opt.(type) {
		case grpc.HeaderCallOption:
			*o.HeaderAddr = header
		case grpc.TrailerCallOption:
			*o.TrailerAddr = trailer
		case grpc.PeerCallOption:
			*o.PeerAddr = *p
		}
	}
}

// marshalMessage converts a message to the bytes that cross the fabric.
func marshalMessage(m any) ([]byte, error) {
	pm, ok := m.(proto.Message)
	if !ok {
		return nil, status.Errorf(codes.Internal, "message is %T, want proto.Message", m)
	}
	b, err := proto.Marshal(pm)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "marshaling %T: %v", m, err)
	}
	return b, nil
}

// unmarshalMessage parses fabric bytes into a message, replacing its
// previous contents.
func unmarshalMessage(data []byte, m any) error {
	pm, ok := m.(proto.Message)
	if !ok {
		return status.Errorf(codes.Internal, "message is %T, want proto.Message", m)
	}
	if err := proto.Unmarshal(data, pm); err != nil {
		return status.Errorf(codes.Internal, "unmarshaling %T: %v", m, err)
	}
	return nil
}
