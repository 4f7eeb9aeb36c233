package simwire

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// ServerOption configures a Server at Listen time.
type ServerOption func(*Server)

// WithUnaryInterceptor adds unary server interceptors. The first
// interceptor added is the outermost one.
func WithUnaryInterceptor(ints ...grpc.UnaryServerInterceptor) ServerOption {
	return func(s *Server) {
		s.unaryInts = append(s.unaryInts, ints...)
	}
}

// WithStreamInterceptor adds stream server interceptors. The first
// interceptor added is the outermost one.
func WithStreamInterceptor(ints ...grpc.StreamServerInterceptor) ServerOption {
	return func(s *Server) {
		s.streamInts = append(s.streamInts, ints...)
	}
}

// Server accepts calls on one network address. It implements
// grpc.ServiceRegistrar, so generated Register functions work on it
// unchanged, and it dispatches through the registered grpc.ServiceDesc
// tables the same way a real server does.
type Server struct {
	network *Network
	addr    string

	unaryInt  grpc.UnaryServerInterceptor
	streamInt grpc.StreamServerInterceptor

	// set before the server is visible on the network, then read-only
	unaryInts  []grpc.UnaryServerInterceptor
	streamInts []grpc.StreamServerInterceptor

	mu       sync.RWMutex
	services map[string]*serviceInfo
	stopped  bool
}

type serviceInfo struct {
	impl    any
	methods map[string]*grpc.MethodDesc
	streams map[string]*grpc.StreamDesc
}

func newServer(n *Network, addr string, opts []ServerOption) *Server {
	s := &Server{
		network:  n,
		addr:     addr,
		services: make(map[string]*serviceInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unaryInt = chainUnaryInterceptors(s.unaryInts)
	s.streamInt = chainStreamInterceptors(s.streamInts)
	return s
}

// Addr returns the network address the server listens on.
func (s *Server) Addr() string { return s.addr }

// RegisterService registers a service and its implementation, satisfying
// grpc.ServiceRegistrar. Like a real gRPC server it panics on a duplicate
// registration or an implementation that does not satisfy the service's
// handler type, since both are wiring mistakes.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl any) {
	if desc.HandlerType != nil && impl != nil {
		ht := reflect.TypeOf(desc.HandlerType).Elem()
		it := reflect.TypeOf(impl)
		if !it.Implements(ht) {
			panic(fmt.Sprintf("simwire: RegisterService %s: handler of type %v does not implement %v", desc.ServiceName, it, ht))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[desc.ServiceName]; ok {
		panic(fmt.Sprintf("simwire: RegisterService duplicate registration for %q", desc.ServiceName))
	}

	info := &serviceInfo{
		impl:    impl,
		methods: make(map[string]*grpc.MethodDesc, len(desc.Methods)),
		streams: make(map[string]*grpc.StreamDesc, len(desc.Streams)),
	}
	for i := range desc.Methods {
		info.methods[desc.Methods[i].MethodName] = &desc.Methods[i]
	}
	for i := range desc.Streams {
		info.streams[desc.Streams[i].StreamName] = &desc.Streams[i]
	}
	s.services[desc.ServiceName] = info
}

// Stop removes the server from the network, freeing its address. Calls
// already dispatched run to completion; new calls fail with
// codes.Unavailable.
func (s *Server) Stop() {
	s.markStopped()
	s.network.release(s.addr, s)
}

func (s *Server) markStopped() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// lookup resolves a full method name like "/helloworld.v1.Greeter/SayHello"
// to the registered service. The error is always a status error.
func (s *Server) lookup(fullMethod string) (info *serviceInfo, service, method string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return nil, "", "", status.Errorf(codes.Unavailable, "server on %q is stopped", s.addr)
	}

	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return nil, "", "", status.Errorf(codes.Unimplemented, "malformed method name %q", fullMethod)
	}
	info, ok = s.services[service]
	if !ok {
		return nil, "", "", status.Errorf(codes.Unimplemented, "unknown service %s", service)
	}
	return info, service, method, nil
}

// invoke runs one unary call. The request and response cross as marshaled
// bytes, and the handler observes only what a connection would carry:
// incoming metadata, peer information, deadline, and cancellation.
func (s *Server) invoke(ctx context.Context, fullMethod string, req []byte, sts *unaryTransportStream) (resp []byte, err error) {
	info, service, method, err := s.lookup(fullMethod)
	if err != nil {
		return nil, err
	}
	md, ok := info.methods[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown method %s for service %s", method, service)
	}

	hctx := s.handlerContext(ctx)
	hctx = grpc.NewContextWithServerTransportStream(hctx, sts)

	dec := func(v any) error {
		return unmarshalMessage(req, v)
	}

	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, status.Errorf(codes.Internal, "handler panic: %v", r)
		}
	}()
	out, err := md.Handler(info.impl, hctx, dec, s.unaryInt)
	if err != nil {
		return nil, toStatusError(err)
	}
	return marshalMessage(out)
}

// handlerContext builds the context a handler runs under. Values from the
// caller's context are stripped at the boundary; only metadata, peer
// information, deadline, and cancellation cross, as on a real connection.
func (s *Server) handlerContext(ctx context.Context) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	hctx := context.Context(valueBoundary{ctx})
	hctx = metadata.NewIncomingContext(hctx, md.Copy())
	return peer.NewContext(hctx, &peer.Peer{Addr: Addr(s.addr)})
}

// valueBoundary keeps a parent context's deadline and cancellation while
// hiding its values.
type valueBoundary struct{ context.Context }

func (valueBoundary) Value(any) any { return nil }

// unaryTransportStream collects the header and trailer metadata a unary
// handler sets through grpc.SetHeader and grpc.SetTrailer.
type unaryTransportStream struct {
	method string

	mu         sync.Mutex
	header     metadata.MD
	headerSent bool
	trailer    metadata.MD
}

func (t *unaryTransportStream) Method() string { return t.method }

func (t *unaryTransportStream) SetHeader(md metadata.MD) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.headerSent {
		return status.Error(codes.Internal, "SetHeader called after headers were sent")
	}
	t.header = metadata.Join(t.header, md)
	return nil
}

func (t *unaryTransportStream) SendHeader(md metadata.MD) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.headerSent {
		return status.Error(codes.Internal, "SendHeader called after headers were sent")
	}
	t.header = metadata.Join(t.header, md)
	t.headerSent = true
	return nil
}

func (t *unaryTransportStream) SetTrailer(md metadata.MD) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trailer = metadata.Join(t.trailer, md)
	return nil
}

func (t *unaryTransportStream) snapshot() (header, trailer metadata.MD) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header.Copy(), t.trailer.Copy()
}

// toStatusError normalizes an error to a status error the way a server
// does on the wire: status errors pass through, context errors map to
// their codes, anything else becomes codes.Unknown.
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Unknown, err.Error())
}
