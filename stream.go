package simwire

import (
	"context"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// streamCall is the state shared by the two ends of one streaming RPC.
// Messages travel over unbuffered channels, so a send is a rendezvous:
// it completes only when the other side receives, and no message is ever
// in flight unobserved.
type streamCall struct {
	reqs       chan []byte
	resps      chan []byte
	done       chan struct{}
	sendClosed chan struct{}
	headerCh   chan struct{}
	cancel     context.CancelFunc
	serverCtx  context.Context

	mu         sync.Mutex
	header     metadata.MD
	headerSent bool
	trailer    metadata.MD
	status     error
}

// openStream starts a streaming call against this server. The handler
// goroutine is running by the time openStream returns.
func (s *Server) openStream(ctx context.Context, fullMethod string) (grpc.ClientStream, error) {
	info, service, method, err := s.lookup(fullMethod)
	if err != nil {
		return nil, err
	}
	sd, ok := info.streams[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown stream %s for service %s", method, service)
	}

	base, cancel := context.WithCancel(s.handlerContext(ctx))
	call := &streamCall{
		reqs:       make(chan []byte),
		resps:      make(chan []byte),
		done:       make(chan struct{}),
		sendClosed: make(chan struct{}),
		headerCh:   make(chan struct{}),
		cancel:     cancel,
	}
	ss := &serverStream{call: call}
	call.serverCtx = grpc.NewContextWithServerTransportStream(base, &streamTransport{stream: ss, method: fullMethod})

	go s.serveStream(call, ss, sd, info.impl, fullMethod)

	return &clientStream{call: call, ctx: ctx}, nil
}

func (s *Server) serveStream(call *streamCall, ss *serverStream, sd *grpc.StreamDesc, impl any, fullMethod string) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = status.Errorf(codes.Internal, "handler panic: %v", r)
		}
		call.finish(toStatusError(err))
	}()

	if s.streamInt != nil {
		info := &grpc.StreamServerInfo{
			FullMethod:     fullMethod,
			IsClientStream: sd.ClientStreams,
			IsServerStream: sd.ServerStreams,
		}
		err = s.streamInt(impl, ss, info, sd.Handler)
	} else {
		err = sd.Handler(impl, ss)
	}
}

// finish records the final status and releases everyone blocked on the
// call. It runs exactly once, when the handler returns.
func (c *streamCall) finish(st error) {
	c.mu.Lock()
	c.status = st
	if !c.headerSent {
		c.headerSent = true
		close(c.headerCh)
	}
	c.mu.Unlock()
	close(c.done)
	c.cancel()
}

func (c *streamCall) finalStatus() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *streamCall) headerSnapshot() metadata.MD {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header.Copy()
}

func (c *streamCall) trailerSnapshot() metadata.MD {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trailer.Copy()
}

// clientStream is the client end of a streaming call.
type clientStream struct {
	call      *streamCall
	ctx       context.Context
	closeOnce sync.Once
}

var _ grpc.ClientStream = (*clientStream)(nil)

// Header blocks until the server sends headers or the call ends. If the
// call failed before any header was sent it returns the final status.
func (cs *clientStream) Header() (metadata.MD, error) {
	select {
	case <-cs.call.headerCh:
	case <-cs.ctx.Done():
		cs.call.cancel()
		return nil, toStatusError(cs.ctx.Err())
	}

	header := cs.call.headerSnapshot()
	if len(header) == 0 {
		if st := cs.call.finalStatus(); st != nil {
			return nil, st
		}
	}
	return header, nil
}

// Trailer returns the trailing metadata. Like its real counterpart it is
// only meaningful after RecvMsg has returned an error or io.EOF.
func (cs *clientStream) Trailer() metadata.MD {
	select {
	case <-cs.call.done:
		return cs.call.trailerSnapshot()
	default:
		return nil
	}
}

// CloseSend signals that no further messages will be sent.
func (cs *clientStream) CloseSend() error {
	cs.closeOnce.Do(func() { close(cs.call.sendClosed) })
	return nil
}

func (cs *clientStream) Context() context.Context { return cs.ctx }

// SendMsg delivers one message to the handler. If the handler has already
// returned it reports io.EOF; the final status is observed via RecvMsg.
func (cs *clientStream) SendMsg(m any) error {
	select {
	case <-cs.call.sendClosed:
		return status.Error(codes.Internal, "SendMsg called after CloseSend")
	default:
	}

	data, err := marshalMessage(m)
	if err != nil {
		return err
	}
	select {
	case cs.call.reqs <- data:
		return nil
	case <-cs.call.done:
		return io.EOF
	case <-cs.ctx.Done():
		cs.call.cancel()
		return toStatusError(cs.ctx.Err())
	}
}

// RecvMsg receives the next message. When the handler returns it reports
// the final status, or io.EOF if the stream completed cleanly. Rendezvous
// delivery means no message can be outstanding once the handler returned.
func (cs *clientStream) RecvMsg(m any) error {
	select {
	case <-cs.call.done:
		return cs.finishedRecv()
	default:
	}

	select {
	case data := <-cs.call.resps:
		return unmarshalMessage(data, m)
	case <-cs.call.done:
		return cs.finishedRecv()
	case <-cs.ctx.Done():
		cs.call.cancel()
		return toStatusError(cs.ctx.Err())
	}
}

func (cs *clientStream) finishedRecv() error {
	if st := cs.call.finalStatus(); st != nil {
		return st
	}
	return io.EOF
}

// serverStream is the handler's end of a streaming call.
type serverStream struct {
	call *streamCall
}

var _ grpc.ServerStream = (*serverStream)(nil)

func (ss *serverStream) Context() context.Context { return ss.call.serverCtx }

// SetHeader merges md into the headers. It fails once headers have been
// sent, explicitly or by the first SendMsg.
func (ss *serverStream) SetHeader(md metadata.MD) error {
	c := ss.call
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headerSent {
		return status.Error(codes.Internal, "SetHeader called after headers were sent")
	}
	c.header = metadata.Join(c.header, md)
	return nil
}

// SendHeader merges md and sends the headers, unblocking a client waiting
// in Header.
func (ss *serverStream) SendHeader(md metadata.MD) error {
	c := ss.call
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headerSent {
		return status.Error(codes.Internal, "SendHeader called after headers were sent")
	}
	c.header = metadata.Join(c.header, md)
	c.headerSent = true
	close(c.headerCh)
	return nil
}

// SetTrailer merges md into the trailing metadata the client sees after
// the call ends.
func (ss *serverStream) SetTrailer(md metadata.MD) {
	c := ss.call
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trailer = metadata.Join(c.trailer, md)
}

// SendMsg delivers one message to the client, sending headers first if
// they have not gone out yet. It blocks until the client receives or the
// call's context ends.
func (ss *serverStream) SendMsg(m any) error {
	c := ss.call
	c.mu.Lock()
	if !c.headerSent {
		c.headerSent = true
		close(c.headerCh)
	}
	c.mu.Unlock()

	data, err := marshalMessage(m)
	if err != nil {
		return err
	}
	select {
	case c.resps <- data:
		return nil
	case <-c.serverCtx.Done():
		return toStatusError(c.serverCtx.Err())
	}
}

// RecvMsg receives the next client message, or io.EOF after CloseSend.
func (ss *serverStream) RecvMsg(m any) error {
	c := ss.call
	select {
	case data := <-c.reqs:
		return unmarshalMessage(data, m)
	case <-c.sendClosed:
		return io.EOF
	case <-c.serverCtx.Done():
		return toStatusError(c.serverCtx.Err())
	}
}

// streamTransport exposes the stream through the transport-stream hook in
// the handler context, so grpc.SetHeader and friends work there too.
type streamTransport struct {
	stream *serverStream
	method string
}

func (t *streamTransport) Method() string { return t.method }

func (t *streamTransport) SetHeader(md metadata.MD) error { return t.stream.SetHeader(md) }

func (t *streamTransport) SendHeader(md metadata.MD) error { return t.stream.SendHeader(md) }

func (t *streamTransport) SetTrailer(md metadata.MD) error {
	t.stream.SetTrailer(md)
	return nil
}
