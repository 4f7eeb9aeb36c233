package simwire

import (
	"context"
	"io"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simwire/simwire/testutil"
)

// The fixtures below are a hand-written copy of what the generator emits
// for a small service: a server interface, a service descriptor with
// handler thunks, and full method names. Tests drive the fabric through
// exactly the shapes generated code uses.

const (
	sayHelloMethod = "/fabric.Greeter/SayHello"
	chatMethod     = "/fabric.Greeter/Chat"
)

type testGreeterService interface {
	SayHello(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Chat(grpc.ServerStream) error
}

// greeter implements testGreeterService with overridable behavior per test.
type greeter struct {
	sayHello func(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	chat     func(grpc.ServerStream) error
}

func (g *greeter) SayHello(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if g.sayHello == nil {
		return wrapperspb.String("hello " + in.GetValue()), nil
	}
	return g.sayHello(ctx, in)
}

func (g *greeter) Chat(stream grpc.ServerStream) error {
	if g.chat == nil {
		return echoChat(stream)
	}
	return g.chat(stream)
}

// echoChat receives messages until the client closes its side and echoes
// each one back.
func echoChat(stream grpc.ServerStream) error {
	for {
		in := new(wrapperspb.StringValue)
		if err := stream.RecvMsg(in); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := stream.SendMsg(wrapperspb.String("echo " + in.GetValue())); err != nil {
			return err
		}
	}
}

func sayHelloHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(testGreeterService).SayHello(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sayHelloMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(testGreeterService).SayHello(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func chatHandler(srv any, stream grpc.ServerStream) error {
	return srv.(testGreeterService).Chat(stream)
}

var greeterDesc = grpc.ServiceDesc{
	ServiceName: "fabric.Greeter",
	HandlerType: (*testGreeterService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SayHello", Handler: sayHelloHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Chat", Handler: chatHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "fabric/greeter.proto",
}

// startGreeter brings up a network with impl listening on "greeter".
func startGreeter(t *testing.T, impl *greeter, opts ...ServerOption) (*Network, *Server) {
	t.Helper()
	network := NewNetwork()
	t.Cleanup(network.Close)

	server, err := network.Listen("greeter", opts...)
	testutil.MustSucceed(t, err)
	server.RegisterService(&greeterDesc, impl)
	return network, server
}

// greeterConn starts a greeter and dials it.
func greeterConn(t *testing.T, impl *greeter, opts ...ServerOption) grpc.ClientConnInterface {
	t.Helper()
	network, _ := startGreeter(t, impl, opts...)
	cc, err := network.Dial("greeter")
	testutil.MustSucceed(t, err)
	return cc
}

// callSayHello performs one unary call and returns the reply.
func callSayHello(t *testing.T, cc grpc.ClientConnInterface, name string, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	t.Helper()
	reply := new(wrapperspb.StringValue)
	err := cc.Invoke(context.Background(), sayHelloMethod, wrapperspb.String(name), reply, opts...)
	return reply, err
}

// openChat opens the bidi stream against cc.
func openChat(t *testing.T, ctx context.Context, cc grpc.ClientConnInterface) grpc.ClientStream {
	t.Helper()
	stream, err := cc.NewStream(ctx, &greeterDesc.Streams[0], chatMethod)
	testutil.MustSucceed(t, err)
	return stream
}

func sendString(t *testing.T, stream grpc.ClientStream, value string) {
	t.Helper()
	testutil.MustSucceed(t, stream.SendMsg(wrapperspb.String(value)))
}

func recvString(t *testing.T, stream grpc.ClientStream) string {
	t.Helper()
	reply := new(wrapperspb.StringValue)
	testutil.MustSucceed(t, stream.RecvMsg(reply))
	return reply.GetValue()
}
