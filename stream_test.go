package simwire

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/simwire/simwire/testutil"
)

func TestStreamBidiEcho(t *testing.T) {
	cc := greeterConn(t, &greeter{})
	stream := openChat(t, context.Background(), cc)

	for i := 0; i < 3; i++ {
		msg := fmt.Sprintf("msg-%d", i)
		sendString(t, stream, msg)
		if got := recvString(t, stream); got != "echo "+msg {
			t.Errorf("expected 'echo %s', got %q", msg, got)
		}
	}

	testutil.MustSucceed(t, stream.CloseSend())
	if err := stream.RecvMsg(new(wrapperspb.StringValue)); err != io.EOF {
		t.Fatalf("expected io.EOF after a clean finish, got %v", err)
	}
}

func TestStreamInterleavingIsDeterministic(t *testing.T) {
	// Message handoff is a rendezvous, so every event below is ordered
	// against its neighbors: the client records before sending, the server
	// after receiving, the server before sending, the client after
	// receiving. The trace must come out identical on every run.
	run := func() []string {
		var (
			mu    sync.Mutex
			trace []string
		)
		record := func(event string) {
			mu.Lock()
			trace = append(trace, event)
			mu.Unlock()
		}

		cc := greeterConn(t, &greeter{
			chat: func(stream grpc.ServerStream) error {
				for {
					in := new(wrapperspb.StringValue)
					if err := stream.RecvMsg(in); err != nil {
						if err == io.EOF {
							return nil
						}
						return err
					}
					record("server recv " + in.GetValue())
					record("server send " + in.GetValue())
					if err := stream.SendMsg(wrapperspb.String(in.GetValue())); err != nil {
						return err
					}
				}
			},
		})

		stream := openChat(t, context.Background(), cc)
		for i := 0; i < 2; i++ {
			msg := fmt.Sprintf("m%d", i)
			record("client send " + msg)
			sendString(t, stream, msg)
			recvString(t, stream)
			record("client recv " + msg)
		}
		testutil.MustSucceed(t, stream.CloseSend())
		if err := stream.RecvMsg(new(wrapperspb.StringValue)); err != io.EOF {
			t.Fatalf("expected io.EOF, got %v", err)
		}
		return trace
	}

	want := []string{
		"client send m0",
		"server recv m0",
		"server send m0",
		"client recv m0",
		"client send m1",
		"server recv m1",
		"server send m1",
		"client recv m1",
	}
	for i := 0; i < 3; i++ {
		if diff := cmp.Diff(want, run()); diff != "" {
			t.Fatalf("run %d trace mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestStreamServerSide(t *testing.T) {
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			in := new(wrapperspb.StringValue)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			for i := 0; i < 3; i++ {
				out := wrapperspb.String(fmt.Sprintf("%s-%d", in.GetValue(), i))
				if err := stream.SendMsg(out); err != nil {
					return err
				}
			}
			stream.SetTrailer(metadata.Pairs("count", "3"))
			return nil
		},
	})

	stream := openChat(t, context.Background(), cc)
	sendString(t, stream, "tick")

	for i := 0; i < 3; i++ {
		want := fmt.Sprintf("tick-%d", i)
		if got := recvString(t, stream); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	if err := stream.RecvMsg(new(wrapperspb.StringValue)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	// Repeated receives keep reporting the same terminal state.
	if err := stream.RecvMsg(new(wrapperspb.StringValue)); err != io.EOF {
		t.Fatalf("expected io.EOF again, got %v", err)
	}
	testutil.AssertMetadata(t, stream.Trailer(), "count", "3")
}

func TestStreamClientSide(t *testing.T) {
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			total := ""
			for {
				in := new(wrapperspb.StringValue)
				if err := stream.RecvMsg(in); err != nil {
					if err == io.EOF {
						return stream.SendMsg(wrapperspb.String(total))
					}
					return err
				}
				total += in.GetValue()
			}
		},
	})

	stream := openChat(t, context.Background(), cc)
	sendString(t, stream, "a")
	sendString(t, stream, "b")
	sendString(t, stream, "c")
	testutil.MustSucceed(t, stream.CloseSend())

	if got := recvString(t, stream); got != "abc" {
		t.Errorf("expected combined 'abc', got %q", got)
	}
	if err := stream.RecvMsg(new(wrapperspb.StringValue)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestStreamHeader(t *testing.T) {
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			if err := stream.SetHeader(metadata.Pairs("h-one", "1")); err != nil {
				return err
			}
			if err := stream.SendHeader(metadata.Pairs("h-two", "2")); err != nil {
				return err
			}
			return nil
		},
	})

	stream := openChat(t, context.Background(), cc)
	header, err := stream.Header()
	testutil.MustSucceed(t, err)

	testutil.AssertMetadata(t, header, "h-one", "1")
	testutil.AssertMetadata(t, header, "h-two", "2")
}

func TestStreamImplicitHeader(t *testing.T) {
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			return stream.SendMsg(wrapperspb.String("first"))
		},
	})

	stream := openChat(t, context.Background(), cc)
	if got := recvString(t, stream); got != "first" {
		t.Fatalf("expected 'first', got %q", got)
	}

	// The first message flushed empty headers, so Header does not block.
	header, err := stream.Header()
	testutil.MustSucceed(t, err)
	if len(header) != 0 {
		t.Errorf("expected empty header, got %v", header)
	}
}

func TestStreamHeaderAfterFailure(t *testing.T) {
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			return status.Error(codes.NotFound, "nothing here")
		},
	})

	stream := openChat(t, context.Background(), cc)
	_, err := stream.Header()
	testutil.AssertCode(t, err, codes.NotFound)
}

func TestStreamSendHeaderTwiceFails(t *testing.T) {
	headerErrs := make(chan error, 2)
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			headerErrs <- stream.SendHeader(metadata.Pairs("h", "1"))
			headerErrs <- stream.SendHeader(metadata.Pairs("h", "2"))
			return nil
		},
	})

	stream := openChat(t, context.Background(), cc)
	if err := stream.RecvMsg(new(wrapperspb.StringValue)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	testutil.MustSucceed(t, <-headerErrs)
	err := <-headerErrs
	testutil.AssertCode(t, err, codes.Internal)
	testutil.AssertErrorContains(t, err, "SendHeader called after headers were sent")
}

func TestStreamTrailerBeforeEnd(t *testing.T) {
	cc := greeterConn(t, &greeter{})
	stream := openChat(t, context.Background(), cc)

	if md := stream.Trailer(); md != nil {
		t.Errorf("expected nil trailer before the stream ends, got %v", md)
	}

	testutil.MustSucceed(t, stream.CloseSend())
	if err := stream.RecvMsg(new(wrapperspb.StringValue)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if md := stream.Trailer(); md == nil || len(md) != 0 {
		t.Errorf("expected empty trailer after a clean finish, got %v", md)
	}
}

func TestStreamStatusError(t *testing.T) {
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			in := new(wrapperspb.StringValue)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return status.Errorf(codes.InvalidArgument, "cannot chat about %s", in.GetValue())
		},
	})

	stream := openChat(t, context.Background(), cc)
	sendString(t, stream, "politics")

	err := stream.RecvMsg(new(wrapperspb.StringValue))
	st := testutil.AssertCode(t, err, codes.InvalidArgument)
	if st.Message() != "cannot chat about politics" {
		t.Errorf("unexpected message %q", st.Message())
	}

	// The terminal status repeats, and further sends report io.EOF.
	err = stream.RecvMsg(new(wrapperspb.StringValue))
	testutil.AssertCode(t, err, codes.InvalidArgument)
	if err := stream.SendMsg(wrapperspb.String("more")); err != io.EOF {
		t.Errorf("expected io.EOF from SendMsg after the stream ended, got %v", err)
	}
}

func TestStreamPanicBecomesInternal(t *testing.T) {
	cc := greeterConn(t, &greeter{
		chat: func(grpc.ServerStream) error {
			panic("stream boom")
		},
	})

	stream := openChat(t, context.Background(), cc)
	err := stream.RecvMsg(new(wrapperspb.StringValue))
	testutil.AssertCode(t, err, codes.Internal)
	testutil.AssertErrorContains(t, err, "handler panic: stream boom")
}

func TestStreamUnknownStream(t *testing.T) {
	cc := greeterConn(t, &greeter{})

	_, err := cc.NewStream(context.Background(), &greeterDesc.Streams[0], "/fabric.Greeter/Gossip")
	testutil.AssertCode(t, err, codes.Unimplemented)
	testutil.AssertErrorContains(t, err, "unknown stream Gossip for service fabric.Greeter")
}

func TestStreamSendAfterCloseSend(t *testing.T) {
	cc := greeterConn(t, &greeter{})
	stream := openChat(t, context.Background(), cc)

	testutil.MustSucceed(t, stream.CloseSend())
	testutil.MustSucceed(t, stream.CloseSend())

	err := stream.SendMsg(wrapperspb.String("late"))
	testutil.AssertCode(t, err, codes.Internal)
	testutil.AssertErrorContains(t, err, "SendMsg called after CloseSend")
}

func TestStreamCancelPropagates(t *testing.T) {
	handlerErr := make(chan error, 1)
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			err := stream.RecvMsg(new(wrapperspb.StringValue))
			handlerErr <- err
			return err
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	stream := openChat(t, ctx, cc)
	cancel()

	err := stream.RecvMsg(new(wrapperspb.StringValue))
	testutil.AssertCode(t, err, codes.Canceled)
	testutil.AssertCode(t, <-handlerErr, codes.Canceled)
}

func TestStreamPreCanceledContext(t *testing.T) {
	cc := greeterConn(t, &greeter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cc.NewStream(ctx, &greeterDesc.Streams[0], chatMethod)
	testutil.AssertCode(t, err, codes.Canceled)
}

func TestStreamMessagesCrossAsCopies(t *testing.T) {
	cc := greeterConn(t, &greeter{})
	stream := openChat(t, context.Background(), cc)

	msg := wrapperspb.String("original")
	testutil.MustSucceed(t, stream.SendMsg(msg))
	msg.Value = "mutated"

	if got := recvString(t, stream); got != "echo original" {
		t.Errorf("expected the fabric to carry a copy, got %q", got)
	}
}

func TestStreamHandlerContext(t *testing.T) {
	var (
		gotMD    metadata.MD
		gotPeer  *peer.Peer
		gotValue any
	)
	cc := greeterConn(t, &greeter{
		chat: func(stream grpc.ServerStream) error {
			ctx := stream.Context()
			gotMD, _ = metadata.FromIncomingContext(ctx)
			gotPeer, _ = peer.FromContext(ctx)
			gotValue = ctx.Value(secretKey{})
			return grpc.SetHeader(ctx, metadata.Pairs("via", "transport-stream"))
		},
	})

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-tenant", "acme")
	ctx = context.WithValue(ctx, secretKey{}, "local secret")
	stream := openChat(t, ctx, cc)

	header, err := stream.Header()
	testutil.MustSucceed(t, err)
	testutil.AssertMetadata(t, header, "via", "transport-stream")

	if err := stream.RecvMsg(new(wrapperspb.StringValue)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}

	testutil.AssertMetadata(t, gotMD, "x-tenant", "acme")
	if gotPeer == nil || gotPeer.Addr.String() != "greeter" {
		t.Errorf("expected peer 'greeter', got %v", gotPeer)
	}
	if gotValue != nil {
		t.Errorf("expected client context values to stay on the client, handler saw %v", gotValue)
	}
}
