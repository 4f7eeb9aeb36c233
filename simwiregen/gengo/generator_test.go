package gengo

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/simwire/simwire/simwiregen/ir"
)

var hellopb = ir.ImportRef{Path: "example.com/helloworld/gen/hellopb", Alias: "hellopb"}

func greeterService() *ir.StaticService {
	return &ir.StaticService{
		ServiceName:  "Greeter",
		ProtoPackage: "helloworld.v1",
		Doc:          ir.Documentation{Leading: []string{"The greeting service definition."}},
		MethodList: []ir.StaticMethod{
			{
				MethodName:   "SayHello",
				Doc:          ir.Documentation{Leading: []string{"Sends a greeting."}},
				Input:        ".helloworld.v1.HelloRequest",
				Output:       ".helloworld.v1.HelloReply",
				InputTarget:  "HelloRequest",
				OutputTarget: "HelloReply",
			},
			{
				MethodName:    "LotsOfReplies",
				ServerStreams: true,
				Input:         ".helloworld.v1.HelloRequest",
				Output:        ".helloworld.v1.HelloReply",
				InputTarget:   "HelloRequest",
				OutputTarget:  "HelloReply",
			},
			{
				MethodName:    "LotsOfGreetings",
				ClientStreams: true,
				Input:         ".helloworld.v1.HelloRequest",
				Output:        ".helloworld.v1.HelloReply",
				InputTarget:   "HelloRequest",
				OutputTarget:  "HelloReply",
			},
			{
				MethodName:    "BidiHello",
				ClientStreams: true,
				ServerStreams: true,
				Input:         ".helloworld.v1.HelloRequest",
				Output:        ".helloworld.v1.HelloReply",
				InputTarget:   "HelloRequest",
				OutputTarget:  "HelloReply",
			},
		},
	}
}

func fullConfig(tr Transport) Config {
	return Config{
		Transport:            tr,
		BuildClient:          true,
		BuildServer:          true,
		BuildTransport:       true,
		EmitPackage:          true,
		GenerateDefaultStubs: true,
		Version:              "v0.3.0",
	}
}

func generate(t *testing.T, cfg Config) string {
	t.Helper()
	g := New(cfg, "helloworldv1")
	if err := g.Service(greeterService(), hellopb, "helloworld/v1/greeter.proto"); err != nil {
		t.Fatalf("Service: %v", err)
	}
	out, err := g.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return string(out)
}

func mustContain(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func mustNotContain(t *testing.T, out string, rejects ...string) {
	t.Helper()
	for _, reject := range rejects {
		if strings.Contains(out, reject) {
			t.Errorf("output unexpectedly contains %q", reject)
		}
	}
}

func TestGenerateGRPC(t *testing.T) {
	out := generate(t, fullConfig(TransportGRPC))

	mustContain(t, out,
		"// Code generated by simwire. DO NOT EDIT.",
		"// \tsimwire v0.3.0",
		"// source: helloworld/v1/greeter.proto",
		"// transport: grpc",
		"package helloworldv1",
		`"example.com/helloworld/gen/hellopb"`,
		"Greeter_SayHello_FullMethodName",
		`"/helloworld.v1.Greeter/SayHello"`,
		`"/helloworld.v1.Greeter/BidiHello"`,
		"// GreeterClient is the client API for the Greeter service.",
		"The greeting service definition.",
		"Sends a greeting.",
		"type GreeterClient interface {",
		"SayHello(ctx context.Context, in *hellopb.HelloRequest, opts ...grpc.CallOption) (*hellopb.HelloReply, error)",
		"LotsOfReplies(ctx context.Context, in *hellopb.HelloRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[hellopb.HelloReply], error)",
		"LotsOfGreetings(ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[hellopb.HelloRequest, hellopb.HelloReply], error)",
		"BidiHello(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[hellopb.HelloRequest, hellopb.HelloReply], error)",
		"func NewGreeterClient(cc grpc.ClientConnInterface) GreeterClient {",
		"grpc.StaticMethod()",
		"x := &grpc.GenericClientStream[hellopb.HelloRequest, hellopb.HelloReply]{ClientStream: stream}",
		"type GreeterServer interface {",
		"SayHello(context.Context, *hellopb.HelloRequest) (*hellopb.HelloReply, error)",
		"LotsOfReplies(*hellopb.HelloRequest, grpc.ServerStreamingServer[hellopb.HelloReply]) error",
		"LotsOfGreetings(grpc.ClientStreamingServer[hellopb.HelloRequest, hellopb.HelloReply]) error",
		"type UnimplementedGreeterServer struct{}",
		`return nil, status.Error(codes.Unimplemented, "method SayHello not implemented")`,
		"mustEmbedUnimplementedGreeterServer()",
		"func RegisterGreeterServer(s grpc.ServiceRegistrar, srv GreeterServer) {",
		"_Greeter_SayHello_Handler",
		"_Greeter_BidiHello_Handler",
		`ServiceName: "helloworld.v1.Greeter",`,
		"HandlerType: (*GreeterServer)(nil),",
		`Metadata: "helloworld/v1/greeter.proto",`,
		"ServerStreams: true,",
		"ClientStreams: true,",
		"func DialGreeter(target string, opts ...grpc.DialOption) (GreeterClient, *grpc.ClientConn, error) {",
		"func ServeGreeter(lis net.Listener, srv GreeterServer, opts ...grpc.ServerOption) error {",
	)
	mustNotContain(t, out, "simwire.Network")
}

func TestGenerateSim(t *testing.T) {
	out := generate(t, fullConfig(TransportSim))

	mustContain(t, out,
		"// transport: sim",
		`"github.com/simwire/simwire"`,
		"func DialGreeter(network *simwire.Network, addr string) (GreeterClient, error) {",
		"func ServeGreeter(network *simwire.Network, addr string, srv GreeterServer) (*simwire.Server, error) {",
	)
	mustNotContain(t, out, "grpc.DialOption", "net.Listener", "grpc.NewServer")
}

// The generated client and server code must be identical between transports;
// only the header and the convenience functions may differ.
func TestTransportParity(t *testing.T) {
	grpcOut := generate(t, fullConfig(TransportGRPC))
	simOut := generate(t, fullConfig(TransportSim))

	core := func(out, from, to string) string {
		t.Helper()
		start := strings.Index(out, from)
		end := strings.Index(out, to)
		if start < 0 || end < 0 || end < start {
			t.Fatalf("markers %q..%q not found in output", from, to)
		}
		return out[start:end]
	}

	grpcClient := core(grpcOut, "const (", "// DialGreeter")
	simClient := core(simOut, "const (", "// DialGreeter")
	if diff := cmp.Diff(grpcClient, simClient); diff != "" {
		t.Errorf("client sections differ between transports (-grpc +sim):\n%s", diff)
	}

	grpcServer := core(grpcOut, "// GreeterServer is the server API", "// ServeGreeter")
	simServer := core(simOut, "// GreeterServer is the server API", "// ServeGreeter")
	if diff := cmp.Diff(grpcServer, simServer); diff != "" {
		t.Errorf("server sections differ between transports (-grpc +sim):\n%s", diff)
	}
}

func TestClientOnly(t *testing.T) {
	out := generate(t, Config{Transport: TransportGRPC, BuildClient: true, EmitPackage: true})

	mustContain(t, out, "Greeter_SayHello_FullMethodName", "type GreeterClient interface {")
	mustNotContain(t, out, "GreeterServer", "RegisterGreeterServer", "Unimplemented", "DialGreeter")
}

func TestServerOnly(t *testing.T) {
	out := generate(t, Config{Transport: TransportGRPC, BuildServer: true, EmitPackage: true})

	// Route constants move into the server section when it leads the file.
	mustContain(t, out, "Greeter_SayHello_FullMethodName", "type GreeterServer interface {")
	mustNotContain(t, out, "GreeterClient", "NewGreeterClient", "ServeGreeter")
}

func TestNothingEnabled(t *testing.T) {
	g := New(Config{Transport: TransportGRPC}, "helloworldv1")
	if err := g.Service(greeterService(), hellopb, "helloworld/v1/greeter.proto"); err != nil {
		t.Fatalf("Service: %v", err)
	}
	out, err := g.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if out != nil {
		t.Errorf("expected no output, got %d bytes", len(out))
	}
}

func TestNoDefaultStubs(t *testing.T) {
	cfg := fullConfig(TransportGRPC)
	cfg.GenerateDefaultStubs = false
	out := generate(t, cfg)

	mustContain(t, out, "type GreeterServer interface {")
	mustNotContain(t, out, "UnimplementedGreeterServer", "mustEmbed")
}

func TestSharedStubs(t *testing.T) {
	cfg := fullConfig(TransportGRPC)
	cfg.SharedStubs = true
	out := generate(t, cfg)

	mustContain(t, out,
		"func (*UnimplementedGreeterServer) SayHello(context.Context, *hellopb.HelloRequest) (*hellopb.HelloReply, error) {",
		"func (*UnimplementedGreeterServer) mustEmbedUnimplementedGreeterServer() {}",
	)
}

func TestEmitPackageOff(t *testing.T) {
	cfg := fullConfig(TransportGRPC)
	cfg.EmitPackage = false
	out := generate(t, cfg)

	mustContain(t, out, `"/Greeter/SayHello"`, `ServiceName: "Greeter",`)
	mustNotContain(t, out, `"/helloworld.v1.Greeter/SayHello"`)
}

func TestDisableComments(t *testing.T) {
	cfg := fullConfig(TransportGRPC)
	cfg.DisableComments = []string{".helloworld.v1.Greeter.SayHello"}
	out := generate(t, cfg)

	mustContain(t, out, "The greeting service definition.")
	mustNotContain(t, out, "Sends a greeting.")

	cfg.DisableComments = []string{"."}
	out = generate(t, cfg)
	mustNotContain(t, out, "The greeting service definition.", "Sends a greeting.")
}

func TestAttributeInjection(t *testing.T) {
	cfg := fullConfig(TransportGRPC)
	cfg.ClientAttributes = []Attribute{{Pattern: "Greeter", Text: "//go:generate true"}}
	cfg.ServerModAttributes = []Attribute{{Pattern: ".", Text: "//lint:file-ignore U1000 generated"}}
	out := generate(t, cfg)

	mustContain(t, out, "//go:generate true", "//lint:file-ignore U1000 generated")

	attr := strings.Index(out, "//go:generate true")
	decl := strings.Index(out, "type GreeterClient interface {")
	if attr < 0 || decl < 0 || attr > decl {
		t.Errorf("client attribute not emitted above the client interface (attr=%d decl=%d)", attr, decl)
	}

	mod := strings.Index(out, "//lint:file-ignore U1000 generated")
	server := strings.Index(out, "// GreeterServer is the server API")
	if mod < 0 || server < 0 || mod > server {
		t.Errorf("server mod attribute not emitted above the server section (attr=%d decl=%d)", mod, server)
	}
}

func TestAttributeParseCheckpoint(t *testing.T) {
	cfg := fullConfig(TransportGRPC)
	cfg.ClientAttributes = []Attribute{{Pattern: ".", Text: "@@@ not go"}}

	g := New(cfg, "helloworldv1")
	if err := g.Service(greeterService(), hellopb, "helloworld/v1/greeter.proto"); err != nil {
		t.Fatalf("Service: %v", err)
	}
	_, err := g.Finalize()
	if err == nil {
		t.Fatal("expected finalize to fail on a malformed attribute")
	}
	if !strings.Contains(err.Error(), "client code") || !strings.Contains(err.Error(), "does not parse") {
		t.Errorf("error %q does not name the failing section", err)
	}
}

func TestImportIdentifierConflict(t *testing.T) {
	g := New(fullConfig(TransportGRPC), "helloworldv1")
	if err := g.Service(greeterService(), hellopb, "helloworld/v1/greeter.proto"); err != nil {
		t.Fatalf("Service: %v", err)
	}

	other := &ir.StaticService{
		ServiceName:  "Other",
		ProtoPackage: "helloworld.v1",
		MethodList: []ir.StaticMethod{{
			MethodName:   "Do",
			Input:        ".helloworld.v1.Thing",
			Output:       ".helloworld.v1.Thing",
			InputTarget:  "Thing",
			OutputTarget: "Thing",
		}},
	}
	clash := ir.ImportRef{Path: "example.com/elsewhere/hellopb", Alias: "hellopb"}
	err := g.Service(other, clash, "helloworld/v1/other.proto")
	if err == nil {
		t.Fatal("expected an identifier conflict error")
	}
	if !strings.Contains(err.Error(), `"hellopb"`) {
		t.Errorf("error %q does not name the conflicting identifier", err)
	}
}

func TestMethodOrderFollowsDeclaration(t *testing.T) {
	out := generate(t, fullConfig(TransportGRPC))
	first := strings.Index(out, "Greeter_SayHello_FullMethodName")
	second := strings.Index(out, "Greeter_LotsOfReplies_FullMethodName")
	third := strings.Index(out, "Greeter_LotsOfGreetings_FullMethodName")
	if !(first < second && second < third) {
		t.Errorf("constants out of declaration order: %d, %d, %d", first, second, third)
	}

	svc := greeterService()
	svc.MethodList[0], svc.MethodList[3] = svc.MethodList[3], svc.MethodList[0]
	g := New(fullConfig(TransportGRPC), "helloworldv1")
	if err := g.Service(svc, hellopb, "helloworld/v1/greeter.proto"); err != nil {
		t.Fatalf("Service: %v", err)
	}
	raw, err := g.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	reordered := string(raw)
	if !(strings.Index(reordered, "Greeter_BidiHello_FullMethodName") < strings.Index(reordered, "Greeter_SayHello_FullMethodName")) {
		t.Error("reordering the declarations did not reorder the emitted methods")
	}
}

func TestVersionOmitted(t *testing.T) {
	cfg := fullConfig(TransportGRPC)
	cfg.Version = ""
	out := generate(t, cfg)
	mustNotContain(t, out, "// versions:")
}

func TestEmptyResponseType(t *testing.T) {
	svc := &ir.StaticService{
		ServiceName:  "Pinger",
		ProtoPackage: "ping.v1",
		MethodList: []ir.StaticMethod{{
			MethodName:   "Ping",
			Input:        ".ping.v1.PingRequest",
			Output:       ".ping.v1.Ack",
			InputTarget:  "PingRequest",
			OutputTarget: "struct{}",
		}},
	}
	g := New(fullConfig(TransportGRPC), "pingv1")
	if err := g.Service(svc, ir.ImportRef{Path: "example.com/ping/gen/pingpb", Alias: "pingpb"}, "ping/v1/ping.proto"); err != nil {
		t.Fatalf("Service: %v", err)
	}
	raw, err := g.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	mustContain(t, string(raw), "Ping(ctx context.Context, in *pingpb.PingRequest, opts ...grpc.CallOption) (*struct{}, error)")
}

// Every configuration variant must produce a file the Go parser accepts.
func TestOutputParses(t *testing.T) {
	configs := map[string]Config{
		"grpc":       fullConfig(TransportGRPC),
		"sim":        fullConfig(TransportSim),
		"clientOnly": {Transport: TransportGRPC, BuildClient: true, EmitPackage: true},
		"serverOnly": {Transport: TransportSim, BuildServer: true, BuildTransport: true, EmitPackage: true},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			out := generate(t, cfg)
			fset := token.NewFileSet()
			if _, err := parser.ParseFile(fset, "wire.go", out, parser.ParseComments); err != nil {
				t.Errorf("generated output does not parse: %v", err)
			}
		})
	}
}

func TestTransportValid(t *testing.T) {
	if !TransportGRPC.Valid() || !TransportSim.Valid() {
		t.Error("known transports must be valid")
	}
	if Transport("carrier-pigeon").Valid() {
		t.Error("unknown transport must be invalid")
	}
}
