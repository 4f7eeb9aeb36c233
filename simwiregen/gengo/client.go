package gengo

import (
	"bytes"
	"fmt"

	"github.com/simwire/simwire/simwiregen/ir"
)

// emitClient renders the client side of one service: route constants, the
// client interface, the concrete client, per-method call implementations,
// and the Dial convenience for the configured transport.
func (g *Generator) emitClient(svc ir.Service, messagePackage ir.ImportRef, fq string) error {
	buf := &g.client
	name := svc.Identifier()
	methods := svc.Methods()

	if err := g.need("google.golang.org/grpc"); err != nil {
		return fmt.Errorf("service %s: %w", svc.Name(), err)
	}
	if len(methods) > 0 {
		if err := g.need("context"); err != nil {
			return fmt.Errorf("service %s: %w", svc.Name(), err)
		}
	}

	emitAttributes(buf, g.cfg.ClientModAttributes, fq)
	g.emitMethodConstants(buf, svc)

	// Interface.
	fmt.Fprintf(buf, "// %sClient is the client API for the %s service.\n", name, svc.Name())
	if g.hasComment(svc.Comment(), fq) {
		buf.WriteString("//\n")
		g.emitComment(buf, svc.Comment(), fq, "")
	}
	emitAttributes(buf, g.cfg.ClientAttributes, fq)
	fmt.Fprintf(buf, "type %sClient interface {\n", name)
	for _, m := range methods {
		in, out, err := g.methodTypes(svc, m, messagePackage)
		if err != nil {
			return err
		}
		g.emitComment(buf, m.Comment(), fq+"."+m.Name(), "\t")
		fmt.Fprintf(buf, "\t%s(%s\n", m.Identifier(), clientSignature(m, in, out))
	}
	buf.WriteString("}\n\n")

	// Concrete client.
	fmt.Fprintf(buf, "type %sClient struct {\n\tcc grpc.ClientConnInterface\n}\n\n", unexport(name))
	fmt.Fprintf(buf, "// New%sClient returns a %sClient that issues calls on cc, which may be\n", name, name)
	buf.WriteString("// a real connection or a simulated one.\n")
	fmt.Fprintf(buf, "func New%sClient(cc grpc.ClientConnInterface) %sClient {\n", name, name)
	fmt.Fprintf(buf, "\treturn &%sClient{cc}\n}\n\n", unexport(name))

	for _, m := range methods {
		in, out, err := g.methodTypes(svc, m, messagePackage)
		if err != nil {
			return err
		}
		if !m.ClientStreaming() && !m.ServerStreaming() {
			g.emitUnaryCall(buf, svc, m, in, out)
		} else {
			g.emitStreamCall(buf, svc, m, in, out)
		}
	}

	if g.cfg.BuildTransport {
		if err := g.emitDial(buf, svc, name); err != nil {
			return fmt.Errorf("service %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// clientSignature renders everything after the method name in a client
// method declaration.
func clientSignature(m ir.Method, in, out ir.TypeExpr) string {
	switch {
	case m.ClientStreaming() && m.ServerStreaming():
		return fmt.Sprintf("ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[%s, %s], error)", in.Expr, out.Expr)
	case m.ClientStreaming():
		return fmt.Sprintf("ctx context.Context, opts ...grpc.CallOption) (grpc.ClientStreamingClient[%s, %s], error)", in.Expr, out.Expr)
	case m.ServerStreaming():
		return fmt.Sprintf("ctx context.Context, in *%s, opts ...grpc.CallOption) (grpc.ServerStreamingClient[%s], error)", in.Expr, out.Expr)
	default:
		return fmt.Sprintf("ctx context.Context, in *%s, opts ...grpc.CallOption) (*%s, error)", in.Expr, out.Expr)
	}
}

func (g *Generator) emitUnaryCall(buf *bytes.Buffer, svc ir.Service, m ir.Method, in, out ir.TypeExpr) {
	recv := unexport(svc.Identifier()) + "Client"
	fmt.Fprintf(buf, "func (c *%s) %s(%s {\n", recv, m.Identifier(), clientSignature(m, in, out))
	buf.WriteString("\tcOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)\n")
	fmt.Fprintf(buf, "\tout := new(%s)\n", out.Expr)
	fmt.Fprintf(buf, "\terr := c.cc.Invoke(ctx, %s, in, out, cOpts...)\n", constName(svc, m))
	buf.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
	buf.WriteString("\treturn out, nil\n}\n\n")
}

func (g *Generator) emitStreamCall(buf *bytes.Buffer, svc ir.Service, m ir.Method, in, out ir.TypeExpr) {
	recv := unexport(svc.Identifier()) + "Client"
	fmt.Fprintf(buf, "func (c *%s) %s(%s {\n", recv, m.Identifier(), clientSignature(m, in, out))
	buf.WriteString("\tcOpts := append([]grpc.CallOption{grpc.StaticMethod()}, opts...)\n")
	fmt.Fprintf(buf, "\tstream, err := c.cc.NewStream(ctx, %s, %s, cOpts...)\n", streamDescLiteral(m), constName(svc, m))
	buf.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
	fmt.Fprintf(buf, "\tx := &grpc.GenericClientStream[%s, %s]{ClientStream: stream}\n", in.Expr, out.Expr)
	if !m.ClientStreaming() {
		// Server-streaming calls carry exactly one request, sent up front.
		buf.WriteString("\tif err := x.ClientStream.SendMsg(in); err != nil {\n\t\treturn nil, err\n\t}\n")
		buf.WriteString("\tif err := x.ClientStream.CloseSend(); err != nil {\n\t\treturn nil, err\n\t}\n")
	}
	buf.WriteString("\treturn x, nil\n}\n\n")
}

// streamDescLiteral builds the inline grpc.StreamDesc for a client call so
// the client section never references the server section's descriptor table.
func streamDescLiteral(m ir.Method) string {
	desc := fmt.Sprintf("&grpc.StreamDesc{StreamName: %q", m.Name())
	if m.ServerStreaming() {
		desc += ", ServerStreams: true"
	}
	if m.ClientStreaming() {
		desc += ", ClientStreams: true"
	}
	return desc + "}"
}

func (g *Generator) emitDial(buf *bytes.Buffer, svc ir.Service, name string) error {
	switch g.cfg.Transport {
	case TransportSim:
		if err := g.need(simwireImport); err != nil {
			return err
		}
		fmt.Fprintf(buf, "// Dial%s opens a %sClient against addr on the simulated network.\n", name, name)
		fmt.Fprintf(buf, "func Dial%s(network *simwire.Network, addr string) (%sClient, error) {\n", name, name)
		buf.WriteString("\tcc, err := network.Dial(addr)\n")
		buf.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
		fmt.Fprintf(buf, "\treturn New%sClient(cc), nil\n}\n\n", name)
	default:
		fmt.Fprintf(buf, "// Dial%s connects to target and returns a ready %sClient. Closing the\n", name, name)
		buf.WriteString("// returned ClientConn tears the client down.\n")
		fmt.Fprintf(buf, "func Dial%s(target string, opts ...grpc.DialOption) (%sClient, *grpc.ClientConn, error) {\n", name, name)
		buf.WriteString("\tcc, err := grpc.NewClient(target, opts...)\n")
		buf.WriteString("\tif err != nil {\n\t\treturn nil, nil, err\n\t}\n")
		fmt.Fprintf(buf, "\treturn New%sClient(cc), cc, nil\n}\n\n", name)
	}
	return nil
}
