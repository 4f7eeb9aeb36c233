package gengo

import (
	"bytes"
	"fmt"

	"github.com/simwire/simwire/simwiregen/ir"
)

// emitServer renders the server side of one service: the server interface,
// optional default stubs, the registration function, method and stream
// handlers, the service descriptor, and the Serve convenience for the
// configured transport.
func (g *Generator) emitServer(svc ir.Service, messagePackage ir.ImportRef, fq, source string, withConsts bool) error {
	buf := &g.server
	name := svc.Identifier()
	methods := svc.Methods()

	if err := g.need("google.golang.org/grpc"); err != nil {
		return fmt.Errorf("service %s: %w", svc.Name(), err)
	}
	if hasUnary(methods) {
		if err := g.need("context"); err != nil {
			return fmt.Errorf("service %s: %w", svc.Name(), err)
		}
	}
	if g.cfg.GenerateDefaultStubs && len(methods) > 0 {
		if err := g.need("google.golang.org/grpc/codes", "google.golang.org/grpc/status"); err != nil {
			return fmt.Errorf("service %s: %w", svc.Name(), err)
		}
	}

	emitAttributes(buf, g.cfg.ServerModAttributes, fq)
	if withConsts {
		g.emitMethodConstants(buf, svc)
	}

	// Interface.
	fmt.Fprintf(buf, "// %sServer is the server API for the %s service.\n", name, svc.Name())
	if g.cfg.GenerateDefaultStubs {
		fmt.Fprintf(buf, "// All implementations must embed Unimplemented%sServer for forward\n// compatibility.\n", name)
	}
	if g.hasComment(svc.Comment(), fq) {
		buf.WriteString("//\n")
		g.emitComment(buf, svc.Comment(), fq, "")
	}
	emitAttributes(buf, g.cfg.ServerAttributes, fq)
	fmt.Fprintf(buf, "type %sServer interface {\n", name)
	for _, m := range methods {
		in, out, err := g.methodTypes(svc, m, messagePackage)
		if err != nil {
			return err
		}
		g.emitComment(buf, m.Comment(), fq+"."+m.Name(), "\t")
		fmt.Fprintf(buf, "\t%s%s\n", m.Identifier(), serverSignature(m, in, out))
	}
	if g.cfg.GenerateDefaultStubs {
		fmt.Fprintf(buf, "\tmustEmbedUnimplemented%sServer()\n", name)
	}
	buf.WriteString("}\n\n")

	if g.cfg.GenerateDefaultStubs {
		if err := g.emitStubs(buf, svc, messagePackage, name); err != nil {
			return err
		}
	}

	fmt.Fprintf(buf, "func Register%sServer(s grpc.ServiceRegistrar, srv %sServer) {\n", name, name)
	fmt.Fprintf(buf, "\ts.RegisterService(&%s_ServiceDesc, srv)\n}\n\n", name)

	for _, m := range methods {
		in, out, err := g.methodTypes(svc, m, messagePackage)
		if err != nil {
			return err
		}
		if !m.ClientStreaming() && !m.ServerStreaming() {
			g.emitUnaryHandler(buf, svc, m, name, in)
		} else {
			g.emitStreamHandler(buf, svc, m, name, in, out)
		}
	}

	g.emitServiceDesc(buf, svc, name, source)

	if g.cfg.BuildTransport {
		if err := g.emitServe(buf, name); err != nil {
			return fmt.Errorf("service %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// serverSignature renders everything after the method name in a server
// interface method declaration.
func serverSignature(m ir.Method, in, out ir.TypeExpr) string {
	switch {
	case m.ClientStreaming() && m.ServerStreaming():
		return fmt.Sprintf("(grpc.BidiStreamingServer[%s, %s]) error", in.Expr, out.Expr)
	case m.ClientStreaming():
		return fmt.Sprintf("(grpc.ClientStreamingServer[%s, %s]) error", in.Expr, out.Expr)
	case m.ServerStreaming():
		return fmt.Sprintf("(*%s, grpc.ServerStreamingServer[%s]) error", in.Expr, out.Expr)
	default:
		return fmt.Sprintf("(context.Context, *%s) (*%s, error)", in.Expr, out.Expr)
	}
}

// emitStubs writes the Unimplemented<Service>Server type whose methods all
// answer codes.Unimplemented until overridden by an embedding type.
func (g *Generator) emitStubs(buf *bytes.Buffer, svc ir.Service, messagePackage ir.ImportRef, name string) error {
	stub := "Unimplemented" + name + "Server"
	recv := stub
	if g.cfg.SharedStubs {
		recv = "*" + stub
	}
	fmt.Fprintf(buf, "// %s must be embedded for forward compatible %s\n", stub, name)
	buf.WriteString("// implementations.\n")
	fmt.Fprintf(buf, "type %s struct{}\n\n", stub)
	for _, m := range svc.Methods() {
		in, out, err := g.methodTypes(svc, m, messagePackage)
		if err != nil {
			return err
		}
		fmt.Fprintf(buf, "func (%s) %s%s {\n", recv, m.Identifier(), serverSignature(m, in, out))
		if !m.ClientStreaming() && !m.ServerStreaming() {
			fmt.Fprintf(buf, "\treturn nil, status.Error(codes.Unimplemented, \"method %s not implemented\")\n", m.Identifier())
		} else {
			fmt.Fprintf(buf, "\treturn status.Error(codes.Unimplemented, \"method %s not implemented\")\n", m.Identifier())
		}
		buf.WriteString("}\n\n")
	}
	fmt.Fprintf(buf, "func (%s) mustEmbedUnimplemented%sServer() {}\n\n", recv, name)
	return nil
}

func (g *Generator) emitUnaryHandler(buf *bytes.Buffer, svc ir.Service, m ir.Method, name string, in ir.TypeExpr) {
	handler := handlerName(svc, m)
	fmt.Fprintf(buf, "func %s(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {\n", handler)
	fmt.Fprintf(buf, "\tin := new(%s)\n", in.Expr)
	buf.WriteString("\tif err := dec(in); err != nil {\n\t\treturn nil, err\n\t}\n")
	buf.WriteString("\tif interceptor == nil {\n")
	fmt.Fprintf(buf, "\t\treturn srv.(%sServer).%s(ctx, in)\n\t}\n", name, m.Identifier())
	buf.WriteString("\tinfo := &grpc.UnaryServerInfo{\n\t\tServer: srv,\n")
	fmt.Fprintf(buf, "\t\tFullMethod: %s,\n\t}\n", constName(svc, m))
	buf.WriteString("\thandler := func(ctx context.Context, req any) (any, error) {\n")
	fmt.Fprintf(buf, "\t\treturn srv.(%sServer).%s(ctx, req.(*%s))\n\t}\n", name, m.Identifier(), in.Expr)
	buf.WriteString("\treturn interceptor(ctx, in, info, handler)\n}\n\n")
}

func (g *Generator) emitStreamHandler(buf *bytes.Buffer, svc ir.Service, m ir.Method, name string, in, out ir.TypeExpr) {
	handler := handlerName(svc, m)
	fmt.Fprintf(buf, "func %s(srv any, stream grpc.ServerStream) error {\n", handler)
	if !m.ClientStreaming() {
		// One request up front, then the reply stream.
		fmt.Fprintf(buf, "\tm := new(%s)\n", in.Expr)
		buf.WriteString("\tif err := stream.RecvMsg(m); err != nil {\n\t\treturn err\n\t}\n")
		fmt.Fprintf(buf, "\treturn srv.(%sServer).%s(m, &grpc.GenericServerStream[%s, %s]{ServerStream: stream})\n}\n\n",
			name, m.Identifier(), in.Expr, out.Expr)
		return
	}
	fmt.Fprintf(buf, "\treturn srv.(%sServer).%s(&grpc.GenericServerStream[%s, %s]{ServerStream: stream})\n}\n\n",
		name, m.Identifier(), in.Expr, out.Expr)
}

func handlerName(svc ir.Service, m ir.Method) string {
	return "_" + svc.Identifier() + "_" + m.Identifier() + "_Handler"
}

// emitServiceDesc writes the grpc.ServiceDesc that RegisterService and the
// stream dispatchers consume.
func (g *Generator) emitServiceDesc(buf *bytes.Buffer, svc ir.Service, name, source string) {
	fmt.Fprintf(buf, "// %s_ServiceDesc is the grpc.ServiceDesc for the %s service. It is\n", name, svc.Name())
	buf.WriteString("// intended for direct use with grpc.RegisterService only.\n")
	fmt.Fprintf(buf, "var %s_ServiceDesc = grpc.ServiceDesc{\n", name)
	fmt.Fprintf(buf, "\tServiceName: %q,\n", g.serviceRoute(svc))
	fmt.Fprintf(buf, "\tHandlerType: (*%sServer)(nil),\n", name)

	var unary, streams []ir.Method
	for _, m := range svc.Methods() {
		if m.ClientStreaming() || m.ServerStreaming() {
			streams = append(streams, m)
		} else {
			unary = append(unary, m)
		}
	}
	if len(unary) == 0 {
		buf.WriteString("\tMethods: []grpc.MethodDesc{},\n")
	} else {
		buf.WriteString("\tMethods: []grpc.MethodDesc{\n")
		for _, m := range unary {
			buf.WriteString("\t\t{\n")
			fmt.Fprintf(buf, "\t\t\tMethodName: %q,\n", m.Name())
			fmt.Fprintf(buf, "\t\t\tHandler: %s,\n", handlerName(svc, m))
			buf.WriteString("\t\t},\n")
		}
		buf.WriteString("\t},\n")
	}
	if len(streams) == 0 {
		buf.WriteString("\tStreams: []grpc.StreamDesc{},\n")
	} else {
		buf.WriteString("\tStreams: []grpc.StreamDesc{\n")
		for _, m := range streams {
			buf.WriteString("\t\t{\n")
			fmt.Fprintf(buf, "\t\t\tStreamName: %q,\n", m.Name())
			fmt.Fprintf(buf, "\t\t\tHandler: %s,\n", handlerName(svc, m))
			if m.ServerStreaming() {
				buf.WriteString("\t\t\tServerStreams: true,\n")
			}
			if m.ClientStreaming() {
				buf.WriteString("\t\t\tClientStreams: true,\n")
			}
			buf.WriteString("\t\t},\n")
		}
		buf.WriteString("\t},\n")
	}
	fmt.Fprintf(buf, "\tMetadata: %q,\n}\n\n", source)
}

func (g *Generator) emitServe(buf *bytes.Buffer, name string) error {
	switch g.cfg.Transport {
	case TransportSim:
		if err := g.need(simwireImport); err != nil {
			return err
		}
		fmt.Fprintf(buf, "// Serve%s claims addr on the simulated network and registers srv there.\n", name)
		buf.WriteString("// The returned Server accepts calls until it is stopped or the network\n// closes.\n")
		fmt.Fprintf(buf, "func Serve%s(network *simwire.Network, addr string, srv %sServer) (*simwire.Server, error) {\n", name, name)
		buf.WriteString("\ts, err := network.Listen(addr)\n")
		buf.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
		fmt.Fprintf(buf, "\tRegister%sServer(s, srv)\n", name)
		buf.WriteString("\treturn s, nil\n}\n\n")
	default:
		if err := g.need("net"); err != nil {
			return err
		}
		fmt.Fprintf(buf, "// Serve%s builds a grpc.Server with opts, registers srv, and serves on\n", name)
		buf.WriteString("// lis until the server stops or the listener fails.\n")
		fmt.Fprintf(buf, "func Serve%s(lis net.Listener, srv %sServer, opts ...grpc.ServerOption) error {\n", name, name)
		buf.WriteString("\ts := grpc.NewServer(opts...)\n")
		fmt.Fprintf(buf, "\tRegister%sServer(s, srv)\n", name)
		buf.WriteString("\treturn s.Serve(lis)\n}\n\n")
	}
	return nil
}

func hasUnary(methods []ir.Method) bool {
	for _, m := range methods {
		if !m.ClientStreaming() && !m.ServerStreaming() {
			return true
		}
	}
	return false
}
