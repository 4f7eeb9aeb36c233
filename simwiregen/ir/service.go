// Package ir defines the generator's view of compiled service definitions.
// The Service and Method interfaces decouple emission from any concrete IDL
// compiler: the provider package wraps protobuf descriptors behind them, and
// StaticService/StaticMethod back them with plain data for tests and for
// front ends that build service models by hand.
package ir

import "github.com/iancoleman/strcase"

// Documentation holds the leading comments attached to an IDL element.
type Documentation struct {
	// Leading contains the comment lines immediately preceding the
	// declaration, without comment markers, in source order.
	Leading []string
}

// IsZero returns true if the documentation is empty.
func (d Documentation) IsZero() bool {
	return len(d.Leading) == 0
}

// Service is one IDL service as seen by the emission stage.
//
// Implementations wrap a single compiler record and recompute every answer
// from it; they hold no generation-pass state. Methods returns methods in
// IDL declaration order, and the order is stable across calls.
type Service interface {
	// Name is the simple service name as declared, e.g. "Greeter".
	Name() string

	// Package is the IDL package the service is declared in,
	// e.g. "helloworld.v1". Empty when the file declares no package.
	Package() string

	// Identifier is the exported Go identifier for the service.
	Identifier() string

	// Comment is the leading documentation for the service.
	Comment() Documentation

	// Methods lists the service's methods in declaration order.
	Methods() []Method
}

// Method is one service method as seen by the emission stage.
type Method interface {
	// Name is the method name as declared, e.g. "SayHello".
	Name() string

	// Identifier is the exported Go identifier for the method.
	Identifier() string

	// Comment is the leading documentation for the method.
	Comment() Documentation

	// ClientStreaming reports whether the client sends a message stream.
	ClientStreaming() bool

	// ServerStreaming reports whether the server sends a message stream.
	ServerStreaming() bool

	// RequestResponseName resolves the request and response types against
	// pass-specific configuration. Resolution is recomputed on every call;
	// nothing is cached, because the answer depends on the arguments rather
	// than on the wrapped record alone.
	RequestResponseName(messagePackage ImportRef, compileWellKnownTypes bool) (TypeExpr, TypeExpr, error)
}

// StaticService is a Service backed by plain data.
type StaticService struct {
	// ServiceName is the declared service name, e.g. "Greeter".
	ServiceName string

	// ProtoPackage is the IDL package, e.g. "helloworld.v1".
	ProtoPackage string

	// GoName overrides the derived Go identifier. Derived from ServiceName
	// when empty.
	GoName string

	// Doc is the leading documentation.
	Doc Documentation

	// MethodList holds the methods in declaration order.
	MethodList []StaticMethod
}

// Name returns the declared service name.
func (s *StaticService) Name() string { return s.ServiceName }

// Package returns the IDL package.
func (s *StaticService) Package() string { return s.ProtoPackage }

// Identifier returns the exported Go identifier for the service.
func (s *StaticService) Identifier() string {
	if s.GoName != "" {
		return s.GoName
	}
	return GoIdent(s.ServiceName)
}

// Comment returns the leading documentation.
func (s *StaticService) Comment() Documentation { return s.Doc }

// Methods returns the service's methods in declaration order.
func (s *StaticService) Methods() []Method {
	out := make([]Method, len(s.MethodList))
	for i := range s.MethodList {
		out[i] = &s.MethodList[i]
	}
	return out
}

// StaticMethod is a Method backed by plain data.
//
// Input and Output are raw IDL-qualified names in leading-dot form
// (".helloworld.v1.HelloRequest"). InputTarget and OutputTarget are the
// mapped source-language names handed to Resolve: a bare identifier for a
// message in the configured message package, an absolute reference
// ("import/path.Name") for externally supplied types, or a non-path
// pseudo-type from the allow-list.
type StaticMethod struct {
	MethodName string
	GoName     string
	Doc        Documentation

	ClientStreams bool
	ServerStreams bool

	Input  string
	Output string

	InputTarget  string
	OutputTarget string
}

// Name returns the declared method name.
func (m *StaticMethod) Name() string { return m.MethodName }

// Identifier returns the exported Go identifier for the method.
func (m *StaticMethod) Identifier() string {
	if m.GoName != "" {
		return m.GoName
	}
	return GoIdent(m.MethodName)
}

// Comment returns the leading documentation.
func (m *StaticMethod) Comment() Documentation { return m.Doc }

// ClientStreaming reports whether the client sends a message stream.
func (m *StaticMethod) ClientStreaming() bool { return m.ClientStreams }

// ServerStreaming reports whether the server sends a message stream.
func (m *StaticMethod) ServerStreaming() bool { return m.ServerStreams }

// RequestResponseName resolves both halves independently through Resolve.
func (m *StaticMethod) RequestResponseName(messagePackage ImportRef, compileWellKnownTypes bool) (TypeExpr, TypeExpr, error) {
	req, err := Resolve(m.Input, m.InputTarget, compileWellKnownTypes, messagePackage)
	if err != nil {
		return TypeExpr{}, TypeExpr{}, err
	}
	resp, err := Resolve(m.Output, m.OutputTarget, compileWellKnownTypes, messagePackage)
	if err != nil {
		return TypeExpr{}, TypeExpr{}, err
	}
	return req, resp, nil
}

// GoIdent converts a declared service or method name to an exported Go
// identifier. Message names use MessageIdent instead, which must track the
// casing of the generated message packages.
func GoIdent(name string) string {
	id := strcase.ToCamel(name)
	if id == "" {
		return id
	}
	if id[0] >= '0' && id[0] <= '9' {
		id = "X" + id
	}
	return id
}
