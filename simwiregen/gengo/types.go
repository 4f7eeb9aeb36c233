// Package gengo renders Go source for RPC services described by the ir
// package. One Generator collects every service of a proto package and
// finalizes them into a single wire file for one transport target; running
// it twice with different transports yields two files that differ only in
// their convenience wiring.
package gengo

// Transport identifies the wire substrate the generated convenience code
// binds to. Everything outside the convenience section is transport
// independent.
type Transport string

const (
	// TransportGRPC wires the convenience functions to real gRPC
	// connections and servers.
	TransportGRPC Transport = "grpc"

	// TransportSim wires the convenience functions to the in-memory
	// network fabric.
	TransportSim Transport = "sim"
)

// Valid reports whether t names a known transport.
func (t Transport) Valid() bool {
	return t == TransportGRPC || t == TransportSim
}

func (t Transport) String() string {
	return string(t)
}

// Attribute pairs a proto path pattern with source text emitted verbatim
// above the matched generated declaration. Text that is not a comment or
// compiler directive fails the finalize parse checkpoint instead of
// reaching the output file.
type Attribute struct {
	// Pattern selects services or methods by fully qualified proto path.
	// See the matching rules on Config.DisableComments.
	Pattern string

	// Text is one or more source lines, written as given.
	Text string
}

// Config controls one emission pass. The zero value emits nothing; callers
// enable the sections they want.
type Config struct {
	// Transport selects the convenience wiring for this pass.
	Transport Transport

	// BuildClient enables the client interface, the concrete client, and
	// the route constants. BuildServer enables the server interface,
	// handlers, service descriptor, and registration function.
	BuildClient bool
	BuildServer bool

	// BuildTransport enables the Dial and Serve convenience functions,
	// the only generated code that differs between transports.
	BuildTransport bool

	// EmitPackage qualifies route paths and the service descriptor name
	// with the proto package.
	EmitPackage bool

	// GenerateDefaultStubs emits an Unimplemented<Service>Server whose
	// methods return codes.Unimplemented, and makes embedding it part of
	// the server interface contract. When false, implementing every
	// method is a compile-time obligation instead.
	GenerateDefaultStubs bool

	// SharedStubs puts the default stub methods on pointer receivers so
	// one stub value can be shared across implementations.
	SharedStubs bool

	// CompileWellKnownTypes turns off the well-known-type resolution
	// shortcut, for builds that compile the standard protos from source.
	CompileWellKnownTypes bool

	// DisableComments drops doc comments from services and methods whose
	// fully qualified proto path matches one of the patterns. A pattern
	// of "." matches everything; a pattern with a leading dot matches
	// that path and everything below it; any other pattern matches as a
	// path suffix on a segment boundary.
	DisableComments []string

	// ClientModAttributes emit above a matched service's client section,
	// ClientAttributes directly above its client interface.
	ClientModAttributes []Attribute
	ClientAttributes    []Attribute

	// ServerModAttributes emit above a matched service's server section,
	// ServerAttributes directly above its server interface.
	ServerModAttributes []Attribute
	ServerAttributes    []Attribute

	// Version is recorded in the generated file header when non-empty.
	Version string
}
