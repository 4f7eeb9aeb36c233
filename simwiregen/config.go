package simwiregen

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/simwire/simwire/simwiregen/gengo"
)

// Attribute pairs a proto path pattern with source text injected verbatim
// above the matched generated declaration.
type Attribute = gengo.Attribute

// ExternPath maps a proto type or package prefix to an externally provided
// Go type or package, bypassing local resolution for everything under it.
type ExternPath struct {
	// ProtoPath is a fully qualified proto name or package prefix with a
	// leading dot, e.g. ".google.protobuf.Timestamp" or ".mycompany".
	ProtoPath string `validate:"required,startswith=."`

	// GoPath is the replacement: a fully qualified type such as
	// "github.com/acme/knowntypes/wrapped.Timestamp" for an exact match,
	// or an import path prefix for a package match.
	GoPath string `validate:"required"`
}

// GenerationConfig holds every setting the builder accumulates. One
// snapshot feeds both generation passes; see deriveTarget.
type GenerationConfig struct {
	// BuildClient, BuildServer, and BuildTransport select which parts of
	// the wire files are generated. All three default to on.
	BuildClient    bool
	BuildServer    bool
	BuildTransport bool

	// OutDir is the output root. Empty means the documented default "gen".
	OutDir string

	// FileDescriptorSetPath, when set, writes the compiled file descriptor
	// set (including imports and source info) to this path under the
	// output root. With SkipCompile it is read back instead.
	FileDescriptorSetPath string

	// SkipCompile loads the descriptor set written on a previous run
	// instead of compiling proto sources.
	SkipCompile bool

	// IncludeFilePath, when set, writes an aggregation file under each
	// pass's output directory that blank-imports every message package.
	IncludeFilePath string

	// ExternPaths are applied in order at resolution time; the longest
	// matching prefix wins, earliest registration breaking ties.
	ExternPaths []ExternPath `validate:"dive"`

	// Message-shape attribute lists, carried verbatim into both derived
	// configs for the downstream message toolchain.
	FieldAttributes   []Attribute `validate:"dive"`
	TypeAttributes    []Attribute `validate:"dive"`
	MessageAttributes []Attribute `validate:"dive"`
	EnumAttributes    []Attribute `validate:"dive"`

	// Attribute lists applied to the generated client and server code.
	ClientModAttributes []Attribute `validate:"dive"`
	ClientAttributes    []Attribute `validate:"dive"`
	ServerModAttributes []Attribute `validate:"dive"`
	ServerAttributes    []Attribute `validate:"dive"`

	// BoxedFields accumulates one field path per Boxed call. The two
	// representation lists below are instead replaced wholesale on every
	// call.
	BoxedFields         []string `validate:"dive,required"`
	OrderedMapFields    []string `validate:"dive,required"`
	ZeroCopyBytesFields []string `validate:"dive,required"`

	// MessagePackage overrides per-file go_package resolution with one
	// fixed import path for every request and response type. A ";alias"
	// suffix picks the package identifier, like go_package itself.
	MessagePackage string

	// CompileWellKnownTypes disables the well-known-type shortcut for
	// builds that compile the standard protos from source.
	CompileWellKnownTypes bool

	// CompilerArgs are recognized protoc-style arguments: -I,
	// --proto_path= and --descriptor_set_in=. Anything else fails the
	// run.
	CompilerArgs []string `validate:"dive,required"`

	// EmitWatchSignals prints one "simwire:watch=<path>" line per input
	// before either pass runs, for build systems that rerun the generator
	// when inputs change. Off unless explicitly enabled.
	EmitWatchSignals bool

	// DisableComments suppresses doc comments on matched services and
	// methods; see gengo.Config.DisableComments for the pattern rules.
	DisableComments []string `validate:"dive,required"`

	// SharedStubs and GenerateDefaultStubs control the default server
	// stubs; see gengo.Config.
	SharedStubs          bool
	GenerateDefaultStubs bool

	// EmitPackage qualifies route paths with the proto package. On by
	// default.
	EmitPackage bool

	// Version is recorded in generated file headers when non-empty.
	Version string
}

// TargetConfig is one pass's view of a builder snapshot: every shared
// setting plus the two values that vary per pass, the output directory and
// the transport.
type TargetConfig struct {
	GenerationConfig

	// Transport selects the convenience wiring this pass emits.
	Transport gengo.Transport
}

// deriveTarget copies every accumulated setting into a fresh TargetConfig
// for one pass, deep enough that mutating one derived config can never
// reach the other. The output directory and the transport are the only
// fields the two passes differ in.
func deriveTarget(cfg GenerationConfig, outputDir string, transport gengo.Transport) TargetConfig {
	out := TargetConfig{GenerationConfig: cfg, Transport: transport}
	out.OutDir = outputDir

	out.ExternPaths = append([]ExternPath(nil), cfg.ExternPaths...)
	out.FieldAttributes = append([]Attribute(nil), cfg.FieldAttributes...)
	out.TypeAttributes = append([]Attribute(nil), cfg.TypeAttributes...)
	out.MessageAttributes = append([]Attribute(nil), cfg.MessageAttributes...)
	out.EnumAttributes = append([]Attribute(nil), cfg.EnumAttributes...)
	out.ClientModAttributes = append([]Attribute(nil), cfg.ClientModAttributes...)
	out.ClientAttributes = append([]Attribute(nil), cfg.ClientAttributes...)
	out.ServerModAttributes = append([]Attribute(nil), cfg.ServerModAttributes...)
	out.ServerAttributes = append([]Attribute(nil), cfg.ServerAttributes...)
	out.BoxedFields = append([]string(nil), cfg.BoxedFields...)
	out.OrderedMapFields = append([]string(nil), cfg.OrderedMapFields...)
	out.ZeroCopyBytesFields = append([]string(nil), cfg.ZeroCopyBytesFields...)
	out.CompilerArgs = append([]string(nil), cfg.CompilerArgs...)
	out.DisableComments = append([]string(nil), cfg.DisableComments...)

	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		a := sl.Current().Interface().(gengo.Attribute)
		if a.Pattern == "" {
			sl.ReportError(a.Pattern, "Pattern", "Pattern", "required", "")
		}
		if a.Text == "" {
			sl.ReportError(a.Text, "Text", "Text", "required", "")
		}
	}, gengo.Attribute{})
	return v
}

func validateConfig(cfg GenerationConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// outputRoot resolves the output root for a snapshot: the explicit OutDir
// or the documented default.
func outputRoot(cfg GenerationConfig) string {
	if cfg.OutDir != "" {
		return cfg.OutDir
	}
	return "gen"
}
