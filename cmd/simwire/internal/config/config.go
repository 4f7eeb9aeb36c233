// Package config resolves the generator settings shared by the gen,
// check, and watch commands. Settings come from a TOML file, command line
// flags, and --set overrides, applied in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/iancoleman/strcase"
	"github.com/pelletier/go-toml/v2"

	"github.com/simwire/simwire/simwiregen"
)

// Flags are the command line inputs shared by gen, check, and watch.
// Commands embed them so every subcommand reads the same configuration
// the same way.
type Flags struct {
	Protos    []string `arg:"" optional:"" help:"Proto files to compile. Overrides the config file's protos list."`
	Config    string   `help:"Path to the TOML config file." short:"c" default:"simwire.toml"`
	ProtoPath []string `help:"Directory to search for proto imports. May repeat." name:"proto-path" short:"I" placeholder:"DIR"`
	Out       string   `help:"Output root directory. Overrides the config file." short:"o" placeholder:"DIR"`
	Set       []string `help:"Override a single config key, e.g. --set server=false." placeholder:"key=value"`
}

// Options is the full set of generator settings. TOML keys are
// snake_case, and the same keys work with --set.
type Options struct {
	Protos   []string `toml:"protos" schema:"protos"`
	Includes []string `toml:"includes" schema:"includes"`
	Out      string   `toml:"out" schema:"out" validate:"required"`

	// Client, Server, Transport, and Package mirror the builder toggles
	// of the same names. All default to on.
	Client    bool `toml:"client" schema:"client"`
	Server    bool `toml:"server" schema:"server"`
	Transport bool `toml:"transport" schema:"transport"`
	Package   bool `toml:"package" schema:"package"`

	DefaultStubs bool `toml:"default_stubs" schema:"default_stubs"`
	SharedStubs  bool `toml:"shared_stubs" schema:"shared_stubs"`

	MessagePackage        string `toml:"message_package" schema:"message_package"`
	CompileWellKnownTypes bool   `toml:"compile_well_known_types" schema:"compile_well_known_types"`

	// DescriptorSet names a file under the output root. Generation
	// writes the compiled descriptor set there; with SkipCompile it is
	// read back instead of compiling proto sources.
	DescriptorSet string `toml:"descriptor_set" schema:"descriptor_set"`
	SkipCompile   bool   `toml:"skip_compile" schema:"skip_compile"`

	IncludeFile  string `toml:"include_file" schema:"include_file"`
	WatchSignals bool   `toml:"watch_signals" schema:"watch_signals"`
	Version      string `toml:"version" schema:"version"`

	Boxed           []string `toml:"boxed" schema:"boxed"`
	OrderedMaps     []string `toml:"ordered_maps" schema:"ordered_maps"`
	ZeroCopyBytes   []string `toml:"zero_copy_bytes" schema:"zero_copy_bytes"`
	DisableComments []string `toml:"disable_comments" schema:"disable_comments"`
	CompilerArgs    []string `toml:"compiler_args" schema:"compiler_args"`

	Extern     []Extern    `toml:"extern" schema:"-" validate:"dive"`
	Attributes []Attribute `toml:"attribute" schema:"-" validate:"dive"`
}

// Extern maps a proto type or package prefix to an externally provided Go
// type or package.
type Extern struct {
	Proto string `toml:"proto" validate:"required,startswith=."`
	Go    string `toml:"go" validate:"required"`
}

// Attribute injects source text above matched generated declarations.
// Kind selects which declarations the pattern is matched against.
type Attribute struct {
	Kind    string `toml:"kind" validate:"required,oneof=field type message enum client client_mod server server_mod"`
	Pattern string `toml:"pattern" validate:"required"`
	Text    string `toml:"text" validate:"required"`
}

// Defaults returns the options an empty config file resolves to.
func Defaults() *Options {
	return &Options{
		Out:       "gen",
		Client:    true,
		Server:    true,
		Transport: true,
		Package:   true,
	}
}

// Load resolves the effective options for one run. A missing config file
// is not an error; the defaults plus flags must then supply the inputs.
func Load(f Flags) (*Options, error) {
	opts := Defaults()

	data, err := os.ReadFile(f.Config)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Config, err)
		}
	}

	if len(f.Protos) > 0 {
		opts.Protos = f.Protos
	}
	opts.Includes = append(opts.Includes, f.ProtoPath...)
	if f.Out != "" {
		opts.Out = f.Out
	}
	if err := applySets(opts, f.Set); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// setDecoder maps --set keys onto Options fields. It does not ignore
// unknown keys: a mistyped key fails the run instead of silently doing
// nothing.
var setDecoder = schema.NewDecoder()

func applySets(opts *Options, pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	values := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("--set %q: want key=value", pair)
		}
		values.Add(key, value)
	}
	if err := setDecoder.Decode(opts, values); err != nil {
		return fmt.Errorf("applying --set overrides: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the resolved options, rendering failures with the TOML
// keys the user actually wrote.
func (o *Options) Validate() error {
	err := validate.Struct(o)
	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		messages := make([]string, 0, len(valErrs))
		for _, ve := range valErrs {
			messages = append(messages, configKey(ve)+": "+describeFailure(ve))
		}
		return errors.New("invalid configuration: " + strings.Join(messages, "; "))
	}
	if err != nil {
		return err
	}

	if len(o.Protos) == 0 && !o.SkipCompile {
		return errors.New("no protos to compile; list them in the config file or pass them as arguments")
	}
	if o.SkipCompile && o.DescriptorSet == "" && len(o.CompilerArgs) == 0 {
		return errors.New("skip_compile requires descriptor_set or a --descriptor_set_in compiler arg")
	}
	return nil
}

// configKey renders the failed field as the key the user wrote, e.g.
// "extern[0].proto" rather than "Options.Extern[0].Proto".
func configKey(ve validator.FieldError) string {
	ns := ve.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, part := range parts {
		index := ""
		if j := strings.IndexByte(part, '['); j >= 0 {
			part, index = part[:j], part[j:]
		}
		parts[i] = strcase.ToSnake(part) + index
	}
	return strings.Join(parts, ".")
}

// describeFailure converts a validator.FieldError to a human-readable
// message.
func describeFailure(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

// Builder translates the options into a configured generation builder.
// The builder is one-shot; callers wanting another run build another.
func (o *Options) Builder() *simwiregen.Builder {
	b := simwiregen.Configure().
		BuildClient(o.Client).
		BuildServer(o.Server).
		BuildTransport(o.Transport).
		EmitPackage(o.Package).
		GenerateDefaultStubs(o.DefaultStubs).
		SharedStubs(o.SharedStubs).
		CompileWellKnownTypes(o.CompileWellKnownTypes).
		SkipCompile(o.SkipCompile).
		EmitWatchSignals(o.WatchSignals).
		OutDir(o.Out)
	if o.MessagePackage != "" {
		b.MessagePackage(o.MessagePackage)
	}
	if o.DescriptorSet != "" {
		b.FileDescriptorSet(o.DescriptorSet)
	}
	if o.IncludeFile != "" {
		b.IncludeFile(o.IncludeFile)
	}
	if o.Version != "" {
		b.Version(o.Version)
	}
	for _, path := range o.Boxed {
		b.Boxed(path)
	}
	if len(o.OrderedMaps) > 0 {
		b.OrderedMaps(o.OrderedMaps...)
	}
	if len(o.ZeroCopyBytes) > 0 {
		b.ZeroCopyBytes(o.ZeroCopyBytes...)
	}
	if len(o.DisableComments) > 0 {
		b.DisableComments(o.DisableComments...)
	}
	if len(o.CompilerArgs) > 0 {
		b.CompilerArg(o.CompilerArgs...)
	}
	for _, e := range o.Extern {
		b.ExternPath(e.Proto, e.Go)
	}
	for _, a := range o.Attributes {
		switch a.Kind {
		case "field":
			b.FieldAttribute(a.Pattern, a.Text)
		case "type":
			b.TypeAttribute(a.Pattern, a.Text)
		case "message":
			b.MessageAttribute(a.Pattern, a.Text)
		case "enum":
			b.EnumAttribute(a.Pattern, a.Text)
		case "client":
			b.ClientAttribute(a.Pattern, a.Text)
		case "client_mod":
			b.ClientModAttribute(a.Pattern, a.Text)
		case "server":
			b.ServerAttribute(a.Pattern, a.Text)
		case "server_mod":
			b.ServerModAttribute(a.Pattern, a.Text)
		}
	}
	return b
}
