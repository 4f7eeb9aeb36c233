// Package simwiregen generates paired Go RPC artifacts from proto service
// definitions: a production tree wired to gRPC and a simulated tree wired
// to the in-memory network fabric, structurally identical except for that
// wiring.
//
// Configuration accumulates on a Builder and is compiled in two passes:
//
//	err := simwiregen.Configure().
//	    OutDir("gen").
//	    Version("v0.3.0").
//	    Compile([]string{"helloworld/v1/greeter.proto"}, []string{"proto"})
package simwiregen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/simwire/simwire/simwiregen/sink"
)

// ErrBuilderConsumed is returned by the terminal methods of a Builder that
// has already compiled. Builders are single use.
var ErrBuilderConsumed = errors.New("builder already compiled; configure a new one")

// Builder accumulates generation settings and drives the two emission
// passes. Create one with Configure, chain the options, and finish with
// Compile or CompileInto.
type Builder struct {
	cfg      GenerationConfig
	watchOut io.Writer
	consumed bool
}

// Configure returns a Builder with the documented defaults: client,
// server, and transport convenience generation enabled, routes qualified
// with the proto package, output rooted at "gen".
func Configure() *Builder {
	return &Builder{
		cfg: GenerationConfig{
			BuildClient:    true,
			BuildServer:    true,
			BuildTransport: true,
			EmitPackage:    true,
		},
	}
}

// BuildClient toggles generation of client code.
func (b *Builder) BuildClient(enabled bool) *Builder {
	b.cfg.BuildClient = enabled
	return b
}

// BuildServer toggles generation of server code.
func (b *Builder) BuildServer(enabled bool) *Builder {
	b.cfg.BuildServer = enabled
	return b
}

// BuildTransport toggles the per-transport Dial and Serve convenience
// functions, the only generated code that differs between the two trees.
func (b *Builder) BuildTransport(enabled bool) *Builder {
	b.cfg.BuildTransport = enabled
	return b
}

// FileDescriptorSet writes the compiled file descriptor set, with imports
// and source info, to path under the output root.
func (b *Builder) FileDescriptorSet(path string) *Builder {
	b.cfg.FileDescriptorSetPath = path
	return b
}

// SkipCompile skips proto compilation and loads the descriptor set written
// by a previous run at the FileDescriptorSet path instead.
func (b *Builder) SkipCompile(skip bool) *Builder {
	b.cfg.SkipCompile = skip
	return b
}

// OutDir overrides the output root. The production tree is written
// directly under it and the simulated tree under its "sim" subdirectory.
func (b *Builder) OutDir(dir string) *Builder {
	b.cfg.OutDir = dir
	return b
}

// ExternPath maps a proto type or package prefix to an externally provided
// Go type or package. Calls accumulate in order; at lookup time the
// longest matching prefix wins, with earlier registrations breaking ties.
func (b *Builder) ExternPath(protoPath, goPath string) *Builder {
	b.cfg.ExternPaths = append(b.cfg.ExternPaths, ExternPath{ProtoPath: protoPath, GoPath: goPath})
	return b
}

// FieldAttribute appends an attribute for matched message fields, carried
// through to the message toolchain configuration of both passes.
func (b *Builder) FieldAttribute(pattern, text string) *Builder {
	b.cfg.FieldAttributes = append(b.cfg.FieldAttributes, Attribute{Pattern: pattern, Text: text})
	return b
}

// TypeAttribute appends an attribute for matched message types.
func (b *Builder) TypeAttribute(pattern, text string) *Builder {
	b.cfg.TypeAttributes = append(b.cfg.TypeAttributes, Attribute{Pattern: pattern, Text: text})
	return b
}

// MessageAttribute appends an attribute applied only to messages, not to
// enums.
func (b *Builder) MessageAttribute(pattern, text string) *Builder {
	b.cfg.MessageAttributes = append(b.cfg.MessageAttributes, Attribute{Pattern: pattern, Text: text})
	return b
}

// EnumAttribute appends an attribute applied only to enums.
func (b *Builder) EnumAttribute(pattern, text string) *Builder {
	b.cfg.EnumAttributes = append(b.cfg.EnumAttributes, Attribute{Pattern: pattern, Text: text})
	return b
}

// ClientModAttribute appends source text emitted above the client section
// of matched services.
func (b *Builder) ClientModAttribute(pattern, text string) *Builder {
	b.cfg.ClientModAttributes = append(b.cfg.ClientModAttributes, Attribute{Pattern: pattern, Text: text})
	return b
}

// ClientAttribute appends source text emitted above the client interface
// of matched services.
func (b *Builder) ClientAttribute(pattern, text string) *Builder {
	b.cfg.ClientAttributes = append(b.cfg.ClientAttributes, Attribute{Pattern: pattern, Text: text})
	return b
}

// ServerModAttribute appends source text emitted above the server section
// of matched services.
func (b *Builder) ServerModAttribute(pattern, text string) *Builder {
	b.cfg.ServerModAttributes = append(b.cfg.ServerModAttributes, Attribute{Pattern: pattern, Text: text})
	return b
}

// ServerAttribute appends source text emitted above the server interface
// of matched services.
func (b *Builder) ServerAttribute(pattern, text string) *Builder {
	b.cfg.ServerAttributes = append(b.cfg.ServerAttributes, Attribute{Pattern: pattern, Text: text})
	return b
}

// Boxed appends one field path whose message field is emitted behind a
// pointer indirection.
func (b *Builder) Boxed(path string) *Builder {
	b.cfg.BoxedFields = append(b.cfg.BoxedFields, path)
	return b
}

// OrderedMaps replaces the list of field paths whose map fields use an
// ordered representation. Unlike the attribute lists, each call discards
// the previous list entirely.
func (b *Builder) OrderedMaps(paths ...string) *Builder {
	b.cfg.OrderedMapFields = append([]string(nil), paths...)
	return b
}

// ZeroCopyBytes replaces the list of field paths whose bytes fields use a
// zero-copy representation. Each call discards the previous list.
func (b *Builder) ZeroCopyBytes(paths ...string) *Builder {
	b.cfg.ZeroCopyBytesFields = append([]string(nil), paths...)
	return b
}

// MessagePackage resolves every request and response type against one
// fixed import path instead of each file's go_package option. A ";alias"
// suffix picks the package identifier.
func (b *Builder) MessagePackage(importPath string) *Builder {
	b.cfg.MessagePackage = importPath
	return b
}

// CompileWellKnownTypes treats the well-known types like any other
// message, for builds that compile the standard protos from source.
func (b *Builder) CompileWellKnownTypes(enabled bool) *Builder {
	b.cfg.CompileWellKnownTypes = enabled
	return b
}

// CompilerArg appends protoc-style arguments. Recognized forms are -I,
// --proto_path= and --descriptor_set_in=; anything else fails the run.
func (b *Builder) CompilerArg(args ...string) *Builder {
	b.cfg.CompilerArgs = append(b.cfg.CompilerArgs, args...)
	return b
}

// IncludeFile writes an aggregation file at path under each pass's output
// directory, blank-importing every message package so their types register
// on program start.
func (b *Builder) IncludeFile(path string) *Builder {
	b.cfg.IncludeFilePath = path
	return b
}

// EmitWatchSignals prints one "simwire:watch=<path>" line per input file
// and include directory before generation, for build systems that watch
// generator inputs. Off by default; there is no environment sniffing.
func (b *Builder) EmitWatchSignals(enabled bool) *Builder {
	b.cfg.EmitWatchSignals = enabled
	return b
}

// WatchOutput redirects the watch signal lines, which go to stdout by
// default.
func (b *Builder) WatchOutput(w io.Writer) *Builder {
	b.watchOut = w
	return b
}

// DisableComments appends proto paths whose doc comments are dropped from
// the generated code.
func (b *Builder) DisableComments(patterns ...string) *Builder {
	b.cfg.DisableComments = append(b.cfg.DisableComments, patterns...)
	return b
}

// SharedStubs puts default stub methods on pointer receivers so one stub
// value can be shared across implementations.
func (b *Builder) SharedStubs(enabled bool) *Builder {
	b.cfg.SharedStubs = enabled
	return b
}

// GenerateDefaultStubs emits Unimplemented server stubs whose methods
// answer codes.Unimplemented. Off by default, leaving every method a
// compile-time obligation.
func (b *Builder) GenerateDefaultStubs(enabled bool) *Builder {
	b.cfg.GenerateDefaultStubs = enabled
	return b
}

// EmitPackage controls whether route paths carry the proto package
// qualifier. On by default.
func (b *Builder) EmitPackage(enabled bool) *Builder {
	b.cfg.EmitPackage = enabled
	return b
}

// Version records a version string in generated file headers.
func (b *Builder) Version(v string) *Builder {
	b.cfg.Version = v
	return b
}

// Compile runs both generation passes against the filesystem, writing the
// production tree under the output root and the simulated tree under its
// "sim" subdirectory. It consumes the Builder.
func (b *Builder) Compile(protos, includes []string) error {
	if b.consumed {
		return ErrBuilderConsumed
	}
	root := outputRoot(b.cfg)
	if err := os.MkdirAll(filepath.Join(root, "sim"), 0o755); err != nil {
		return fmt.Errorf("creating simulated output directory: %w", err)
	}
	return b.CompileInto(sink.NewFilesystemSink(root), protos, includes)
}

// CompileInto runs both generation passes against an arbitrary sink,
// which is how dry runs and tests observe output without touching the
// filesystem. It consumes the Builder.
func (b *Builder) CompileInto(out sink.OutputSink, protos, includes []string) error {
	if b.consumed {
		return ErrBuilderConsumed
	}
	b.consumed = true
	return generate(context.Background(), b.cfg, b.watchOut, out, protos, includes)
}
