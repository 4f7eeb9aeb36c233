package simwiregen

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"google.golang.org/protobuf/proto"

	"github.com/simwire/simwire/simwiregen/gengo"
	"github.com/simwire/simwire/simwiregen/ir"
	"github.com/simwire/simwire/simwiregen/provider"
	"github.com/simwire/simwire/simwiregen/sink"
)

// generate runs the full pipeline: validate, load descriptors once, then
// emit the simulated tree followed by the production tree from the same
// compilation.
func generate(ctx context.Context, cfg GenerationConfig, watchOut io.Writer, out sink.OutputSink, protos, includes []string) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	extraIncludes, descriptorSets, err := parseCompilerArgs(cfg.CompilerArgs)
	if err != nil {
		return err
	}

	simTarget := deriveTarget(cfg, "sim", gengo.TransportSim)
	prodTarget := deriveTarget(cfg, ".", gengo.TransportGRPC)

	popts := provider.Options{
		Files:       protos,
		ImportPaths: append(append([]string(nil), includes...), extraIncludes...),
		ExternTypes: externTypes(cfg),
	}
	if cfg.SkipCompile {
		popts.DescriptorSetIn = append([]string(nil), descriptorSets...)
		if cfg.FileDescriptorSetPath != "" {
			popts.DescriptorSetIn = append(popts.DescriptorSetIn,
				filepath.Join(outputRoot(cfg), cfg.FileDescriptorSetPath))
		}
		if len(popts.DescriptorSetIn) == 0 {
			return fmt.Errorf("skip compile requires a descriptor set; set FileDescriptorSet or pass --descriptor_set_in")
		}
	} else {
		popts.DescriptorSetIn = append([]string(nil), descriptorSets...)
	}

	comp, err := (&provider.DescriptorProvider{}).Load(ctx, popts)
	if err != nil {
		return err
	}

	if cfg.EmitWatchSignals {
		emitWatchSignals(watchOut, comp.WatchPaths)
	}

	if err := runPass(ctx, simTarget, comp, out); err != nil {
		return err
	}
	if err := runPass(ctx, prodTarget, comp, out); err != nil {
		return err
	}

	if cfg.FileDescriptorSetPath != "" && !cfg.SkipCompile {
		data, err := proto.Marshal(comp.FileSet)
		if err != nil {
			return fmt.Errorf("encoding descriptor set: %w", err)
		}
		if err := out.WriteFile(ctx, cfg.FileDescriptorSetPath, data); err != nil {
			return fmt.Errorf("writing descriptor set: %w", err)
		}
	}
	return nil
}

// parseCompilerArgs interprets the protoc-style argument list. It accepts
// include paths as -I, -Ipath, --proto_path path or --proto_path=path,
// and descriptor sets as --descriptor_set_in with either separator.
func parseCompilerArgs(args []string) (includes, descriptorSets []string, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		takeValue := func(name string) (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("compiler argument %s is missing its path", name)
			}
			return args[i], nil
		}
		switch {
		case arg == "-I" || arg == "--proto_path":
			v, err := takeValue(arg)
			if err != nil {
				return nil, nil, err
			}
			includes = append(includes, v)
		case strings.HasPrefix(arg, "-I"):
			includes = append(includes, strings.TrimPrefix(arg, "-I"))
		case strings.HasPrefix(arg, "--proto_path="):
			includes = append(includes, strings.TrimPrefix(arg, "--proto_path="))
		case arg == "--descriptor_set_in":
			v, err := takeValue(arg)
			if err != nil {
				return nil, nil, err
			}
			descriptorSets = append(descriptorSets, v)
		case strings.HasPrefix(arg, "--descriptor_set_in="):
			descriptorSets = append(descriptorSets, strings.TrimPrefix(arg, "--descriptor_set_in="))
		default:
			return nil, nil, fmt.Errorf("unsupported compiler argument %q", arg)
		}
	}
	return includes, descriptorSets, nil
}

func externTypes(cfg GenerationConfig) []provider.ExternType {
	if len(cfg.ExternPaths) == 0 {
		return nil
	}
	ext := make([]provider.ExternType, len(cfg.ExternPaths))
	for i, e := range cfg.ExternPaths {
		ext[i] = provider.ExternType{ProtoPrefix: e.ProtoPath, GoTarget: e.GoPath}
	}
	return ext
}

// emitWatchSignals prints one line per generator input so wrapping build
// systems can re-run generation when inputs change.
func emitWatchSignals(w io.Writer, paths []string) {
	if w == nil {
		w = os.Stdout
	}
	for _, p := range paths {
		fmt.Fprintf(w, "simwire:watch=%s\n", p)
	}
}

// runPass emits one complete output tree for a single transport. Services
// are grouped by proto package, one generated file per package, in the
// order the compilation discovered them.
func runPass(ctx context.Context, target TargetConfig, comp *provider.Compilation, out sink.OutputSink) error {
	gcfg := gengoConfig(target)

	var order []string
	byPkg := make(map[string][]*provider.Service)
	for _, svc := range comp.Services {
		pkg := svc.Package()
		if _, ok := byPkg[pkg]; !ok {
			order = append(order, pkg)
		}
		byPkg[pkg] = append(byPkg[pkg], svc)
	}

	messagePaths := make(map[string]bool)
	for _, pkg := range order {
		services := byPkg[pkg]
		ident := wirePackageIdent(pkg, services[0].SourceFile())
		gen := gengo.New(gcfg, ident)
		for _, svc := range services {
			msgPkg, err := messagePackageFor(target, svc)
			if err != nil {
				return err
			}
			if msgPkg.Path != "" {
				messagePaths[msgPkg.Path] = true
			}
			if err := gen.Service(svc, msgPkg, svc.SourceFile()); err != nil {
				return err
			}
		}
		src, err := gen.Finalize()
		if err != nil {
			return err
		}
		if src == nil {
			continue
		}
		rel := path.Join(target.OutDir, strings.ReplaceAll(pkg, ".", "/"), ident+".wire.go")
		if err := out.WriteFile(ctx, rel, src); err != nil {
			return fmt.Errorf("writing %s: %w", rel, err)
		}
	}

	if target.IncludeFilePath != "" {
		if err := writeIncludeFile(ctx, target, messagePaths, out); err != nil {
			return err
		}
	}
	return nil
}

// gengoConfig maps the per-pass settings onto the emitter configuration.
func gengoConfig(target TargetConfig) gengo.Config {
	return gengo.Config{
		Transport:             target.Transport,
		BuildClient:           target.BuildClient,
		BuildServer:           target.BuildServer,
		BuildTransport:        target.BuildTransport,
		EmitPackage:           target.EmitPackage,
		GenerateDefaultStubs:  target.GenerateDefaultStubs,
		SharedStubs:           target.SharedStubs,
		CompileWellKnownTypes: target.CompileWellKnownTypes,
		DisableComments:       target.DisableComments,
		ClientModAttributes:   target.ClientModAttributes,
		ClientAttributes:      target.ClientAttributes,
		ServerModAttributes:   target.ServerModAttributes,
		ServerAttributes:      target.ServerAttributes,
		Version:               target.Version,
	}
}

// messagePackageFor resolves where a service's request and response types
// live. A configured MessagePackage overrides every file's go_package; an
// ";alias" suffix picks the package identifier.
func messagePackageFor(target TargetConfig, svc *provider.Service) (ir.ImportRef, error) {
	if target.MessagePackage != "" {
		p, alias, found := strings.Cut(target.MessagePackage, ";")
		if !found {
			alias = ir.AliasFor(p)
		}
		return ir.ImportRef{Path: p, Alias: alias}, nil
	}
	return svc.MessageImport()
}

// wirePackageIdent derives the Go package identifier for a generated
// file from the proto package, falling back to the source file name for
// packageless protos.
func wirePackageIdent(protoPackage, source string) string {
	name := protoPackage
	if name == "" {
		base := path.Base(source)
		name = strings.TrimSuffix(base, path.Ext(base))
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	ident := b.String()
	if ident == "" {
		return "wire"
	}
	if ident[0] >= '0' && ident[0] <= '9' {
		ident = "_" + ident
	}
	return ident
}

// writeIncludeFile emits the aggregation file for one pass: a package
// that blank-imports every message package referenced by the generated
// services, so importing it registers all their types.
func writeIncludeFile(ctx context.Context, target TargetConfig, messagePaths map[string]bool, out sink.OutputSink) error {
	paths := make([]string, 0, len(messagePaths))
	for p := range messagePaths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	base := path.Base(target.IncludeFilePath)
	pkg := wirePackageIdent(strings.TrimSuffix(base, path.Ext(base)), base)

	var b strings.Builder
	b.WriteString("// Code generated by simwire. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n", pkg)
	if len(paths) > 0 {
		b.WriteString("\nimport (\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "\t_ %q\n", p)
		}
		b.WriteString(")\n")
	}

	rel := path.Join(target.OutDir, target.IncludeFilePath)
	if err := out.WriteFile(ctx, rel, []byte(b.String())); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}
