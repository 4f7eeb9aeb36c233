// Package provider implements input providers that load compiled service
// definitions, either by compiling proto sources or by reading serialized
// descriptor sets, and convert them to the intermediate representation.
package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// DescriptorProvider loads service definitions from protobuf descriptors.
type DescriptorProvider struct{}

// Options configures a load.
type Options struct {
	// Files are the proto files to load services from, named relative to
	// the import paths. With DescriptorSetIn they instead filter the set;
	// empty means every file in the set.
	Files []string

	// ImportPaths are the directories proto imports are resolved against.
	// The standard google/protobuf imports are always available.
	ImportPaths []string

	// DescriptorSetIn lists serialized FileDescriptorSet files to load
	// instead of compiling sources.
	DescriptorSetIn []string

	// ExternTypes maps IDL names to externally provided Go types.
	ExternTypes []ExternType
}

// Compilation is the result of one load. Services appear in file order, and
// within a file in declaration order.
type Compilation struct {
	// Services lists every service found in the loaded files.
	Services []*Service

	// FileSet holds the loaded files and their transitive imports, imports
	// first. It is suitable for writing out as a descriptor set.
	FileSet *descriptorpb.FileDescriptorSet

	// WatchPaths lists the filesystem paths the load depended on.
	WatchPaths []string
}

// Load compiles or reads the configured inputs once and adapts every service
// they declare. A parse or link failure aborts the whole load; there is no
// partial result.
func (p *DescriptorProvider) Load(ctx context.Context, opts Options) (*Compilation, error) {
	if len(opts.DescriptorSetIn) > 0 {
		return p.loadDescriptorSets(opts)
	}
	return p.compile(ctx, opts)
}

func (p *DescriptorProvider) compile(ctx context.Context, opts Options) (*Compilation, error) {
	if len(opts.Files) == 0 {
		return nil, fmt.Errorf("no proto files specified")
	}

	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: opts.ImportPaths,
		}),
		SourceInfoMode: protocompile.SourceInfoStandard,
	}
	files, err := compiler.Compile(ctx, opts.Files...)
	if err != nil {
		return nil, fmt.Errorf("compiling protos: %w", err)
	}

	fds := make([]protoreflect.FileDescriptor, len(files))
	for i, f := range files {
		fds[i] = f
	}
	return p.assemble(fds, opts, watchPathsFor(opts))
}

func (p *DescriptorProvider) loadDescriptorSets(opts Options) (*Compilation, error) {
	merged := &descriptorpb.FileDescriptorSet{}
	seen := make(map[string]bool)
	for _, path := range opts.DescriptorSetIn {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading descriptor set: %w", err)
		}
		var set descriptorpb.FileDescriptorSet
		if err := proto.Unmarshal(raw, &set); err != nil {
			return nil, fmt.Errorf("parsing descriptor set %s: %w", path, err)
		}
		for _, f := range set.File {
			if !seen[f.GetName()] {
				seen[f.GetName()] = true
				merged.File = append(merged.File, f)
			}
		}
	}

	reg, err := protodesc.NewFiles(merged)
	if err != nil {
		return nil, fmt.Errorf("linking descriptor set: %w", err)
	}

	want := make(map[string]bool, len(opts.Files))
	for _, f := range opts.Files {
		want[f] = true
	}
	var fds []protoreflect.FileDescriptor
	for _, fdp := range merged.File {
		if len(want) > 0 && !want[fdp.GetName()] {
			continue
		}
		fd, err := reg.FindFileByPath(fdp.GetName())
		if err != nil {
			return nil, fmt.Errorf("descriptor set: %w", err)
		}
		fds = append(fds, fd)
	}
	return p.assemble(fds, opts, append([]string(nil), opts.DescriptorSetIn...))
}

// assemble indexes the loaded files and their transitive imports, then wraps
// the services declared in the requested files.
func (p *DescriptorProvider) assemble(fds []protoreflect.FileDescriptor, opts Options, watch []string) (*Compilation, error) {
	naming := newTargetResolver(opts.ExternTypes)
	set := &descriptorpb.FileDescriptorSet{}
	seen := make(map[string]bool)
	var add func(fd protoreflect.FileDescriptor)
	add = func(fd protoreflect.FileDescriptor) {
		if seen[fd.Path()] {
			return
		}
		seen[fd.Path()] = true
		imps := fd.Imports()
		for i := 0; i < imps.Len(); i++ {
			add(imps.Get(i).FileDescriptor)
		}
		naming.indexFile(fd)
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	for _, fd := range fds {
		add(fd)
	}

	c := &Compilation{FileSet: set, WatchPaths: watch}
	for _, fd := range fds {
		svcs := fd.Services()
		for i := 0; i < svcs.Len(); i++ {
			c.Services = append(c.Services, &Service{sd: svcs.Get(i), fd: fd, naming: naming})
		}
	}
	return c, nil
}

// watchPathsFor resolves the load's inputs to filesystem paths a file
// watcher can observe.
func watchPathsFor(opts Options) []string {
	var paths []string
	for _, f := range opts.Files {
		paths = append(paths, resolveProtoPath(opts.ImportPaths, f))
	}
	paths = append(paths, opts.ImportPaths...)
	return paths
}

func resolveProtoPath(importPaths []string, name string) string {
	for _, dir := range importPaths {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return name
}
