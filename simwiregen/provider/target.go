package provider

import (
	"fmt"
	"strings"

	"github.com/simwire/simwire/simwiregen/ir"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ExternType maps an IDL name or name prefix to an externally provided Go
// type, overriding normal resolution for everything beneath the prefix.
type ExternType struct {
	// ProtoPrefix is a fully qualified IDL name in leading-dot form, or a
	// package prefix covering everything beneath it, e.g. ".mycorp.billing"
	// or ".mycorp.billing.Invoice".
	ProtoPrefix string

	// GoTarget replaces the prefix. For an exact match it is used verbatim
	// and may be any resolvable target, including a qualified name such as
	// "time.Time". For a prefix match it must be an import path: IDL package
	// segments after the prefix (lower-case) extend the path, and the
	// trailing type name segments (upper-case) form the Go identifier.
	GoTarget string
}

// targetResolver computes the source-language target name for each IDL type
// reference. It is built once per load and never mutated afterwards, so
// lookups against it are pure.
type targetResolver struct {
	externs  []ExternType
	messages map[protoreflect.FullName]messageLoc
}

type messageLoc struct {
	fd    protoreflect.FileDescriptor
	parts []string
}

func newTargetResolver(externs []ExternType) *targetResolver {
	return &targetResolver{
		externs:  externs,
		messages: make(map[protoreflect.FullName]messageLoc),
	}
}

// indexFile records every message declared in fd, including nested ones.
func (r *targetResolver) indexFile(fd protoreflect.FileDescriptor) {
	var walk func(md protoreflect.MessageDescriptor, parts []string)
	walk = func(md protoreflect.MessageDescriptor, parts []string) {
		parts = append(append([]string(nil), parts...), string(md.Name()))
		r.messages[md.FullName()] = messageLoc{fd: fd, parts: parts}
		nested := md.Messages()
		for i := 0; i < nested.Len(); i++ {
			walk(nested.Get(i), parts)
		}
	}
	msgs := fd.Messages()
	for i := 0; i < msgs.Len(); i++ {
		walk(msgs.Get(i), nil)
	}
}

// targetFor maps one IDL type reference (leading-dot form) to its target
// name. from is the file the reference appears in: types in its message
// package come back bare, everything else as an absolute reference.
func (r *targetResolver) targetFor(from protoreflect.FileDescriptor, idlName string, compileWellKnownTypes bool) (string, error) {
	if target, ok, err := r.externTarget(idlName); ok || err != nil {
		return target, err
	}

	if ir.IsWellKnown(idlName) && !compileWellKnownTypes {
		target, ok := ir.WellKnownTarget(idlName)
		if !ok {
			return "", fmt.Errorf("%s has no known-types mapping; enable CompileWellKnownTypes to generate it from source", idlName)
		}
		return target, nil
	}

	loc, ok := r.messages[protoreflect.FullName(strings.TrimPrefix(idlName, "."))]
	if !ok {
		return "", fmt.Errorf("referenced type %s is not defined in the compiled files", idlName)
	}

	ident := ir.NestedIdent(loc.parts)
	if loc.fd.Path() == from.Path() {
		return ident, nil
	}

	pkg, err := goPackageOf(loc.fd)
	if err != nil {
		return "", err
	}
	if pkg.IsZero() {
		return "", fmt.Errorf("cannot reference %s: file %s declares no go_package", idlName, loc.fd.Path())
	}
	fromPkg, err := goPackageOf(from)
	if err != nil {
		return "", err
	}
	if !fromPkg.IsZero() && fromPkg.Path == pkg.Path {
		return ident, nil
	}
	return pkg.Path + "." + ident, nil
}

// externTarget applies the configured extern type overrides. The longest
// matching prefix wins; registration order breaks ties.
func (r *targetResolver) externTarget(idlName string) (string, bool, error) {
	best := -1
	for i, e := range r.externs {
		if idlName != e.ProtoPrefix && !strings.HasPrefix(idlName, e.ProtoPrefix+".") {
			continue
		}
		if best < 0 || len(e.ProtoPrefix) > len(r.externs[best].ProtoPrefix) {
			best = i
		}
	}
	if best < 0 {
		return "", false, nil
	}

	e := r.externs[best]
	if idlName == e.ProtoPrefix {
		return e.GoTarget, true, nil
	}
	if !strings.Contains(e.GoTarget, "/") {
		return "", false, fmt.Errorf("extern type %s: target %q must be an import path to cover %s", e.ProtoPrefix, e.GoTarget, idlName)
	}

	segs := strings.Split(strings.TrimPrefix(idlName, e.ProtoPrefix+"."), ".")
	split := len(segs) - 1
	for i, s := range segs {
		if s != "" && s[0] >= 'A' && s[0] <= 'Z' {
			split = i
			break
		}
	}
	path := e.GoTarget
	if split > 0 {
		path += "/" + strings.Join(segs[:split], "/")
	}
	return path + "." + ir.NestedIdent(segs[split:]), true, nil
}

// goPackageOf derives the Go import package for a file from its go_package
// option. The option may carry an explicit alias after a semicolon, as in
// "example.com/hello/gen/hellopb;hellopb". A file without the option yields
// the zero ImportRef.
func goPackageOf(fd protoreflect.FileDescriptor) (ir.ImportRef, error) {
	opts, _ := fd.Options().(*descriptorpb.FileOptions)
	gp := opts.GetGoPackage()
	if gp == "" {
		return ir.ImportRef{}, nil
	}
	path, alias, hasAlias := strings.Cut(gp, ";")
	if hasAlias && (path == "" || alias == "") {
		return ir.ImportRef{}, fmt.Errorf("malformed go_package %q in %s", gp, fd.Path())
	}
	if alias == "" {
		alias = ir.AliasFor(path)
	}
	return ir.ImportRef{Path: path, Alias: alias}, nil
}
