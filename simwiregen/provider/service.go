package provider

import (
	"fmt"
	"strings"

	"github.com/simwire/simwire/simwiregen/ir"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Service adapts one compiled service descriptor to ir.Service. Every answer
// is recomputed from the descriptor on each call and the adapter holds no
// generation-pass state, so one Service can serve any number of passes.
type Service struct {
	sd     protoreflect.ServiceDescriptor
	fd     protoreflect.FileDescriptor
	naming *targetResolver
}

// Name returns the declared service name.
func (s *Service) Name() string { return string(s.sd.Name()) }

// Package returns the IDL package the service is declared in.
func (s *Service) Package() string { return string(s.fd.Package()) }

// Identifier returns the exported Go identifier for the service.
func (s *Service) Identifier() string { return ir.GoIdent(string(s.sd.Name())) }

// Comment returns the service's leading comments.
func (s *Service) Comment() ir.Documentation { return documentationFor(s.fd, s.sd) }

// Methods returns the service methods in declaration order.
func (s *Service) Methods() []ir.Method {
	mds := s.sd.Methods()
	out := make([]ir.Method, mds.Len())
	for i := 0; i < mds.Len(); i++ {
		out[i] = &Method{md: mds.Get(i), svc: s}
	}
	return out
}

// SourceFile returns the path of the file the service was declared in,
// relative to the import roots.
func (s *Service) SourceFile() string { return s.fd.Path() }

// MessageImport returns the Go package generated message types live in,
// derived from the file's go_package option. Zero when the file does not
// declare one.
func (s *Service) MessageImport() (ir.ImportRef, error) {
	return goPackageOf(s.fd)
}

// Method adapts one method descriptor to ir.Method.
type Method struct {
	md  protoreflect.MethodDescriptor
	svc *Service
}

func (m *Method) Name() string { return string(m.md.Name()) }

func (m *Method) Identifier() string { return ir.GoIdent(string(m.md.Name())) }

func (m *Method) Comment() ir.Documentation { return documentationFor(m.svc.fd, m.md) }

func (m *Method) ClientStreaming() bool { return m.md.IsStreamingClient() }

func (m *Method) ServerStreaming() bool { return m.md.IsStreamingServer() }

// RequestResponseName resolves the method's request and response types. Both
// halves are recomputed on every call from the descriptor and the arguments
// alone.
func (m *Method) RequestResponseName(messagePackage ir.ImportRef, compileWellKnownTypes bool) (ir.TypeExpr, ir.TypeExpr, error) {
	req, err := m.resolve(m.md.Input(), messagePackage, compileWellKnownTypes)
	if err != nil {
		return ir.TypeExpr{}, ir.TypeExpr{}, err
	}
	res, err := m.resolve(m.md.Output(), messagePackage, compileWellKnownTypes)
	if err != nil {
		return ir.TypeExpr{}, ir.TypeExpr{}, err
	}
	return req, res, nil
}

func (m *Method) resolve(md protoreflect.MessageDescriptor, messagePackage ir.ImportRef, compileWellKnownTypes bool) (ir.TypeExpr, error) {
	idlName := "." + string(md.FullName())
	target, err := m.svc.naming.targetFor(m.svc.fd, idlName, compileWellKnownTypes)
	if err != nil {
		return ir.TypeExpr{}, fmt.Errorf("method %s: %w", m.md.FullName(), err)
	}
	if messagePackage.IsZero() && isBare(target) {
		return ir.TypeExpr{}, fmt.Errorf("method %s: no package to qualify %s; file %s declares no go_package and none was configured", m.md.FullName(), target, m.svc.fd.Path())
	}
	expr, err := ir.Resolve(idlName, target, compileWellKnownTypes, messagePackage)
	if err != nil {
		return ir.TypeExpr{}, fmt.Errorf("method %s: %w", m.md.FullName(), err)
	}
	return expr, nil
}

// isBare reports whether a target name needs the message package qualifier.
func isBare(target string) bool {
	return !strings.Contains(target, "/") && !strings.Contains(target, ".") && !ir.IsNonPathType(target)
}

// documentationFor pulls the leading comments recorded for d out of the
// file's source info. Files compiled without source info yield none.
func documentationFor(fd protoreflect.FileDescriptor, d protoreflect.Descriptor) ir.Documentation {
	loc := fd.SourceLocations().ByDescriptor(d)
	if loc.LeadingComments == "" {
		return ir.Documentation{}
	}
	raw := strings.Split(strings.TrimSuffix(loc.LeadingComments, "\n"), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimPrefix(l, " ")
	}
	return ir.Documentation{Leading: lines}
}
