package gengo

import (
	"bytes"
	"fmt"
	"go/parser"
	"go/token"
	"strings"

	"golang.org/x/tools/imports"

	"github.com/simwire/simwire/simwiregen/ir"
)

// simwireImport hosts the simulated network fabric referenced by the
// TransportSim convenience functions.
const simwireImport = "github.com/simwire/simwire"

// Generator accumulates generated code for the services of one proto
// package and renders it as a single Go source file. Client and server code
// collect in separate buffers; Finalize parses each independently before
// assembling the file, so a bad type reference or injected attribute fails
// the pass instead of reaching the output tree.
type Generator struct {
	cfg     Config
	pkg     string
	sources []string
	imports *importList
	client  bytes.Buffer
	server  bytes.Buffer
}

// New returns a Generator that emits the Go package named pkg. cfg decides
// which sections each Service call contributes.
func New(cfg Config, pkg string) *Generator {
	return &Generator{cfg: cfg, pkg: pkg, imports: newImportList()}
}

// Service appends the generated code for one service. messagePackage
// qualifies bare request and response references; source is the proto file
// that declared the service, recorded in the header and the service
// descriptor.
func (g *Generator) Service(svc ir.Service, messagePackage ir.ImportRef, source string) error {
	if !g.cfg.BuildClient && !g.cfg.BuildServer {
		return nil
	}
	g.addSource(source)
	fq := fqName(svc)
	if g.cfg.BuildClient {
		if err := g.emitClient(svc, messagePackage, fq); err != nil {
			return err
		}
	}
	if g.cfg.BuildServer {
		if err := g.emitServer(svc, messagePackage, fq, source, !g.cfg.BuildClient); err != nil {
			return err
		}
	}
	return nil
}

// Finalize validates the accumulated sections and renders the complete
// formatted source file. It returns nil output when no service contributed
// any code.
func (g *Generator) Finalize() ([]byte, error) {
	client := g.client.Bytes()
	server := g.server.Bytes()
	if len(client) == 0 && len(server) == 0 {
		return nil, nil
	}
	if err := g.checkpoint("client", client); err != nil {
		return nil, err
	}
	if err := g.checkpoint("server", server); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	g.emitHeader(&buf)
	fmt.Fprintf(&buf, "package %s\n\n", g.pkg)
	g.emitImports(&buf)
	buf.Write(client)
	buf.Write(server)

	src, err := imports.Process("", buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("formatting generated package %s: %w", g.pkg, err)
	}
	return src, nil
}

// checkpoint parses one section as a standalone compilation unit. Emission
// bugs surface here as generation failures rather than as unbuildable
// output files.
func (g *Generator) checkpoint(section string, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	unit := append([]byte("package "+g.pkg+"\n\n"), src...)
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, g.pkg+".go", unit, parser.SkipObjectResolution); err != nil {
		return fmt.Errorf("generated %s code for package %s does not parse: %w", section, g.pkg, err)
	}
	return nil
}

func (g *Generator) emitHeader(buf *bytes.Buffer) {
	buf.WriteString("// Code generated by simwire. DO NOT EDIT.\n")
	if g.cfg.Version != "" {
		buf.WriteString("// versions:\n")
		fmt.Fprintf(buf, "// \tsimwire %s\n", g.cfg.Version)
	}
	for _, src := range g.sources {
		fmt.Fprintf(buf, "// source: %s\n", src)
	}
	fmt.Fprintf(buf, "// transport: %s\n\n", g.cfg.Transport)
}

func (g *Generator) emitImports(buf *bytes.Buffer) {
	std, ext := g.imports.sorted()
	if len(std) == 0 && len(ext) == 0 {
		return
	}
	buf.WriteString("import (\n")
	writeGroup := func(refs []ir.ImportRef) {
		for _, r := range refs {
			if defaultAlias(r) {
				fmt.Fprintf(buf, "\t%q\n", r.Path)
			} else {
				fmt.Fprintf(buf, "\t%s %q\n", r.Alias, r.Path)
			}
		}
	}
	writeGroup(std)
	if len(std) > 0 && len(ext) > 0 {
		buf.WriteString("\n")
	}
	writeGroup(ext)
	buf.WriteString(")\n\n")
}

// need registers fixed import paths under their default package names.
func (g *Generator) need(paths ...string) error {
	for _, p := range paths {
		if err := g.imports.add(ir.ImportRef{Path: p}); err != nil {
			return err
		}
	}
	return nil
}

// methodTypes resolves the request and response references for one method
// and registers their imports. Resolution happens against pass-specific
// configuration, so it runs fresh for every section that needs the types.
func (g *Generator) methodTypes(svc ir.Service, m ir.Method, messagePackage ir.ImportRef) (in, out ir.TypeExpr, err error) {
	in, out, err = m.RequestResponseName(messagePackage, g.cfg.CompileWellKnownTypes)
	if err != nil {
		return in, out, fmt.Errorf("service %s: %w", svc.Name(), err)
	}
	if err := g.imports.add(in.Import); err != nil {
		return in, out, fmt.Errorf("service %s: %w", svc.Name(), err)
	}
	if err := g.imports.add(out.Import); err != nil {
		return in, out, fmt.Errorf("service %s: %w", svc.Name(), err)
	}
	return in, out, nil
}

// emitMethodConstants writes the full route path of every method as an
// exported constant. The constants land in whichever section is emitted
// first so they exist exactly once per service.
func (g *Generator) emitMethodConstants(buf *bytes.Buffer, svc ir.Service) {
	methods := svc.Methods()
	if len(methods) == 0 {
		return
	}
	buf.WriteString("const (\n")
	for _, m := range methods {
		fmt.Fprintf(buf, "\t%s = %q\n", constName(svc, m), g.routePath(svc, m))
	}
	buf.WriteString(")\n\n")
}

func constName(svc ir.Service, m ir.Method) string {
	return svc.Identifier() + "_" + m.Identifier() + "_FullMethodName"
}

// routePath builds the wire path for a method, "/<package>.<Service>/<Method>",
// eliding the package when EmitPackage is off or the service has none.
func (g *Generator) routePath(svc ir.Service, m ir.Method) string {
	return "/" + g.serviceRoute(svc) + "/" + m.Name()
}

func (g *Generator) serviceRoute(svc ir.Service) string {
	if g.cfg.EmitPackage && svc.Package() != "" {
		return svc.Package() + "." + svc.Name()
	}
	return svc.Name()
}

// fqName returns the fully qualified proto path of a service, with the
// leading dot used by attribute and comment-suppression patterns.
func fqName(svc ir.Service) string {
	if svc.Package() == "" {
		return "." + svc.Name()
	}
	return "." + svc.Package() + "." + svc.Name()
}

func (g *Generator) hasComment(doc ir.Documentation, path string) bool {
	return !doc.IsZero() && !commentsDisabled(g.cfg.DisableComments, path)
}

// emitComment writes a doc comment block at the given indent, honoring the
// comment-suppression patterns for path.
func (g *Generator) emitComment(buf *bytes.Buffer, doc ir.Documentation, path, indent string) {
	if !g.hasComment(doc, path) {
		return
	}
	for _, line := range doc.Leading {
		if line == "" {
			buf.WriteString(indent + "//\n")
			continue
		}
		buf.WriteString(indent + "// " + line + "\n")
	}
}

func emitAttributes(buf *bytes.Buffer, attrs []Attribute, path string) {
	for _, text := range attributesFor(attrs, path) {
		buf.WriteString(text)
		buf.WriteString("\n")
	}
}

func (g *Generator) addSource(source string) {
	if source == "" {
		return
	}
	for _, s := range g.sources {
		if s == source {
			return
		}
	}
	g.sources = append(g.sources, source)
}

func unexport(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
