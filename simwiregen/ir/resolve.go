package ir

import (
	"fmt"
	"go/parser"
	"strings"
)

// ImportRef identifies a Go package that a resolved type reference depends on.
type ImportRef struct {
	// Path is the import path, e.g. "google.golang.org/protobuf/types/known/emptypb".
	Path string

	// Alias is the package identifier used in expressions, e.g. "emptypb".
	Alias string
}

// IsZero returns true if the reference is empty.
func (r ImportRef) IsZero() bool {
	return r.Path == "" && r.Alias == ""
}

// TypeExpr is a resolved Go type expression for one request or response type.
type TypeExpr struct {
	// Expr is the expression emitted into generated code, without a pointer
	// marker, e.g. "HelloRequest", "emptypb.Empty", "struct{}".
	Expr string

	// Import is the package the expression depends on. Zero when the
	// expression needs no import of its own.
	Import ImportRef
}

// nonPathTypes are the only resolvable targets that are not type paths.
var nonPathTypes = []string{"struct{}"}

// Resolve maps one request or response type to the Go expression generated
// code uses for it. idlName is the fully qualified IDL name in leading-dot
// form (".helloworld.v1.HelloRequest"); targetName is the mapped
// source-language name produced at the compiler boundary.
//
// Rules, first match wins:
//
//  1. A well-known type while well-known types are not compiled from source,
//     an absolute reference (contains "/"), or an allow-listed non-path
//     pseudo-type: the target is used directly, unprefixed. Absolute
//     references are split into import path and identifier.
//  2. A target already qualified with a package alias ("alias.Name"): used
//     as-is. The alias must already be in scope in the generated file; for
//     standard-library packages the formatting pass supplies the import.
//  3. Anything else is a bare identifier, prefixed with the configured
//     message package when one is set.
//
// Resolution is pure: the same arguments always produce the same expression.
// A target that does not parse as a Go type expression is a fatal generation
// error, not a recoverable one.
func Resolve(idlName, targetName string, compileWellKnownTypes bool, messagePackage ImportRef) (TypeExpr, error) {
	switch {
	case (IsWellKnown(idlName) && !compileWellKnownTypes) ||
		strings.Contains(targetName, "/") ||
		IsNonPathType(targetName):
		if strings.Contains(targetName, "/") {
			imp, ident, err := splitAbsolute(targetName)
			if err != nil {
				return TypeExpr{}, fmt.Errorf("resolve %s: %w", idlName, err)
			}
			return checkExpr(TypeExpr{Expr: imp.Alias + "." + ident, Import: imp}, idlName)
		}
		return checkExpr(TypeExpr{Expr: targetName}, idlName)

	case strings.Contains(targetName, "."):
		return checkExpr(TypeExpr{Expr: targetName}, idlName)

	default:
		if messagePackage.IsZero() {
			return checkExpr(TypeExpr{Expr: targetName}, idlName)
		}
		return checkExpr(TypeExpr{
			Expr:   messagePackage.Alias + "." + targetName,
			Import: messagePackage,
		}, idlName)
	}
}

// IsNonPathType reports whether target is one of the allow-listed pseudo-types
// that resolve without a package qualifier.
func IsNonPathType(target string) bool {
	for _, t := range nonPathTypes {
		if target == t {
			return true
		}
	}
	return false
}

// splitAbsolute splits "import/path.Ident" into its package and identifier.
// The identifier is everything after the first dot following the last slash.
func splitAbsolute(target string) (ImportRef, string, error) {
	slash := strings.LastIndex(target, "/")
	rest := target[slash+1:]
	dot := strings.Index(rest, ".")
	if dot <= 0 || dot == len(rest)-1 {
		return ImportRef{}, "", fmt.Errorf("absolute reference %q has no identifier after the package path", target)
	}
	path := target[:slash+1+dot]
	ident := rest[dot+1:]
	return ImportRef{Path: path, Alias: AliasFor(path)}, ident, nil
}

// AliasFor derives the package identifier used when importing path.
// A trailing major-version element ("v2") folds into the preceding element
// the way Go package names conventionally do.
func AliasFor(path string) string {
	segs := strings.Split(path, "/")
	last := segs[len(segs)-1]
	if isVersionSegment(last) && len(segs) > 1 {
		last = segs[len(segs)-2] + last
	}
	return sanitizeAlias(last)
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sanitizeAlias(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if b.Len() == 0 {
				b.WriteString("pkg")
			}
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "pkg"
	}
	return b.String()
}

func checkExpr(t TypeExpr, idlName string) (TypeExpr, error) {
	if _, err := parser.ParseExpr(t.Expr); err != nil {
		return TypeExpr{}, fmt.Errorf("resolved type %q for %s is not a valid Go type expression: %w", t.Expr, idlName, err)
	}
	return t, nil
}
