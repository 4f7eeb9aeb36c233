package gengo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/simwire/simwire/simwiregen/ir"
)

// importList collects the import paths a generated file needs and rejects
// alias collisions between distinct paths. Adding the same path twice is a
// no-op.
type importList struct {
	refs    []ir.ImportRef
	byAlias map[string]string
}

func newImportList() *importList {
	return &importList{byAlias: make(map[string]string)}
}

// add records ref. Two different import paths resolving to the same package
// identifier cannot share one file, so that case is an error rather than a
// silent rename: the emitted type expressions already embed the identifier.
func (l *importList) add(ref ir.ImportRef) error {
	if ref.IsZero() {
		return nil
	}
	alias := ref.Alias
	if alias == "" {
		alias = path.Base(ref.Path)
	}
	if prev, ok := l.byAlias[alias]; ok {
		if prev != ref.Path {
			return fmt.Errorf("package identifier %q refers to both %q and %q; use an extern override or message package to disambiguate", alias, prev, ref.Path)
		}
		return nil
	}
	l.byAlias[alias] = ref.Path
	l.refs = append(l.refs, ir.ImportRef{Path: ref.Path, Alias: alias})
	return nil
}

// sorted returns the standard library imports and the remaining imports as
// two groups, each ordered by path.
func (l *importList) sorted() (std, ext []ir.ImportRef) {
	for _, r := range l.refs {
		if isStdImport(r.Path) {
			std = append(std, r)
		} else {
			ext = append(ext, r)
		}
	}
	sort.Slice(std, func(i, j int) bool { return std[i].Path < std[j].Path })
	sort.Slice(ext, func(i, j int) bool { return ext[i].Path < ext[j].Path })
	return std, ext
}

func isStdImport(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}

// defaultAlias reports whether the alias is what Go would infer from the
// import path anyway, making an explicit alias redundant.
func defaultAlias(r ir.ImportRef) bool {
	return r.Alias == path.Base(r.Path)
}
