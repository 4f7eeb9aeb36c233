package gengo

import "strings"

// matchPath reports whether pattern selects path, a fully qualified proto
// path such as ".helloworld.v1.Greeter" or ".helloworld.v1.Greeter.SayHello".
//
// "." matches every path. A pattern with a leading dot matches the exact
// path or acts as a rooted prefix ending on a segment boundary. Any other
// pattern matches as a suffix starting on a segment boundary.
func matchPath(pattern, path string) bool {
	switch {
	case pattern == ".":
		return true
	case strings.HasPrefix(pattern, "."):
		return path == pattern || strings.HasPrefix(path, pattern+".")
	default:
		return strings.HasSuffix(path, "."+pattern)
	}
}

// attributesFor returns the text of every attribute whose pattern matches
// path, in registration order.
func attributesFor(attrs []Attribute, path string) []string {
	var texts []string
	for _, a := range attrs {
		if matchPath(a.Pattern, path) {
			texts = append(texts, a.Text)
		}
	}
	return texts
}

// commentsDisabled reports whether doc comments are suppressed for path.
func commentsDisabled(patterns []string, path string) bool {
	for _, p := range patterns {
		if matchPath(p, path) {
			return true
		}
	}
	return false
}
