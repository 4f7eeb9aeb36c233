package ir

// MessageIdent converts a declared message or enum name to the Go identifier
// protoc-gen-go generates for it. Generated service code references message
// types from protoc-gen-go output, so this casing has to match exactly:
// existing capitals are preserved ("HTTPRequest" stays "HTTPRequest") rather
// than re-cased the way GoIdent would.
func MessageIdent(name string) string {
	var b []byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_' && i == 0:
			b = append(b, 'X')
		case c == '_' && i+1 < len(name) && isASCIILower(name[i+1]):
			// The underscore capitalizes the next letter and is dropped.
		case isASCIIDigit(c):
			b = append(b, c)
		default:
			if isASCIILower(c) {
				c -= 'a' - 'A'
			}
			b = append(b, c)
			for ; i+1 < len(name) && isASCIILower(name[i+1]); i++ {
				b = append(b, name[i+1])
			}
		}
	}
	return string(b)
}

// NestedIdent joins nested message names into the flat identifier generated
// Go code uses, e.g. ["Outer", "Inner"] becomes "Outer_Inner".
func NestedIdent(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "_"
		}
		out += MessageIdent(p)
	}
	return out
}

func isASCIILower(c byte) bool { return 'a' <= c && c <= 'z' }

func isASCIIDigit(c byte) bool { return '0' <= c && c <= '9' }
