package metadir

import "strings"

// Sanitize normalizes a dependency path the way record filenames expect it:
// trailing separators are dropped, and a bare "./" stays "./" only to
// collapse immediately afterward to ".", the canonical current-directory
// spelling.
func Sanitize(path string) string {
	if path == "" {
		return "."
	}
	for strings.HasPrefix(path, "./") && path != "./" {
		path = path[2:]
	}
	if path == "" {
		return "."
	}
	if path != "/" {
		trimmed := strings.TrimRight(path, "/")
		if trimmed == "" {
			trimmed = "/"
		}
		path = trimmed
	}
	if path == "" {
		return "."
	}
	return path
}

// Escape renders a sanitized path safe for use inside a single MetaDir
// record filename: '/' becomes '^', and a literal '^' is doubled to '^^' so
// the transform is bijective.
func Escape(path string) string {
	path = Sanitize(path)
	var b strings.Builder
	b.Grow(len(path) + 4)
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '/':
			b.WriteByte('^')
		case '^':
			b.WriteString("^^")
		default:
			b.WriteByte(path[i])
		}
	}
	return b.String()
}

// Unescape inverts Escape. unescape(escape(p)) == Sanitize(p) for all p not
// containing a null byte.
func Unescape(escaped string) string {
	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		if escaped[i] == '^' {
			if i+1 < len(escaped) && escaped[i+1] == '^' {
				b.WriteByte('^')
				i++
				continue
			}
			b.WriteByte('/')
			continue
		}
		b.WriteByte(escaped[i])
	}
	return b.String()
}
