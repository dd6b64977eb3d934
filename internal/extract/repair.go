package extract

import (
	"strings"
)

var bareLiterals = map[string]string{
	"true":      "true",
	"false":     "false",
	"null":      "null",
	"True":      "true",
	"False":     "false",
	"None":      "null",
	"TRUE":      "true",
	"FALSE":     "false",
	"NULL":      "null",
	"undefined": "null",
	"NaN":       "null",
}

// Repair rewrites almost-JSON into JSON. It handles trailing commas, unquoted
// keys and bare words, single-quoted strings, Python literals, comments, raw
// newlines inside strings and unclosed brackets. The result is not
// guaranteed to parse.
func Repair(s string) string {
	r := repairer{src: s}
	r.run()
	return r.out.String()
}

type repairer struct {
	src   string
	pos   int
	out   strings.Builder
	stack []byte
}

func (r *repairer) run() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == '"' || c == '\'':
			r.copyString(c)
		case c == '/' && r.peek(1) == '/':
			r.skipLineComment()
		case c == '/' && r.peek(1) == '*':
			r.skipBlockComment()
		case c == '{' || c == '[':
			r.push(c)
		case c == '}' || c == ']':
			r.pop()
		case c == ',':
			r.comma()
		case c == '-' || c == '+' || isDigit(c):
			r.copyNumber()
		case isWordStart(c):
			r.word()
		default:
			r.out.WriteByte(c)
			r.pos++
		}
	}
	r.dropTrailingComma()
	for i := len(r.stack) - 1; i >= 0; i-- {
		r.out.WriteByte(closer(r.stack[i]))
	}
}

func (r *repairer) peek(offset int) byte {
	if r.pos+offset >= len(r.src) {
		return 0
	}
	return r.src[r.pos+offset]
}

func (r *repairer) push(c byte) {
	r.stack = append(r.stack, c)
	r.out.WriteByte(c)
	r.pos++
}

// pop closes the innermost container. A mismatched closer is replaced by the
// one the open bracket expects; a stray closer is dropped.
func (r *repairer) pop() {
	r.pos++
	if len(r.stack) == 0 {
		return
	}
	r.dropTrailingComma()
	top := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	r.out.WriteByte(closer(top))
}

func closer(open byte) byte {
	if open == '[' {
		return ']'
	}
	return '}'
}

// comma drops the comma when the next meaningful byte closes a container.
func (r *repairer) comma() {
	r.pos++
	next := r.nextSignificant()
	if next == '}' || next == ']' || next == 0 {
		return
	}
	r.out.WriteByte(',')
}

func (r *repairer) nextSignificant() byte {
	for i := r.pos; i < len(r.src); i++ {
		c := r.src[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		return c
	}
	return 0
}

func (r *repairer) dropTrailingComma() {
	out := r.out.String()
	trimmed := strings.TrimRight(out, " \t\r\n")
	if strings.HasSuffix(trimmed, ",") {
		r.out.Reset()
		r.out.WriteString(trimmed[:len(trimmed)-1])
		r.out.WriteString(out[len(trimmed):])
	}
}

func (r *repairer) copyString(quote byte) {
	r.out.WriteByte('"')
	r.pos++
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == '\\' && r.pos+1 < len(r.src):
			next := r.src[r.pos+1]
			if next == '\'' {
				r.out.WriteByte('\'')
			} else {
				r.out.WriteByte('\\')
				r.out.WriteByte(next)
			}
			r.pos += 2
			continue
		case c == quote:
			r.out.WriteByte('"')
			r.pos++
			return
		case c == '"':
			r.out.WriteString(`\"`)
		case c == '\n':
			r.out.WriteString(`\n`)
		case c == '\r':
			r.out.WriteString(`\r`)
		case c == '\t':
			r.out.WriteString(`\t`)
		default:
			r.out.WriteByte(c)
		}
		r.pos++
	}
	r.out.WriteByte('"')
}

func (r *repairer) skipLineComment() {
	for r.pos < len(r.src) && r.src[r.pos] != '\n' {
		r.pos++
	}
}

func (r *repairer) skipBlockComment() {
	end := strings.Index(r.src[r.pos+2:], "*/")
	if end < 0 {
		r.pos = len(r.src)
		return
	}
	r.pos += end + 4
}

func (r *repairer) copyNumber() {
	start := r.pos
	if r.src[r.pos] == '+' {
		start++
	}
	r.pos++
	for r.pos < len(r.src) && (isDigit(r.src[r.pos]) || strings.IndexByte(".eE+-", r.src[r.pos]) >= 0) {
		r.pos++
	}
	r.out.WriteString(r.src[start:r.pos])
}

// word handles an unquoted identifier: a key when followed by a colon, a
// literal when it names one, otherwise a bare string value.
func (r *repairer) word() {
	start := r.pos
	for r.pos < len(r.src) && isWordByte(r.src[r.pos]) {
		r.pos++
	}
	w := r.src[start:r.pos]

	if r.nextSignificant() == ':' {
		r.out.WriteString(`"` + w + `"`)
		return
	}
	if lit, ok := bareLiterals[w]; ok {
		r.out.WriteString(lit)
		return
	}

	// Bare values may contain spaces, so read up to the next delimiter.
	for r.pos < len(r.src) && strings.IndexByte(",}]\n", r.src[r.pos]) < 0 {
		r.pos++
	}
	value := strings.TrimSpace(r.src[start:r.pos])
	r.out.WriteString(`"` + strings.ReplaceAll(value, `"`, `\"`) + `"`)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isWordByte(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '-'
}
