package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp // punctuation and operators
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// ParseError reports a lexical or syntax error with its byte offset.
type ParseError struct {
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Pos, e.Message)
}

func lexError(pos int, format string, args ...any) error {
	return &ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

var operators = []string{
	"==", "!=", "<=", ">=", "&&", "||",
	"<", ">", "!", "=", "+", "-", "*", "/",
	"(", ")", "[", "]", ".", ";",
}

func lex(src string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(src) {
		c := src[i]

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		if c == '"' || c == '\'' {
			text, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: text, pos: i})
			i = next
			continue
		}

		if unicode.IsDigit(rune(c)) {
			start := i
			for i < len(src) && (unicode.IsDigit(rune(src[i])) || src[i] == '.') {
				i++
			}
			text := src[start:i]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, lexError(start, "invalid number %q", text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: num, pos: start})
			continue
		}

		if isIdentStart(c) {
			start := i
			i++ // a leading $ is only valid as the first character
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start})
			continue
		}

		op := matchOperator(src[i:])
		if op == "" {
			return nil, lexError(i, "unexpected character %q", string(c))
		}
		tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
		i += len(op)
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1

	for i < len(src) {
		c := src[i]
		switch c {
		case quote:
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(src) {
				return "", 0, lexError(start, "unterminated string")
			}
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '"', '\'':
				b.WriteByte(src[i])
			default:
				return "", 0, lexError(i, "invalid escape %q", string(src[i]))
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}

	return "", 0, lexError(start, "unterminated string")
}

func matchOperator(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
