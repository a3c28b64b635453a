package expr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent

	tokEq      // ==
	tokNe      // !=
	tokLt      // <
	tokGt      // >
	tokLe      // <=
	tokGe      // >=
	tokPlus    // +
	tokMinus   // -
	tokStar    // *
	tokSlash   // /
	tokPercent // %
	tokPower   // **

	tokLParen   // (
	tokRParen   // )
	tokLBracket // [
	tokRBracket // ]
	tokLBrace   // {
	tokRBrace   // }
	tokComma    // ,
	tokColon    // :

	tokAnd   // and
	tokOr    // or
	tokNot   // not
	tokIn    // in
	tokTrue  // true / True
	tokFalse // false / False
	tokNull  // null / None
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var keywordTokens = map[string]tokenKind{
	"and":   tokAnd,
	"or":    tokOr,
	"not":   tokNot,
	"in":    tokIn,
	"true":  tokTrue,
	"True":  tokTrue,
	"false": tokFalse,
	"False": tokFalse,
	"null":  tokNull,
	"None":  tokNull,
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return syntaxErrorf("%s at position %d", fmt.Sprintf(format, args...), pos)
}

func (l *lexer) peekRune() (rune, int) {
	if l.pos >= len(l.input) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.input[l.pos:])
}

// next scans and returns the next token.
func (l *lexer) next() (token, error) {
	for {
		r, w := l.peekRune()
		if w == 0 {
			return token{kind: tokEOF, pos: l.pos}, nil
		}
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += w
	}

	start := l.pos
	r, w := l.peekRune()

	switch {
	case unicode.IsDigit(r):
		return l.scanNumber()
	case r == '\'' || r == '"':
		return l.scanString(r)
	case unicode.IsLetter(r) || r == '_':
		return l.scanIdent()
	}

	l.pos += w
	switch r {
	case '=':
		if l.consume('=') {
			return token{tokEq, "==", start}, nil
		}
		return token{}, l.errorf(start, "assignment is not allowed; use '==' for comparison")
	case '!':
		if l.consume('=') {
			return token{tokNe, "!=", start}, nil
		}
		return token{}, l.errorf(start, "unexpected character %q", r)
	case '<':
		if l.consume('=') {
			return token{tokLe, "<=", start}, nil
		}
		return token{tokLt, "<", start}, nil
	case '>':
		if l.consume('=') {
			return token{tokGe, ">=", start}, nil
		}
		return token{tokGt, ">", start}, nil
	case '+':
		return token{tokPlus, "+", start}, nil
	case '-':
		return token{tokMinus, "-", start}, nil
	case '*':
		if l.consume('*') {
			return token{tokPower, "**", start}, nil
		}
		return token{tokStar, "*", start}, nil
	case '/':
		return token{tokSlash, "/", start}, nil
	case '%':
		return token{tokPercent, "%", start}, nil
	case '(':
		return token{tokLParen, "(", start}, nil
	case ')':
		return token{tokRParen, ")", start}, nil
	case '[':
		return token{tokLBracket, "[", start}, nil
	case ']':
		return token{tokRBracket, "]", start}, nil
	case '{':
		return token{tokLBrace, "{", start}, nil
	case '}':
		return token{tokRBrace, "}", start}, nil
	case ',':
		return token{tokComma, ",", start}, nil
	case ':':
		return token{tokColon, ":", start}, nil
	case '.':
		return token{}, l.errorf(start, "attribute access is not allowed")
	}
	return token{}, l.errorf(start, "unexpected character %q", r)
}

func (l *lexer) consume(r rune) bool {
	next, w := l.peekRune()
	if w > 0 && next == r {
		l.pos += w
		return true
	}
	return false
}

func (l *lexer) scanNumber() (token, error) {
	start := l.pos
	seenDot := false
	for {
		r, w := l.peekRune()
		if w == 0 {
			break
		}
		if r == '.' {
			if seenDot {
				return token{}, l.errorf(l.pos, "malformed number")
			}
			seenDot = true
			l.pos += w
			continue
		}
		if r == 'e' || r == 'E' {
			l.pos += w
			if sign, sw := l.peekRune(); sw > 0 && (sign == '+' || sign == '-') {
				l.pos += sw
			}
			continue
		}
		if !unicode.IsDigit(r) {
			break
		}
		l.pos += w
	}
	return token{tokNumber, l.input[start:l.pos], start}, nil
}

func (l *lexer) scanString(quote rune) (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for {
		r, w := l.peekRune()
		if w == 0 {
			return token{}, l.errorf(start, "unterminated string literal")
		}
		l.pos += w
		if r == quote {
			return token{tokString, sb.String(), start}, nil
		}
		if r == '\\' {
			esc, ew := l.peekRune()
			if ew == 0 {
				return token{}, l.errorf(start, "unterminated string literal")
			}
			l.pos += ew
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\', '\'', '"':
				sb.WriteRune(esc)
			default:
				return token{}, l.errorf(l.pos, "unsupported escape sequence %q", esc)
			}
			continue
		}
		sb.WriteRune(r)
	}
}

func (l *lexer) scanIdent() (token, error) {
	start := l.pos
	for {
		r, w := l.peekRune()
		if w == 0 || (!unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_') {
			break
		}
		l.pos += w
	}
	text := l.input[start:l.pos]
	if kind, ok := keywordTokens[text]; ok {
		return token{kind, text, start}, nil
	}
	if text == "lambda" || text == "def" || text == "import" || text == "from" {
		return token{}, l.errorf(start, "keyword %q is not allowed", text)
	}
	return token{tokIdent, text, start}, nil
}
