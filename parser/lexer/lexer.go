// Copyright © 2018 The ELPS authors

package lexer

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/luthersystems/schemex/parser/token"
)

type LexFn func(*Lexer) []*token.Token

// delimiters terminate atoms (symbols and numbers).
const delimiters = "()[]\";'`,|"

type Lexer struct {
	scanner *token.Scanner
	lex     LexFn
}

func New(s *token.Scanner) *Lexer {
	lex := &Lexer{
		scanner: s,
		lex:     (*Lexer).readToken,
	}
	return lex
}

func (lex *Lexer) ReadToken() []*token.Token {
	return lex.lex(lex)
}

func (lex *Lexer) readToken() []*token.Token {
	lex.skipWhitespace()
	if err := lex.scanner.ScanRune(); err != nil {
		return lex.emitError(err, true)
	}
	switch lex.scanner.Rune() {
	case '(':
		return lex.emitText(token.PAREN_L)
	case ')':
		return lex.emitText(token.PAREN_R)
	case '[':
		return lex.emitText(token.BRACE_L)
	case ']':
		return lex.emitText(token.BRACE_R)
	case '\'':
		return lex.emitText(token.QUOTE)
	case '`':
		return lex.emitText(token.QUASIQUOTE)
	case ',':
		if lex.scanner.AcceptRune('@') {
			return lex.emitText(token.UNQUOTE_SPLICING)
		}
		return lex.emitText(token.UNQUOTE)
	case ';':
		lex.scanner.AcceptSeq(func(c rune) bool { return c != '\n' })
		return lex.emitText(token.COMMENT)
	case '"':
		return lex.readString()
	case '|':
		return lex.readPipeSymbol()
	case '#':
		return lex.readDispatch()
	default:
		if isDelimiter(lex.scanner.Rune()) {
			return lex.errorf("unexpected text starting with %q", lex.scanner.Rune())
		}
		return lex.readAtom()
	}
}

func (lex *Lexer) readDispatch() []*token.Token {
	if lex.scanner.ScanRune() != nil {
		return lex.errorf("unexpected EOF following #")
	}
	switch lex.scanner.Rune() {
	case '(':
		return lex.emitText(token.VECTOR_L)
	case ';':
		return lex.emitText(token.DATUM_COMMENT)
	case '|':
		return lex.readBlockComment()
	case '!':
		tok := lex.emitText(token.HASH_BANG)
		lex.lex = (*Lexer).readHashBang
		return tok
	case '\\':
		return lex.readChar()
	case 't', 'f':
		lex.scanner.AcceptSeq(isAtom)
		switch lex.scanner.Text() {
		case "#t", "#f", "#true", "#false":
			return lex.emitText(token.BOOL)
		}
		return lex.errorf("invalid boolean literal: %s", lex.scanner.Text())
	case 'x', 'X', 'o', 'O', 'b', 'B', 'd', 'D':
		if lex.scanner.AcceptSeq(isAtom) == 0 {
			return lex.errorf("invalid radix literal: %s", lex.scanner.Text())
		}
		return lex.emitText(token.INT_RADIX)
	default:
		return lex.errorf("invalid dispatch character %q", lex.scanner.Rune())
	}
}

func (lex *Lexer) readHashBang() []*token.Token {
	lex.lex = (*Lexer).readToken
	lex.scanner.AcceptSeq(func(c rune) bool { return c != '\n' })
	return lex.emitText(token.COMMENT)
}

// readBlockComment consumes a possibly nested #| ... |# comment.
func (lex *Lexer) readBlockComment() []*token.Token {
	depth := 1
	for depth > 0 {
		switch {
		case lex.scanner.AcceptString("|#"):
			depth--
		case lex.scanner.AcceptString("#|"):
			depth++
		case lex.scanner.ScanRune() != nil:
			return lex.errorf("unterminated block comment")
		}
	}
	return lex.emitText(token.COMMENT)
}

func (lex *Lexer) readChar() []*token.Token {
	if lex.scanner.ScanRune() != nil {
		return lex.errorf("unterminated character literal")
	}
	// Named characters (#\space) and hex escapes (#\x41) continue as an atom.
	if isAtom(lex.scanner.Rune()) {
		lex.scanner.AcceptSeq(isAtom)
	}
	return lex.emitText(token.CHAR)
}

func (lex *Lexer) readString() []*token.Token {
	for {
		if lex.scanner.ScanRune() != nil {
			return lex.errorf("unterminated string literal")
		}
		switch lex.scanner.Rune() {
		case '"':
			return lex.emitText(token.STRING)
		case '\\':
			// Escapes are validated by the parser.
			if lex.scanner.ScanRune() != nil {
				return lex.errorf("unterminated string literal")
			}
		}
	}
}

func (lex *Lexer) readPipeSymbol() []*token.Token {
	lex.scanner.AcceptSeq(func(c rune) bool { return c != '|' && c != '\n' })
	if !lex.scanner.AcceptRune('|') {
		return lex.errorf("unterminated symbol literal")
	}
	return lex.emitText(token.SYMBOL)
}

// readAtom reads a run of non-delimiter characters and classifies it as a
// number, a lone dot, or a symbol.
func (lex *Lexer) readAtom() []*token.Token {
	lex.scanner.AcceptSeq(isAtom)
	text := lex.scanner.Text()
	switch {
	case text == ".":
		return lex.emitText(token.DOT)
	case IsInt(text):
		return lex.emitText(token.INT)
	case IsFloat(text):
		return lex.emitText(token.FLOAT)
	default:
		return lex.emitText(token.SYMBOL)
	}
}

func (lex *Lexer) emit(typ token.Type, text string) []*token.Token {
	tok := []*token.Token{{
		Type:   typ,
		Text:   text,
		Source: lex.scanner.LocStart(),
	}}
	lex.scanner.Ignore()
	return tok
}

func (lex *Lexer) emitText(typ token.Type) []*token.Token {
	return []*token.Token{lex.scanner.EmitToken(typ)}
}

func (lex *Lexer) emitError(err error, expectEOF bool) []*token.Token {
	if err == io.EOF || err == nil {
		if expectEOF {
			return lex.emit(token.EOF, "")
		}
		return lex.emit(token.ERROR, "unexpected EOF")
	}
	return lex.emit(token.ERROR, err.Error())
}

func (lex *Lexer) errorf(format string, v ...interface{}) []*token.Token {
	return lex.emitError(fmt.Errorf(format, v...), false)
}

func (lex *Lexer) skipWhitespace() {
	if lex.scanner.AcceptSeqSpace() > 0 {
		lex.scanner.Ignore()
	}
}

// IsInt reports whether text is a decimal integer literal with an optional
// sign.
func IsInt(text string) bool {
	if strings.HasPrefix(text, "+") || strings.HasPrefix(text, "-") {
		text = text[1:]
	}
	if text == "" {
		return false
	}
	for _, c := range text {
		if !isDigit(c) {
			return false
		}
	}
	return true
}

// IsFloat reports whether text is a decimal floating point literal.  The
// special values +inf.0, -inf.0 and +nan.0 are included.
func IsFloat(text string) bool {
	switch text {
	case "+inf.0", "-inf.0", "+nan.0", "-nan.0":
		return true
	}
	if strings.HasPrefix(text, "+") || strings.HasPrefix(text, "-") {
		text = text[1:]
	}
	mant, exp := text, ""
	if i := strings.IndexAny(text, "eE"); i >= 0 {
		mant, exp = text[:i], text[i+1:]
		if strings.HasPrefix(exp, "+") || strings.HasPrefix(exp, "-") {
			exp = exp[1:]
		}
		if exp == "" {
			return false
		}
		for _, c := range exp {
			if !isDigit(c) {
				return false
			}
		}
	}
	digits := 0
	dots := 0
	for _, c := range mant {
		switch {
		case isDigit(c):
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	if digits == 0 || dots > 1 {
		return false
	}
	return dots == 1 || exp != ""
}

func isDelimiter(c rune) bool {
	return unicode.IsSpace(c) || strings.ContainsRune(delimiters, c)
}

func isAtom(c rune) bool {
	return !isDelimiter(c) && unicode.IsPrint(c)
}

func isDigit(c rune) bool {
	return '0' <= c && c <= '9'
}
