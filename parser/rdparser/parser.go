// Copyright © 2018 The ELPS authors

package rdparser

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"slices"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/parser/lexer"
	"github.com/luthersystems/schemex/parser/token"
)

// SyntaxError is a failure to read source text.
type SyntaxError struct {
	Condition string
	Message   string
	Source    *token.Location
}

func (err *SyntaxError) Error() string {
	if err.Source.Native() {
		return fmt.Sprintf("%s: %s", err.Condition, err.Message)
	}
	return fmt.Sprintf("%s: %s: %s", err.Source, err.Condition, err.Message)
}

type reader struct {
}

// NewReader returns a lisp.Reader to use in a lisp.Runtime.
func NewReader() lisp.Reader {
	return &reader{}
}

// Read implements lisp.Reader.
func (*reader) Read(name string, r io.Reader) ([]*lisp.LVal, error) {
	s := token.NewScanner(name, r)
	p := New(s)
	return p.ParseProgram()
}

// ReadLocation implements lisp.LocationReader.
func (*reader) ReadLocation(name string, loc string, r io.Reader) ([]*lisp.LVal, error) {
	s := token.NewScanner(name, r)
	s.SetPath(loc)
	p := New(s)
	return p.ParseProgram()
}

// TokenStream is an arbitrary sequence of tokens, typically a *lexer.Lexer.
type TokenStream interface {
	// ReadToken returns a non-empty set of tokens.  When the input is
	// exhausted ReadToken returns a token.EOF token on every call.  After
	// an io error ReadToken returns token.ERROR tokens.
	ReadToken() []*token.Token
}

// Parser is a scheme datum parser.
type Parser struct {
	stream  TokenStream
	tok     *token.Token
	pending []*token.Token
	// parsing is set while a datum, or a datum skipped by #;, has been
	// started but not completed.
	parsing atomic.Bool
}

// NewFromStream initializes and returns a Parser that reads tokens from
// stream.
func NewFromStream(stream TokenStream) *Parser {
	return &Parser{
		stream: stream,
	}
}

// New initializes and returns a new Parser that reads tokens from scanner.
func New(scanner *token.Scanner) *Parser {
	return NewFromStream(lexer.New(scanner))
}

// Parse is a generic entry point that is similar to ParseExpression but is
// capable of handling EOF before reading an expression.
func (p *Parser) Parse() (*lisp.LVal, error) {
	err := p.ignoreComments()
	if err != nil {
		return nil, err
	}
	if p.PeekType() == token.EOF {
		return nil, io.EOF
	}
	return p.ParseExpression()
}

// ParseProgram parses a series of expressions potentially preceded by a
// hash-bang, `#!`.
func (p *Parser) ParseProgram() ([]*lisp.LVal, error) {
	var exprs []*lisp.LVal
	for {
		expr, err := p.Parse()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

// ParseExpression parses a single expression.  Unlike Parse, ParseExpression
// requires an expression to be present in the input stream and will report
// unexpected EOF tokens encountered.
func (p *Parser) ParseExpression() (*lisp.LVal, error) {
	err := p.ignoreComments()
	if err != nil {
		return nil, err
	}
	fn := p.parseExpression()
	defer p.begin()()
	return fn(p)
}

// begin marks p as inside a datum until the returned function is called.
// Nested calls leave the mark to the outermost datum.
func (p *Parser) begin() func() {
	if !p.parsing.CompareAndSwap(false, true) {
		return func() {}
	}
	return func() { p.parsing.Store(false) }
}

func (p *Parser) parseExpression() func(p *Parser) (*lisp.LVal, error) {
	switch p.PeekType() {
	case token.INT:
		return (*Parser).ParseLiteralInt
	case token.INT_RADIX:
		return (*Parser).ParseLiteralIntRadix
	case token.FLOAT:
		return (*Parser).ParseLiteralFloat
	case token.STRING:
		return (*Parser).ParseLiteralString
	case token.CHAR:
		return (*Parser).ParseLiteralChar
	case token.BOOL:
		return (*Parser).ParseLiteralBool
	case token.QUOTE, token.QUASIQUOTE, token.UNQUOTE, token.UNQUOTE_SPLICING:
		return (*Parser).ParseAbbreviation
	case token.SYMBOL:
		return (*Parser).ParseSymbol
	case token.PAREN_L, token.BRACE_L:
		return (*Parser).ParseList
	case token.VECTOR_L:
		return (*Parser).ParseVector
	case token.EOF:
		return func(p *Parser) (*lisp.LVal, error) {
			p.ReadToken()
			return nil, p.errorf("unexpected-eof", "unexpected end of input")
		}
	case token.ERROR, token.INVALID:
		return func(p *Parser) (*lisp.LVal, error) {
			p.ReadToken()
			return nil, p.errorf("scan-error", "%s", p.TokenText())
		}
	default:
		return func(p *Parser) (*lisp.LVal, error) {
			p.ReadToken()
			return nil, p.errorf("parse-error", "unexpected token: %v", p.TokenText())
		}
	}
}

func (p *Parser) ParseLiteralInt() (*lisp.LVal, error) {
	if !p.Accept(token.INT) {
		return nil, p.errorf("parse-error", "invalid integer literal: %v", p.PeekType())
	}
	text := p.TokenText()
	x, err := strconv.Atoi(strings.TrimPrefix(text, "+"))
	if err != nil {
		return nil, p.errorf("integer-overflow-error", "integer literal overflows int: %v", text)
	}
	return p.Int(x), nil
}

func (p *Parser) ParseLiteralIntRadix() (*lisp.LVal, error) {
	if !p.Accept(token.INT_RADIX) {
		return nil, p.errorf("parse-error", "unexpected token: %v", p.PeekType())
	}
	text := p.TokenText()
	base := 10
	switch text[1] {
	case 'x', 'X':
		base = 16
	case 'o', 'O':
		base = 8
	case 'b', 'B':
		base = 2
	}
	digits := text[2:]
	if base == 10 && lexer.IsFloat(digits) {
		return p.parseFloat(digits)
	}
	x, err := strconv.ParseInt(digits, base, 0)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return nil, p.errorf("integer-overflow-error", "integer literal overflows int: %v", text)
		}
		return nil, p.errorf("invalid-number", "invalid number literal: %v", text)
	}
	return p.Int(int(x)), nil
}

func (p *Parser) ParseLiteralFloat() (*lisp.LVal, error) {
	if !p.Accept(token.FLOAT) {
		return nil, p.errorf("parse-error", "invalid float literal: %v", p.PeekType())
	}
	return p.parseFloat(p.TokenText())
}

func (p *Parser) parseFloat(text string) (*lisp.LVal, error) {
	switch text {
	case "+inf.0":
		return p.Float(math.Inf(1)), nil
	case "-inf.0":
		return p.Float(math.Inf(-1)), nil
	case "+nan.0", "-nan.0":
		return p.Float(math.NaN()), nil
	}
	x, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf("invalid-number", "invalid floating point literal: %v", text)
	}
	return p.Float(x), nil
}

func (p *Parser) ParseLiteralString() (*lisp.LVal, error) {
	if !p.Accept(token.STRING) {
		return nil, p.errorf("parse-error", "invalid string literal: %v", p.PeekType())
	}
	text := p.TokenText()
	s, err := unescape(text[1 : len(text)-1])
	if err != nil {
		return nil, p.errorf("invalid-escape", "%v in string literal %s", err, text)
	}
	return p.String(s), nil
}

// unescape interprets the escape sequences of a string literal body.
func unescape(body string) (string, error) {
	if !strings.ContainsRune(body, '\\') {
		return body, nil
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("trailing backslash")
		}
		switch body[i] {
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '"', '\\', '|':
			b.WriteByte(body[i])
		case 'x', 'X':
			end := strings.IndexByte(body[i:], ';')
			if end < 0 {
				return "", fmt.Errorf("unterminated hex escape")
			}
			x, err := strconv.ParseUint(body[i+1:i+end], 16, 32)
			if err != nil || !utf8.ValidRune(rune(x)) {
				return "", fmt.Errorf("invalid hex escape \\%s", body[i:i+end+1])
			}
			b.WriteRune(rune(x))
			i += end
		case ' ', '\t', '\n', '\r':
			// line continuation: \<intraline whitespace>*<newline><intraline whitespace>*
			j := i
			for j < len(body) && (body[j] == ' ' || body[j] == '\t') {
				j++
			}
			if j < len(body) && body[j] == '\r' {
				j++
			}
			if j >= len(body) || body[j] != '\n' {
				return "", fmt.Errorf("invalid escape \\%c", body[i])
			}
			j++
			for j < len(body) && (body[j] == ' ' || body[j] == '\t') {
				j++
			}
			i = j - 1
		default:
			return "", fmt.Errorf("invalid escape \\%c", body[i])
		}
	}
	return b.String(), nil
}

func (p *Parser) ParseLiteralChar() (*lisp.LVal, error) {
	if !p.Accept(token.CHAR) {
		return nil, p.errorf("parse-error", "invalid character literal: %v", p.PeekType())
	}
	text := p.TokenText()
	name := text[2:]
	if utf8.RuneCountInString(name) == 1 {
		c, _ := utf8.DecodeRuneInString(name)
		return p.Char(c), nil
	}
	if c, ok := lisp.CharNames[name]; ok {
		return p.Char(c), nil
	}
	if name[0] == 'x' || name[0] == 'X' {
		x, err := strconv.ParseUint(name[1:], 16, 32)
		if err == nil && utf8.ValidRune(rune(x)) {
			return p.Char(rune(x)), nil
		}
	}
	return nil, p.errorf("invalid-character", "invalid character literal: %s", text)
}

func (p *Parser) ParseLiteralBool() (*lisp.LVal, error) {
	if !p.Accept(token.BOOL) {
		return nil, p.errorf("parse-error", "invalid boolean literal: %v", p.PeekType())
	}
	switch p.TokenText() {
	case "#t", "#true":
		return p.Bool(true), nil
	default:
		return p.Bool(false), nil
	}
}

var abbreviations = map[token.Type]string{
	token.QUOTE:            "quote",
	token.QUASIQUOTE:       "quasiquote",
	token.UNQUOTE:          "unquote",
	token.UNQUOTE_SPLICING: "unquote-splicing",
}

// ParseAbbreviation parses 'x, `x, ,x and ,@x.
func (p *Parser) ParseAbbreviation() (*lisp.LVal, error) {
	if !p.Accept(token.QUOTE, token.QUASIQUOTE, token.UNQUOTE, token.UNQUOTE_SPLICING) {
		return nil, p.errorf("parse-error", "invalid abbreviation: %v", p.PeekType())
	}
	head := p.Symbol(abbreviations[p.TokenType()])
	expr, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	v := lisp.List(head, expr)
	v.Source = head.Source
	return v, nil
}

func (p *Parser) ParseSymbol() (*lisp.LVal, error) {
	if !p.Accept(token.SYMBOL) {
		return nil, p.errorf("parse-error", "invalid symbol: %v", p.PeekType())
	}
	text := p.TokenText()
	if strings.HasPrefix(text, "|") {
		text = text[1 : len(text)-1]
	}
	return p.Symbol(text), nil
}

var closers = map[token.Type]token.Type{
	token.PAREN_L:  token.PAREN_R,
	token.BRACE_L:  token.BRACE_R,
	token.VECTOR_L: token.PAREN_R,
}

// ParseList parses a proper or dotted list delimited by parentheses or
// brackets.
func (p *Parser) ParseList() (*lisp.LVal, error) {
	if !p.Accept(token.PAREN_L, token.BRACE_L) {
		return nil, p.errorf("parse-error", "invalid list: %v", p.PeekType())
	}
	open := p.tok
	loc := p.Location()
	var cells []*lisp.LVal
	for {
		done, err := p.listElement(open)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		if p.Accept(token.DOT) {
			if len(cells) == 0 {
				return nil, p.errorf("parse-error", "unexpected dot")
			}
			tail, err := p.ParseExpression()
			if err != nil {
				return nil, err
			}
			done, err := p.listElement(open)
			if err != nil {
				return nil, err
			}
			if !done {
				p.ReadToken()
				return nil, p.errorf("parse-error", "expected %s after dotted tail", closerText(open))
			}
			v := lisp.DottedList(cells, tail)
			v.Source = loc
			return v, nil
		}
		x, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		cells = append(cells, x)
	}
	v := lisp.SExpr(cells)
	v.Source = loc
	return v, nil
}

// ParseVector parses #(...).
func (p *Parser) ParseVector() (*lisp.LVal, error) {
	if !p.Accept(token.VECTOR_L) {
		return nil, p.errorf("parse-error", "invalid vector: %v", p.PeekType())
	}
	open := p.tok
	loc := p.Location()
	var cells []*lisp.LVal
	for {
		done, err := p.listElement(open)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		if p.PeekType() == token.DOT {
			p.ReadToken()
			return nil, p.errorf("parse-error", "unexpected dot in vector")
		}
		x, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		cells = append(cells, x)
	}
	v := lisp.Vector(cells)
	v.Source = loc
	return v, nil
}

// listElement skips comments and consumes the closing delimiter matching
// open, returning true, if it is next.  A different closing delimiter or EOF
// is an error.
func (p *Parser) listElement(open *token.Token) (bool, error) {
	err := p.ignoreComments()
	if err != nil {
		return false, err
	}
	if p.PeekType() == token.EOF {
		return false, &SyntaxError{
			Condition: "unmatched-syntax",
			Message:   fmt.Sprintf("unmatched %s", open.Text),
			Source:    open.Source,
		}
	}
	if p.Accept(closers[open.Type]) {
		return true, nil
	}
	switch p.PeekType() {
	case token.PAREN_R, token.BRACE_R:
		p.ReadToken()
		return false, p.errorf("unmatched-syntax", "mismatched %s closing %s", p.TokenText(), open.Text)
	}
	return false, nil
}

func closerText(open *token.Token) string {
	if closers[open.Type] == token.BRACE_R {
		return "]"
	}
	return ")"
}

// ignoreComments skips comments, hash-bang directives and datum comments.
func (p *Parser) ignoreComments() error {
	for {
		switch p.PeekType() {
		case token.COMMENT:
			p.ReadToken()
		case token.HASH_BANG:
			p.ReadToken()
			p.Accept(token.COMMENT)
		case token.DATUM_COMMENT:
			p.ReadToken()
			done := p.begin()
			_, err := p.ParseExpression()
			done()
			if err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *Parser) peek() *token.Token {
	if len(p.pending) == 0 {
		p.pending = p.stream.ReadToken()
	}
	return p.pending[0]
}

// ReadToken advances to the next token and returns it.  The EOF token is
// never consumed, so reading past it returns it again.
func (p *Parser) ReadToken() *token.Token {
	p.tok = p.peek()
	if p.tok.Type != token.EOF {
		p.pending = p.pending[1:]
	}
	return p.tok
}

func (p *Parser) TokenText() string {
	return p.tok.Text
}

func (p *Parser) TokenType() token.Type {
	return p.tok.Type
}

func (p *Parser) Location() *token.Location {
	if p.tok == nil {
		return p.PeekLocation()
	}
	return p.tok.Source
}

func (p *Parser) PeekType() token.Type {
	return p.peek().Type
}

func (p *Parser) PeekLocation() *token.Location {
	return p.peek().Source
}

func (p *Parser) String(s string) *lisp.LVal {
	return p.tokenLVal(lisp.String(s))
}

func (p *Parser) Symbol(sym string) *lisp.LVal {
	return p.tokenLVal(lisp.Symbol(sym))
}

func (p *Parser) Int(x int) *lisp.LVal {
	return p.tokenLVal(lisp.Int(x))
}

func (p *Parser) Float(x float64) *lisp.LVal {
	return p.tokenLVal(lisp.Float(x))
}

func (p *Parser) Char(c rune) *lisp.LVal {
	return p.tokenLVal(lisp.Char(c))
}

func (p *Parser) Bool(b bool) *lisp.LVal {
	return p.tokenLVal(lisp.Bool(b))
}

func (p *Parser) tokenLVal(v *lisp.LVal) *lisp.LVal {
	v.Source = p.Location()
	return v
}

// Accept reads the next token if its type is one of typ.
func (p *Parser) Accept(typ ...token.Type) bool {
	if !slices.Contains(typ, p.PeekType()) {
		return false
	}
	p.ReadToken()
	return true
}

func (p *Parser) errorf(condition string, format string, v ...interface{}) error {
	return &SyntaxError{
		Condition: condition,
		Message:   fmt.Sprintf(format, v...),
		Source:    p.Location(),
	}
}
