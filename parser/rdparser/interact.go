// Copyright © 2018 The ELPS authors

package rdparser

import (
	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/parser/token"
)

// TokenGenerator implements TokenStream with a function.
type TokenGenerator func() []*token.Token

// ReadToken implements TokenStream.
func (fn TokenGenerator) ReadToken() []*token.Token {
	return fn()
}

// Interactive parses one datum at a time from tokens supplied a line at a
// time by Read.  Read is called only when the tokens of earlier lines are
// exhausted, and it may consult Prompt or IsParsing to tell whether it is
// continuing a datum.  A datum comment (#;) awaiting its datum counts as
// continuing.
type Interactive struct {
	Read TokenGenerator

	prompt     string
	promptCont string
	line       []*token.Token
	p          *Parser
}

// NewInteractive initializes and returns a new Interactive parser.  Read may
// be assigned after NewInteractive returns.
func NewInteractive(read TokenGenerator) *Interactive {
	p := &Interactive{Read: read}
	p.p = NewFromStream(TokenGenerator(p.next))
	return p
}

// SetPrompts configures the strings returned by Prompt.  The cont string is
// returned while a datum is incomplete.
func (p *Interactive) SetPrompts(prompt, cont string) {
	p.prompt = prompt
	p.promptCont = cont
}

// Prompt returns the prompt for the next line of input.
func (p *Interactive) Prompt() string {
	if p.IsParsing() {
		return p.promptCont
	}
	return p.prompt
}

// IsParsing returns true if p is in the middle of a datum.  IsParsing may be
// called concurrently with Parse, or when p is nil.
func (p *Interactive) IsParsing() bool {
	return p != nil && p.p.parsing.Load()
}

func (p *Interactive) next() []*token.Token {
	if len(p.line) == 0 {
		if p.Read == nil {
			panic("nil read func")
		}
		p.line = p.Read()
		if len(p.line) == 0 {
			panic("no tokens read")
		}
	}
	tok := p.line[0]
	if tok.Type != token.EOF {
		p.line = p.line[1:]
	}
	return []*token.Token{tok}
}

// Parse parses the next datum.  Parse returns io.EOF when Read reports the
// end of input between data.  After a syntax error the rest of the current
// line is discarded so corrected text can be entered.
func (p *Interactive) Parse() (*lisp.LVal, error) {
	v, err := p.p.Parse()
	if err != nil {
		p.line = nil
		p.p.pending = nil
		return nil, err
	}
	return v, nil
}
