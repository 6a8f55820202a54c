// Copyright © 2018 The ELPS authors

package lexer

import (
	"strings"
	"testing"

	"github.com/luthersystems/schemex/parser/token"
	"github.com/stretchr/testify/assert"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		input  string
		tokens []*token.Token
	}{
		{``, []*token.Token{
			testToken(token.EOF, ""),
		}},
		{`abc`, []*token.Token{
			testToken(token.SYMBOL, "abc"),
			testToken(token.EOF, ""),
		}},
		{`=+()[]`, []*token.Token{
			testToken(token.SYMBOL, "=+"),
			testToken(token.PAREN_L, "("),
			testToken(token.PAREN_R, ")"),
			testToken(token.BRACE_L, "["),
			testToken(token.BRACE_R, "]"),
			testToken(token.EOF, ""),
		}},
		{"(a . b) ... .5 ->x", []*token.Token{
			testToken(token.PAREN_L, "("),
			testToken(token.SYMBOL, "a"),
			testToken(token.DOT, "."),
			testToken(token.SYMBOL, "b"),
			testToken(token.PAREN_R, ")"),
			testToken(token.SYMBOL, "..."),
			testToken(token.FLOAT, ".5"),
			testToken(token.SYMBOL, "->x"),
			testToken(token.EOF, ""),
		}},
		{"'a `(b ,c ,@d)", []*token.Token{
			testToken(token.QUOTE, "'"),
			testToken(token.SYMBOL, "a"),
			testToken(token.QUASIQUOTE, "`"),
			testToken(token.PAREN_L, "("),
			testToken(token.SYMBOL, "b"),
			testToken(token.UNQUOTE, ","),
			testToken(token.SYMBOL, "c"),
			testToken(token.UNQUOTE_SPLICING, ",@"),
			testToken(token.SYMBOL, "d"),
			testToken(token.PAREN_R, ")"),
			testToken(token.EOF, ""),
		}},
		{`10 -5 + - 0.1 12e12 12e-12 12.02E+5 -inf.0 1+`, []*token.Token{
			testToken(token.INT, "10"),
			testToken(token.INT, "-5"),
			testToken(token.SYMBOL, "+"),
			testToken(token.SYMBOL, "-"),
			testToken(token.FLOAT, "0.1"),
			testToken(token.FLOAT, "12e12"),
			testToken(token.FLOAT, "12e-12"),
			testToken(token.FLOAT, "12.02E+5"),
			testToken(token.FLOAT, "-inf.0"),
			testToken(token.SYMBOL, "1+"),
			testToken(token.EOF, ""),
		}},
		{`#t #false #\a #\space #\( #(1) #xff`, []*token.Token{
			testToken(token.BOOL, "#t"),
			testToken(token.BOOL, "#false"),
			testToken(token.CHAR, `#\a`),
			testToken(token.CHAR, `#\space`),
			testToken(token.CHAR, `#\(`),
			testToken(token.VECTOR_L, "#("),
			testToken(token.INT, "1"),
			testToken(token.PAREN_R, ")"),
			testToken(token.INT_RADIX, "#xff"),
			testToken(token.EOF, ""),
		}},
		{"\"abc\\\"\" \"line\nbreak\" |odd sym|", []*token.Token{
			testToken(token.STRING, `"abc\""`),
			testToken(token.STRING, "\"line\nbreak\""),
			testToken(token.SYMBOL, "|odd sym|"),
			testToken(token.EOF, ""),
		}},
		{"; c\n#| a #| nested |# |# #;x", []*token.Token{
			testToken(token.COMMENT, "; c"),
			testToken(token.COMMENT, "#| a #| nested |# |#"),
			testToken(token.DATUM_COMMENT, "#;"),
			testToken(token.SYMBOL, "x"),
			testToken(token.EOF, ""),
		}},
		{"#!/usr/bin/env schemex\nx", []*token.Token{
			testToken(token.HASH_BANG, "#!"),
			testToken(token.COMMENT, "/usr/bin/env schemex"),
			testToken(token.SYMBOL, "x"),
			testToken(token.EOF, ""),
		}},
		{`"open`, []*token.Token{
			testToken(token.ERROR, "unterminated string literal"),
		}},
		{`#q`, []*token.Token{
			testToken(token.ERROR, "invalid dispatch character 'q'"),
		}},
	}
	for i, test := range tests {
		tokens := lexAll(t, test.input)
		assert.Equal(t, test.tokens, tokens, "test %d: %q", i, test.input)
	}
}

func TestLexerLocations(t *testing.T) {
	lex := New(token.NewScanner("test", strings.NewReader("(a\n  b)")))
	var locs []string
	for {
		tok := lex.ReadToken()[0]
		if tok.Type == token.EOF {
			break
		}
		locs = append(locs, tok.Source.String())
	}
	assert.Equal(t, []string{"test:1:1", "test:1:2", "test:2:3", "test:2:4"}, locs)
}

func TestNumberClassification(t *testing.T) {
	assert.True(t, IsInt("0"))
	assert.True(t, IsInt("+12"))
	assert.False(t, IsInt("+"))
	assert.False(t, IsInt("1a"))
	assert.True(t, IsFloat("1."))
	assert.True(t, IsFloat("1e5"))
	assert.False(t, IsFloat("1e"))
	assert.False(t, IsFloat("..."))
	assert.False(t, IsFloat("1.2.3"))
	assert.False(t, IsFloat("12"))
}

func lexAll(t *testing.T, input string) []*token.Token {
	lex := New(token.NewScanner("", strings.NewReader(input)))
	var tokens []*token.Token
	for n := 0; n < 100000; n++ {
		toks := lex.ReadToken()
		if len(toks) != 1 {
			t.Fatalf("lexer returned %d tokens", len(toks))
		}
		tok := toks[0]
		tok.Source = nil
		tokens = append(tokens, tok)
		if tok.Type == token.EOF || tok.Type == token.ERROR {
			return tokens
		}
	}
	t.Fatalf("apparent infinite scanning loop: %q", input)
	return nil
}

func testToken(typ token.Type, text string) *token.Token {
	return &token.Token{
		Type: typ,
		Text: text,
	}
}
