// Copyright © 2018 The ELPS authors

package rdparser

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/parser/lexer"
	"github.com/luthersystems/schemex/parser/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser(t *testing.T) {
	tests := []struct {
		source string
		output string
	}{
		{`0`, `0`},
		{`12`, `12`},
		{`+5`, `5`},
		{`-1`, `-1`},
		{`0.3`, `0.3`},
		{`1e3`, `1000.0`},
		{`-inf.0`, `-inf.0`},
		{`#x1F`, `31`},
		{`#b101`, `5`},
		{`#o17`, `15`},
		{`#d2.5`, `2.5`},
		{`#t`, `#t`},
		{`#false`, `#f`},
		{`#\a`, `#\a`},
		{`#\space`, `#\space`},
		{`#\x41`, `#\A`},
		{`#\(`, `#\(`},
		{`abc`, `abc`},
		{`set!`, `set!`},
		{`...`, `...`},
		{`->x`, `->x`},
		{`|hello world|`, `hello world`},
		{`'xyz`, `'xyz`},
		{"`(a ,b ,@c)", "`(a ,b ,@c)"},
		{`"xyz"`, `"xyz"`},
		{`"x\nyz"`, `"x\nyz"`},
		{`"x\x41;y"`, `"xAy"`},
		{"\"a\\\n    b\"", `"ab"`},
		{`""`, `""`},
		{`()`, `()`},
		{`'()`, `'()`},
		{`(1 2 3)`, `(1 2 3)`},
		{`[1 2 3]`, `(1 2 3)`},
		{`(a . b)`, `(a . b)`},
		{`(a b . c)`, `(a b . c)`},
		{`(a . (b c))`, `(a b c)`},
		{`#(1 "a" #\b)`, `#(1 "a" #\b)`},
		{`(1 "abc" '(x y z))`, `(1 "abc" '(x y z))`},
	}

	for i, test := range tests {
		name := fmt.Sprintf("test%d", i)
		s := token.NewScanner(name, strings.NewReader(test.source))
		p := New(s)
		exprs, err := p.ParseProgram()
		if !assert.NoError(t, err, "test %d", i) {
			continue
		}
		if !assert.Len(t, exprs, 1, "test %d", i) {
			continue
		}
		testLValLocation(t, exprs[0])
		assert.Equal(t, test.output, exprs[0].String(), "test %d", i)
	}
}

func TestComments(t *testing.T) {
	tests := []struct {
		source string
		output string
	}{
		{`(1 2 3) ; A comment`, `(1 2 3)`},
		{`	; A comment
			(1 "abc" '(x y z))`, `(1 "abc" '(x y z))`},
		{`(1 "abc" ; A comment
			'(x y z))`, `(1 "abc" '(x y z))`},
		{`(1 "abc" ; A comment
			)`, `(1 "abc")`},
		{`(1 #;(ignored 2) 3)`, `(1 3)`},
		{`#;x y`, `y`},
		{`#| block #| nested |# |# (a)`, `(a)`},
		{`#!/usr/bin/env schemex
(a b)`, `(a b)`},
		{`#!fold-case (a b)`, `(a b)`},
	}

	for i, test := range tests {
		name := fmt.Sprintf("test%d", i)
		p := New(token.NewScanner(name, strings.NewReader(test.source)))
		exprs, err := p.ParseProgram()
		if !assert.NoError(t, err, "test %d", i) {
			continue
		}
		if !assert.Len(t, exprs, 1, "test %d", i) {
			continue
		}
		assert.Equal(t, test.output, exprs[0].String(), "test %d", i)
	}
}

func testLValLocation(t *testing.T, v *lisp.LVal) {
	if v.Source == nil || v.Source.Native() {
		t.Errorf("value missing source location: %v", v)
	}
	for _, v := range v.Cells {
		testLValLocation(t, v)
	}
}

func TestLocations(t *testing.T) {
	p := New(token.NewScanner("test", strings.NewReader("(define x\n  '(1 2))")))
	exprs, err := p.ParseProgram()
	require.NoError(t, err)
	require.Len(t, exprs, 1)
	form := exprs[0]
	assert.Equal(t, "test:1:1", form.Source.String())
	assert.Equal(t, "test:1:2", form.Cells[0].Source.String())
	assert.Equal(t, "test:1:9", form.Cells[1].Source.String())
	assert.Equal(t, "test:2:3", form.Cells[2].Source.String())
	assert.Equal(t, "test:2:4", form.Cells[2].Cells[1].Source.String())
}

func TestErrors(t *testing.T) {
	tests := []struct {
		source string
		errmsg string
	}{
		{`(1 2 3`, `test0:1:1: unmatched-syntax: unmatched (`},
		{`(1 2 3]`, `test1:1:7: unmatched-syntax: mismatched ] closing (`},
		{`(1 2
  #o9)`, `test2:2:3: invalid-number: invalid number literal: #o9`},
		{`(. a)`, `test3:1:2: parse-error: unexpected dot`},
		{`(a . b c)`, `test4:1:8: parse-error: expected ) after dotted tail`},
		{`)`, `test5:1:1: parse-error: unexpected token: )`},
		{`"a\qb"`, `test6:1:1: invalid-escape: invalid escape \q in string literal "a\qb"`},
		{`#\bogus`, `test7:1:1: invalid-character: invalid character literal: #\bogus`},
		{`#(a . b)`, `test8:1:5: parse-error: unexpected dot in vector`},
		{`(a #q)`, `test9:1:4: scan-error: invalid dispatch character 'q'`},
		{`'`, `test10:1:2: unexpected-eof: unexpected end of input`},
	}

	for i, test := range tests {
		name := fmt.Sprintf("test%d", i)
		p := New(token.NewScanner(name, strings.NewReader(test.source)))
		_, err := p.ParseProgram()
		if !assert.Error(t, err, "test %d", i) {
			continue
		}
		assert.Equal(t, test.errmsg, err.Error(), "test %d", i)
		var serr *SyntaxError
		assert.ErrorAs(t, err, &serr, "test %d", i)
	}
}

// lineReader returns a TokenGenerator that lexes one line per call and
// records the prompt shown for it.
func lineReader(p **Interactive, prompts *[]string, lines ...string) TokenGenerator {
	return func() []*token.Token {
		*prompts = append(*prompts, (*p).Prompt())
		if len(lines) == 0 {
			return []*token.Token{{Type: token.EOF}}
		}
		lex := lexer.New(token.NewScanner(fmt.Sprintf("line%d", len(*prompts)), strings.NewReader(lines[0]+"\n")))
		lines = lines[1:]
		var toks []*token.Token
		for {
			tok := lex.ReadToken()[0]
			if tok.Type == token.EOF {
				return toks
			}
			toks = append(toks, tok)
		}
	}
}

func TestInteractive(t *testing.T) {
	var p *Interactive
	var prompts []string
	p = NewInteractive(lineReader(&p, &prompts, "(define x", "  1) x", "#;", "(ignored)", "y"))
	p.SetPrompts("> ", "  ")
	assert.Equal(t, "> ", p.Prompt())

	var data []string
	for {
		v, err := p.Parse()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data = append(data, v.String())
	}
	assert.Equal(t, []string{"(define x 1)", "x", "y"}, data)
	// a datum comment at the end of a line continues onto the next
	assert.Equal(t, []string{"> ", "  ", "> ", "  ", "> ", "> "}, prompts)
	assert.False(t, p.IsParsing())
	assert.False(t, (*Interactive)(nil).IsParsing())
}

func TestInteractiveError(t *testing.T) {
	var p *Interactive
	var prompts []string
	p = NewInteractive(lineReader(&p, &prompts, "(a ] b c", "d"))
	p.SetPrompts("> ", "  ")

	_, err := p.Parse()
	var serr *SyntaxError
	require.ErrorAs(t, err, &serr)
	v, err := p.Parse()
	require.NoError(t, err)
	assert.Equal(t, "d", v.String())
	_, err = p.Parse()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, []string{"> ", "> ", "> "}, prompts)
}
