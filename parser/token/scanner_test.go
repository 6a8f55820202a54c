// Copyright © 2018 The ELPS authors

package token

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerLocations(t *testing.T) {
	s := NewScanner("test.scm", strings.NewReader("(λ x\n  #|c|# y)"))
	var toks []*Token
	for {
		s.AcceptSeqSpace()
		s.Ignore()
		if s.ScanRune() != nil {
			break
		}
		switch {
		case s.Rune() == '#' && s.AcceptString("|c|#"):
			toks = append(toks, s.EmitToken(COMMENT))
		case strings.ContainsRune("()", s.Rune()):
			toks = append(toks, s.EmitToken(PAREN_L))
		default:
			s.AcceptSeq(func(c rune) bool { return !unicode.IsSpace(c) && c != ')' })
			toks = append(toks, s.EmitToken(SYMBOL))
		}
	}
	var got []string
	for _, tok := range toks {
		got = append(got, tok.Text+"@"+tok.Source.String())
	}
	// columns count bytes, λ is two
	assert.Equal(t, []string{
		"(@test.scm:1:1",
		"λ@test.scm:1:2",
		"x@test.scm:1:5",
		"#|c|#@test.scm:2:3",
		"y@test.scm:2:9",
		")@test.scm:2:10",
	}, got)
	assert.Equal(t, 15, toks[5].Source.Pos)
}

func TestScannerLookahead(t *testing.T) {
	s := NewScanner("", strings.NewReader(",@x"))
	assert.True(t, s.Lookahead(",@"))
	assert.False(t, s.Lookahead(",@xy"))
	assert.False(t, s.AcceptString(",x"))
	assert.Equal(t, "", s.Text())
	assert.True(t, s.AcceptString(",@"))
	assert.Equal(t, ",@", s.Text())
	assert.Equal(t, '@', s.Rune())
	c, ok := s.Peek()
	assert.True(t, ok)
	assert.Equal(t, 'x', c)
	assert.True(t, s.AcceptRune('x'))
	_, ok = s.Peek()
	assert.False(t, ok)
	assert.Equal(t, io.EOF, s.ScanRune())
}

func TestScannerPath(t *testing.T) {
	s := NewScanner("lib", strings.NewReader("a"))
	s.SetPath("/src/lib.sld")
	require.NoError(t, s.ScanRune())
	tok := s.EmitToken(SYMBOL)
	assert.Equal(t, &Location{File: "lib", Path: "/src/lib.sld", Line: 1, Col: 1}, tok.Source)
}

func TestScannerInvalidUTF8(t *testing.T) {
	s := NewScanner("", strings.NewReader("a\xffb"))
	assert.Equal(t, 1, s.AcceptSeq(func(rune) bool { return true }))
	err := s.ScanRune()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid utf-8")
	assert.Equal(t, "a", s.Text())
}

func TestScannerReadError(t *testing.T) {
	boom := errors.New("boom")
	s := NewScanner("", io.MultiReader(strings.NewReader("ab"), iotest.ErrReader(boom)))
	require.NoError(t, s.ScanRune())
	require.NoError(t, s.ScanRune())
	assert.Equal(t, boom, s.ScanRune())
	assert.Equal(t, "ab", s.EmitToken(SYMBOL).Text)
}
