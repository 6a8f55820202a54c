// Copyright © 2018 The ELPS authors

package token

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Scanner reads the runes of scheme source text and tracks the location of
// the token being scanned.  Lines are counted from 1.  Columns are byte
// offsets from the start of the line, counted from 1, so a column indexes
// the source line directly.
//
// The whole input is read when the Scanner is created.  A read error is
// returned by ScanRune after the bytes read before it have been scanned.
type Scanner struct {
	file string
	path string
	src  []byte
	err  error

	pos       int  // offset of the next rune
	line      int  // line containing pos
	lineStart int  // offset of the first byte of line
	c         rune // last scanned rune

	start          int // offset of the current token
	startLine      int
	startLineStart int
}

// NewScanner reads r and returns a Scanner over its contents.  The file name
// is recorded in token locations.
func NewScanner(file string, r io.Reader) *Scanner {
	src, err := io.ReadAll(r)
	return &Scanner{
		file:      file,
		src:       src,
		err:       err,
		line:      1,
		startLine: 1,
	}
}

// SetPath associates a physical location (e.g. filesystem path) with s to aid
// in debugging projects which scan many ungrouped files.
func (s *Scanner) SetPath(path string) {
	s.path = path
}

// EmitToken returns a token containing the text scanned since the last call to
// either EmitToken or Ignore.
func (s *Scanner) EmitToken(typ Type) *Token {
	tok := &Token{
		Type:   typ,
		Text:   s.Text(),
		Source: s.LocStart(),
	}
	s.Ignore()
	return tok
}

// Ignore causes the scanner to skip all text scanned since the last call to
// either EmitToken or Ignore.
func (s *Scanner) Ignore() {
	s.start = s.pos
	s.startLine = s.line
	s.startLineStart = s.lineStart
}

// Text returns the text scanned since the last call to either EmitToken or
// Ignore.
func (s *Scanner) Text() string {
	return string(s.src[s.start:s.pos])
}

// Rune returns the last scanned rune.
func (s *Scanner) Rune() rune {
	return s.c
}

// Peek returns the next rune without scanning it.  The second value is false
// at the end of input or before an invalid utf-8 sequence.
func (s *Scanner) Peek() (rune, bool) {
	if s.pos >= len(s.src) {
		return 0, false
	}
	c, n := utf8.DecodeRune(s.src[s.pos:])
	if c == utf8.RuneError && n == 1 {
		return utf8.RuneError, false
	}
	return c, true
}

// Lookahead returns true if the unscanned input begins with prefix.  The
// dispatch sequences #|, |#, #; and ,@ are recognized this way.
func (s *Scanner) Lookahead(prefix string) bool {
	return strings.HasPrefix(string(s.src[s.pos:min(len(s.src), s.pos+len(prefix))]), prefix)
}

// ScanRune scans the next rune into the current token.  At the end of input
// ScanRune returns io.EOF, or the error that interrupted reading.
func (s *Scanner) ScanRune() error {
	if s.pos >= len(s.src) {
		if s.err != nil {
			return s.err
		}
		return io.EOF
	}
	c, n := utf8.DecodeRune(s.src[s.pos:])
	if c == utf8.RuneError && n == 1 {
		return s.invalidUTF8()
	}
	s.c = c
	s.pos += n
	if c == '\n' {
		s.line++
		s.lineStart = s.pos
	}
	return nil
}

func (s *Scanner) invalidUTF8() error {
	return fmt.Errorf("invalid utf-8 sequence in source text starting with byte %q", s.src[s.pos])
}

// Accept scans the next rune if fn returns true for it.
func (s *Scanner) Accept(fn func(rune) bool) bool {
	c, ok := s.Peek()
	if !ok || !fn(c) {
		return false
	}
	return s.ScanRune() == nil
}

// AcceptRune scans the next rune if it is c.
func (s *Scanner) AcceptRune(c rune) bool {
	return s.Accept(func(r rune) bool { return r == c })
}

// AcceptString scans literal if the unscanned input begins with it.  Nothing
// is scanned otherwise.
func (s *Scanner) AcceptString(literal string) bool {
	if !s.Lookahead(literal) {
		return false
	}
	for range literal {
		if s.ScanRune() != nil {
			return false
		}
	}
	return true
}

// AcceptSeq scans runes while fn returns true and returns their number.
func (s *Scanner) AcceptSeq(fn func(rune) bool) int {
	var n int
	for s.Accept(fn) {
		n++
	}
	return n
}

// AcceptSeqSpace scans a run of white space and returns its length in runes.
func (s *Scanner) AcceptSeqSpace() int {
	return s.AcceptSeq(unicode.IsSpace)
}

// LocStart returns the Location of the first byte of the current token.
func (s *Scanner) LocStart() *Location {
	return &Location{
		File: s.file,
		Path: s.path,
		Line: s.startLine,
		Col:  s.start - s.startLineStart + 1,
		Pos:  s.start,
	}
}
