// Copyright © 2024 The ELPS authors

// Package formatter pretty prints scheme forms.  It is used to display the
// results of macro expansion and the irritants of compile-time errors.
//
// Comments are not preserved: input source is read with the ordinary reader
// and written back from the resulting forms.
package formatter

import (
	"bytes"
	"strings"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/parser/rdparser"
	"github.com/luthersystems/schemex/parser/token"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

// Format reformats scheme source code. If cfg is nil, DefaultConfig() is used.
func Format(source []byte, cfg *Config) ([]byte, error) {
	return FormatFile(source, "<stdin>", cfg)
}

// FormatFile reformats scheme source code, using filename for error messages.
func FormatFile(source []byte, filename string, cfg *Config) ([]byte, error) {
	s := token.NewScanner(filename, bytes.NewReader(source))
	exprs, err := rdparser.New(s).ParseProgram()
	if err != nil {
		return nil, err
	}
	return []byte(Sprint(exprs, cfg)), nil
}

// Sprint formats a sequence of top-level forms separated by newlines.  The
// result ends with exactly one newline if there are any forms.
func Sprint(exprs []*lisp.LVal, cfg *Config) string {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var b strings.Builder
	for _, v := range exprs {
		b.WriteString(Expr(v, cfg))
		b.WriteByte('\n')
	}
	return b.String()
}

// Expr formats a single form without a trailing newline.
func Expr(v *lisp.LVal, cfg *Config) string {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := newPrinter(cfg)
	p.writeExpr(v)
	return p.buf.String()
}

// Renderer renders error irritants.  Forms too wide for one line are pretty
// printed and continued on indented lines.  Deep renderings of strings are
// word wrapped.
type Renderer struct {
	Config *Config
	// Indent is the number of columns continuation lines are indented.
	Indent uint
}

var _ lisp.Renderer = (*Renderer)(nil)

// NewRenderer returns a Renderer using the default configuration.
func NewRenderer() *Renderer {
	return &Renderer{
		Config: DefaultConfig(),
		Indent: 2,
	}
}

// Raw implements lisp.Renderer.
func (r *Renderer) Raw(v *lisp.LVal) string {
	return r.render(v, false)
}

// Deep implements lisp.Renderer.
func (r *Renderer) Deep(v *lisp.LVal) string {
	return r.render(v, true)
}

func (r *Renderer) render(v *lisp.LVal, bare bool) string {
	cfg := r.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if bare && v.Type == lisp.LString {
		if cfg.Width <= 0 {
			return v.Str
		}
		return r.continued(wordwrap.String(v.Str, cfg.Width))
	}
	return r.continued(Expr(v, cfg))
}

// continued indents every line of s but the first.
func (r *Renderer) continued(s string) string {
	first, rest, ok := strings.Cut(s, "\n")
	if !ok || r.Indent == 0 {
		return s
	}
	return first + "\n" + indent.String(rest, r.Indent)
}
