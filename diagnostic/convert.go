// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"errors"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/parser/rdparser"
	"github.com/luthersystems/schemex/parser/token"
)

// FromError converts an error returned by the reader or the analyzer to a
// Diagnostic.  Irritants of compile-time errors are rendered with r, or with
// lisp.DefaultRenderer if r is nil.  When err wraps the located error the
// full chain is added as a note.
func FromError(err error, r lisp.Renderer) Diagnostic {
	if r == nil {
		r = lisp.DefaultRenderer
	}
	d := Diagnostic{Severity: SeverityError}
	var (
		located error
		loc     *token.Location
	)
	var evalErr *lisp.EvalError
	var syntaxErr *rdparser.SyntaxError
	var locErr *token.LocationError
	switch {
	case errors.As(err, &evalErr):
		located, loc = evalErr, evalErr.Source
		d.Code = evalErr.Condition()
		d.Message = evalErr.Render(r)
	case errors.As(err, &syntaxErr):
		located, loc = syntaxErr, syntaxErr.Source
		d.Code = syntaxErr.Condition
		d.Message = syntaxErr.Message
	case errors.As(err, &locErr):
		located, loc = locErr, locErr.Source
		d.Message = locErr.Err.Error()
	default:
		d.Message = err.Error()
		return d
	}
	if span, ok := SpanOf(loc); ok {
		d.Spans = append(d.Spans, span)
	}
	if err != located {
		d.Notes = append(d.Notes, err.Error())
	}
	return d
}

// SpanOf returns a Span for loc if loc is a tracked source location.
func SpanOf(loc *token.Location) (Span, bool) {
	if loc.Native() || loc.Line <= 0 {
		return Span{}, false
	}
	span := Span{
		File: loc.File,
		Line: loc.Line,
		Col:  loc.Col,
	}
	// Prefer physical path for reading source
	if loc.Path != "" {
		span.File = loc.Path
	}
	return span, true
}
