// Copyright © 2018 The ELPS authors

package lisp_test

import (
	"strings"
	"testing"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/parser/token"
	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	seen := make(map[string]bool)
	for _, kind := range lisp.ErrorKinds() {
		cond := kind.Condition()
		assert.NotEmpty(t, cond)
		assert.False(t, seen[cond], "duplicate condition %s", cond)
		seen[cond] = true
		assert.Equal(t, cond, strings.ToLower(cond))
		assert.NotContains(t, cond, " ")
		assert.NotEmpty(t, kind.Template(), cond)
		assert.NotEqual(t, "unknown", kind.Category().String(), cond)
	}
	assert.Equal(t, lisp.MacroErrors, lisp.CondNoExpansion.Category())
	assert.Equal(t, lisp.LibraryErrors, lisp.CondUnknownLibrary.Category())
	assert.Equal(t, lisp.ScopeErrors, lisp.CondUnboundVariable.Category())
	assert.Equal(t, lisp.SyntaxErrors, lisp.CondDuplicateBinding.Category())
	assert.Equal(t, "unknown-error", lisp.ErrorKind(1000).Condition())
}

func TestErrorMessage(t *testing.T) {
	f := lisp.Symbol("f")
	tests := []struct {
		err *lisp.EvalError
		msg string
	}{
		{lisp.NewError(lisp.CondArgumentError, f, lisp.List(f, lisp.Int(1))), "wrong number of arguments for f: (f 1)"},
		{lisp.NewError(lisp.CondDuplicateBinding, lisp.Symbol("x"), lisp.List(lisp.List(lisp.Symbol("x"), lisp.Int(1)))), "symbol x bound multiple times in ((x 1))"},
		// $0 renders strings as written
		{lisp.NewError(lisp.CondMalformedDefinition, lisp.String("x")), `malformed definition: "x"`},
		// $,0 renders strings without quotes
		{lisp.NewError(lisp.CondUnknownLibrary, lisp.String("x")), "unknown library x"},
		{lisp.NewError(lisp.CondUnknownLibrary, lisp.LibraryName("a", "b")), "unknown library (a b)"},
		{lisp.NewError(lisp.CondErroneousRedefinition, f, lisp.String("(lib)")), "attempted to redefine f with definition from (lib)"},
		{lisp.NewError(lisp.CondUninitializedExports, lisp.List(lisp.Symbol("B"), f), lisp.LibraryName("lib")), "library (lib) does not initialize the exported definitions (B f)"},
		// missing irritants leave their placeholder
		{lisp.NewError(lisp.CondMalformedBinding, lisp.Symbol("a")), "malformed binding a in $1"},
		{lisp.NewError(lisp.CondExpansionDepthExceeded, lisp.Int(3)), "maximum macro expansion depth 3 exceeded expanding $1"},
	}
	for i, test := range tests {
		assert.Equal(t, test.msg, test.err.Message(), "test %d", i)
	}
}

func TestErrorLocation(t *testing.T) {
	err := lisp.NewError(lisp.CondUnboundVariable, lisp.Symbol("x"))
	assert.True(t, err.Source.Native())
	assert.EqualError(t, err, "unbound-variable: unbound variable: x")

	loc := &token.Location{File: "f.scm", Line: 2, Col: 3, Pos: 10}
	err.At(loc)
	assert.EqualError(t, err, "f.scm:2:3: unbound-variable: unbound variable: x")

	// an existing location is kept
	err.At(&token.Location{File: "g.scm", Line: 1, Col: 1})
	assert.Same(t, loc, err.Source)

	// the location is taken from the first located irritant
	sym := lisp.Symbol("y")
	sym.Source = loc
	err = lisp.NewError(lisp.CondMalformedBinding, lisp.Symbol("z"), sym)
	assert.Same(t, loc, err.Source)
}

type bracketRenderer struct{}

func (bracketRenderer) Raw(v *lisp.LVal) string  { return "[" + v.String() + "]" }
func (bracketRenderer) Deep(v *lisp.LVal) string { return "<" + v.String() + ">" }

func TestErrorRender(t *testing.T) {
	err := lisp.NewError(lisp.CondErroneousRedefinition, lisp.Symbol("car"), lisp.String("user"))
	assert.Equal(t, `attempted to redefine [car] with definition from <"user">`, err.Render(bracketRenderer{}))
	assert.Equal(t, "attempted to redefine car with definition from user", err.Render(lisp.DefaultRenderer))
}

func TestErrorIrritantsUnmarked(t *testing.T) {
	env := testEnv(t)
	_, err := load(t, env, `
(define-syntax m (syntax-rules () ((_) (let ((t 1) (t 2)) t))))
(m)`)
	lerr := requireCondition(t, err, lisp.CondDuplicateBinding)
	assert.Equal(t, "symbol t bound multiple times in ((t 1) (t 2))", lerr.Message())
	var marked []string
	for _, v := range lerr.Irritants {
		collectMarked(v, &marked)
	}
	assert.Empty(t, marked)
}

func collectMarked(v *lisp.LVal, marked *[]string) {
	if v == nil {
		return
	}
	if v.Type == lisp.LSymbol && v.Mark != nil {
		*marked = append(*marked, v.Str)
	}
	for _, c := range v.Cells {
		collectMarked(c, marked)
	}
	collectMarked(v.Tail, marked)
}
