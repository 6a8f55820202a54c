// Copyright © 2024 The ELPS authors

package lisplib_test

import (
	"context"
	"testing"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib"
	"github.com/luthersystems/schemex/lisp/lisplib/libbase"
	"github.com/luthersystems/schemex/lisp/lisplib/libmath"
	"github.com/luthersystems/schemex/lisp/lisplib/libstring"
	"github.com/luthersystems/schemex/parser"
	"github.com/luthersystems/schemex/schemextest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLibraries(t *testing.T) {
	env, err := lisplib.NewUserEnv(lisp.WithReader(parser.NewReader()))
	require.NoError(t, err)
	rt := env.Runtime
	for _, name := range [][]string{lisp.CoreLibraryName, lisp.BaseLibraryName, libmath.LibraryName, libstring.LibraryName} {
		lib := rt.Libraries.Get(lisp.LibraryKey(lisp.LibraryName(name...)))
		if assert.NotNil(t, lib, "%v", name) {
			assert.Equal(t, lisp.LibraryReady, lib.State)
			assert.True(t, lib.Native)
		}
	}
	// user environments import the base library
	b := env.Get(lisp.Symbol("car"))
	require.NotNil(t, b)
	require.NotNil(t, b.Primitive)
	assert.Equal(t, lisp.Exactly(1), b.Primitive.Arity)
	assert.Equal(t, "(lispkit base)", b.Origin)
	assert.NotNil(t, env.Get(lisp.Symbol("swap!")))
	assert.Nil(t, env.Get(lisp.Symbol("string-map")))
}

func TestLoadLibraries_Order(t *testing.T) {
	rt, err := lisp.NewRuntime(lisp.WithReader(parser.NewReader()))
	require.NoError(t, err)
	// the string library cannot be registered before the base library
	err = libstring.LoadLibrary(rt)
	assert.Error(t, err)
	assert.Nil(t, rt.Libraries.Get(lisp.LibraryKey(lisp.LibraryName(libstring.LibraryName...))))
	require.NoError(t, libbase.LoadLibrary(rt))
	require.NoError(t, libstring.LoadLibrary(rt))
}

func TestLoadLibraries_NoReader(t *testing.T) {
	rt := lisp.StandardRuntime()
	err := lisplib.LoadLibraries(rt)
	assert.Error(t, err)
}

func TestStandardLibraries(t *testing.T) {
	schemextest.RunTestSuite(t, schemextest.TestSuite{
		{"arity", schemextest.TestSequence{
			{`(car '(1 2))`, `(car '(1 2))`, ""},
			{`(car)`, "", "argument-error"},
			{`(cons 1)`, "", "argument-error"},
			{`(lambda (x) (car x x))`, "", "argument-error"},
			{`(+)`, `(+)`, ""},
			{`(- 1 2 3)`, `(- 1 2 3)`, ""},
		}},
		{"derived syntax", schemextest.TestSequence{
			{`(define a 1)`, `(define a 1)`, ""},
			{`(define b 2)`, `(define b 2)`, ""},
			{`(swap! a b)`, `(let ((tmp a)) (set! a b) (set! b tmp))`, ""},
			{`(assert (= a 2))`, `(unless (= a 2) (error "assertion failed" (quote (= a 2))))`, ""},
		}},
		{"hygienic tmp", schemextest.TestSequence{
			{`(define tmp 1)`, `(define tmp 1)`, ""},
			{`(define other 2)`, `(define other 2)`, ""},
			{`(swap! tmp other)`, `(let ((tmp tmp)) (set! tmp other) (set! other tmp))`, ""},
		}},
		{"string library", schemextest.TestSequence{
			{`(import (lispkit string))`, `(import (lispkit string))`, ""},
			{`(string-map char-upcase "abc")`, "", "unbound-variable"},
			{`(string-join (list "a" "b") ",")`, `(string-join (list "a" "b") ",")`, ""},
			{`(substring "abc")`, "", "argument-error"},
		}},
		{"math library", schemextest.TestSequence{
			{`(import (prefix (lispkit math) m:))`, `(import (prefix (lispkit math) m:))`, ""},
			{`(m:square m:pi)`, `(m:square m:pi)`, ""},
			{`(m:sqrt 1 2)`, "", "argument-error"},
			{`(sqrt 4)`, "", "unbound-variable"},
		}},
	})
}

func TestLibrarySourceBindings(t *testing.T) {
	env, err := lisplib.NewUserEnv(lisp.WithReader(parser.NewReader()))
	require.NoError(t, err)
	nodes, err := env.LoadString(context.Background(), "test", "(define-syntax my-swap swap!)\n(define x 1)\n(define y 2)\n(my-swap x y)")
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	let := nodes[3]
	assert.Equal(t, lisp.SpecLet, let.Special)
	// the set! targets are the user's variables
	set := let.Children[1]
	assert.Equal(t, lisp.SpecSet, set.Special)
	assert.Same(t, env.Get(lisp.Symbol("x")), set.Binding)
}
