// Copyright © 2018 The ELPS authors

package lisp_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/parser"
	"github.com/luthersystems/schemex/schemextest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv returns a user environment which imports only the core library.
func testEnv(t testing.TB, config ...lisp.Config) *lisp.Env {
	t.Helper()
	config = append([]lisp.Config{
		lisp.WithReader(parser.NewReader()),
		lisp.WithLogger(schemextest.NewSlogger(t)),
	}, config...)
	rt, err := lisp.NewRuntime(config...)
	require.NoError(t, err)
	env, err := lisp.NewUserEnv(rt)
	require.NoError(t, err)
	return env
}

// load analyzes src in env and returns the expanded forms, one per line.
func load(t testing.TB, env *lisp.Env, src string) (string, error) {
	t.Helper()
	nodes, err := env.LoadString(context.Background(), "test", src)
	if err != nil {
		return "", err
	}
	forms := make([]string, len(nodes))
	for i, n := range nodes {
		forms[i] = n.Form.String()
	}
	return strings.Join(forms, "\n"), nil
}

// last analyzes src in env and returns the node of its last form.
func last(t testing.TB, env *lisp.Env, src string) *lisp.Node {
	t.Helper()
	nodes, err := env.LoadString(context.Background(), "test", src)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	return nodes[len(nodes)-1]
}

// requireCondition asserts that err is an EvalError of the given kind and
// returns it.
func requireCondition(t testing.TB, err error, kind lisp.ErrorKind) *lisp.EvalError {
	t.Helper()
	require.Error(t, err)
	var lerr *lisp.EvalError
	require.ErrorAs(t, err, &lerr, "%v", err)
	require.Equal(t, kind.Condition(), lerr.Condition(), "%v", err)
	return lerr
}

func TestLValString(t *testing.T) {
	tests := []struct {
		v      *lisp.LVal
		output string
	}{
		{lisp.Int(-3), "-3"},
		{lisp.Float(2), "2.0"},
		{lisp.Float(0.5), "0.5"},
		{lisp.Float(math.Inf(1)), "+inf.0"},
		{lisp.Float(math.NaN()), "+nan.0"},
		{lisp.Bool(true), "#t"},
		{lisp.Bool(false), "#f"},
		{lisp.Char('a'), `#\a`},
		{lisp.Char(' '), `#\space`},
		{lisp.Char(0x7), `#\alarm`},
		{lisp.String("a\"b\n"), `"a\"b\n"`},
		{lisp.Symbol("abc"), "abc"},
		{lisp.Nil(), "()"},
		{lisp.List(lisp.Int(1), lisp.Symbol("x")), "(1 x)"},
		{lisp.DottedList([]*lisp.LVal{lisp.Int(1)}, lisp.Int(2)), "(1 . 2)"},
		{lisp.Vector([]*lisp.LVal{lisp.Int(1), lisp.String("s")}), `#(1 "s")`},
		{lisp.Quote(lisp.Symbol("x")), "'x"},
		{lisp.List(lisp.Symbol("quasiquote"), lisp.List(lisp.Symbol("unquote"), lisp.Symbol("x"))), "`,x"},
		{lisp.List(lisp.Symbol("quote"), lisp.Int(1), lisp.Int(2)), "(quote 1 2)"},
	}
	for i, test := range tests {
		assert.Equal(t, test.output, test.v.String(), "test %d", i)
	}
}

func TestLValRenamed(t *testing.T) {
	x := lisp.Symbol("x")
	m := &lisp.Mark{ID: 7, Base: x}
	rx := lisp.Rename(x, m)
	assert.True(t, rx.IsRenamed())
	assert.False(t, x.IsRenamed())
	assert.True(t, rx.IsSymbol("x"))
	assert.Equal(t, "x", rx.String())
	assert.Equal(t, "x#7", rx.Ident().String())
	assert.False(t, lisp.Equal(x, rx))
	assert.True(t, lisp.Equal(rx, lisp.Rename(x, m)))
	assert.False(t, lisp.Equal(rx, lisp.Rename(x, &lisp.Mark{ID: 7, Base: x})), "marks compare by identity")

	// renamed quote is not abbreviated
	q := lisp.List(lisp.Rename(lisp.Symbol("quote"), m), x)
	assert.Equal(t, "(quote x)", q.String())

	form := lisp.List(rx, lisp.Vector([]*lisp.LVal{rx}), lisp.DottedList([]*lisp.LVal{x}, rx))
	stripped := lisp.Strip(form)
	assert.True(t, lisp.Equal(stripped, lisp.List(x, lisp.Vector([]*lisp.LVal{x}), lisp.DottedList([]*lisp.LVal{x}, x))))
	assert.True(t, form.Cells[0].IsRenamed(), "Strip does not modify its argument")
	assert.Same(t, x, lisp.Strip(x))
}

func TestDottedList(t *testing.T) {
	one, two := lisp.Int(1), lisp.Int(2)
	v := lisp.DottedList([]*lisp.LVal{one}, lisp.List(two))
	assert.True(t, v.IsList())
	assert.Equal(t, "(1 2)", v.String())

	v = lisp.DottedList(nil, nil)
	assert.True(t, v.IsNil())

	v = lisp.DottedList(nil, two)
	assert.Same(t, two, v)

	v = lisp.DottedList([]*lisp.LVal{one}, two)
	assert.False(t, v.IsList())
	assert.True(t, v.IsPair())
	assert.Equal(t, 1, v.Len())
	assert.Same(t, two, v.Rest())

	assert.True(t, lisp.List(one).Rest().IsNil())
	assert.True(t, lisp.Nil().Rest().IsNil())
	assert.Nil(t, lisp.Nil().Head())
}

func TestEqual(t *testing.T) {
	assert.True(t, lisp.Equal(lisp.Float(math.NaN()), lisp.Float(math.NaN())))
	assert.False(t, lisp.Equal(lisp.Int(1), lisp.Float(1)))
	assert.False(t, lisp.Equal(lisp.Char('a'), lisp.Int('a')))
	assert.True(t, lisp.Equal(lisp.String("a"), lisp.String("a")))
	assert.False(t, lisp.Equal(lisp.List(lisp.Int(1)), lisp.Vector([]*lisp.LVal{lisp.Int(1)})))
	assert.False(t, lisp.Equal(
		lisp.DottedList([]*lisp.LVal{lisp.Int(1)}, lisp.Int(2)),
		lisp.List(lisp.Int(1))))
}
