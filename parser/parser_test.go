// Copyright © 2024 The ELPS authors

package parser

import (
	"strings"
	"testing"

	"github.com/luthersystems/schemex/lisp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReader_Standard(t *testing.T) {
	r := NewReader()
	exprs, err := r.Read("test", strings.NewReader("(+ 1 2)"))
	require.NoError(t, err)
	require.Len(t, exprs, 1)
	assert.Equal(t, lisp.LSExpr, exprs[0].Type)
	assert.Equal(t, "(+ 1 2)", exprs[0].String())
}

func TestNewReader_Atoms(t *testing.T) {
	r := NewReader()
	exprs, err := r.Read("test", strings.NewReader(`42 "s" #\x #t`))
	require.NoError(t, err)
	require.Len(t, exprs, 4)
	assert.Equal(t, lisp.LInt, exprs[0].Type)
	assert.Equal(t, 42, exprs[0].Int)
	assert.Equal(t, lisp.LString, exprs[1].Type)
	assert.Equal(t, lisp.LChar, exprs[2].Type)
	assert.Equal(t, lisp.LBool, exprs[3].Type)
}

func TestNewReader_ParseError(t *testing.T) {
	r := NewReader()
	_, err := r.Read("test", strings.NewReader("(unclosed"))
	assert.EqualError(t, err, "test:1:1: unmatched-syntax: unmatched (")
}

func TestNewReader_LocationReader(t *testing.T) {
	r := NewReader()
	lr, ok := r.(lisp.LocationReader)
	require.True(t, ok, "standard reader should implement LocationReader")

	exprs, err := lr.ReadLocation("logical", "/path/to/file.scm", strings.NewReader("(bar)"))
	require.NoError(t, err)
	require.Len(t, exprs, 1)
	assert.Equal(t, "logical", exprs[0].Source.File)
	assert.Equal(t, "/path/to/file.scm", exprs[0].Source.Path)
}
