// Copyright © 2018 The ELPS authors

package repl

import (
	"context"
	"testing"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib"
	"github.com/luthersystems/schemex/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolCompleter(t *testing.T) {
	env, err := lisplib.NewUserEnv(lisp.WithReader(parser.NewReader()))
	require.NoError(t, err)
	_, err = env.LoadString(context.Background(), "test", `
(define-syntax def-tmp (syntax-rules () ((_ v) (define defined-tmp v))))
(define defined-by-user 1)
(def-tmp 2)`)
	require.NoError(t, err)

	c := &symbolCompleter{env: env}

	candidates, offset := c.Do([]rune("(def"), 4)
	assert.Equal(t, 3, offset)
	var names []string
	for _, suffix := range candidates {
		names = append(names, "def"+string(suffix))
	}
	assert.Contains(t, names, "define")
	assert.Contains(t, names, "define-syntax")
	assert.Contains(t, names, "defined-by-user")
	assert.Contains(t, names, "def-tmp")
	// the macro's definition is renamed
	assert.NotContains(t, names, "defined-tmp")

	candidates, offset = c.Do([]rune("'(lam"), 5)
	assert.Equal(t, 3, offset)
	assert.Contains(t, candidates, []rune("bda"))

	candidates, _ = c.Do([]rune("(zzz-nonexistent"), 16)
	assert.Empty(t, candidates)

	candidates, offset = c.Do([]rune("(f "), 3)
	assert.Empty(t, candidates)
	assert.Equal(t, 0, offset)
}
