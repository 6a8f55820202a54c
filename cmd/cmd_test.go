// Copyright © 2024 The ELPS authors

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/luthersystems/schemex/lisp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func requireExit(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, exitCode(err), "%v", err)
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"check", "expand", "fmt", "libraries", "repl"})
	for _, name := range []string{"config", "color", "max-expansion-depth", "library-path", "features", "verbose", "trace"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "missing flag: %s", name)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(&exitError{code: 1}))
	assert.Equal(t, 2, exitCode(assert.AnError))
}

func TestExpandCommand(t *testing.T) {
	out, _, err := execute(t, ExpandCommand(), "", "-e",
		"(define-syntax m (syntax-rules () ((_ x) (list x x))))",
		"(m 1)")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "(list 1 1)\n"), out)

	out, _, err = execute(t, ExpandCommand(), "(define x   1)\n'x")
	require.NoError(t, err)
	assert.Equal(t, "(define x 1)\n'x\n", out)
}

func TestExpandCommandWidth(t *testing.T) {
	out, _, err := execute(t, ExpandCommand(), "", "--width", "20", "-e", "(define (f a b) (list a b))")
	require.NoError(t, err)
	assert.Equal(t, "(define f\n  (lambda (a b)\n    (list a b)))\n", out)
}

func TestExpandCommandYAML(t *testing.T) {
	out, _, err := execute(t, ExpandCommand(), "", "-e", "--format", "yaml",
		"(define x 1) (define (f) (g x)) (define (g y) y)")
	require.NoError(t, err)

	var doc expansion
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "<arg 1>", doc.Source)
	require.Len(t, doc.Forms, 3)
	assert.Equal(t, "define", doc.Forms[0].Kind)
	assert.Equal(t, "x", doc.Forms[0].Defines)
	assert.Equal(t, "<arg 1>:1:1", doc.Forms[0].Location)
	assert.Equal(t, "f", doc.Forms[1].Defines)
	assert.Equal(t, []string{"g", "x"}, doc.Forms[1].References)
	assert.Equal(t, []string{"x"}, doc.Free["user"])
	assert.Equal(t, []string{"g"}, doc.Free[""])
}

func TestExpandCommandErrors(t *testing.T) {
	_, stderr, err := execute(t, ExpandCommand(), "", "-e", "(if)")
	requireExit(t, err, 1)
	assert.Contains(t, stderr, "error[argument-error]: wrong number of arguments for if: (if)")
	assert.Contains(t, stderr, "--> <arg 1>:1:")
	assert.Contains(t, stderr, " 1 |  (if)")

	_, stderr, err = execute(t, ExpandCommand(), "", "-e", "(define (f) (nope))")
	requireExit(t, err, 1)
	assert.Contains(t, stderr, "error[unbound-variable]: unbound variable: nope")

	_, _, err = execute(t, ExpandCommand(), "", "--format", "json", "-e", "1")
	requireExit(t, err, 2)

	_, _, err = execute(t, ExpandCommand(), "", filepath.Join(t.TempDir(), "missing.scm"))
	requireExit(t, err, 2)
}

func TestExpandCommandRuntimeConfig(t *testing.T) {
	ext := lisp.WithLibrary([]string{"ext"}, func(lib *lisp.NativeLibrary) error {
		if err := lib.Import("lispkit", "core"); err != nil {
			return err
		}
		if err := lib.Define("ext.scm", "(define answer 42)"); err != nil {
			return err
		}
		return lib.Export("answer")
	})
	out, _, err := execute(t, ExpandCommand(WithRuntimeConfig(ext)), "", "-e",
		"(import (ext))", "answer")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "answer\n"), out)
}

func TestExpandCommandTrace(t *testing.T) {
	viper.Set("trace", true)
	t.Cleanup(func() { viper.Set("trace", false) })
	_, stderr, err := execute(t, ExpandCommand(), "", "-e", "(if 1 2 3)")
	require.NoError(t, err)
	assert.Contains(t, stderr, "trace: analyze ")
	assert.Contains(t, stderr, "schemex.form=if")
}

func TestExpandCommandLibraryPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "my/util.sld", `
(define-library (my util)
  (export twice)
  (import (lispkit core) (lispkit base))
  (begin (define (twice x) (list x x))))`)
	viper.Set("library-path", []string{dir})
	t.Cleanup(func() { viper.Set("library-path", nil) })

	out, _, err := execute(t, ExpandCommand(), "", "-e", "(import (my util))", "(twice 1)")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "(twice 1)\n"), out)
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.scm", "(define x 1)\n")
	bad := writeFile(t, dir, "src/bad.scm", "(if)\n(define x 1 2)\n(let ((x 1) (x 2)) x)\n")

	_, stderr, err := execute(t, CheckCommand(), "", good)
	require.NoError(t, err)
	assert.Empty(t, stderr)

	_, stderr, err = execute(t, CheckCommand(), "", dir+"/...")
	requireExit(t, err, 1)
	assert.Equal(t, 3, strings.Count(stderr, "error["), stderr)
	assert.Contains(t, stderr, "--> "+bad+":1:")
	assert.Contains(t, stderr, "--> "+bad+":3:")
	assert.Contains(t, stderr, "error[duplicate-binding]")

	_, _, err = execute(t, CheckCommand(), "", "--exclude", "src", dir+"/...")
	require.NoError(t, err)

	_, stderr, err = execute(t, CheckCommand(), "(define (f) (g))\n")
	requireExit(t, err, 1)
	assert.Contains(t, stderr, "--> <stdin>:1:")

	_, _, err = execute(t, CheckCommand(), "", "--watch")
	requireExit(t, err, 2)
}

func TestCheckCommandLibraries(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "a.sld", "(define-library (a) (export v) (import (lispkit core)) (begin (define v 1)))\n")
	prog := writeFile(t, dir, "b.scm", "(import (a))\nv\n")
	_, stderr, err := execute(t, CheckCommand(), "", lib, prog)
	require.NoError(t, err, stderr)
}

func TestWatchDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/b/c.scm", "")
	dirs, trees, err := watchDirs([]string{filepath.Join(dir, "x.scm"), dir + "/..."})
	require.NoError(t, err)
	assert.Equal(t, []string{dir, filepath.Join(dir, "a"), filepath.Join(dir, "a", "b")}, dirs)
	assert.Equal(t, []string{dir}, trees)

	assert.True(t, inTree(trees, filepath.Join(dir, "new")))
	assert.True(t, inTree(trees, filepath.Join(dir, "a", "new")))
	assert.False(t, inTree(trees, filepath.Dir(dir)))
	assert.False(t, inTree(trees, dir+"x"))
	assert.False(t, inTree(nil, filepath.Join(dir, "new")))
}

// watchChanges runs watch in the background and returns a channel receiving
// each reported change.
func watchChanges(t *testing.T, dirs, trees []string) <-chan struct{} {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, dirs, trees, func() { changed <- struct{}{} })
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watch did not stop")
		}
	})
	return changed
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "w.scm", "1\n")

	changed := watchChanges(t, []string{dir}, nil)

	// the watcher is registered asynchronously
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	writeFile(t, dir, "notes.txt", "ignored")
wait:
	for {
		select {
		case <-changed:
			break wait
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte("2\n"), 0o600))
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
}

func TestWatchNewDirectory(t *testing.T) {
	dir := t.TempDir()
	dirs, trees, err := watchDirs([]string{dir + "/..."})
	require.NoError(t, err)
	changed := watchChanges(t, dirs, trees)

	// the watcher is registered asynchronously, so each tick creates a new
	// directory tree holding a source file
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for n := 0; ; n++ {
		select {
		case <-changed:
			return
		case <-tick.C:
			writeFile(t, dir, fmt.Sprintf("sub%d/deeper/new.scm", n), "1\n")
		case <-deadline:
			t.Fatal("no change reported for a file in a new directory")
		}
	}
}

func TestLibrariesCommand(t *testing.T) {
	out, _, err := execute(t, LibrariesCommand(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "(lispkit core)\n")
	assert.Contains(t, out, "(lispkit base)\n")

	out, _, err = execute(t, LibrariesCommand(), "", "--docs", "(lispkit core)", "(lispkit math)")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "(lispkit core)\n"), out)
	assert.Contains(t, out, "  define (special-form)\n")
	assert.Contains(t, out, "\n\n(lispkit math)\n")
	assert.Contains(t, out, "  sqrt\n      Returns the square root of number as a float.\n")

	_, stderr, err := execute(t, LibrariesCommand(), "", "(no such)")
	requireExit(t, err, 1)
	assert.Contains(t, stderr, "error[unknown-library]")

	_, stderr, err = execute(t, LibrariesCommand(), "", "(1.5)")
	requireExit(t, err, 1)
	assert.Contains(t, stderr, "error[malformed-library-name]")
}

func TestFmtCommand(t *testing.T) {
	out, _, err := execute(t, FmtCommand(), "(define x   1)\n\n(display\n x)")
	require.NoError(t, err)
	assert.Equal(t, "(define x 1)\n(display x)\n", out)

	dir := t.TempDir()
	messy := writeFile(t, dir, "messy.scm", "(a   b)\n")
	clean := writeFile(t, dir, "clean.scm", "(a b)\n")

	out, _, err = execute(t, FmtCommand(), "", "-l", dir+"/...")
	requireExit(t, err, 1)
	assert.Equal(t, messy+"\n", out)

	out, _, err = execute(t, FmtCommand(), "", "-d", messy)
	require.NoError(t, err)
	assert.Equal(t, "--- "+messy+"\n+++ "+messy+"\n-(a   b)\n+(a b)\n", out)

	_, _, err = execute(t, FmtCommand(), "", "-w", messy, clean)
	require.NoError(t, err)
	data, err := os.ReadFile(messy)
	require.NoError(t, err)
	assert.Equal(t, "(a b)\n", string(data))

	_, _, err = execute(t, FmtCommand(), "(a")
	requireExit(t, err, 2)
}
