// Copyright © 2018 The ELPS authors

// Package schemextest runs scheme source through the front end from go
// tests.
//
// Test files are read as a transcript.  A line comment beginning with ;=>
// gives the expected expansion of the last form preceding it.  A line comment
// beginning with ;!! gives the condition of the error expected while
// analyzing the forms preceding it, optionally followed by a colon and the
// expected message.  The forms of a file share one environment.
package schemextest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib"
	"github.com/luthersystems/schemex/parser"
	"github.com/luthersystems/schemex/parser/rdparser"
)

func BenchmarkParse(path string, r func() lisp.Reader) func(*testing.B) {
	return func(b *testing.B) {
		buf, err := os.ReadFile(path) //#nosec G304
		if err != nil {
			b.Fatalf("Unable to read source file %v: %v", path, err)
		}
		b.SetBytes(int64(len(buf)))
		for i := 0; i < b.N; i++ {
			_, err := r().Read("test", bytes.NewReader(buf))
			if err != nil {
				b.Fatalf("Parse failure: %v", err)
			}
		}
	}
}

// Runner is a test runner.
type Runner struct {
	// Loader registers libraries in the runtime used by each test.  When
	// Loader is nil lisplib.LoadLibraries is used.
	Loader func(*lisp.Runtime) error

	// Config is applied to the runtime after the reader and logger are
	// configured.
	Config []lisp.Config
}

// NewEnv returns a user environment in a new runtime which logs to t.
func (r *Runner) NewEnv(t testing.TB) (*lisp.Env, error) {
	config := []lisp.Config{
		lisp.WithReader(parser.NewReader()),
		lisp.WithLogger(NewSlogger(t)),
	}
	config = append(config, r.Config...)
	rt, err := lisp.NewRuntime(config...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runtime: %w", err)
	}
	loader := r.Loader
	if loader == nil {
		loader = lisplib.LoadLibraries
	}
	err = loader(rt)
	if err != nil {
		return nil, fmt.Errorf("failed to load libraries: %w", err)
	}
	env, err := lisp.NewUserEnv(rt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize user environment: %w", err)
	}
	return env, nil
}

// Case is a portion of a test file and its expected outcome.
type Case struct {
	// Line is the line number where the case's source begins.
	Line int
	// Source contains the case's forms, preceded by enough newlines that
	// the forms are read at their line in the file.
	Source string
	// Expansion is the expected expansion of the last form.
	Expansion string
	// Condition is the expected error condition.
	Condition string
	// Message is the expected error message, if given.
	Message string
}

// ParseCases splits the contents of a test file into cases.  Trailing forms
// without an expectation form a final case which must analyze without error.
func ParseCases(source []byte) ([]Case, error) {
	var cases []Case
	var chunk strings.Builder
	start, lineno := 1, 0
	s := bufio.NewScanner(bytes.NewReader(source))
	for s.Scan() {
		lineno++
		line := s.Text()
		trimmed := strings.TrimSpace(line)
		expect, isExpansion := strings.CutPrefix(trimmed, ";=>")
		failure, isError := strings.CutPrefix(trimmed, ";!!")
		if !isExpansion && !isError {
			chunk.WriteString(line)
			chunk.WriteByte('\n')
			continue
		}
		c := Case{
			Line:   start,
			Source: strings.Repeat("\n", start-1) + chunk.String(),
		}
		if isExpansion {
			c.Expansion = strings.TrimSpace(expect)
		} else {
			cond, msg, _ := strings.Cut(strings.TrimSpace(failure), ":")
			c.Condition = strings.TrimSpace(cond)
			c.Message = strings.TrimSpace(msg)
			if c.Condition == "" {
				return nil, fmt.Errorf("line %d: missing error condition", lineno)
			}
		}
		cases = append(cases, c)
		chunk.Reset()
		start = lineno + 1
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(chunk.String()) != "" {
		cases = append(cases, Case{
			Line:   start,
			Source: strings.Repeat("\n", start-1) + chunk.String(),
		})
	}
	return cases, nil
}

// RunCase analyzes c in env and reports any deviation from its expectation.
func (r *Runner) RunCase(t testing.TB, env *lisp.Env, name string, c Case) {
	t.Helper()
	nodes, err := env.LoadString(context.Background(), name, c.Source)
	if c.Condition != "" {
		if err == nil {
			t.Errorf("expected %s error", c.Condition)
			return
		}
		cond := Condition(err)
		if cond != c.Condition {
			r.SchemeError(t, err)
			t.Errorf("expected condition %s (got %s)", c.Condition, cond)
			return
		}
		if c.Message != "" && Message(err) != c.Message {
			t.Errorf("expected message %q (got %q)", c.Message, Message(err))
		}
		return
	}
	if err != nil {
		r.SchemeError(t, err)
		return
	}
	if c.Expansion == "" {
		return
	}
	if len(nodes) == 0 {
		t.Errorf("no forms preceding expected expansion %s", c.Expansion)
		return
	}
	got := nodes[len(nodes)-1].Form.String()
	if got != c.Expansion {
		t.Errorf("expected expansion %s (got %s)", c.Expansion, got)
	}
}

// RunTestFile runs the cases of the test file at path in order.
func (r *Runner) RunTestFile(t *testing.T, path string) {
	source, err := os.ReadFile(path) //#nosec G304
	if err != nil {
		t.Errorf("Unable to read test file: %v", err)
		return
	}
	cases, err := ParseCases(source)
	if err != nil {
		t.Errorf("%s: %v", path, err)
		return
	}
	env, err := r.NewEnv(t)
	if err != nil {
		t.Fatal(err.Error())
	}
	name := filepath.Base(path)
	for _, c := range cases {
		// Later cases still run after a failure.  Forms which failed to
		// analyze leave no definitions behind.
		t.Run(fmt.Sprintf("line%d", c.Line), func(t *testing.T) {
			r.RunCase(t, env, name, c)
		})
	}
	if errs := env.Finish(); len(errs) > 0 {
		for _, err := range errs {
			r.SchemeError(t, err)
		}
	}
}

// RunBenchmarkFile analyzes the cases of the file at path which are
// expected to succeed, in a new environment, b.N times.
func (r *Runner) RunBenchmarkFile(b *testing.B, path string) {
	b.StopTimer()
	source, err := os.ReadFile(path) //#nosec G304
	if err != nil {
		b.Errorf("Unable to read test file: %v", err)
		return
	}
	cases, err := ParseCases(source)
	if err != nil {
		b.Fatalf("%s: %v", path, err)
	}
	var buf bytes.Buffer
	for _, c := range cases {
		if c.Condition == "" {
			buf.WriteString(strings.TrimLeft(c.Source, "\n"))
		}
	}
	name := filepath.Base(path)
	b.SetBytes(int64(buf.Len()))
	for i := 0; i < b.N; i++ {
		env, err := r.NewEnv(b)
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
		_, errs := check(env, name, buf.Bytes())
		b.StopTimer()
		if len(errs) > 0 {
			b.Fatal(errs[0])
		}
	}
}

func check(env *lisp.Env, name string, source []byte) ([]*lisp.Node, []error) {
	exprs, err := env.Runtime.Reader.Read(name, bytes.NewReader(source))
	if err != nil {
		return nil, []error{err}
	}
	return env.Check(context.Background(), exprs)
}

// SchemeError reports err as a test failure.
func (r *Runner) SchemeError(t testing.TB, err error) {
	t.Helper()
	t.Error(err)
}

// Condition returns the condition name of an analysis or syntax error.
func Condition(err error) string {
	var lerr *lisp.EvalError
	if errors.As(err, &lerr) {
		return lerr.Condition()
	}
	var serr *rdparser.SyntaxError
	if errors.As(err, &serr) {
		return serr.Condition
	}
	return ""
}

// Message returns the message of an analysis or syntax error without its
// location and condition.
func Message(err error) string {
	var lerr *lisp.EvalError
	if errors.As(err, &lerr) {
		return lerr.Message()
	}
	var serr *rdparser.SyntaxError
	if errors.As(err, &serr) {
		return serr.Message
	}
	return err.Error()
}

// TestSequence is a sequence of expressions which are analyzed sequentially
// in one environment.
type TestSequence []struct {
	Expr   string // a scheme expression
	Result string // the expanded form, when Error is empty
	Error  string // the expected error condition
}

// TestSuite is a set of named TestSequences
type TestSuite []struct {
	Name string
	TestSequence
}

// RunTestSuite runs each TestSequence in tests in an isolated environment.
func RunTestSuite(t *testing.T, tests TestSuite, config ...lisp.Config) {
	r := &Runner{Config: config}
	for i, test := range tests {
		env, err := r.NewEnv(t)
		if err != nil {
			t.Errorf("test %d %q: %v", i, test.Name, err)
			continue
		}
		for j, expr := range test.TestSequence {
			nodes, err := env.LoadString(context.Background(), "test", expr.Expr)
			if expr.Error != "" {
				if err == nil {
					t.Errorf("test %d %q: expr %d: expected %s error", i, test.Name, j, expr.Error)
				} else if cond := Condition(err); cond != expr.Error {
					t.Errorf("test %d %q: expr %d: expected %s error (got %v)", i, test.Name, j, expr.Error, err)
				}
				continue
			}
			if err != nil {
				t.Errorf("test %d %q: expr %d: %v", i, test.Name, j, err)
				continue
			}
			if len(nodes) != 1 {
				t.Errorf("test %d %q: expr %d: more than one expression parsed (%d)", i, test.Name, j, len(nodes))
				continue
			}
			result := nodes[0].Form.String()
			if result != expr.Result {
				t.Errorf("test %d %q: expr %d: expected result %s (got %s)", i, test.Name, j, expr.Result, result)
			}
		}
	}
}
