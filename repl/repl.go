// Copyright © 2018 The ELPS authors

// Package repl implements an interactive expander.  Each form entered is
// analyzed in a persistent user environment and its full expansion is
// printed.
package repl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/luthersystems/schemex/diagnostic"
	"github.com/luthersystems/schemex/formatter"
	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib"
	"github.com/luthersystems/schemex/parser"
	"github.com/luthersystems/schemex/parser/lexer"
	"github.com/luthersystems/schemex/parser/rdparser"
	"github.com/luthersystems/schemex/parser/token"
)

type config struct {
	stdin       io.ReadCloser
	stderr      io.Writer
	color       diagnostic.ColorMode
	historyFile string
	lisp        []lisp.Config
}

func newConfig(opts ...Option) *config {
	config := &config{
		stderr:      os.Stderr,
		historyFile: historyPath(),
	}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

type Option func(*config)

// WithStdin allows overriding the input to the REPL.
func WithStdin(stdin io.ReadCloser) Option {
	return func(c *config) {
		c.stdin = stdin
	}
}

// WithStderr allows overriding the output of the REPL.
func WithStderr(stderr io.Writer) Option {
	return func(c *config) {
		c.stderr = stderr
	}
}

// WithColor sets the color mode used to render errors.
func WithColor(mode diagnostic.ColorMode) Option {
	return func(c *config) {
		c.color = mode
	}
}

// WithHistoryFile sets the file readline history is kept in.  An empty path
// disables history.
func WithHistoryFile(path string) Option {
	return func(c *config) {
		c.historyFile = path
	}
}

// WithRuntimeConfig applies config to the runtime created by RunRepl.
func WithRuntimeConfig(cfgs ...lisp.Config) Option {
	return func(c *config) {
		c.lisp = append(c.lisp, cfgs...)
	}
}

// RunRepl runs a repl in a user environment with the standard libraries.
func RunRepl(ctx context.Context, prompt string, opts ...Option) error {
	cfg := newConfig(opts...)
	config := append([]lisp.Config{lisp.WithReader(parser.NewReader())}, cfg.lisp...)
	env, err := lisplib.NewUserEnv(config...)
	if err != nil {
		return fmt.Errorf("language initialization failure: %w", err)
	}
	return RunEnv(ctx, env, prompt, strings.Repeat(" ", len(prompt)), opts...)
}

// session holds the state of a running repl.
type session struct {
	env      *lisp.Env
	out      io.Writer
	render   *diagnostic.Renderer
	format   *formatter.Renderer
	numLines int
}

// RunEnv runs a repl with env as a top-level environment.
func RunEnv(ctx context.Context, env *lisp.Env, prompt, cont string, opts ...Option) error {
	if !env.IsTopLevel() {
		return fmt.Errorf("repl environment is not a top-level environment")
	}
	cfg := newConfig(opts...)

	p := rdparser.NewInteractive(nil)
	p.SetPrompts(prompt, cont)

	s := &session{
		env: env,
		out: cfg.stderr,
		render: &diagnostic.Renderer{
			Color:   cfg.color,
			Sources: make(map[string]string),
		},
		format: formatter.NewRenderer(),
	}

	ensureHistoryFilePermissions(cfg.historyFile)
	rlCfg := &readline.Config{
		Stdout:            cfg.stderr,
		Stderr:            cfg.stderr,
		Prompt:            p.Prompt(),
		HistoryFile:       cfg.historyFile,
		HistorySearchFold: true,
		AutoComplete:      &symbolCompleter{env: env},
	}
	if cfg.stdin != nil {
		rlCfg.Stdin = cfg.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	eof := []*token.Token{{Type: token.EOF}}
	p.Read = func() []*token.Token {
		for {
			rl.SetPrompt(p.Prompt())
			line, err := rl.ReadSlice()
			if err == readline.ErrInterrupt {
				continue
			}
			if err != nil {
				return eof
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if line[0] == ',' && !p.IsParsing() {
				if !s.command(string(line)) {
					return eof
				}
				continue
			}
			tokens := s.lex(line)
			if len(tokens) > 0 {
				return tokens
			}
		}
	}

	for {
		expr, err := p.Parse()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			s.renderError(err)
			continue
		}
		s.eval(ctx, expr)
	}
}

// lex tokenizes one line of input.  Each line is named separately so that
// errors can show it as source context.
func (s *session) lex(line []byte) []*token.Token {
	s.numLines++
	name := fmt.Sprintf("<repl:%d>", s.numLines)
	s.render.Sources[name] = string(line)

	var tokens []*token.Token
	lex := lexer.New(token.NewScanner(name, bytes.NewReader(line)))
	for {
		toks := lex.ReadToken()
		for _, tok := range toks {
			if tok.Type == token.EOF {
				return tokens
			}
			tokens = append(tokens, tok)
			if tok.Type == token.ERROR {
				// the parser reports the error and discards the line
				return tokens
			}
		}
	}
}

func (s *session) eval(ctx context.Context, expr *lisp.LVal) {
	node, err := s.env.Analyze(ctx, expr)
	if err != nil {
		s.renderError(err)
		return
	}
	fmt.Fprintln(s.out, formatter.Expr(node.Form, s.format.Config)) //nolint:errcheck // best-effort REPL output
}

func (s *session) renderError(err error) {
	d := diagnostic.FromError(err, s.format)
	_ = s.render.Render(s.out, d)
}

// command runs a repl command and returns false if the repl should exit.
func (s *session) command(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ",quit", ",q":
		return false
	case ",libraries":
		for _, key := range s.env.Runtime.Libraries.Keys() {
			fmt.Fprintln(s.out, key) //nolint:errcheck // best-effort REPL output
		}
	case ",exports":
		s.exports(strings.TrimSpace(strings.TrimPrefix(line, ",exports")))
	case ",pending":
		// forward references are resolved by later definitions or ,finish
		for _, sym := range s.env.Unit.Pending() {
			fmt.Fprintln(s.out, sym) //nolint:errcheck // best-effort REPL output
		}
	case ",finish":
		for _, err := range s.env.Finish() {
			s.renderError(err)
		}
	default:
		fmt.Fprintln(s.out, "commands: ,libraries ,exports (library name) ,pending ,finish ,quit") //nolint:errcheck // best-effort REPL output
	}
	return true
}

func (s *session) exports(src string) {
	names, err := s.env.Runtime.Reader.Read("<command>", strings.NewReader(src))
	if err == nil && len(names) != 1 {
		err = fmt.Errorf("expected one library name")
	}
	if err != nil {
		s.renderError(err)
		return
	}
	lib, err := s.env.Runtime.LookupLibrary(context.Background(), names[0])
	if err != nil {
		s.renderError(err)
		return
	}
	for _, exp := range lib.Exports() {
		fmt.Fprintln(s.out, exp.External) //nolint:errcheck // best-effort REPL output
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".schemex_history")
}

// ensureHistoryFilePermissions creates the history file if necessary and
// restricts it to the current user.
func ensureHistoryFilePermissions(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600) //#nosec G304
	if err != nil {
		return
	}
	_ = f.Close()
	_ = os.Chmod(path, 0600)
}
