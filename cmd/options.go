// Copyright © 2024 The ELPS authors

package cmd

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib"
	"github.com/luthersystems/schemex/parser"
	"github.com/spf13/viper"
)

// Option configures an exported command factory (ExpandCommand,
// CheckCommand, LibrariesCommand).
type Option func(*cmdConfig)

type cmdConfig struct {
	runtime []lisp.Config
	env     *lisp.Env
}

// WithRuntimeConfig applies config to the runtime the command analyzes
// source in, after the settings read from flags and the config file.
// Embedders use it to register their own native libraries.
func WithRuntimeConfig(config ...lisp.Config) Option {
	return func(c *cmdConfig) { c.runtime = append(c.runtime, config...) }
}

// WithEnv makes the command analyze source in env instead of a new user
// environment.  Runtime configuration is ignored.
func WithEnv(env *lisp.Env) Option {
	return func(c *cmdConfig) { c.env = env }
}

func newCmdConfig(opts []Option) *cmdConfig {
	c := &cmdConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// runtimeConfig returns the runtime configuration derived from viper
// settings.  Diagnostic logs are written to stderr.  The standard libraries
// are registered before the configuration given by options.
func (c *cmdConfig) runtimeConfig(stderr io.Writer) []lisp.Config {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	config := []lisp.Config{
		lisp.WithReader(parser.NewReader()),
		lisp.WithLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))),
	}
	if depth := viper.GetInt("max-expansion-depth"); depth > 0 {
		config = append(config, lisp.WithMaxExpansionDepth(depth))
	}
	if features := viper.GetStringSlice("features"); len(features) > 0 {
		config = append(config, lisp.WithFeatures(features...))
	}
	if roots := viper.GetStringSlice("library-path"); len(roots) > 0 {
		for i := range roots {
			roots[i] = filepath.Clean(roots[i])
		}
		config = append(config, lisp.WithLibraryLoader(&lisp.FileSystemLoader{Roots: roots}))
	}
	if tracer := tracerFromConfig(stderr); tracer != nil {
		config = append(config, lisp.WithTracer(tracer))
	}
	config = append(config, lisplib.WithStandardLibraries())
	return append(config, c.runtime...)
}

// newRuntime returns the runtime a command analyzes source in.
func (c *cmdConfig) newRuntime(stderr io.Writer) (*lisp.Runtime, error) {
	if c.env != nil {
		return c.env.Runtime, nil
	}
	return lisp.NewRuntime(c.runtimeConfig(stderr)...)
}

// newEnv returns the environment a command analyzes source in.
func (c *cmdConfig) newEnv(stderr io.Writer) (*lisp.Env, error) {
	if c.env != nil {
		return c.env, nil
	}
	rt, err := c.newRuntime(stderr)
	if err != nil {
		return nil, err
	}
	return lisp.NewUserEnv(rt)
}
