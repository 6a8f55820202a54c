// Copyright © 2024 The ELPS authors

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/luthersystems/schemex/diagnostic"
	"github.com/luthersystems/schemex/formatter"
	"github.com/spf13/viper"
)

// exitError is returned by a command which has already reported its
// failure.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitCode returns the process exit status for a command error.  Errors
// which are not exitErrors indicate a bad invocation.
func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 2
}

func newRenderer(sources map[string]string) *diagnostic.Renderer {
	return &diagnostic.Renderer{
		Color:   diagnostic.ParseColorMode(viper.GetString("color")),
		Sources: sources,
	}
}

// renderErrors writes a diagnostic for each error to w.  Irritants are
// pretty printed.
func renderErrors(w io.Writer, sources map[string]string, errs []error) {
	ds := make([]diagnostic.Diagnostic, len(errs))
	fr := formatter.NewRenderer()
	for i, err := range errs {
		ds[i] = diagnostic.FromError(err, fr)
	}
	_ = newRenderer(sources).RenderAll(w, ds)
}
