// Copyright © 2024 The ELPS authors

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/luthersystems/schemex/lisp"
)

// source is a named unit of input text.
type source struct {
	name string
	text string
}

// readSources returns the inputs named by args.  With expr set each
// argument is source text.  Without arguments stdin is read.
func readSources(stdin io.Reader, args []string, expr bool, excludes []string) ([]source, error) {
	if len(args) == 0 {
		text, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return []source{{name: "<stdin>", text: string(text)}}, nil
	}
	if expr {
		srcs := make([]source, len(args))
		for i, arg := range args {
			srcs[i] = source{name: fmt.Sprintf("<arg %d>", i+1), text: arg}
		}
		return srcs, nil
	}
	paths, err := expandArgs(args, excludes)
	if err != nil {
		return nil, err
	}
	srcs := make([]source, len(paths))
	for i, path := range paths {
		text, err := os.ReadFile(path) //nolint:gosec // CLI tool reads user-specified files
		if err != nil {
			return nil, err
		}
		srcs[i] = source{name: path, text: string(text)}
	}
	return srcs, nil
}

// read parses src with the reader of rt.
func (src source) read(rt *lisp.Runtime) ([]*lisp.LVal, error) {
	return rt.Reader.Read(src.name, bytes.NewReader([]byte(src.text)))
}

// sourceMap indexes source text by name for diagnostic rendering.
func sourceMap(srcs []source) map[string]string {
	m := make(map[string]string, len(srcs))
	for _, src := range srcs {
		m[src.name] = src.text
	}
	return m
}
