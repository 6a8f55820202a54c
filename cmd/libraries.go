// Copyright © 2021 The ELPS authors

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/luthersystems/schemex/lisp"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
)

// LibrariesCommand returns the libraries command.
func LibrariesCommand(opts ...Option) *cobra.Command {
	var docs bool
	cmd := &cobra.Command{
		Use:   "libraries [flags] [LIBRARY-NAME...]",
		Short: "List libraries and their exports",
		Long: `Without arguments, list the libraries registered with the runtime.

With library names, list the identifiers each library exports, marking
syntactic keywords.  Libraries which are not registered are loaded from
--library-path.  With --docs, the documentation of procedures implemented
in Go is shown below their names.

Examples:
  schemex libraries
  schemex libraries '(lispkit base)'
  schemex libraries --docs '(lispkit math)' '(lispkit string)'
  schemex libraries --library-path=lib '(my util)'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCmdConfig(opts)
			rt, err := c.newRuntime(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, key := range rt.Libraries.Keys() {
					fmt.Fprintln(out, key) //nolint:errcheck // best-effort CLI output
				}
				return nil
			}
			srcs := make([]source, len(args))
			for i, arg := range args {
				srcs[i] = source{name: fmt.Sprintf("<arg %d>", i+1), text: arg}
			}
			for i, src := range srcs {
				if i > 0 {
					fmt.Fprintln(out) //nolint:errcheck // best-effort CLI output
				}
				err := printLibrary(cmd, rt, src, docs)
				if err != nil {
					renderErrors(cmd.ErrOrStderr(), sourceMap(srcs), []error{err})
					return &exitError{code: 1}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&docs, "docs", "d", false,
		"Show documentation for exported procedures.")
	return cmd
}

func printLibrary(cmd *cobra.Command, rt *lisp.Runtime, src source, docs bool) error {
	names, err := src.read(rt)
	if err != nil {
		return err
	}
	if len(names) != 1 {
		return fmt.Errorf("%s: expected one library name", src.name)
	}
	name, err := lisp.ParseLibraryName(names[0])
	if err != nil {
		return err
	}
	lib, err := rt.LookupLibrary(cmd.Context(), name)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", lib.Key) //nolint:errcheck // best-effort CLI output
	for _, exp := range lib.Exports() {
		b := lib.Env.Get(exp.Internal)
		writeExport(out, exp.External, b, docs)
	}
	return nil
}

func writeExport(w io.Writer, name string, b *lisp.Binding, docs bool) {
	switch {
	case b == nil:
		fmt.Fprintf(w, "  %s\n", name) //nolint:errcheck // best-effort CLI output
		return
	case b.Kind == lisp.DenVariable:
		fmt.Fprintf(w, "  %s\n", name) //nolint:errcheck // best-effort CLI output
	default:
		fmt.Fprintf(w, "  %s (%s)\n", name, b.Kind) //nolint:errcheck // best-effort CLI output
	}
	if !docs || b.Primitive == nil || b.Primitive.Doc == "" {
		return
	}
	doc := strings.Join(strings.Fields(b.Primitive.Doc), " ")
	fmt.Fprintln(w, indent.String(wordwrap.String(doc, 72), 6)) //nolint:errcheck // best-effort CLI output
}
