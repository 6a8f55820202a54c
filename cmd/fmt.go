// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/luthersystems/schemex/formatter"
	"github.com/spf13/cobra"
)

type fmtOptions struct {
	write      bool
	diff       bool
	list       bool
	indentSize int
	width      int
	excludes   []string
}

// FmtCommand returns the fmt command.
func FmtCommand() *cobra.Command {
	o := &fmtOptions{}
	cmd := &cobra.Command{
		Use:   "fmt [flags] [files...]",
		Short: "Pretty print scheme source files",
		Long: `Pretty print scheme source files.

Each top-level form is printed on one line when it fits within --width
columns.  Longer forms are broken: definitions and binding forms keep
their header on the first line and indent their body, and other lists
align their arguments.  Comments are not preserved.

With no files, reads from stdin and writes to stdout.
With files, prints formatted output to stdout unless -w is given.

Modes:
  (default)   Print formatted code to stdout
  -w          Write result back to source file
  -d          Display a diff of changes
  -l          List files that would be changed

Examples:
  schemex fmt file.scm              Print formatted output
  schemex fmt -w lib/...            Format a tree in place
  schemex fmt -l *.scm              List files needing formatting
  cat file.scm | schemex fmt        Format from stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := formatter.DefaultConfig()
			cfg.IndentSize = o.indentSize
			cfg.Width = o.width
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				src, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				formatted, err := formatter.Format(src, cfg)
				if err != nil {
					return err
				}
				_, err = out.Write(formatted)
				return err
			}

			paths, err := expandArgs(args, o.excludes)
			if err != nil {
				return err
			}
			changedAny := false
			for _, path := range paths {
				changed, err := o.file(out, path, cfg)
				if err != nil {
					return err
				}
				changedAny = changedAny || changed
			}
			if o.list && changedAny {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&o.write, "write", "w", false,
		"Write result to (source) file instead of stdout.")
	cmd.Flags().BoolVarP(&o.diff, "diff", "d", false,
		"Display diffs instead of rewriting files.")
	cmd.Flags().BoolVarP(&o.list, "list", "l", false,
		"List files whose formatting differs from schemex fmt's.")
	cmd.Flags().IntVar(&o.indentSize, "indent-size", 2,
		"Number of spaces per indentation level.")
	cmd.Flags().IntVar(&o.width, "width", 80,
		"Preferred maximum line width.")
	cmd.Flags().StringArrayVar(&o.excludes, "exclude", nil,
		"Glob pattern for files to exclude (may be repeated).")
	return cmd
}

func (o *fmtOptions) file(out io.Writer, path string, cfg *formatter.Config) (bool, error) {
	src, err := os.ReadFile(path) //nolint:gosec // CLI tool reads user-specified files
	if err != nil {
		return false, err
	}
	formatted, err := formatter.FormatFile(src, path, cfg)
	if err != nil {
		return false, err
	}
	changed := string(src) != string(formatted)

	switch {
	case o.list:
		if changed {
			fmt.Fprintln(out, path) //nolint:errcheck // best-effort CLI output
		}
		return changed, nil
	case o.diff:
		if changed {
			writeLineDiff(out, path, src, formatted)
		}
		return changed, nil
	case o.write:
		if !changed {
			return false, nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return false, err
		}
		return true, os.WriteFile(path, formatted, info.Mode().Perm())
	}
	_, err = out.Write(formatted)
	return changed, err
}

// writeLineDiff writes a naive line-by-line diff of original and formatted.
func writeLineDiff(w io.Writer, path string, original, formatted []byte) {
	fmt.Fprintf(w, "--- %s\n+++ %s\n", path, path) //nolint:errcheck // best-effort CLI output

	origLines := splitLines(original)
	fmtLines := splitLines(formatted)
	i, j := 0, 0
	for i < len(origLines) || j < len(fmtLines) {
		switch {
		case i < len(origLines) && j < len(fmtLines) && origLines[i] == fmtLines[j]:
			fmt.Fprintf(w, " %s\n", origLines[i]) //nolint:errcheck // best-effort CLI output
			i++
			j++
		case i < len(origLines):
			fmt.Fprintf(w, "-%s\n", origLines[i]) //nolint:errcheck // best-effort CLI output
			i++
		default:
			fmt.Fprintf(w, "+%s\n", fmtLines[j]) //nolint:errcheck // best-effort CLI output
			j++
		}
	}
}

func splitLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
