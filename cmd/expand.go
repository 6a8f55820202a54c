// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/luthersystems/schemex/astutil"
	"github.com/luthersystems/schemex/formatter"
	"github.com/luthersystems/schemex/lisp"
	"github.com/spf13/cobra"
)

// expansion is the yaml representation of an expanded source.
type expansion struct {
	Source string              `yaml:"source"`
	Forms  []expandedForm      `yaml:"forms"`
	Free   map[string][]string `yaml:"free,omitempty"`
}

type expandedForm struct {
	Location   string   `yaml:"location,omitempty"`
	Kind       string   `yaml:"kind"`
	Defines    string   `yaml:"defines,omitempty"`
	Form       string   `yaml:"form"`
	References []string `yaml:"references,omitempty"`
}

// ExpandCommand returns the expand command.
func ExpandCommand(opts ...Option) *cobra.Command {
	var (
		expr     bool
		format   string
		width    int
		excludes []string
	)
	cmd := &cobra.Command{
		Use:   "expand [flags] [files...]",
		Short: "Print the fully expanded form of scheme source",
		Long: `Analyze scheme source and print each top-level form after macro
expansion.  Identifiers introduced by macros are printed by name.

All sources are analyzed in order in one user environment, which imports
(lispkit core) and (lispkit base).  With no files, reads from stdin.
Analysis stops at the first error.

With --format=yaml, each source is written as a yaml document listing the
kind of each top-level form, the name it defines, the variables it
references and the free variables of the source keyed by the library that
binds them.

Examples:
  schemex expand file.scm
  schemex expand -e '(define-syntax m (syntax-rules () ((_ x) (list x x))))' '(m 1)'
  schemex expand --format=yaml lib/...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "yaml" {
				return fmt.Errorf("unknown format: %s", format)
			}
			c := newCmdConfig(opts)
			env, err := c.newEnv(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			srcs, err := readSources(cmd.InOrStdin(), args, expr, excludes)
			if err != nil {
				return err
			}
			cfg := formatter.DefaultConfig()
			cfg.Width = width
			out := cmd.OutOrStdout()
			for i, src := range srcs {
				nodes, err := expandSource(cmd, env, src)
				if err != nil {
					renderErrors(cmd.ErrOrStderr(), sourceMap(srcs), []error{err})
					return &exitError{code: 1}
				}
				if format == "text" {
					_, err = io.WriteString(out, formatter.Sprint(nodeForms(nodes), cfg))
				} else {
					err = writeExpansionYAML(out, i > 0, src.name, nodes, cfg)
				}
				if err != nil {
					return err
				}
			}
			if errs := env.Finish(); len(errs) > 0 {
				renderErrors(cmd.ErrOrStderr(), sourceMap(srcs), errs)
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&expr, "expression", "e", false,
		"Interpret arguments as scheme source text.")
	cmd.Flags().StringVar(&format, "format", "text",
		`Output format: "text" or "yaml".`)
	cmd.Flags().IntVar(&width, "width", 80,
		"Preferred maximum line width of printed forms (0 for no limit).")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil,
		"Glob pattern for files to exclude (may be repeated).")
	return cmd
}

func expandSource(cmd *cobra.Command, env *lisp.Env, src source) ([]*lisp.Node, error) {
	forms, err := src.read(env.Runtime)
	if err != nil {
		return nil, err
	}
	return env.AnalyzeProgram(cmd.Context(), forms)
}

func nodeForms(nodes []*lisp.Node) []*lisp.LVal {
	forms := make([]*lisp.LVal, len(nodes))
	for i, n := range nodes {
		forms[i] = n.Form
	}
	return forms
}

func writeExpansionYAML(w io.Writer, sep bool, name string, nodes []*lisp.Node, cfg *formatter.Config) error {
	doc := expansion{
		Source: name,
		Forms:  make([]expandedForm, len(nodes)),
		Free:   astutil.Free(nodes),
	}
	for i, n := range nodes {
		f := expandedForm{
			Kind: n.Kind.String(),
			Form: formatter.Expr(n.Form, cfg),
		}
		if n.Kind == lisp.NodeSpecial {
			f.Kind = n.Special.String()
		}
		if !n.Source.Native() {
			f.Location = n.Source.String()
		}
		if n.Special == lisp.SpecDefine || n.Special == lisp.SpecDefineSyntax {
			if n.Binding != nil {
				f.Defines = n.Binding.Name.String()
			}
		}
		seen := make(map[string]bool)
		for _, ref := range astutil.References([]*lisp.Node{n}) {
			name := ref.Form.String()
			if !seen[name] {
				seen[name] = true
				f.References = append(f.References, name)
			}
		}
		doc.Forms[i] = f
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if sep {
		if _, err := io.WriteString(w, "---\n"); err != nil {
			return err
		}
	}
	_, err = w.Write(b)
	return err
}
