// Copyright © 2018 The ELPS authors

package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/luthersystems/schemex/diagnostic"
	"github.com/luthersystems/schemex/repl"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ReplCommand returns the repl command.
func ReplCommand(opts ...Option) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Expand scheme forms interactively",
		Long: `Start an interactive session which analyzes each form entered and
prints its full expansion.

Definitions, syntax definitions and imports persist for the session.  The
(lispkit base) library and the libraries on --library-path are available.
Line editing and command history are supported via readline.  Use Ctrl-D
to exit.

Commands:
  ,libraries          List registered libraries
  ,exports (a b)      List the exports of a library
  ,pending            List references to names not yet defined
  ,finish             Report references which are still undefined
  ,quit               Exit

Example session:
  schemex> (define-syntax swap!
             (syntax-rules ()
               ((_ a b) (let ((tmp a)) (set! a b) (set! b tmp)))))
  ...
  schemex> (define x 1) (define y 2)
  (define x 1)
  (define y 2)
  schemex> (swap! x y)
  (let ((tmp x)) (set! x y) (set! y tmp))`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCmdConfig(opts)
			env, err := c.newEnv(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			prompt := filepath.Base(os.Args[0]) + "> "
			return repl.RunEnv(cmd.Context(), env, prompt, strings.Repeat(" ", len(prompt)),
				repl.WithStderr(cmd.ErrOrStderr()),
				repl.WithColor(diagnostic.ParseColorMode(viper.GetString("color"))),
			)
		},
	}
}
