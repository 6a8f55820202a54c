// Copyright © 2018 The ELPS authors

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = NewRootCommand()

// NewRootCommand returns the schemex command with all subcommands attached.
func NewRootCommand(opts ...Option) *cobra.Command {
	root := &cobra.Command{
		Use:   "schemex",
		Short: "schemex — a syntactic front end for Scheme",
		Long: `schemex reads Scheme programs and libraries, expands their macros and
resolves every identifier to its binding.  It reports the errors a Scheme
compiler detects before code generation: malformed special forms, unbound
variables, misused keywords, broken syntax-rules transformers and library
import failures.

Getting started:
  schemex expand file.scm           Print the fully expanded program
  schemex expand -e '(let ((x 1)) x)'
  schemex check ./...               Report errors in all source files
  schemex check --watch src/...     Re-check whenever a file changes
  schemex libraries                 List the registered libraries
  schemex libraries '(lispkit base)'
  schemex fmt -w file.scm           Pretty print source files
  schemex repl                      Expand forms interactively

Libraries not registered with the runtime are loaded from the directories
given by --library-path: the library (a b c) is read from a/b/c.sld.

Settings may also be given in $HOME/.schemex.yaml or as SCHEMEX_*
environment variables, e.g. SCHEMEX_MAX_EXPANSION_DEPTH=64.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.schemex.yaml)")
	flags.String("color", "auto", `Control colored output: "auto", "always", or "never".`)
	flags.Int("max-expansion-depth", 0, "Maximum nesting of macro expansions (default 1024).")
	flags.StringSlice("library-path", nil, "Directories searched for library files (may be repeated).")
	flags.StringSlice("features", nil, "Feature identifiers recognized by cond-expand (replaces the defaults).")
	flags.BoolP("verbose", "v", false, "Log library resolution to stderr.")
	flags.Bool("trace", false, "Write a line to stderr for each analysis span.")
	for _, name := range []string{"color", "max-expansion-depth", "library-path", "features", "verbose", "trace"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		ExpandCommand(opts...),
		CheckCommand(opts...),
		LibrariesCommand(opts...),
		FmtCommand(),
		ReplCommand(opts...),
	)
	return root
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "schemex:", err)
		}
		os.Exit(exitCode(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			// Search config in home directory with name ".schemex" (without extension).
			viper.AddConfigPath(home)
			viper.SetConfigName(".schemex")
		}
	}

	viper.SetEnvPrefix("schemex")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	err := viper.ReadInConfig()
	if _, notFound := err.(viper.ConfigFileNotFoundError); err != nil && (cfgFile != "" || !notFound) {
		fmt.Fprintln(os.Stderr, "config:", err)
	}
}
