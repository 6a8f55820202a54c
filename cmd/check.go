// Copyright © 2024 The ELPS authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/luthersystems/schemex/lisp"
	"github.com/spf13/cobra"
)

// watchDelay coalesces the bursts of events produced by a single save.
const watchDelay = 100 * time.Millisecond

// CheckCommand returns the check command.
func CheckCommand(opts ...Option) *cobra.Command {
	var (
		expr     bool
		watchFS  bool
		excludes []string
	)
	cmd := &cobra.Command{
		Use:   "check [flags] [files...]",
		Short: "Report compile-time errors in scheme source files",
		Long: `Analyze scheme source files and report every error detected before
code generation.

Each file is analyzed as its own program in a user environment.  Analysis
continues with the next top-level form after an error, so one run reports
all independent errors.  Libraries defined by a file can be imported by the
files checked after it.  With no files, reads from stdin.

Exit codes:
  0  No problems found
  1  One or more errors were reported
  2  Bad invocation (invalid flags, unreadable files)

With --watch, the files are checked again whenever a scheme source file in
their directories changes, until interrupted.

Examples:
  schemex check file.scm
  schemex check lib/... --exclude=vendor
  schemex check --watch src/...
  schemex check -e '(let ((x)) x)'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCmdConfig(opts)
			if !watchFS {
				srcs, err := readSources(cmd.InOrStdin(), args, expr, excludes)
				if err != nil {
					return err
				}
				n, err := checkSources(cmd.Context(), c, cmd.ErrOrStderr(), srcs)
				if err != nil {
					return err
				}
				if n > 0 {
					return &exitError{code: 1}
				}
				return nil
			}
			if expr || len(args) == 0 {
				return fmt.Errorf("--watch requires files")
			}
			dirs, trees, err := watchDirs(args)
			if err != nil {
				return err
			}
			recheck := func() {
				srcs, err := readSources(nil, args, false, excludes)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err) //nolint:errcheck // best-effort
					return
				}
				n, err := checkSources(cmd.Context(), c, cmd.ErrOrStderr(), srcs)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err) //nolint:errcheck // best-effort
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s checked %d files: %d errors\n", //nolint:errcheck // best-effort
					time.Now().Format(time.TimeOnly), len(srcs), n)
			}
			recheck()
			return watch(cmd.Context(), dirs, trees, recheck)
		},
	}
	cmd.Flags().BoolVarP(&expr, "expression", "e", false,
		"Interpret arguments as scheme source text.")
	cmd.Flags().BoolVarP(&watchFS, "watch", "w", false,
		"Check again whenever a source file changes.")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil,
		"Glob pattern for files to exclude (may be repeated).")
	return cmd
}

// checkSources analyzes each source in its own user environment and renders
// the errors found to w.  It returns the number of errors.
func checkSources(ctx context.Context, c *cmdConfig, w io.Writer, srcs []source) (int, error) {
	rt, err := c.newRuntime(w)
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, src := range srcs {
		errs = append(errs, checkSource(ctx, rt, src)...)
	}
	renderErrors(w, sourceMap(srcs), errs)
	return len(errs), nil
}

func checkSource(ctx context.Context, rt *lisp.Runtime, src source) []error {
	env, err := lisp.NewUserEnv(rt)
	if err != nil {
		return []error{err}
	}
	forms, err := src.read(rt)
	if err != nil {
		return []error{err}
	}
	_, errs := env.Check(ctx, forms)
	return errs
}

// watchDirs returns the directories to watch for the file arguments.  A
// "/..." pattern watches every directory beneath it and its root is returned
// in trees.
func watchDirs(args []string) (dirs []string, trees []string, err error) {
	seen := make(map[string]bool)
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, arg := range args {
		root, ok := strings.CutSuffix(arg, "/...")
		if !ok {
			add(filepath.Dir(arg))
			continue
		}
		if root == "" {
			root = "."
		}
		trees = append(trees, filepath.Clean(root))
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return dirs, trees, nil
}

// inTree returns true if path is beneath one of the roots in trees.
func inTree(trees []string, path string) bool {
	for _, root := range trees {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addTree watches dir and the directories beneath it.  It returns true if
// the tree already holds scheme source files.
func addTree(w *fsnotify.Watcher, dir string) (bool, error) {
	var sources bool
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// removed before it could be watched
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			sources = sources || sourceExts[filepath.Ext(path)]
			return nil
		}
		if err := w.Add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
	return sources, err
}

// watch calls onChange after scheme source files in dirs are written,
// created, renamed or removed, until ctx is done.  Directories created beneath
// a root in trees are watched as they appear.
func watch(ctx context.Context, dirs []string, trees []string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close() //nolint:errcheck // best-effort cleanup
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			changed := sourceExts[filepath.Ext(ev.Name)] && ev.Op != fsnotify.Chmod
			if ev.Has(fsnotify.Create) && inTree(trees, ev.Name) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					sources, err := addTree(w, ev.Name)
					if err != nil {
						return err
					}
					changed = changed || sources
				}
			}
			if changed && pending == nil {
				pending = time.After(watchDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return err
		case <-pending:
			pending = nil
			onChange()
		}
	}
}
