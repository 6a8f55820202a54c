// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// sourceExts are the extensions of files found by "/..." patterns.
var sourceExts = map[string]bool{
	".scm": true,
	".sld": true,
	".sls": true,
	".ss":  true,
}

// expandArgs expands arguments, resolving patterns ending with "/..." to all
// scheme source files found recursively under the given directory.
// Non-pattern arguments pass through unchanged.  Paths matching any of
// excludes are dropped.
func expandArgs(args []string, excludes []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if dir, ok := strings.CutSuffix(arg, "/..."); ok {
			if dir == "" {
				dir = "."
			}
			files, err := findSourceFiles(dir)
			if err != nil {
				return nil, fmt.Errorf("expanding %s: %w", arg, err)
			}
			out = append(out, files...)
		} else {
			out = append(out, arg)
		}
	}
	return filterExcludes(out, excludes), nil
}

func findSourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && sourceExts[filepath.Ext(path)] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// filterExcludes removes the paths matching any of the patterns.
func filterExcludes(paths []string, excludes []string) []string {
	if len(excludes) == 0 {
		return paths
	}
	var out []string
	for _, p := range paths {
		if !matchesAny(p, excludes) {
			out = append(out, p)
		}
	}
	return out
}

// matchesAny reports whether a pattern matches the full path, its base
// name, or any directory component.
func matchesAny(path string, patterns []string) bool {
	components := splitPath(path)
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, path); ok {
			return true
		}
		for _, c := range components {
			if ok, _ := filepath.Match(pat, c); ok {
				return true
			}
		}
	}
	return false
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}
