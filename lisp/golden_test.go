// Copyright © 2018 The ELPS authors

package lisp_test

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/luthersystems/schemex/schemextest"
)

const fixtureDir = "testdata"

func fixtures(tb testing.TB) []string {
	files, err := filepath.Glob(filepath.Join(fixtureDir, "*.scm"))
	if err != nil {
		tb.Fatalf("Failed to list test fixtures: %v", err)
	}
	sort.Strings(files)
	return files
}

func TestFixtures(t *testing.T) {
	r := &schemextest.Runner{}
	for _, path := range fixtures(t) {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			r.RunTestFile(t, path)
		})
	}
}

func BenchmarkFixtures(b *testing.B) {
	r := &schemextest.Runner{}
	for _, path := range fixtures(b) {
		path := path
		b.Run(filepath.Base(path), func(b *testing.B) {
			r.RunBenchmarkFile(b, path)
		})
	}
}
