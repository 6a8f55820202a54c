// Copyright © 2018 The ELPS authors

package lisp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Reader abstracts a parser implementation so that it may be implemented in a
// separate package as an optional/swappable component.
type Reader interface {
	// Read the contents of r and return the sequence of LVals that it
	// contains.
	Read(name string, r io.Reader) ([]*LVal, error)
}

// LocationReader is like Reader but assigns physical locations to the tokens
// from r.
type LocationReader interface {
	// ReadLocation the contents of r, associated with physical location loc,
	// and return the sequence of LVals that it contains.
	ReadLocation(name string, loc string, r io.Reader) ([]*LVal, error)
}

// ErrLibraryNotFound is returned by a LibraryLoader which cannot locate a
// library.
var ErrLibraryNotFound = errors.New("library not found")

// LibraryLoader locates and analyzes libraries which are imported but not
// registered.  A successful LoadLibrary registers the library in the
// runtime's registry.
type LibraryLoader interface {
	LoadLibrary(ctx context.Context, rt *Runtime, name *LVal) (*Library, error)
}

// FileSystemLoader loads the library (a b c) from the file a/b/c.sld under
// the first root directory containing it.  When FS is nil roots are
// directories of the host file system.
type FileSystemLoader struct {
	FS    fs.FS
	Roots []string
}

// LoadLibrary implements LibraryLoader.
func (l *FileSystemLoader) LoadLibrary(ctx context.Context, rt *Runtime, name *LVal) (*Library, error) {
	rel := LibraryPath(name)
	for _, root := range l.Roots {
		loc, src, err := l.readFile(root, rel)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			rt.Logger.Debug("library file unreadable", "path", loc, "error", err)
			return nil, NewError(CondCannotOpenFile, String(loc))
		}
		rt.Logger.Debug("library file found", "library", LibraryKey(name), "path", loc)
		err = rt.LoadLibraryFile(ctx, rel, loc, src)
		if err != nil {
			return nil, err
		}
		lib := rt.Libraries.Get(LibraryKey(name))
		if lib == nil {
			return nil, fmt.Errorf("%s: %w", loc, ErrLibraryNotFound)
		}
		return lib, nil
	}
	return nil, ErrLibraryNotFound
}

func (l *FileSystemLoader) readFile(root, rel string) (string, []byte, error) {
	if l.FS != nil {
		loc := path.Join(root, rel)
		src, err := fs.ReadFile(l.FS, loc)
		return loc, src, err
	}
	loc := filepath.Join(root, filepath.FromSlash(rel))
	src, err := os.ReadFile(loc) //#nosec G304
	return loc, src, err
}

// LoadLibraryFile analyzes the library definitions contained in src.  The
// file is analyzed as its own compilation unit which imports only the core
// library.
func (rt *Runtime) LoadLibraryFile(ctx context.Context, name, loc string, src []byte) error {
	exprs, err := rt.read(name, loc, bytes.NewReader(src))
	if err != nil {
		return err
	}
	env, err := NewCoreEnv(rt, String(name))
	if err != nil {
		return err
	}
	_, err = env.AnalyzeProgram(ctx, exprs)
	if err != nil {
		return err
	}
	if errs := env.Finish(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (rt *Runtime) read(name, loc string, r io.Reader) ([]*LVal, error) {
	if rt.Reader == nil {
		return nil, fmt.Errorf("runtime has no reader")
	}
	if lr, ok := rt.Reader.(LocationReader); ok && loc != "" {
		return lr.ReadLocation(name, loc, r)
	}
	return rt.Reader.Read(name, r)
}

// LoadString parses src with the runtime's Reader and analyzes the resulting
// forms in env.
func (env *Env) LoadString(ctx context.Context, name, src string) ([]*Node, error) {
	exprs, err := env.Runtime.read(name, "", strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	return env.AnalyzeProgram(ctx, exprs)
}

// LoadFile reads and analyzes the source file at loc.
func (env *Env) LoadFile(ctx context.Context, loc string) ([]*Node, error) {
	src, err := os.ReadFile(loc) //#nosec G304
	if err != nil {
		env.Runtime.Logger.Debug("source file unreadable", "path", loc, "error", err)
		return nil, NewError(CondCannotOpenFile, String(loc))
	}
	exprs, err := env.Runtime.read(filepath.Base(loc), loc, bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	return env.AnalyzeProgram(ctx, exprs)
}
