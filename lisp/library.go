// Copyright © 2018 The ELPS authors

package lisp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"
)

// LibraryState tracks the initialization of a library body.
type LibraryState uint8

// LibraryState constants
const (
	LibraryLoading LibraryState = iota
	LibraryReady
	LibraryFailed
)

func (s LibraryState) String() string {
	switch s {
	case LibraryLoading:
		return "loading"
	case LibraryReady:
		return "ready"
	default:
		return "failed"
	}
}

// Export maps the name under which a library exports a binding to the
// identifier bound in the library's top-level frame.
type Export struct {
	External string
	Internal *LVal
}

// Library is a named compilation unit with an export table.  Its exports
// become visible to importers once its body has been analyzed.
type Library struct {
	Name    *LVal
	Key     string
	Env     *Env
	Imports []*LVal
	Nodes   []*Node
	State   LibraryState
	Native  bool
	exports *btree.BTreeG[Export]
}

func newLibrary(rt *Runtime, name *LVal) *Library {
	lib := &Library{
		Name:    name,
		Key:     LibraryKey(name),
		exports: btree.NewG[Export](8, func(a, b Export) bool { return a.External < b.External }),
	}
	lib.Env = NewEnv(rt, name)
	lib.Env.Unit.Library = lib
	return lib
}

// LibraryKey returns the registry key for a library name.
func LibraryKey(name *LVal) string {
	return name.String()
}

// ParseLibraryName validates a library name, a non-empty list of symbols and
// non-negative integers, and returns it with any identifier marks removed.
func ParseLibraryName(name *LVal) (*LVal, error) {
	if !name.IsList() || name.IsNil() {
		return nil, NewError(CondMalformedLibraryName, name)
	}
	for _, c := range name.Cells {
		switch {
		case c.Type == LSymbol:
		case c.Type == LInt && c.Int >= 0:
		default:
			return nil, NewError(CondMalformedLibraryName, name)
		}
	}
	return Strip(name), nil
}

// LibraryName returns a library name composed of the given parts.
func LibraryName(parts ...string) *LVal {
	cells := make([]*LVal, len(parts))
	for i, p := range parts {
		cells[i] = Symbol(p)
	}
	return SExpr(cells)
}

// Export adds an export entry.  Exporting two bindings under the same
// external name is a duplicate binding.
func (lib *Library) Export(internal, external *LVal) error {
	e := Export{External: external.Str, Internal: internal}
	if _, ok := lib.exports.Get(e); ok {
		return NewError(CondDuplicateBinding, external, List(Symbol("export"), external))
	}
	lib.exports.ReplaceOrInsert(e)
	return nil
}

// Exports returns the library's export table ordered by external name.
func (lib *Library) Exports() []Export {
	exports := make([]Export, 0, lib.exports.Len())
	lib.exports.Ascend(func(e Export) bool {
		exports = append(exports, e)
		return true
	})
	return exports
}

// Exported returns true if the library exports a binding named name.
func (lib *Library) Exported(name string) bool {
	_, ok := lib.exports.Get(Export{External: name})
	return ok
}

// ImportedBinding is one entry of a resolved import set.
type ImportedBinding struct {
	External string
	Local    *LVal
	Binding  *Binding
}

// exportBindings returns the bindings behind the export table.  Exports
// which the library body never initialized are an error.
func (lib *Library) exportBindings() ([]ImportedBinding, error) {
	var missing []*LVal
	var imported []ImportedBinding
	for _, e := range lib.Exports() {
		b := lib.Env.Scope[e.Internal.Ident()]
		if lib.State != LibraryReady || b == nil || (b.Kind == DenVariable && !b.Initialized) {
			missing = append(missing, Symbol(e.External))
			continue
		}
		imported = append(imported, ImportedBinding{
			External: e.External,
			Local:    Symbol(e.External),
			Binding:  b,
		})
	}
	if len(missing) > 0 {
		return nil, NewError(CondUninitializedExports, SExpr(missing), lib.Name)
	}
	return imported, nil
}

// LibraryRegistry holds the libraries known to a runtime.  A registry may be
// read concurrently.
type LibraryRegistry struct {
	mu   sync.RWMutex
	libs map[string]*Library
}

// NewLibraryRegistry returns an empty registry.
func NewLibraryRegistry() *LibraryRegistry {
	return &LibraryRegistry{libs: make(map[string]*Library)}
}

// Get returns the library registered under key, or nil.
func (r *LibraryRegistry) Get(key string) *Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.libs[key]
}

// Register adds lib to the registry, replacing any library with the same
// name.
func (r *LibraryRegistry) Register(lib *Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libs[lib.Key] = lib
}

// Remove deletes the library registered under key.
func (r *LibraryRegistry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.libs, key)
}

// Keys returns the sorted keys of all registered libraries.
func (r *LibraryRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.libs))
	for k := range r.libs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a registry containing the libraries currently registered
// in r.
func (r *LibraryRegistry) Snapshot() *LibraryRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := NewLibraryRegistry()
	for k, lib := range r.libs {
		snap.libs[k] = lib
	}
	return snap
}

// Merge registers the ready libraries of other which are not present in r.
func (r *LibraryRegistry) Merge(other *LibraryRegistry) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, lib := range other.libs {
		if _, ok := r.libs[k]; ok || lib.State != LibraryReady {
			continue
		}
		r.libs[k] = lib
	}
}

// NativeLibrary builds a library from Go.  Primitives registered with a
// NativeLibrary are bound in the library's top-level frame, and procedures
// may be defined in scheme source which the front end analyzes.
type NativeLibrary struct {
	lib *Library
	rt  *Runtime
}

// DefineNativeLibrary registers the library named by name after fn has
// populated it.  If fn returns an error the library is not registered.
func (rt *Runtime) DefineNativeLibrary(name []string, fn func(lib *NativeLibrary) error) error {
	lib := newLibrary(rt, LibraryName(name...))
	lib.Native = true
	rt.Libraries.Register(lib)
	err := fn(&NativeLibrary{lib: lib, rt: rt})
	if err != nil {
		lib.State = LibraryFailed
		rt.Libraries.Remove(lib.Key)
		return fmt.Errorf("library %s: %w", lib.Key, err)
	}
	lib.State = LibraryReady
	rt.Logger.Debug("native library registered", "library", lib.Key, "exports", lib.exports.Len())
	return nil
}

// Library returns the library being built.
func (nl *NativeLibrary) Library() *Library {
	return nl.lib
}

// Env returns the top-level frame of the library being built.
func (nl *NativeLibrary) Env() *Env {
	return nl.lib.Env
}

// Import imports every export of the library named by name.
func (nl *NativeLibrary) Import(name ...string) error {
	set := LibraryName(name...)
	nl.lib.Imports = append(nl.lib.Imports, set)
	return nl.lib.Env.Import(context.Background(), set)
}

// Register binds a primitive in the library and exports it.
func (nl *NativeLibrary) Register(name string, arity Arity, fn Callable) error {
	_, err := nl.lib.Env.Register(name, arity, fn)
	if err != nil {
		return err
	}
	return nl.lib.Export(Symbol(name), Symbol(name))
}

// Define analyzes scheme source in the library's top-level frame.  Source
// definitions are not exported automatically.
func (nl *NativeLibrary) Define(name, src string) error {
	if nl.rt.Reader == nil {
		return fmt.Errorf("runtime has no reader")
	}
	nodes, err := nl.lib.Env.LoadString(context.Background(), name, src)
	if err != nil {
		return err
	}
	nl.lib.Nodes = append(nl.lib.Nodes, nodes...)
	if errs := nl.lib.Env.Finish(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Export exports bindings of the library under their own names.
func (nl *NativeLibrary) Export(names ...string) error {
	for _, name := range names {
		err := nl.lib.Export(Symbol(name), Symbol(name))
		if err != nil {
			return err
		}
	}
	return nil
}
