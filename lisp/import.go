// Copyright © 2018 The ELPS authors

package lisp

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// Import resolves an import set and binds the resulting identifiers in env,
// which must be a top-level frame.
func (env *Env) Import(ctx context.Context, set *LVal) error {
	if !env.IsTopLevel() {
		return NewError(CondImportInLocalEnv, set)
	}
	imported, err := env.Runtime.ResolveImportSet(ctx, set)
	if err != nil {
		return err
	}
	for _, ib := range imported {
		err := env.Bind(ib.Local, ib.Binding, BindImport)
		if err != nil {
			if lerr, ok := err.(*EvalError); ok {
				lerr.At(set.Source)
			}
			return err
		}
	}
	env.Runtime.Logger.Debug("import",
		"unit", env.Unit.Key,
		"set", set.String(),
		"bindings", len(imported))
	return nil
}

// ResolveImportSet evaluates an import set to the identifiers it imports,
// ordered by local name.  Libraries which are not registered are located
// with the runtime's LibraryLoader.
func (rt *Runtime) ResolveImportSet(ctx context.Context, set *LVal) ([]ImportedBinding, error) {
	imported, err := rt.resolveImportSet(ctx, set)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(imported, func(i, j int) bool {
		return imported[i].Local.Str < imported[j].Local.Str
	})
	return imported, nil
}

func (rt *Runtime) resolveImportSet(ctx context.Context, set *LVal) ([]ImportedBinding, error) {
	if !set.IsList() || set.IsNil() {
		return nil, NewError(CondMalformedImportSet, set)
	}
	op := importSetOperator(set)
	if op == "" {
		lib, err := rt.LookupLibrary(ctx, set)
		if err != nil {
			return nil, err
		}
		return lib.exportBindings()
	}
	inner, err := rt.resolveImportSet(ctx, set.Cells[1])
	if err != nil {
		return nil, err
	}
	args := set.Cells[2:]
	switch op {
	case "only":
		keep := make(map[string]bool, len(args))
		for _, id := range args {
			if id.Type != LSymbol {
				return nil, NewError(CondMalformedImportSet, set)
			}
			if findImport(inner, id.Str) < 0 {
				return nil, NewError(CondCannotExpandImportSet, set)
			}
			keep[id.Str] = true
		}
		var out []ImportedBinding
		for _, ib := range inner {
			if keep[ib.Local.Str] {
				out = append(out, ib)
			}
		}
		return out, nil
	case "except":
		drop := make(map[string]bool, len(args))
		for _, id := range args {
			if id.Type != LSymbol {
				return nil, NewError(CondMalformedImportSet, set)
			}
			if findImport(inner, id.Str) < 0 {
				return nil, NewError(CondCannotExpandImportSet, set)
			}
			drop[id.Str] = true
		}
		var out []ImportedBinding
		for _, ib := range inner {
			if !drop[ib.Local.Str] {
				out = append(out, ib)
			}
		}
		return out, nil
	case "rename":
		out := append([]ImportedBinding(nil), inner...)
		for _, pair := range args {
			if !pair.IsList() || len(pair.Cells) != 2 || pair.Cells[0].Type != LSymbol || pair.Cells[1].Type != LSymbol {
				return nil, NewError(CondMalformedImportSet, set)
			}
			// renames apply to the names of the inner set, so (a b) (b a) swaps
			i := findImport(inner, pair.Cells[0].Str)
			if i < 0 {
				return nil, NewError(CondCannotExpandImportSet, set)
			}
			out[i].Local = Symbol(pair.Cells[1].Str)
		}
		return out, distinctImports(set, out)
	case "prefix":
		if len(args) != 1 || args[0].Type != LSymbol {
			return nil, NewError(CondMalformedImportSet, set)
		}
		out := make([]ImportedBinding, len(inner))
		for i, ib := range inner {
			ib.Local = Symbol(args[0].Str + ib.Local.Str)
			out[i] = ib
		}
		return out, distinctImports(set, out)
	}
	return nil, NewError(CondMalformedImportSet, set)
}

// importSetOperator returns the combinator of set, or the empty string if
// set names a library.
func importSetOperator(set *LVal) string {
	head := set.Cells[0]
	if head.Type != LSymbol || len(set.Cells) < 2 || !set.Cells[1].IsPair() {
		return ""
	}
	switch head.Str {
	case "only", "except", "rename", "prefix":
		return head.Str
	}
	return ""
}

// distinctImports returns an error if two bindings of an expanded import set
// share a local name.
func distinctImports(set *LVal, imported []ImportedBinding) error {
	seen := make(map[string]bool, len(imported))
	for _, ib := range imported {
		if seen[ib.Local.Str] {
			return NewError(CondDuplicateBinding, ib.Local, set)
		}
		seen[ib.Local.Str] = true
	}
	return nil
}

func findImport(imported []ImportedBinding, name string) int {
	for i, ib := range imported {
		if ib.Local.Str == name {
			return i
		}
	}
	return -1
}

// LookupLibrary returns the library named by name, loading it if necessary.
func (rt *Runtime) LookupLibrary(ctx context.Context, name *LVal) (*Library, error) {
	name, err := ParseLibraryName(name)
	if err != nil {
		return nil, err
	}
	key := LibraryKey(name)
	if lib := rt.Libraries.Get(key); lib != nil {
		return lib, nil
	}
	if rt.Loader == nil {
		return nil, NewError(CondUnknownLibrary, name)
	}
	rt.Logger.Debug("loading library", "library", key)
	lib, err := rt.Loader.LoadLibrary(ctx, rt, name)
	if errors.Is(err, ErrLibraryNotFound) {
		return nil, NewError(CondUnknownLibrary, name)
	}
	if err != nil {
		return nil, err
	}
	return lib, nil
}

// LibraryPath returns the relative path of the file defining the library
// named by name, e.g. "lispkit/string.sld".
func LibraryPath(name *LVal) string {
	parts := make([]string, len(name.Cells))
	for i, c := range name.Cells {
		parts[i] = c.String()
	}
	return strings.Join(parts, "/") + ".sld"
}
