// Copyright © 2018 The ELPS authors

package lisp

import (
	"context"
	"fmt"
)

// Arity describes the number of arguments a primitive accepts.  A negative
// Max means there is no upper bound.
type Arity struct {
	Min int
	Max int
}

// Exactly returns an Arity accepting n arguments.
func Exactly(n int) Arity {
	return Arity{Min: n, Max: n}
}

// AtLeast returns an Arity accepting n or more arguments.
func AtLeast(n int) Arity {
	return Arity{Min: n, Max: -1}
}

// Between returns an Arity accepting between min and max arguments,
// inclusive.
func Between(min, max int) Arity {
	return Arity{Min: min, Max: max}
}

// Accepts returns true if a call with n arguments satisfies the arity.
func (a Arity) Accepts(n int) bool {
	return n >= a.Min && (a.Max < 0 || n <= a.Max)
}

func (a Arity) String() string {
	switch {
	case a.Max < 0:
		return fmt.Sprintf("at least %d", a.Min)
	case a.Min == a.Max:
		return fmt.Sprintf("exactly %d", a.Min)
	default:
		return fmt.Sprintf("between %d and %d", a.Min, a.Max)
	}
}

// Callable is the implementation of a primitive procedure.  The front end
// never calls it.
type Callable func(args []*LVal) (*LVal, error)

// Primitive is a procedure implemented in Go.
type Primitive struct {
	Name  string
	Arity Arity
	Fn    Callable
	Doc   string
}

// Register binds name in the top-level frame of env's unit to a primitive
// procedure.
func (env *Env) Register(name string, arity Arity, fn Callable) (*Binding, error) {
	sym := Symbol(name)
	b := &Binding{
		Kind:        DenVariable,
		Primitive:   &Primitive{Name: name, Arity: arity, Fn: fn},
		Initialized: true,
	}
	err := env.Root().Bind(sym, b, BindDefine)
	if err != nil {
		return nil, err
	}
	return env.Root().Scope[sym.Ident()], nil
}

// CoreLibraryName is the name of the library exporting the special forms.
var CoreLibraryName = []string{"lispkit", "core"}

// BaseLibraryName is the name of the library imported by user environments
// in addition to the core library, when it is registered.
var BaseLibraryName = []string{"lispkit", "base"}

func coreLibrary(rt *Runtime) *Library {
	lib := newLibrary(rt, LibraryName(CoreLibraryName...))
	lib.Native = true
	for _, kind := range SpecialKinds() {
		sym := Symbol(kind.String())
		b := &Binding{
			Kind:        DenSpecialForm,
			Special:     kind,
			Initialized: true,
		}
		err := lib.Env.Bind(sym, b, BindSyntax)
		if err != nil {
			panic(err)
		}
		err = lib.Export(sym, sym)
		if err != nil {
			panic(err)
		}
	}
	lib.State = LibraryReady
	return lib
}

// NewCoreEnv returns the top-level frame of a new compilation unit which
// imports the core library.
func NewCoreEnv(rt *Runtime, name *LVal) (*Env, error) {
	env := NewEnv(rt, name)
	err := env.Import(context.Background(), LibraryName(CoreLibraryName...))
	if err != nil {
		return nil, err
	}
	return env, nil
}

// NewUserEnv returns the top-level frame of the interactive compilation unit
// named user.  The unit imports the core library and, if registered, the
// base library.
func NewUserEnv(rt *Runtime) (*Env, error) {
	env, err := NewCoreEnv(rt, Symbol("user"))
	if err != nil {
		return nil, err
	}
	base := LibraryName(BaseLibraryName...)
	if rt.Libraries.Get(LibraryKey(base)) != nil {
		err := env.Import(context.Background(), base)
		if err != nil {
			return nil, err
		}
	}
	return env, nil
}
