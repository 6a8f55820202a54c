// Copyright © 2018 The ELPS authors

package libutil

import (
	"fmt"

	"github.com/luthersystems/schemex/lisp"
)

func Function(name string, arity lisp.Arity, fun lisp.Callable) *Builtin {
	return &Builtin{name, arity, fun, ""}
}

func FunctionDoc(name string, arity lisp.Arity, fun lisp.Callable, docs string) *Builtin {
	return &Builtin{name, arity, fun, docs}
}

type Builtin struct {
	name  string
	arity lisp.Arity
	fun   lisp.Callable
	docs  string
}

func (fun *Builtin) Name() string {
	return fun.name
}

func (fun *Builtin) Arity() lisp.Arity {
	return fun.arity
}

func (fun *Builtin) Call(args []*lisp.LVal) (*lisp.LVal, error) {
	return fun.fun(args)
}

func (fun *Builtin) Docstring() string {
	return fun.docs
}

// Register binds and exports builtins in lib.
func Register(lib *lisp.NativeLibrary, builtins []*Builtin) error {
	for _, fn := range builtins {
		err := lib.Register(fn.name, fn.arity, fn.fun)
		if err != nil {
			return err
		}
		if fn.docs != "" {
			b := lib.Env().Get(lisp.Symbol(fn.name))
			b.Primitive.Doc = fn.docs
		}
	}
	return nil
}

// TypeError returns an error for the argument at index i of a call to name
// which is not of type want.
func TypeError(name string, i int, want lisp.LType, v *lisp.LVal) error {
	return fmt.Errorf("%s: argument %d is not a %s: %v", name, i+1, want, v.Type)
}

// Expect returns a TypeError unless every argument has type want.
func Expect(name string, want lisp.LType, args []*lisp.LVal) error {
	for i, v := range args {
		if v.Type != want {
			return TypeError(name, i, want, v)
		}
	}
	return nil
}

// RangeError returns an error for the interval [start, end) which does not
// fit within n elements.
func RangeError(name string, start, end, n int) error {
	return fmt.Errorf("%s: range [%d, %d) out of bounds for length %d", name, start, end, n)
}
