// Copyright © 2018 The ELPS authors

// Package libbase provides the (lispkit base) library, the primitive
// procedures and derived syntax imported by user environments.
package libbase

import (
	"errors"
	"fmt"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib/internal/libutil"
)

// LoadLibrary registers (lispkit base) with rt.
func LoadLibrary(rt *lisp.Runtime) error {
	return rt.DefineNativeLibrary(lisp.BaseLibraryName, func(lib *lisp.NativeLibrary) error {
		err := lib.Import(lisp.CoreLibraryName...)
		if err != nil {
			return err
		}
		err = libutil.Register(lib, builtins)
		if err != nil {
			return err
		}
		err = lib.Define("base.scm", source)
		if err != nil {
			return err
		}
		return lib.Export(sourceExports...)
	})
}

// source defines the procedures and syntax of the library which are written
// in scheme.
const source = `
(define (caar x) (car (car x)))
(define (cadr x) (car (cdr x)))
(define (cdar x) (cdr (car x)))
(define (cddr x) (cdr (cdr x)))
(define (list-tail l k)
  (if (zero? k) l (list-tail (cdr l) (- k 1))))
(define (list-ref l k) (car (list-tail l k)))
(define (map f l)
  (if (null? l) '() (cons (f (car l)) (map f (cdr l)))))
(define (for-each f l)
  (when (pair? l) (f (car l)) (for-each f (cdr l))))
(define-syntax assert
  (syntax-rules ()
    ((_ e) (unless e (error "assertion failed" 'e)))))
(define-syntax swap!
  (syntax-rules ()
    ((_ a b) (let ((tmp a)) (set! a b) (set! b tmp)))))
`

var sourceExports = []string{
	"caar", "cadr", "cdar", "cddr",
	"list-tail", "list-ref", "map", "for-each",
	"assert", "swap!",
}

var builtins = []*libutil.Builtin{
	libutil.FunctionDoc("+", lisp.AtLeast(0), builtinAdd,
		`Returns the sum of the arguments.`),
	libutil.FunctionDoc("-", lisp.AtLeast(1), builtinSub,
		`Returns the first argument minus the remaining arguments, or the
		negation of a single argument.`),
	libutil.FunctionDoc("*", lisp.AtLeast(0), builtinMul,
		`Returns the product of the arguments.`),
	libutil.FunctionDoc("/", lisp.AtLeast(1), builtinDiv,
		`Returns the first argument divided by the remaining arguments.`),
	libutil.Function("=", lisp.AtLeast(1), compare("=", func(c int) bool { return c == 0 })),
	libutil.Function("<", lisp.AtLeast(1), compare("<", func(c int) bool { return c < 0 })),
	libutil.Function(">", lisp.AtLeast(1), compare(">", func(c int) bool { return c > 0 })),
	libutil.Function("<=", lisp.AtLeast(1), compare("<=", func(c int) bool { return c <= 0 })),
	libutil.Function(">=", lisp.AtLeast(1), compare(">=", func(c int) bool { return c >= 0 })),
	libutil.Function("zero?", lisp.Exactly(1), builtinIsZero),
	libutil.Function("number?", lisp.Exactly(1), isType(lisp.LInt, lisp.LFloat)),
	libutil.Function("integer?", lisp.Exactly(1), isType(lisp.LInt)),
	libutil.Function("boolean?", lisp.Exactly(1), isType(lisp.LBool)),
	libutil.Function("char?", lisp.Exactly(1), isType(lisp.LChar)),
	libutil.Function("string?", lisp.Exactly(1), isType(lisp.LString)),
	libutil.Function("symbol?", lisp.Exactly(1), isType(lisp.LSymbol)),
	libutil.Function("vector?", lisp.Exactly(1), isType(lisp.LVector)),
	libutil.Function("null?", lisp.Exactly(1), builtinIsNull),
	libutil.Function("pair?", lisp.Exactly(1), builtinIsPair),
	libutil.Function("list?", lisp.Exactly(1), builtinIsList),
	libutil.Function("not", lisp.Exactly(1), builtinNot),
	libutil.Function("eq?", lisp.Exactly(2), builtinEqual),
	libutil.Function("eqv?", lisp.Exactly(2), builtinEqual),
	libutil.FunctionDoc("equal?", lisp.Exactly(2), builtinEqual,
		`Returns #t if the arguments are structurally equal.`),
	libutil.Function("cons", lisp.Exactly(2), builtinCons),
	libutil.Function("car", lisp.Exactly(1), builtinCar),
	libutil.Function("cdr", lisp.Exactly(1), builtinCdr),
	libutil.Function("list", lisp.AtLeast(0), builtinList),
	libutil.Function("length", lisp.Exactly(1), builtinLength),
	libutil.Function("append", lisp.AtLeast(0), builtinAppend),
	libutil.Function("reverse", lisp.Exactly(1), builtinReverse),
	libutil.Function("vector", lisp.AtLeast(0), builtinVector),
	libutil.Function("vector-length", lisp.Exactly(1), builtinVectorLength),
	libutil.Function("vector-ref", lisp.Exactly(2), builtinVectorRef),
	libutil.FunctionDoc("error", lisp.AtLeast(1), builtinError,
		`Signals an error with a message and irritants.`),
}

// ErrNotList is returned by list procedures given an improper list.
var ErrNotList = errors.New("argument is not a proper list")

func numeric(name string, args []*lisp.LVal) (float bool, err error) {
	for i, v := range args {
		switch v.Type {
		case lisp.LInt:
		case lisp.LFloat:
			float = true
		default:
			return false, libutil.TypeError(name, i, lisp.LInt, v)
		}
	}
	return float, nil
}

func toFloat(v *lisp.LVal) float64 {
	if v.Type == lisp.LFloat {
		return v.Float
	}
	return float64(v.Int)
}

func fold(name string, args []*lisp.LVal, ident int, ifn func(a, b int) int, ffn func(a, b float64) float64) (*lisp.LVal, error) {
	float, err := numeric(name, args)
	if err != nil {
		return nil, err
	}
	if float {
		acc := float64(ident)
		for i, v := range args {
			if i == 0 && len(args) > 1 {
				acc = toFloat(v)
				continue
			}
			acc = ffn(acc, toFloat(v))
		}
		return lisp.Float(acc), nil
	}
	acc := ident
	for i, v := range args {
		if i == 0 && len(args) > 1 {
			acc = v.Int
			continue
		}
		acc = ifn(acc, v.Int)
	}
	return lisp.Int(acc), nil
}

func builtinAdd(args []*lisp.LVal) (*lisp.LVal, error) {
	return fold("+", args, 0,
		func(a, b int) int { return a + b },
		func(a, b float64) float64 { return a + b })
}

func builtinSub(args []*lisp.LVal) (*lisp.LVal, error) {
	return fold("-", args, 0,
		func(a, b int) int { return a - b },
		func(a, b float64) float64 { return a - b })
}

func builtinMul(args []*lisp.LVal) (*lisp.LVal, error) {
	return fold("*", args, 1,
		func(a, b int) int { return a * b },
		func(a, b float64) float64 { return a * b })
}

func builtinDiv(args []*lisp.LVal) (*lisp.LVal, error) {
	if _, err := numeric("/", args); err != nil {
		return nil, err
	}
	acc := 1.0
	for i, v := range args {
		x := toFloat(v)
		if i == 0 && len(args) > 1 {
			acc = x
			continue
		}
		if x == 0 {
			return nil, fmt.Errorf("/: division by zero")
		}
		acc /= x
	}
	if acc == float64(int(acc)) && args[0].Type == lisp.LInt {
		return lisp.Int(int(acc)), nil
	}
	return lisp.Float(acc), nil
}

func compare(name string, ok func(c int) bool) lisp.Callable {
	return func(args []*lisp.LVal) (*lisp.LVal, error) {
		if _, err := numeric(name, args); err != nil {
			return nil, err
		}
		for i := 1; i < len(args); i++ {
			a, b := toFloat(args[i-1]), toFloat(args[i])
			c := 0
			switch {
			case a < b:
				c = -1
			case a > b:
				c = 1
			}
			if !ok(c) {
				return lisp.Bool(false), nil
			}
		}
		return lisp.Bool(true), nil
	}
}

func builtinIsZero(args []*lisp.LVal) (*lisp.LVal, error) {
	if _, err := numeric("zero?", args); err != nil {
		return nil, err
	}
	return lisp.Bool(toFloat(args[0]) == 0), nil
}

func isType(types ...lisp.LType) lisp.Callable {
	return func(args []*lisp.LVal) (*lisp.LVal, error) {
		for _, t := range types {
			if args[0].Type == t {
				return lisp.Bool(true), nil
			}
		}
		return lisp.Bool(false), nil
	}
}

func builtinIsNull(args []*lisp.LVal) (*lisp.LVal, error) {
	return lisp.Bool(args[0].IsNil()), nil
}

func builtinIsPair(args []*lisp.LVal) (*lisp.LVal, error) {
	return lisp.Bool(args[0].IsPair()), nil
}

func builtinIsList(args []*lisp.LVal) (*lisp.LVal, error) {
	return lisp.Bool(args[0].IsList()), nil
}

func builtinNot(args []*lisp.LVal) (*lisp.LVal, error) {
	return lisp.Bool(args[0].IsFalse()), nil
}

func builtinEqual(args []*lisp.LVal) (*lisp.LVal, error) {
	return lisp.Bool(lisp.Equal(args[0], args[1])), nil
}

func builtinCons(args []*lisp.LVal) (*lisp.LVal, error) {
	return lisp.DottedList([]*lisp.LVal{args[0]}, args[1]), nil
}

func builtinCar(args []*lisp.LVal) (*lisp.LVal, error) {
	if !args[0].IsPair() {
		return nil, fmt.Errorf("car: argument is not a pair: %v", args[0])
	}
	return args[0].Cells[0], nil
}

func builtinCdr(args []*lisp.LVal) (*lisp.LVal, error) {
	if !args[0].IsPair() {
		return nil, fmt.Errorf("cdr: argument is not a pair: %v", args[0])
	}
	return args[0].Rest(), nil
}

func builtinList(args []*lisp.LVal) (*lisp.LVal, error) {
	return lisp.List(append([]*lisp.LVal(nil), args...)...), nil
}

func builtinLength(args []*lisp.LVal) (*lisp.LVal, error) {
	if !args[0].IsList() {
		return nil, fmt.Errorf("length: %w", ErrNotList)
	}
	return lisp.Int(len(args[0].Cells)), nil
}

func builtinAppend(args []*lisp.LVal) (*lisp.LVal, error) {
	if len(args) == 0 {
		return lisp.Nil(), nil
	}
	var cells []*lisp.LVal
	for _, v := range args[:len(args)-1] {
		if !v.IsList() {
			return nil, fmt.Errorf("append: %w", ErrNotList)
		}
		cells = append(cells, v.Cells...)
	}
	return lisp.DottedList(cells, args[len(args)-1]), nil
}

func builtinReverse(args []*lisp.LVal) (*lisp.LVal, error) {
	if !args[0].IsList() {
		return nil, fmt.Errorf("reverse: %w", ErrNotList)
	}
	n := len(args[0].Cells)
	cells := make([]*lisp.LVal, n)
	for i, v := range args[0].Cells {
		cells[n-1-i] = v
	}
	return lisp.SExpr(cells), nil
}

func builtinVector(args []*lisp.LVal) (*lisp.LVal, error) {
	return lisp.Vector(append([]*lisp.LVal(nil), args...)), nil
}

func builtinVectorLength(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("vector-length", lisp.LVector, args); err != nil {
		return nil, err
	}
	return lisp.Int(len(args[0].Cells)), nil
}

func builtinVectorRef(args []*lisp.LVal) (*lisp.LVal, error) {
	vec, k := args[0], args[1]
	if vec.Type != lisp.LVector {
		return nil, libutil.TypeError("vector-ref", 0, lisp.LVector, vec)
	}
	if k.Type != lisp.LInt {
		return nil, libutil.TypeError("vector-ref", 1, lisp.LInt, k)
	}
	if k.Int < 0 || k.Int >= len(vec.Cells) {
		return nil, fmt.Errorf("vector-ref: index out of range: %d", k.Int)
	}
	return vec.Cells[k.Int], nil
}

func builtinError(args []*lisp.LVal) (*lisp.LVal, error) {
	msg := args[0]
	if msg.Type != lisp.LString {
		return nil, libutil.TypeError("error", 0, lisp.LString, msg)
	}
	if len(args) == 1 {
		return nil, errors.New(msg.Str)
	}
	return nil, fmt.Errorf("%s: %v", msg.Str, lisp.List(args[1:]...))
}
