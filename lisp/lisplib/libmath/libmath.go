// Copyright © 2018 The ELPS authors

package libmath

import (
	"errors"
	"math"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib/internal/libutil"
)

// LibraryName is the name of the library registered by LoadLibrary.
var LibraryName = []string{"lispkit", "math"}

// LoadLibrary registers (lispkit math) with rt.  The library depends on
// (lispkit base).
func LoadLibrary(rt *lisp.Runtime) error {
	return rt.DefineNativeLibrary(LibraryName, func(lib *lisp.NativeLibrary) error {
		err := lib.Import(lisp.CoreLibraryName...)
		if err != nil {
			return err
		}
		err = lib.Import(lisp.BaseLibraryName...)
		if err != nil {
			return err
		}
		err = libutil.Register(lib, builtins)
		if err != nil {
			return err
		}
		err = lib.Define("math.scm", source)
		if err != nil {
			return err
		}
		return lib.Export("pi", "square")
	})
}

const source = `
(define pi 3.141592653589793)
(define (square x) (* x x))
`

var builtins = []*libutil.Builtin{
	libutil.FunctionDoc("nan?", lisp.Exactly(1), builtinIsNaN,
		`Returns true if number is IEEE 754 NaN (not-a-number). Integers
		always return false.`),
	libutil.FunctionDoc("abs", lisp.Exactly(1), builtinAbs,
		`Returns the absolute value of number. Preserves the type: an int
		argument returns an int, a float returns a float.`),
	libutil.FunctionDoc("ceiling", lisp.Exactly(1), builtinCeil,
		`Returns the smallest integer not less than number.`),
	libutil.FunctionDoc("floor", lisp.Exactly(1), builtinFloor,
		`Returns the largest integer not greater than number.`),
	libutil.FunctionDoc("sqrt", lisp.Exactly(1), realFunc(math.Sqrt).builtin,
		`Returns the square root of number as a float.`),
	libutil.Function("exp", lisp.Exactly(1), realFunc(math.Exp).builtin),
	libutil.FunctionDoc("log", lisp.Between(1, 2), builtinLog,
		`Returns the natural logarithm of number, or its logarithm in the
		given base.`),
	libutil.Function("sin", lisp.Exactly(1), realFunc(math.Sin).builtin),
	libutil.Function("cos", lisp.Exactly(1), realFunc(math.Cos).builtin),
	libutil.Function("tan", lisp.Exactly(1), realFunc(math.Tan).builtin),
	libutil.Function("asin", lisp.Exactly(1), realFunc(math.Asin).builtin),
	libutil.Function("acos", lisp.Exactly(1), realFunc(math.Acos).builtin),
	libutil.FunctionDoc("atan", lisp.Between(1, 2), builtinAtan,
		`Returns the arctangent as a float. With two arguments, returns
		atan2(y, x), computing the angle in the correct quadrant.`),
	libutil.Function("min", lisp.AtLeast(1), extremum("min", math.Min)),
	libutil.Function("max", lisp.AtLeast(1), extremum("max", math.Max)),
}

// ErrIntegerOverflow is returned when an integer result does not fit in an
// int.
var ErrIntegerOverflow = errors.New("integer overflow")

func isNumeric(x *lisp.LVal) bool {
	return x.Type == lisp.LInt || x.Type == lisp.LFloat
}

func notNumber(name string, i int, x *lisp.LVal) error {
	return libutil.TypeError(name, i, lisp.LFloat, x)
}

func builtinIsNaN(args []*lisp.LVal) (*lisp.LVal, error) {
	x := args[0]
	switch x.Type {
	case lisp.LInt:
		return lisp.Bool(false), nil
	case lisp.LFloat:
		return lisp.Bool(math.IsNaN(x.Float)), nil
	default:
		return nil, notNumber("nan?", 0, x)
	}
}

func builtinAbs(args []*lisp.LVal) (*lisp.LVal, error) {
	x := args[0]
	switch x.Type {
	case lisp.LFloat:
		return lisp.Float(math.Abs(x.Float)), nil
	case lisp.LInt:
		if x.Int > 0 {
			return x, nil
		}
		abs := -x.Int
		if abs < 0 {
			return nil, ErrIntegerOverflow
		}
		return lisp.Int(abs), nil
	default:
		return nil, notNumber("abs", 0, x)
	}
}

func builtinCeil(args []*lisp.LVal) (*lisp.LVal, error) {
	x := args[0]
	if !isNumeric(x) {
		return nil, notNumber("ceiling", 0, x)
	}
	if x.Type == lisp.LInt {
		return x, nil
	}
	return lisp.Float(math.Ceil(x.Float)), nil
}

func builtinFloor(args []*lisp.LVal) (*lisp.LVal, error) {
	x := args[0]
	if !isNumeric(x) {
		return nil, notNumber("floor", 0, x)
	}
	if x.Type == lisp.LInt {
		return x, nil
	}
	return lisp.Float(math.Floor(x.Float)), nil
}

func builtinLog(args []*lisp.LVal) (*lisp.LVal, error) {
	for i, x := range args {
		if !isNumeric(x) {
			return nil, notNumber("log", i, x)
		}
	}
	y := math.Log(toFloat(args[0]))
	if len(args) == 2 {
		y /= math.Log(toFloat(args[1]))
	}
	return lisp.Float(y), nil
}

// builtinAtan does not have the same signature as other trigonometric
// functions and must be implemented specially.
func builtinAtan(args []*lisp.LVal) (*lisp.LVal, error) {
	for i, x := range args {
		if !isNumeric(x) {
			return nil, notNumber("atan", i, x)
		}
	}
	if len(args) == 1 {
		return lisp.Float(math.Atan(toFloat(args[0]))), nil
	}
	return lisp.Float(math.Atan2(toFloat(args[0]), toFloat(args[1]))), nil
}

func extremum(name string, fn func(a, b float64) float64) lisp.Callable {
	return func(args []*lisp.LVal) (*lisp.LVal, error) {
		float := false
		for i, x := range args {
			if !isNumeric(x) {
				return nil, notNumber(name, i, x)
			}
			float = float || x.Type == lisp.LFloat
		}
		y := toFloat(args[0])
		for _, x := range args[1:] {
			y = fn(y, toFloat(x))
		}
		if float {
			return lisp.Float(y), nil
		}
		return lisp.Int(int(y)), nil
	}
}

// realFunc is a function of the real number line (potentially with special
// cases for NaN and -Inf/+Inf)
type realFunc func(float64) float64

func (fn realFunc) builtin(args []*lisp.LVal) (*lisp.LVal, error) {
	x := args[0]
	if !isNumeric(x) {
		return nil, notNumber("function", 0, x)
	}
	return lisp.Float(fn(toFloat(x))), nil
}

func toFloat(x *lisp.LVal) float64 {
	if x.Type == lisp.LFloat {
		return x.Float
	}
	return float64(x.Int)
}
