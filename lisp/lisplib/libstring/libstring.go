// Copyright © 2018 The ELPS authors

package libstring

import (
	"strings"

	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib/internal/libutil"
)

// LibraryName is the name of the library registered by LoadLibrary.
var LibraryName = []string{"lispkit", "string"}

// MaxAlloc bounds the length of strings built by string-pad and make-string.
const MaxAlloc = 10 << 20

// LoadLibrary registers (lispkit string) with rt.  The library depends on
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
		err = lib.Define("string.scm", source)
		if err != nil {
			return err
		}
		return lib.Export("string-map", "string-for-each", "string-join")
	})
}

const source = `
(define (string-map f s)
  (list->string (map f (string->list s))))
(define (string-for-each f s)
  (for-each f (string->list s)))
(define (string-join strs sep)
  (cond ((null? strs) "")
        ((null? (cdr strs)) (car strs))
        (else (string-append (car strs) sep (string-join (cdr strs) sep)))))
`

var builtins = []*libutil.Builtin{
	libutil.Function("string-length", lisp.Exactly(1), builtinLength),
	libutil.Function("string-append", lisp.AtLeast(0), builtinAppend),
	libutil.FunctionDoc("substring", lisp.Between(2, 3), builtinSubstring,
		`Returns the characters of a string from start up to, but not
		including, end.`),
	libutil.Function("string-upcase", lisp.Exactly(1), builtinUpper),
	libutil.Function("string-downcase", lisp.Exactly(1), builtinLower),
	libutil.Function("string=?", lisp.AtLeast(1), builtinEqual),
	libutil.Function("string->list", lisp.Exactly(1), builtinToList),
	libutil.Function("list->string", lisp.Exactly(1), builtinFromList),
	libutil.Function("string->symbol", lisp.Exactly(1), builtinToSymbol),
	libutil.Function("symbol->string", lisp.Exactly(1), builtinFromSymbol),
	libutil.FunctionDoc("string-split", lisp.Exactly(2), builtinSplit,
		`Returns a list of the substrings of a string separated by sep.`),
	libutil.FunctionDoc("make-string", lisp.Between(1, 2), builtinMake,
		`Returns a string of k copies of a character, a space by default.`),
}

func builtinLength(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("string-length", lisp.LString, args); err != nil {
		return nil, err
	}
	return lisp.Int(len([]rune(args[0].Str))), nil
}

func builtinAppend(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("string-append", lisp.LString, args); err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, s := range args {
		b.WriteString(s.Str)
	}
	return lisp.String(b.String()), nil
}

func builtinSubstring(args []*lisp.LVal) (*lisp.LVal, error) {
	str := args[0]
	if str.Type != lisp.LString {
		return nil, libutil.TypeError("substring", 0, lisp.LString, str)
	}
	if err := libutil.Expect("substring", lisp.LInt, args[1:]); err != nil {
		return nil, err
	}
	runes := []rune(str.Str)
	start, end := args[1].Int, len(runes)
	if len(args) == 3 {
		end = args[2].Int
	}
	if start < 0 || end > len(runes) || start > end {
		return nil, libutil.RangeError("substring", start, end, len(runes))
	}
	return lisp.String(string(runes[start:end])), nil
}

func builtinUpper(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("string-upcase", lisp.LString, args); err != nil {
		return nil, err
	}
	return lisp.String(strings.ToUpper(args[0].Str)), nil
}

func builtinLower(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("string-downcase", lisp.LString, args); err != nil {
		return nil, err
	}
	return lisp.String(strings.ToLower(args[0].Str)), nil
}

func builtinEqual(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("string=?", lisp.LString, args); err != nil {
		return nil, err
	}
	for _, s := range args[1:] {
		if s.Str != args[0].Str {
			return lisp.Bool(false), nil
		}
	}
	return lisp.Bool(true), nil
}

func builtinToList(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("string->list", lisp.LString, args); err != nil {
		return nil, err
	}
	var cells []*lisp.LVal
	for _, c := range args[0].Str {
		cells = append(cells, lisp.Char(c))
	}
	return lisp.SExpr(cells), nil
}

func builtinFromList(args []*lisp.LVal) (*lisp.LVal, error) {
	list := args[0]
	if !list.IsList() {
		return nil, libutil.TypeError("list->string", 0, lisp.LSExpr, list)
	}
	if err := libutil.Expect("list->string", lisp.LChar, list.Cells); err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, c := range list.Cells {
		b.WriteRune(rune(c.Int))
	}
	return lisp.String(b.String()), nil
}

func builtinToSymbol(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("string->symbol", lisp.LString, args); err != nil {
		return nil, err
	}
	return lisp.Symbol(args[0].Str), nil
}

func builtinFromSymbol(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("symbol->string", lisp.LSymbol, args); err != nil {
		return nil, err
	}
	return lisp.String(args[0].Str), nil
}

func builtinSplit(args []*lisp.LVal) (*lisp.LVal, error) {
	if err := libutil.Expect("string-split", lisp.LString, args); err != nil {
		return nil, err
	}
	slice := strings.Split(args[0].Str, args[1].Str)
	cells := make([]*lisp.LVal, len(slice))
	for i, s := range slice {
		cells[i] = lisp.String(s)
	}
	return lisp.SExpr(cells), nil
}

func builtinMake(args []*lisp.LVal) (*lisp.LVal, error) {
	k := args[0]
	if k.Type != lisp.LInt {
		return nil, libutil.TypeError("make-string", 0, lisp.LInt, k)
	}
	fill := ' '
	if len(args) == 2 {
		if args[1].Type != lisp.LChar {
			return nil, libutil.TypeError("make-string", 1, lisp.LChar, args[1])
		}
		fill = rune(args[1].Int)
	}
	if k.Int < 0 || k.Int > MaxAlloc {
		return nil, libutil.RangeError("make-string", 0, k.Int, MaxAlloc)
	}
	return lisp.String(strings.Repeat(string(fill), k.Int)), nil
}
