// Copyright © 2018 The ELPS authors

package lisp

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/luthersystems/schemex/parser/token"
)

// LType is the type of an LVal
type LType uint

// Possible LType values
const (
	// LInvalid (0) is not a valid lisp type.
	LInvalid LType = iota
	// LBool values store 1 (#t) or 0 (#f) in the LVal.Int field.
	LBool
	// LInt values store an int in the LVal.Int field.
	LInt
	// LFloat values store a float64 in the LVal.Float field.
	LFloat
	// LChar values store a rune in the LVal.Int field.
	LChar
	// LString values store a string in the LVal.Str field.
	LString
	// LSymbol values store the symbol's name in the LVal.Str field.  A
	// symbol inserted by a macro expansion also carries a Mark, and two
	// symbols with equal names but different marks are distinct identifiers.
	LSymbol
	// LSExpr values are lists.  Elements are stored in LVal.Cells.  A
	// non-nil LVal.Tail makes the list improper (a dotted list) and holds
	// the final cdr, which is never itself an LSExpr.
	LSExpr
	// LVector values store their elements in LVal.Cells.
	LVector
	// LTypeMax is not a real type but represents a value numerically greater
	// than all valid LType values.
	LTypeMax
)

var lvalTypeStrings = []string{
	LInvalid: "INVALID",
	LBool:    "boolean",
	LInt:     "int",
	LFloat:   "float",
	LChar:    "char",
	LString:  "string",
	LSymbol:  "symbol",
	LSExpr:   "list",
	LVector:  "vector",
}

func (t LType) String() string {
	if t >= LType(len(lvalTypeStrings)) {
		return lvalTypeStrings[LInvalid]
	}
	return lvalTypeStrings[t]
}

// LVal is a lisp value.  LVals are the forms consumed and produced by the
// analyzer.
type LVal struct {
	// Source is the values originating location in source code.  Programs
	// should not modify the contents of Source as the reference may be shared
	// by multiple LVals.
	Source *token.Location

	// Str used by LSymbol and LString values
	Str string

	// Cells used by LSExpr and LVector values.
	Cells []*LVal

	// Tail is the terminating cdr of an improper list.
	Tail *LVal

	// Mark is non-nil for symbols renamed during macro expansion.
	Mark *Mark

	// Type is the native type for a value in lisp.
	Type LType

	// Fields used for numeric and character types.
	Int   int
	Float float64
}

// Mark distinguishes identifiers inserted by one macro expansion from all
// other identifiers.  Base is the identifier found in the macro template and
// Env is the environment in which the macro was defined.  When a renamed
// identifier has no binding of its own it denotes whatever Base denotes in
// Env.
type Mark struct {
	ID   uint
	Base *LVal
	Env  *Env
}

func (m *Mark) String() string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s.%d", m.Base.Ident(), m.ID)
}

// Ident is the identity of a symbol.  Idents are comparable and used as keys
// in scope frames and pattern variable tables.
type Ident struct {
	Name string
	Mark *Mark
}

func (id Ident) String() string {
	if id.Mark == nil {
		return id.Name
	}
	return fmt.Sprintf("%s#%d", id.Name, id.Mark.ID)
}

var defaultSourceLocation = &token.Location{
	File: "<native code>",
	Pos:  -1,
}

func nativeSource() *token.Location {
	return defaultSourceLocation
}

// Bool returns an LVal representing the boolean b.
func Bool(b bool) *LVal {
	v := &LVal{Source: nativeSource(), Type: LBool}
	if b {
		v.Int = 1
	}
	return v
}

// Int returns an LVal representing the number x.
func Int(x int) *LVal {
	return &LVal{
		Source: nativeSource(),
		Type:   LInt,
		Int:    x,
	}
}

// Float returns an LVal representation of the number x
func Float(x float64) *LVal {
	return &LVal{
		Source: nativeSource(),
		Type:   LFloat,
		Float:  x,
	}
}

// Char returns an LVal representing the character c.
func Char(c rune) *LVal {
	return &LVal{
		Source: nativeSource(),
		Type:   LChar,
		Int:    int(c),
	}
}

// String returns an LVal representing the string str.
func String(str string) *LVal {
	return &LVal{
		Source: nativeSource(),
		Type:   LString,
		Str:    str,
	}
}

// Symbol returns an LVal representing the symbol s
func Symbol(s string) *LVal {
	return &LVal{
		Source: nativeSource(),
		Type:   LSymbol,
		Str:    s,
	}
}

// Rename returns a copy of sym carrying mark m.  The returned symbol keeps
// the name (and source location) of sym.
func Rename(sym *LVal, m *Mark) *LVal {
	return &LVal{
		Source: sym.Source,
		Type:   LSymbol,
		Str:    sym.Str,
		Mark:   m,
	}
}

// Nil returns an LVal representing the empty list.  Unlike many lisps the
// returned value is freshly allocated and may be modified by the caller.
func Nil() *LVal {
	return SExpr(nil)
}

// SExpr returns an LVal representing a proper list.  Provided cells are used
// as backing storage for the returned expression and are not copied.
func SExpr(cells []*LVal) *LVal {
	return &LVal{
		Source: nativeSource(),
		Type:   LSExpr,
		Cells:  cells,
	}
}

// List returns a proper list containing vals.
func List(vals ...*LVal) *LVal {
	return SExpr(vals)
}

// DottedList returns the list (cells[0] ... cells[n-1] . tail).  If tail is
// itself a list its elements are appended to cells so that the result is
// normalized.  DottedList with no cells returns tail.
func DottedList(cells []*LVal, tail *LVal) *LVal {
	if tail != nil && tail.Type == LSExpr {
		merged := make([]*LVal, 0, len(cells)+len(tail.Cells))
		merged = append(merged, cells...)
		merged = append(merged, tail.Cells...)
		v := SExpr(merged)
		v.Tail = tail.Tail
		return v
	}
	if len(cells) == 0 {
		if tail == nil {
			return Nil()
		}
		return tail
	}
	v := SExpr(cells)
	v.Tail = tail
	return v
}

// Vector returns an LVal representing a vector.  Provided cells are used as
// backing storage and are not copied.
func Vector(cells []*LVal) *LVal {
	return &LVal{
		Source: nativeSource(),
		Type:   LVector,
		Cells:  cells,
	}
}

// Quote returns the list (quote v).
func Quote(v *LVal) *LVal {
	return List(Symbol("quote"), v)
}

// Ident returns the identity of symbol v.
func (v *LVal) Ident() Ident {
	return Ident{Name: v.Str, Mark: v.Mark}
}

// IsNil returns true if v is the empty list.
func (v *LVal) IsNil() bool {
	return v.Type == LSExpr && len(v.Cells) == 0 && v.Tail == nil
}

// IsList returns true if v is a proper list (possibly empty).
func (v *LVal) IsList() bool {
	return v.Type == LSExpr && v.Tail == nil
}

// IsPair returns true if v is a non-empty list, proper or not.
func (v *LVal) IsPair() bool {
	return v.Type == LSExpr && len(v.Cells) > 0
}

// IsSymbol returns true if v is a symbol, renamed or not, whose name is
// name.
func (v *LVal) IsSymbol(name string) bool {
	return v.Type == LSymbol && v.Str == name
}

// IsRenamed returns true if v is a symbol inserted by a macro expansion.
func (v *LVal) IsRenamed() bool {
	return v.Type == LSymbol && v.Mark != nil
}

// IsFalse returns true if v is #f, the only false value.
func (v *LVal) IsFalse() bool {
	return v.Type == LBool && v.Int == 0
}

// Len returns the number of elements in a list or vector.  The tail of an
// improper list is not counted.
func (v *LVal) Len() int {
	switch v.Type {
	case LSExpr, LVector:
		return len(v.Cells)
	default:
		return 0
	}
}

// Head returns the first element of a non-empty list, or nil.
func (v *LVal) Head() *LVal {
	if v.Type != LSExpr || len(v.Cells) == 0 {
		return nil
	}
	return v.Cells[0]
}

// Rest returns the list of elements following the head of v.
func (v *LVal) Rest() *LVal {
	if !v.IsPair() {
		return Nil()
	}
	return DottedList(v.Cells[1:], v.Tail)
}

// Copy returns a shallow copy of v.
func (v *LVal) Copy() *LVal {
	if v == nil {
		return nil
	}
	cp := *v
	if v.Cells != nil {
		cp.Cells = make([]*LVal, len(v.Cells))
		copy(cp.Cells, v.Cells)
	}
	return &cp
}

// Equal returns true if a and b are structurally equal.  Symbols are equal
// only when their identities are equal.
func Equal(a, b *LVal) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Type != b.Type {
		return false
	}
	switch a.Type {
	case LBool, LInt, LChar:
		return a.Int == b.Int
	case LFloat:
		return a.Float == b.Float || (math.IsNaN(a.Float) && math.IsNaN(b.Float))
	case LString:
		return a.Str == b.Str
	case LSymbol:
		return a.Ident() == b.Ident()
	case LSExpr, LVector:
		if len(a.Cells) != len(b.Cells) {
			return false
		}
		for i := range a.Cells {
			if !Equal(a.Cells[i], b.Cells[i]) {
				return false
			}
		}
		if (a.Tail == nil) != (b.Tail == nil) {
			return false
		}
		return a.Tail == nil || Equal(a.Tail, b.Tail)
	default:
		return false
	}
}

// Strip returns v with all identifier marks removed.  Strip is used when a
// form containing renamed symbols becomes data, as with quote.
func Strip(v *LVal) *LVal {
	switch v.Type {
	case LSymbol:
		if v.Mark == nil {
			return v
		}
		sym := Symbol(v.Str)
		sym.Source = v.Source
		return sym
	case LSExpr, LVector:
		var cells []*LVal
		for i, c := range v.Cells {
			s := Strip(c)
			if s != c && cells == nil {
				cells = make([]*LVal, len(v.Cells))
				copy(cells, v.Cells[:i])
			}
			if cells != nil {
				cells[i] = s
			}
		}
		var tail *LVal
		if v.Tail != nil {
			tail = Strip(v.Tail)
		}
		if cells == nil && tail == v.Tail {
			return v
		}
		cp := v.Copy()
		if cells != nil {
			cp.Cells = cells
		}
		cp.Tail = tail
		return cp
	default:
		return v
	}
}

// String returns the external representation of v.  Renamed symbols are
// written using their name alone.
func (v *LVal) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v *LVal) write(b *strings.Builder) {
	switch v.Type {
	case LBool:
		if v.Int != 0 {
			b.WriteString("#t")
		} else {
			b.WriteString("#f")
		}
	case LInt:
		b.WriteString(strconv.Itoa(v.Int))
	case LFloat:
		b.WriteString(FormatFloat(v.Float))
	case LChar:
		b.WriteString(FormatChar(rune(v.Int)))
	case LString:
		b.WriteString(QuoteString(v.Str))
	case LSymbol:
		b.WriteString(v.Str)
	case LSExpr:
		if abbrev, ok := Abbreviation(v); ok {
			b.WriteString(abbrev)
			v.Cells[1].write(b)
			return
		}
		b.WriteByte('(')
		for i, c := range v.Cells {
			if i > 0 {
				b.WriteByte(' ')
			}
			c.write(b)
		}
		if v.Tail != nil {
			b.WriteString(" . ")
			v.Tail.write(b)
		}
		b.WriteByte(')')
	case LVector:
		b.WriteString("#(")
		for i, c := range v.Cells {
			if i > 0 {
				b.WriteByte(' ')
			}
			c.write(b)
		}
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "#<%s>", v.Type)
	}
}

var quoteAbbrevs = map[string]string{
	"quote":            "'",
	"quasiquote":       "`",
	"unquote":          ",",
	"unquote-splicing": ",@",
}

// Abbreviation returns the reader prefix v is written with, e.g. ' for
// (quote x).  Lists headed by a renamed symbol are written in full.
func Abbreviation(v *LVal) (string, bool) {
	if v.Type != LSExpr {
		return "", false
	}
	if len(v.Cells) != 2 || v.Tail != nil || v.Cells[0].Type != LSymbol || v.Cells[0].Mark != nil {
		return "", false
	}
	abbrev, ok := quoteAbbrevs[v.Cells[0].Str]
	return abbrev, ok
}

// FormatFloat formats x so that it always reads back as a float.
func FormatFloat(x float64) string {
	switch {
	case math.IsInf(x, 1):
		return "+inf.0"
	case math.IsInf(x, -1):
		return "-inf.0"
	case math.IsNaN(x):
		return "+nan.0"
	}
	s := strconv.FormatFloat(x, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// CharNames maps the names of named characters to their runes.
var CharNames = map[string]rune{
	"alarm":     '\a',
	"backspace": '\b',
	"delete":    0x7f,
	"escape":    0x1b,
	"newline":   '\n',
	"null":      0,
	"nul":       0,
	"return":    '\r',
	"space":     ' ',
	"tab":       '\t',
	"linefeed":  '\n',
	"altmode":   0x1b,
}

var charNamesRev = map[rune]string{
	'\a': "alarm",
	'\b': "backspace",
	0x7f: "delete",
	0x1b: "escape",
	'\n': "newline",
	0:    "null",
	'\r': "return",
	' ':  "space",
	'\t': "tab",
}

// FormatChar returns the external representation of c.
func FormatChar(c rune) string {
	if name, ok := charNamesRev[c]; ok {
		return `#\` + name
	}
	if !strconv.IsPrint(c) {
		return fmt.Sprintf(`#\x%x`, c)
	}
	return `#\` + string(c)
}

// QuoteString returns the external representation of the string s.
func QuoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\a':
			b.WriteString(`\a`)
		case '\b':
			b.WriteString(`\b`)
		default:
			if !strconv.IsPrint(c) {
				fmt.Fprintf(&b, `\x%x;`, c)
				continue
			}
			b.WriteRune(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
