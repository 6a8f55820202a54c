// Copyright © 2018 The ELPS authors

package lisp

import (
	"bytes"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/codes"
)

// SpecialKind identifies a special form or auxiliary syntax keyword exported
// by the core library.
type SpecialKind uint8

// SpecialKind constants
const (
	SpecQuote SpecialKind = iota + 1
	SpecQuasiquote
	SpecLambda
	SpecCaseLambda
	SpecDefine
	SpecSet
	SpecIf
	SpecBegin
	SpecLet
	SpecLetStar
	SpecLetrec
	SpecLetrecStar
	SpecDo
	SpecCond
	SpecCase
	SpecAnd
	SpecOr
	SpecWhen
	SpecUnless
	SpecDelay
	SpecDefineSyntax
	SpecLetSyntax
	SpecLetrecSyntax
	SpecSyntaxRules
	SpecImport
	SpecDefineLibrary
	SpecCondExpand
	// auxiliary syntax
	SpecElse
	SpecArrow
	SpecUnquote
	SpecUnquoteSplicing
	SpecEllipsis
	SpecUnderscore
	numSpecialKinds
)

var specialKindStrings = [numSpecialKinds]string{
	SpecQuote:           "quote",
	SpecQuasiquote:      "quasiquote",
	SpecLambda:          "lambda",
	SpecCaseLambda:      "case-lambda",
	SpecDefine:          "define",
	SpecSet:             "set!",
	SpecIf:              "if",
	SpecBegin:           "begin",
	SpecLet:             "let",
	SpecLetStar:         "let*",
	SpecLetrec:          "letrec",
	SpecLetrecStar:      "letrec*",
	SpecDo:              "do",
	SpecCond:            "cond",
	SpecCase:            "case",
	SpecAnd:             "and",
	SpecOr:              "or",
	SpecWhen:            "when",
	SpecUnless:          "unless",
	SpecDelay:           "delay",
	SpecDefineSyntax:    "define-syntax",
	SpecLetSyntax:       "let-syntax",
	SpecLetrecSyntax:    "letrec-syntax",
	SpecSyntaxRules:     "syntax-rules",
	SpecImport:          "import",
	SpecDefineLibrary:   "define-library",
	SpecCondExpand:      "cond-expand",
	SpecElse:            "else",
	SpecArrow:           "=>",
	SpecUnquote:         "unquote",
	SpecUnquoteSplicing: "unquote-splicing",
	SpecEllipsis:        "...",
	SpecUnderscore:      "_",
}

func (k SpecialKind) String() string {
	if k == 0 || k >= numSpecialKinds {
		return "<none>"
	}
	return specialKindStrings[k]
}

// Auxiliary returns true if k is a keyword which is only meaningful inside
// other special forms.
func (k SpecialKind) Auxiliary() bool {
	return k >= SpecElse && k < numSpecialKinds
}

// SpecialKinds returns every special form and auxiliary keyword.
func SpecialKinds() []SpecialKind {
	kinds := make([]SpecialKind, 0, numSpecialKinds-1)
	for k := SpecQuote; k < numSpecialKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

type specialOp func(a *analyzer, form *LVal, env *Env, pos position) (*Node, error)

var specialOps [numSpecialKinds]specialOp

func init() {
	specialOps = [numSpecialKinds]specialOp{
		SpecQuote:         opQuote,
		SpecQuasiquote:    opQuasiquote,
		SpecLambda:        opLambda,
		SpecCaseLambda:    opCaseLambda,
		SpecDefine:        opDefine,
		SpecSet:           opSet,
		SpecIf:            opSequence(2, 3),
		SpecBegin:         opBegin,
		SpecLet:           opLet,
		SpecLetStar:       opLetStar,
		SpecLetrec:        opLetrec(false),
		SpecLetrecStar:    opLetrec(true),
		SpecDo:            opDo,
		SpecCond:          opCond,
		SpecCase:          opCase,
		SpecAnd:           opSequence(0, -1),
		SpecOr:            opSequence(0, -1),
		SpecWhen:          opSequence(1, -1),
		SpecUnless:        opSequence(1, -1),
		SpecDelay:         opDelay,
		SpecDefineSyntax:  opDefineSyntax,
		SpecLetSyntax:     opLetSyntax(false),
		SpecLetrecSyntax:  opLetSyntax(true),
		SpecImport:        opImport,
		SpecDefineLibrary: opDefineLibrary,
		SpecCondExpand:    opCondExpand,
	}
}

var coreLibraryKey = LibraryKey(LibraryName(CoreLibraryName...))

func checkArgs(form *LVal, min, max int) error {
	n := len(form.Cells) - 1
	if n < min || (max >= 0 && n > max) {
		return NewError(CondArgumentError, form.Cells[0], form)
	}
	return nil
}

func special(kind SpecialKind, form *LVal) *Node {
	return &Node{Kind: NodeSpecial, Special: kind, Form: form, Source: form.Source}
}

// rebuild returns a list of cells located at form.
func rebuild(form *LVal, cells ...*LVal) *LVal {
	out := SExpr(cells)
	out.Source = form.Source
	return out
}

// withNodes returns a list located at form containing prefix followed by
// the forms of nodes.
func withNodes(form *LVal, prefix []*LVal, nodes []*Node) *LVal {
	cells := make([]*LVal, 0, len(prefix)+len(nodes))
	cells = append(cells, prefix...)
	for _, n := range nodes {
		cells = append(cells, n.Form)
	}
	return rebuild(form, cells...)
}

// core returns an identifier denoting kind in the core library regardless of
// what the symbol is bound to in the unit being analyzed.
func (a *analyzer) core(kind SpecialKind) *LVal {
	sym := Symbol(kind.String())
	lib := a.rt.Libraries.Get(coreLibraryKey)
	if lib == nil {
		return sym
	}
	return Rename(sym, &Mark{ID: a.rt.GenMarkID(), Base: sym, Env: lib.Env})
}

func opQuote(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 1, 1); err != nil {
		return nil, err
	}
	datum := Strip(form.Cells[1])
	node := special(SpecQuote, rebuild(form, form.Cells[0], datum))
	node.Kind = NodeLiteral
	node.Value = datum
	return node, nil
}

type quasi struct {
	a     *analyzer
	env   *Env
	form  *LVal
	nodes []*Node
}

func opQuasiquote(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 1, 1); err != nil {
		return nil, err
	}
	q := &quasi{a: a, env: env, form: form}
	out, err := q.expand(form.Cells[1], 1)
	if err != nil {
		return nil, err
	}
	node := special(SpecQuasiquote, rebuild(form, form.Cells[0], out))
	node.Children = q.nodes
	return node, nil
}

func (q *quasi) unquote(x *LVal) (*LVal, error) {
	n, err := q.a.analyze(x, q.env, posExpr)
	if err != nil {
		return nil, err
	}
	q.nodes = append(q.nodes, n)
	return n.Form, nil
}

func (q *quasi) is(v *LVal, kind SpecialKind) bool {
	return isKeyword(q.env, v, kind)
}

// splice returns true if v is (unquote-splicing x).
func (q *quasi) splice(v *LVal) bool {
	return v.IsList() && len(v.Cells) == 2 && q.is(v.Cells[0], SpecUnquoteSplicing)
}

func (q *quasi) expand(t *LVal, level int) (*LVal, error) {
	switch t.Type {
	case LSExpr:
		if !t.IsPair() {
			return t, nil
		}
		head := t.Cells[0]
		unq := q.is(head, SpecUnquote)
		spl := q.is(head, SpecUnquoteSplicing)
		if (unq || spl) && level == 1 && (len(t.Cells) != 2 || t.Tail != nil) {
			return nil, NewError(CondArgumentError, head, t)
		}
		if len(t.Cells) == 2 && t.Tail == nil {
			switch {
			case unq && level == 1:
				v, err := q.unquote(t.Cells[1])
				if err != nil {
					return nil, err
				}
				return rebuild(t, head, v), nil
			case spl && level == 1:
				return nil, NewError(CondInvalidContextInQuasiquote, head, q.form)
			case unq || spl:
				v, err := q.expand(t.Cells[1], level-1)
				if err != nil {
					return nil, err
				}
				return rebuild(t, head, v), nil
			case q.is(head, SpecQuasiquote):
				v, err := q.expand(t.Cells[1], level+1)
				if err != nil {
					return nil, err
				}
				return rebuild(t, head, v), nil
			}
		}
		cells, err := q.elements(t.Cells, level, t.Tail == nil)
		if err != nil {
			return nil, err
		}
		out := rebuild(t, cells...)
		if t.Tail != nil {
			out.Tail, err = q.expand(t.Tail, level)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case LVector:
		cells, err := q.elements(t.Cells, level, false)
		if err != nil {
			return nil, err
		}
		out := Vector(cells)
		out.Source = t.Source
		return out, nil
	default:
		return t, nil
	}
}

// elements expands the elements of a list or vector template.  A proper
// list ending in the symbols unquote x is the dotted form (a . ,x).
func (q *quasi) elements(cells []*LVal, level int, dotted bool) ([]*LVal, error) {
	out := make([]*LVal, 0, len(cells))
	for i := 0; i < len(cells); i++ {
		c := cells[i]
		if dotted && i > 0 && i == len(cells)-2 {
			if q.is(c, SpecUnquote) {
				var v *LVal
				var err error
				if level == 1 {
					v, err = q.unquote(cells[i+1])
				} else {
					v, err = q.expand(cells[i+1], level-1)
				}
				if err != nil {
					return nil, err
				}
				return append(out, c, v), nil
			}
			if q.is(c, SpecUnquoteSplicing) && level == 1 {
				return nil, NewError(CondInvalidContextInQuasiquote, c, q.form)
			}
		}
		if level == 1 && q.splice(c) {
			v, err := q.unquote(c.Cells[1])
			if err != nil {
				return nil, err
			}
			out = append(out, rebuild(c, c.Cells[0], v))
			continue
		}
		v, err := q.expand(c, level)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func opLambda(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 2, -1); err != nil {
		return nil, err
	}
	return a.lambda(form.Cells[0], form.Cells[1], form.Cells[2:], env, form)
}

func (a *analyzer) lambda(head, formals *LVal, body []*LVal, env *Env, form *LVal) (*Node, error) {
	child := env.Child(ScopeLambda)
	defer child.Close()
	params, err := a.bindFormals(formals, child)
	if err != nil {
		return nil, err
	}
	kids, err := a.body(body, child, form)
	if err != nil {
		return nil, err
	}
	node := special(SpecLambda, withNodes(form, []*LVal{head, formals}, kids))
	node.Bindings = params
	node.Children = kids
	return node, nil
}

func (a *analyzer) bindFormals(formals *LVal, env *Env) ([]*Binding, error) {
	var syms []*LVal
	switch formals.Type {
	case LSymbol:
		syms = append(syms, formals)
	case LSExpr:
		for _, p := range formals.Cells {
			if p.Type != LSymbol {
				return nil, NewError(CondIllegalFormalParameter, p).At(formals.Source)
			}
			syms = append(syms, p)
		}
		if formals.Tail != nil {
			if formals.Tail.Type != LSymbol {
				return nil, NewError(CondIllegalFormalRestParameter, formals.Tail).At(formals.Source)
			}
			syms = append(syms, formals.Tail)
		}
	default:
		return nil, NewError(CondIllegalFormalParameter, formals)
	}
	return bindLocals(syms, formals, env, true)
}

// bindLocals binds syms as variables in frame env.  A symbol appearing twice
// is a duplicate binding in where.
func bindLocals(syms []*LVal, where *LVal, env *Env, initialized bool) ([]*Binding, error) {
	seen := make(map[Ident]bool, len(syms))
	bs := make([]*Binding, len(syms))
	for i, sym := range syms {
		id := sym.Ident()
		if seen[id] {
			return nil, NewError(CondDuplicateBinding, sym, where)
		}
		seen[id] = true
		b := &Binding{Kind: DenVariable, Initialized: initialized}
		err := env.Bind(sym, b, BindLocal)
		if err != nil {
			return nil, err
		}
		bs[i] = b
	}
	return bs, nil
}

func opCaseLambda(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	var kids []*Node
	for _, clause := range form.Cells[1:] {
		if !clause.IsPair() || !clause.IsList() {
			return nil, NewError(CondMalformedCaseLambda, clause).At(form.Source)
		}
		n, err := a.lambda(a.core(SpecLambda), clause.Cells[0], clause.Cells[1:], env, clause)
		if err != nil {
			return nil, err
		}
		kids = append(kids, n)
	}
	prefix := []*LVal{form.Cells[0]}
	cells := make([]*LVal, 0, len(kids)+1)
	cells = append(cells, prefix...)
	for _, n := range kids {
		// drop the lambda keyword from each clause
		cells = append(cells, n.Form.Rest())
	}
	node := special(SpecCaseLambda, rebuild(form, cells...))
	node.Children = kids
	return node, nil
}

type definition struct {
	form *LVal
	name *LVal
	// target is (name . formals) for procedure definitions.
	target *LVal
	value  *LVal
	body   []*LVal
	depth  int
}

func parseDefinition(form *LVal) (*definition, error) {
	if len(form.Cells) < 2 {
		return nil, NewError(CondMalformedDefinition, form)
	}
	def := &definition{form: form}
	target := form.Cells[1]
	switch {
	case target.Type == LSymbol:
		if len(form.Cells) > 3 {
			return nil, NewError(CondMalformedDefinition, form)
		}
		def.name = target
		if len(form.Cells) == 3 {
			def.value = form.Cells[2]
		}
	case target.IsPair():
		name := target
		for name.IsPair() {
			name = name.Cells[0]
		}
		if name.Type != LSymbol || len(form.Cells) < 3 {
			return nil, NewError(CondMalformedDefinition, form)
		}
		def.name = name
		def.target = target
		def.body = form.Cells[2:]
	default:
		return nil, NewError(CondMalformedDefinition, form)
	}
	return def, nil
}

func (a *analyzer) definitionValue(def *definition, env *Env) (*Node, error) {
	if def.target != nil {
		return a.procedure(def.target, def.body, env, def.form)
	}
	if def.value == nil {
		return nil, nil
	}
	return a.analyze(def.value, env, posExpr)
}

// procedure analyzes the value of (define (name . formals) body ...).  A
// curried target ((name a) b) defines a procedure returning a procedure.
func (a *analyzer) procedure(target *LVal, body []*LVal, env *Env, form *LVal) (*Node, error) {
	formals := DottedList(target.Cells[1:], target.Tail)
	if target.Cells[0].IsPair() {
		inner := rebuild(form, append([]*LVal{a.core(SpecLambda), formals}, body...)...)
		return a.procedure(target.Cells[0], []*LVal{inner}, env, form)
	}
	return a.lambda(a.core(SpecLambda), formals, body, env, form)
}

func defineNode(def *definition, b *Binding, value *Node) *Node {
	head := def.form.Cells[0]
	var node *Node
	if value == nil {
		node = special(SpecDefine, rebuild(def.form, head, def.name))
	} else {
		node = special(SpecDefine, rebuild(def.form, head, def.name, value.Form))
		node.Children = []*Node{value}
	}
	node.Binding = b
	return node
}

func opDefine(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	def, err := parseDefinition(form)
	if err != nil {
		return nil, err
	}
	if pos != posTop || !env.IsTopLevel() {
		return nil, NewError(CondDefineInLocalEnv, def.name)
	}
	id := def.name.Ident()
	// a failed definition leaves an earlier binding of the name as it was
	var saved *Binding
	if old, ok := env.Scope[id]; ok {
		cp := *old
		saved = &cp
	}
	err = env.Bind(def.name, &Binding{Kind: DenVariable}, BindDefine)
	if err != nil {
		return nil, err
	}
	b := env.Scope[id]
	value, err := a.definitionValue(def, env)
	if err != nil {
		if saved == nil {
			delete(env.Scope, id)
		} else {
			*b = *saved
		}
		return nil, err
	}
	b.Initialized = true
	return defineNode(def, b, value), nil
}

func opSet(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 2, 2); err != nil {
		return nil, err
	}
	target := form.Cells[1]
	if target.Type != LSymbol {
		return nil, NewError(CondMalformedSpecialForm, form.Cells[0], form)
	}
	kids, err := a.sequence(form.Cells[1:], env)
	if err != nil {
		return nil, err
	}
	node := special(SpecSet, withNodes(form, form.Cells[:1], kids))
	node.Binding = kids[0].Binding
	node.Children = kids
	return node, nil
}

// opSequence handles forms whose operands are all expressions.
func opSequence(min, max int) specialOp {
	return func(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
		if err := checkArgs(form, min, max); err != nil {
			return nil, err
		}
		kids, err := a.sequence(form.Cells[1:], env)
		if err != nil {
			return nil, err
		}
		node := special(0, withNodes(form, form.Cells[:1], kids))
		node.Children = kids
		return node, nil
	}
}

func opBegin(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	var kids []*Node
	if pos == posTop && env.IsTopLevel() {
		for _, f := range form.Cells[1:] {
			n, err := a.analyze(f, env, posTop)
			if err != nil {
				return nil, err
			}
			kids = append(kids, n)
		}
	} else {
		var err error
		kids, err = a.sequence(form.Cells[1:], env)
		if err != nil {
			return nil, err
		}
	}
	node := special(SpecBegin, withNodes(form, form.Cells[:1], kids))
	node.Children = kids
	return node, nil
}

type bodyForm struct {
	form  *LVal
	depth int
}

// body analyzes a lambda or let body in frame env.  Definitions at the start
// of the body, including those produced by macros or spliced from begin,
// are bound in env before any initializer is analyzed.
func (a *analyzer) body(forms []*LVal, env *Env, form *LVal) ([]*Node, error) {
	base := a.depth
	defer func() { a.depth = base }()
	queue := make([]bodyForm, len(forms))
	for i, f := range forms {
		queue[i] = bodyForm{form: f}
	}
	var defs []*definition
scan:
	for len(queue) > 0 {
		a.depth = base + queue[0].depth
		f, n, err := a.headExpand(queue[0].form, env)
		if err != nil {
			return nil, err
		}
		n += queue[0].depth
		queue[0] = bodyForm{form: f, depth: n}
		if !f.IsPair() {
			break
		}
		switch keyword(env, f.Cells[0]) {
		case SpecBegin:
			if f.Tail != nil {
				return nil, NewError(CondMalformedArgumentList, f)
			}
			spliced := make([]bodyForm, 0, len(f.Cells)-2+len(queue))
			for _, c := range f.Cells[1:] {
				spliced = append(spliced, bodyForm{form: c, depth: n})
			}
			queue = append(spliced, queue[1:]...)
		case SpecDefine:
			def, err := parseDefinition(f)
			if err != nil {
				return nil, err
			}
			def.depth = n
			defs = append(defs, def)
			queue = queue[1:]
		case SpecDefineSyntax:
			name := f
			if len(f.Cells) > 1 {
				name = f.Cells[1]
			}
			return nil, NewError(CondDefineSyntaxInLocalEnv, name).At(f.Source)
		default:
			break scan
		}
	}
	syms := make([]*LVal, len(defs))
	for i, def := range defs {
		syms[i] = def.name
	}
	bs, err := bindLocals(syms, form, env, false)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Node, 0, len(defs)+len(queue))
	for i, def := range defs {
		a.depth = base + def.depth
		value, err := a.definitionValue(def, env)
		if err != nil {
			return nil, err
		}
		bs[i].Initialized = true
		nodes = append(nodes, defineNode(def, bs[i], value))
	}
	for _, bf := range queue {
		a.depth = base + bf.depth
		n, err := a.analyze(bf.form, env, posExpr)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// parseBindings validates a list of (symbol init) bindings.
func parseBindings(list *LVal, unique bool) (syms, inits []*LVal, err error) {
	if !list.IsList() {
		return nil, nil, NewError(CondMalformedBindings, list)
	}
	seen := make(map[Ident]bool, len(list.Cells))
	for _, b := range list.Cells {
		if !b.IsList() || len(b.Cells) != 2 || b.Cells[0].Type != LSymbol {
			return nil, nil, NewError(CondMalformedBinding, b, list)
		}
		sym := b.Cells[0]
		if unique && seen[sym.Ident()] {
			return nil, nil, NewError(CondDuplicateBinding, sym, list)
		}
		seen[sym.Ident()] = true
		syms = append(syms, sym)
		inits = append(inits, b.Cells[1])
	}
	return syms, inits, nil
}

func bindingList(list *LVal, syms []*LVal, inits []*Node) *LVal {
	cells := make([]*LVal, len(syms))
	for i := range syms {
		cells[i] = rebuild(list.Cells[i], syms[i], inits[i].Form)
	}
	return rebuild(list, cells...)
}

func opLet(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 2, -1); err != nil {
		return nil, err
	}
	if form.Cells[1].Type == LSymbol {
		return a.namedLet(form, env)
	}
	list := form.Cells[1]
	syms, inits, err := parseBindings(list, true)
	if err != nil {
		return nil, err
	}
	initNodes, err := a.sequence(inits, env)
	if err != nil {
		return nil, err
	}
	child := env.Child(ScopeLet)
	defer child.Close()
	bs, err := bindLocals(syms, list, child, true)
	if err != nil {
		return nil, err
	}
	kids, err := a.body(form.Cells[2:], child, form)
	if err != nil {
		return nil, err
	}
	node := special(SpecLet, withNodes(form, []*LVal{form.Cells[0], bindingList(list, syms, initNodes)}, kids))
	node.Bindings = bs
	node.Children = append(initNodes, kids...)
	return node, nil
}

func (a *analyzer) namedLet(form *LVal, env *Env) (*Node, error) {
	if err := checkArgs(form, 3, -1); err != nil {
		return nil, err
	}
	name, list := form.Cells[1], form.Cells[2]
	syms, inits, err := parseBindings(list, true)
	if err != nil {
		return nil, err
	}
	initNodes, err := a.sequence(inits, env)
	if err != nil {
		return nil, err
	}
	loop := env.Child(ScopeLet)
	defer loop.Close()
	lb, err := bindLocals([]*LVal{name}, form, loop, true)
	if err != nil {
		return nil, err
	}
	proc, err := a.lambda(a.core(SpecLambda), SExpr(syms), form.Cells[3:], loop, form)
	if err != nil {
		return nil, err
	}
	prefix := []*LVal{form.Cells[0], name, bindingList(list, syms, initNodes)}
	node := special(SpecLet, withNodes(form, prefix, proc.Children))
	node.Binding = lb[0]
	node.Bindings = proc.Bindings
	node.Children = append(initNodes, proc.Children...)
	return node, nil
}

func opLetStar(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 2, -1); err != nil {
		return nil, err
	}
	list := form.Cells[1]
	syms, inits, err := parseBindings(list, false)
	if err != nil {
		return nil, err
	}
	cur := env.Child(ScopeLet)
	frames := []*Env{cur}
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()
	initNodes := make([]*Node, len(syms))
	bs := make([]*Binding, len(syms))
	for i, sym := range syms {
		n, err := a.analyze(inits[i], cur, posExpr)
		if err != nil {
			return nil, err
		}
		initNodes[i] = n
		cur = cur.Child(ScopeLet)
		frames = append(frames, cur)
		b, err := bindLocals([]*LVal{sym}, list, cur, true)
		if err != nil {
			return nil, err
		}
		bs[i] = b[0]
	}
	kids, err := a.body(form.Cells[2:], cur, form)
	if err != nil {
		return nil, err
	}
	node := special(SpecLetStar, withNodes(form, []*LVal{form.Cells[0], bindingList(list, syms, initNodes)}, kids))
	node.Bindings = bs
	node.Children = append(initNodes, kids...)
	return node, nil
}

// opLetrec returns the handler for letrec, or letrec* when sequential is
// true.  The variables are unavailable to initializers analyzed before they
// are initialized.
func opLetrec(sequential bool) specialOp {
	return func(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
		if err := checkArgs(form, 2, -1); err != nil {
			return nil, err
		}
		list := form.Cells[1]
		syms, inits, err := parseBindings(list, true)
		if err != nil {
			return nil, err
		}
		child := env.Child(ScopeLet)
		defer child.Close()
		bs, err := bindLocals(syms, list, child, false)
		if err != nil {
			return nil, err
		}
		initNodes := make([]*Node, len(inits))
		for i, init := range inits {
			n, err := a.analyze(init, child, posExpr)
			if err != nil {
				return nil, err
			}
			initNodes[i] = n
			if sequential {
				bs[i].Initialized = true
			}
		}
		for _, b := range bs {
			b.Initialized = true
		}
		kids, err := a.body(form.Cells[2:], child, form)
		if err != nil {
			return nil, err
		}
		node := special(0, withNodes(form, []*LVal{form.Cells[0], bindingList(list, syms, initNodes)}, kids))
		node.Bindings = bs
		node.Children = append(initNodes, kids...)
		return node, nil
	}
}

func opDo(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 2, -1); err != nil {
		return nil, err
	}
	specs, test := form.Cells[1], form.Cells[2]
	if !specs.IsList() {
		return nil, NewError(CondMalformedBindings, specs)
	}
	var syms, inits []*LVal
	for _, spec := range specs.Cells {
		if !spec.IsList() || len(spec.Cells) < 2 || len(spec.Cells) > 3 || spec.Cells[0].Type != LSymbol {
			return nil, NewError(CondMalformedBinding, spec, specs)
		}
		syms = append(syms, spec.Cells[0])
		inits = append(inits, spec.Cells[1])
	}
	if !test.IsPair() || !test.IsList() {
		return nil, NewError(CondMalformedTest, test).At(form.Source)
	}
	initNodes, err := a.sequence(inits, env)
	if err != nil {
		return nil, err
	}
	child := env.Child(ScopeLet)
	defer child.Close()
	bs, err := bindLocals(syms, specs, child, true)
	if err != nil {
		return nil, err
	}
	steps := make([]*Node, len(syms))
	specForms := make([]*LVal, len(syms))
	for i, spec := range specs.Cells {
		step := spec.Cells[0]
		if len(spec.Cells) == 3 {
			step = spec.Cells[2]
		}
		steps[i], err = a.analyze(step, child, posExpr)
		if err != nil {
			return nil, err
		}
		specForms[i] = rebuild(spec, syms[i], initNodes[i].Form, steps[i].Form)
	}
	testNodes, err := a.sequence(test.Cells, child)
	if err != nil {
		return nil, err
	}
	testNode := special(SpecBegin, withNodes(test, nil, testNodes))
	testNode.Children = testNodes
	body, err := a.sequence(form.Cells[3:], child)
	if err != nil {
		return nil, err
	}
	node := special(SpecDo, withNodes(form, []*LVal{form.Cells[0], rebuild(specs, specForms...), testNode.Form}, body))
	node.Bindings = bs
	kids := make([]*Node, 0, 2*len(syms)+1+len(body))
	kids = append(kids, initNodes...)
	kids = append(kids, steps...)
	kids = append(kids, testNode)
	node.Children = append(kids, body...)
	return node, nil
}

// clause returns a begin node for a cond or case clause.
func clause(form *LVal, prefix []*LVal, kids []*Node) *Node {
	n := special(SpecBegin, withNodes(form, prefix, kids))
	n.Children = kids
	return n
}

func opCond(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	clauses := form.Cells[1:]
	kids := make([]*Node, 0, len(clauses))
	for i, cl := range clauses {
		if !cl.IsPair() || !cl.IsList() {
			return nil, NewError(CondMalformedCondClause, cl).At(form.Source)
		}
		switch {
		case isKeyword(env, cl.Cells[0], SpecElse):
			if i != len(clauses)-1 || len(cl.Cells) < 2 {
				return nil, NewError(CondMalformedCondClause, cl)
			}
			exprs, err := a.sequence(cl.Cells[1:], env)
			if err != nil {
				return nil, err
			}
			kids = append(kids, clause(cl, cl.Cells[:1], exprs))
		case len(cl.Cells) > 1 && isKeyword(env, cl.Cells[1], SpecArrow):
			if len(cl.Cells) != 3 {
				return nil, NewError(CondMalformedCondClause, cl)
			}
			exprs, err := a.sequence([]*LVal{cl.Cells[0], cl.Cells[2]}, env)
			if err != nil {
				return nil, err
			}
			n := special(SpecBegin, rebuild(cl, exprs[0].Form, cl.Cells[1], exprs[1].Form))
			n.Children = exprs
			kids = append(kids, n)
		default:
			exprs, err := a.sequence(cl.Cells, env)
			if err != nil {
				return nil, err
			}
			kids = append(kids, clause(cl, nil, exprs))
		}
	}
	node := special(SpecCond, withNodes(form, form.Cells[:1], kids))
	node.Children = kids
	return node, nil
}

func opCase(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 1, -1); err != nil {
		return nil, err
	}
	key, err := a.analyze(form.Cells[1], env, posExpr)
	if err != nil {
		return nil, err
	}
	clauses := form.Cells[2:]
	kids := []*Node{key}
	for i, cl := range clauses {
		if !cl.IsList() || len(cl.Cells) < 2 {
			return nil, NewError(CondMalformedCaseClause, cl).At(form.Source)
		}
		head := cl.Cells[0]
		var datums *LVal
		switch {
		case isKeyword(env, head, SpecElse):
			if i != len(clauses)-1 {
				return nil, NewError(CondMalformedCaseClause, cl)
			}
		case head.IsList():
			datums = Strip(head)
			head = datums
		default:
			return nil, NewError(CondMalformedCaseClause, cl)
		}
		var n *Node
		if isKeyword(env, cl.Cells[1], SpecArrow) {
			if len(cl.Cells) != 3 {
				return nil, NewError(CondMalformedCaseClause, cl)
			}
			recv, err := a.analyze(cl.Cells[2], env, posExpr)
			if err != nil {
				return nil, err
			}
			n = clause(cl, []*LVal{head, cl.Cells[1]}, []*Node{recv})
		} else {
			exprs, err := a.sequence(cl.Cells[1:], env)
			if err != nil {
				return nil, err
			}
			n = clause(cl, []*LVal{head}, exprs)
		}
		n.Value = datums
		kids = append(kids, n)
	}
	node := special(SpecCase, withNodes(form, form.Cells[:1], kids))
	node.Children = kids
	return node, nil
}

func opDelay(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 1, 1); err != nil {
		return nil, err
	}
	child := env.Child(ScopeDelay)
	defer child.Close()
	n, err := a.analyze(form.Cells[1], child, posExpr)
	if err != nil {
		return nil, err
	}
	node := special(SpecDelay, rebuild(form, form.Cells[0], n.Form))
	node.Children = []*Node{n}
	return node, nil
}

func opDefineSyntax(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if len(form.Cells) != 3 || form.Cells[1].Type != LSymbol {
		return nil, NewError(CondMalformedDefinition, form)
	}
	name := form.Cells[1]
	if pos != posTop || !env.IsTopLevel() {
		return nil, NewError(CondDefineSyntaxInLocalEnv, name)
	}
	macro, err := a.transformer(form.Cells[2], env, name)
	if err != nil {
		return nil, err
	}
	err = env.Bind(name, &Binding{Kind: DenMacro, Macro: macro, Initialized: true}, BindSyntax)
	if err != nil {
		return nil, err
	}
	node := special(SpecDefineSyntax, form)
	node.Binding = env.Scope[name.Ident()]
	return node, nil
}

// transformer evaluates a transformer spec.  The spec is a syntax-rules form,
// a macro use expanding to one, or a keyword naming an existing macro.
func (a *analyzer) transformer(spec *LVal, env *Env, name *LVal) (*SyntaxRules, error) {
	if spec.Type == LSymbol {
		b, err := env.Classify(spec)
		if err != nil {
			return nil, err
		}
		if b.Kind == DenMacro {
			return b.Macro, nil
		}
		return nil, NewError(CondMalformedTransformer, spec)
	}
	spec, _, err := a.headExpand(spec, env)
	if err != nil {
		return nil, err
	}
	if spec.IsPair() && keyword(env, spec.Cells[0]) == SpecSyntaxRules {
		return ParseSyntaxRules(spec, env, name)
	}
	return nil, NewError(CondMalformedTransformer, spec)
}

// opLetSyntax returns the handler for let-syntax, or letrec-syntax when rec
// is true.
func opLetSyntax(rec bool) specialOp {
	return func(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
		if err := checkArgs(form, 1, -1); err != nil {
			return nil, err
		}
		list := form.Cells[1]
		syms, specs, err := parseBindings(list, true)
		if err != nil {
			return nil, err
		}
		child := env.Child(ScopeSyntax)
		defer child.Close()
		def := env
		if rec {
			def = child
		}
		for i, sym := range syms {
			macro, err := a.transformer(specs[i], def, sym)
			if err != nil {
				return nil, err
			}
			err = child.Bind(sym, &Binding{Kind: DenMacro, Macro: macro, Initialized: true}, BindLocal)
			if err != nil {
				return nil, err
			}
		}
		kids, err := a.body(form.Cells[2:], child, form)
		if err != nil {
			return nil, err
		}
		node := special(0, withNodes(form, form.Cells[:2], kids))
		node.Children = kids
		return node, nil
	}
}

func opImport(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if err := checkArgs(form, 1, -1); err != nil {
		return nil, err
	}
	if pos != posTop || !env.IsTopLevel() {
		return nil, NewError(CondImportInLocalEnv, form.Cells[1]).At(form.Source)
	}
	if lib := env.Unit.Library; lib != nil {
		return nil, NewError(CondImportInLibrary, lib.Name).At(form.Source)
	}
	for _, set := range form.Cells[1:] {
		err := env.Import(a.ctx, set)
		if err != nil {
			return nil, err
		}
	}
	return special(SpecImport, form), nil
}

func opDefineLibrary(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	if pos != posTop || !env.IsTopLevel() || env.Unit.Library != nil || len(form.Cells) < 2 {
		return nil, NewError(CondMalformedLibraryDefinition, form)
	}
	name, err := ParseLibraryName(form.Cells[1])
	if err != nil {
		return nil, err
	}
	lib := newLibrary(a.rt, name)
	a.rt.Libraries.Register(lib)
	_, span := a.rt.startSpan(a.ctx, "define-library "+lib.Key)
	defer span.End()
	err = a.declarations(lib, form.Cells[2:])
	if err == nil {
		if errs := lib.Env.Finish(); len(errs) > 0 {
			err = errs[0]
		}
	}
	if err != nil {
		lib.State = LibraryFailed
		a.rt.Libraries.Remove(lib.Key)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	lib.State = LibraryReady
	a.rt.Logger.Debug("library defined",
		"library", lib.Key,
		"exports", lib.exports.Len(),
		"forms", len(lib.Nodes))
	node := special(SpecDefineLibrary, form)
	node.Children = lib.Nodes
	return node, nil
}

// declarations processes the declarations of a define-library form.
// Declaration keywords are recognized by name.
func (a *analyzer) declarations(lib *Library, decls []*LVal) error {
	for _, decl := range decls {
		if !decl.IsPair() || !decl.IsList() || decl.Cells[0].Type != LSymbol {
			return NewError(CondMalformedLibraryDefinition, decl)
		}
		args := decl.Cells[1:]
		switch decl.Cells[0].Str {
		case "export":
			for _, spec := range args {
				var err error
				switch {
				case spec.Type == LSymbol:
					err = lib.Export(spec, spec)
				case spec.IsList() && len(spec.Cells) == 3 && spec.Cells[0].IsSymbol("rename") &&
					spec.Cells[1].Type == LSymbol && spec.Cells[2].Type == LSymbol:
					err = lib.Export(spec.Cells[1], spec.Cells[2])
				default:
					err = NewError(CondMalformedLibraryDefinition, spec)
				}
				if err != nil {
					return err
				}
			}
		case "import":
			for _, set := range args {
				lib.Imports = append(lib.Imports, set)
				err := lib.Env.Import(a.ctx, set)
				if err != nil {
					return err
				}
			}
		case "begin":
			err := a.libraryForms(lib, args)
			if err != nil {
				return err
			}
		case "include", "include-ci":
			for _, file := range args {
				forms, err := a.include(decl, file)
				if err != nil {
					return err
				}
				err = a.libraryForms(lib, forms)
				if err != nil {
					return err
				}
			}
		case "cond-expand":
			chosen, err := a.condExpand(decl, lib.Env)
			if err != nil {
				return err
			}
			err = a.declarations(lib, chosen)
			if err != nil {
				return err
			}
		default:
			return NewError(CondMalformedLibraryDefinition, decl)
		}
	}
	return nil
}

func (a *analyzer) libraryForms(lib *Library, forms []*LVal) error {
	for _, f := range forms {
		n, err := a.analyze(f, lib.Env, posTop)
		if err != nil {
			return err
		}
		lib.Nodes = append(lib.Nodes, n)
	}
	return nil
}

// include reads the forms of a file named in an include declaration.
// Relative names are resolved against the directory of the declaring file.
func (a *analyzer) include(decl, file *LVal) ([]*LVal, error) {
	if file.Type != LString {
		return nil, NewError(CondMalformedLibraryDefinition, decl)
	}
	loc := file.Str
	if !filepath.IsAbs(loc) && decl.Source != nil && decl.Source.Path != "" {
		loc = filepath.Join(filepath.Dir(decl.Source.Path), loc)
	}
	src, err := os.ReadFile(loc) //#nosec G304
	if err != nil {
		a.rt.Logger.Debug("include file unreadable", "path", loc, "error", err)
		return nil, NewError(CondCannotOpenFile, file)
	}
	return a.rt.read(filepath.Base(loc), loc, bytes.NewReader(src))
}

func opCondExpand(a *analyzer, form *LVal, env *Env, pos position) (*Node, error) {
	chosen, err := a.condExpand(form, env)
	if err != nil {
		return nil, err
	}
	if pos != posTop || !env.IsTopLevel() {
		pos = posExpr
	}
	kids := make([]*Node, len(chosen))
	for i, f := range chosen {
		kids[i], err = a.analyze(f, env, pos)
		if err != nil {
			return nil, err
		}
	}
	node := special(SpecCondExpand, withNodes(form, []*LVal{a.core(SpecBegin)}, kids))
	node.Children = kids
	return node, nil
}

// condExpand returns the body of the first cond-expand clause whose feature
// requirement holds.
func (a *analyzer) condExpand(form *LVal, env *Env) ([]*LVal, error) {
	clauses := form.Cells[1:]
	for i, cl := range clauses {
		if !cl.IsPair() || !cl.IsList() {
			return nil, NewError(CondMalformedCondExpandClause, cl).At(form.Source)
		}
		if isKeyword(env, cl.Cells[0], SpecElse) {
			if i != len(clauses)-1 {
				return nil, NewError(CondMalformedCondExpandClause, cl)
			}
			return cl.Cells[1:], nil
		}
		ok, err := a.feature(cl.Cells[0], cl)
		if err != nil {
			return nil, err
		}
		if ok {
			return cl.Cells[1:], nil
		}
	}
	return nil, nil
}

func (a *analyzer) feature(req, clause *LVal) (bool, error) {
	if req.Type == LSymbol {
		return a.rt.HasFeature(req.Str), nil
	}
	if !req.IsPair() || !req.IsList() || req.Cells[0].Type != LSymbol {
		return false, NewError(CondMalformedCondExpandClause, clause)
	}
	args := req.Cells[1:]
	switch req.Cells[0].Str {
	case "and":
		for _, r := range args {
			ok, err := a.feature(r, clause)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "or":
		for _, r := range args {
			ok, err := a.feature(r, clause)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case "not":
		if len(args) == 1 {
			ok, err := a.feature(args[0], clause)
			return !ok, err
		}
	case "library":
		if len(args) == 1 {
			name, err := ParseLibraryName(args[0])
			if err != nil {
				return false, NewError(CondMalformedCondExpandClause, clause)
			}
			_, err = a.rt.LookupLibrary(a.ctx, name)
			return err == nil, nil
		}
	}
	return false, NewError(CondMalformedCondExpandClause, clause)
}
