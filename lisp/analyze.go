// Copyright © 2018 The ELPS authors

package lisp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/luthersystems/schemex/parser/token"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// NodeKind classifies analyzed forms.
type NodeKind uint8

// NodeKind constants
const (
	NodeLiteral NodeKind = iota
	NodeVariable
	NodeSpecial
	NodeApplication
)

func (k NodeKind) String() string {
	switch k {
	case NodeLiteral:
		return "literal"
	case NodeVariable:
		return "variable"
	case NodeSpecial:
		return "special"
	case NodeApplication:
		return "application"
	default:
		return "invalid"
	}
}

// Node is an analyzed form.  Form is the fully expanded form the node was
// produced from.
//
// A literal node stores its constant in Value.  A variable node references
// its Binding, which is nil for a forward reference until Finish resolves
// it.  An application node has the operator followed by the operands as
// Children.  The Children of a special node depend on Special:
//
//	quote                     a literal node; Value holds the datum
//	quasiquote                the unquoted expressions, left to right
//	lambda                    the body; Bindings are the parameters
//	case-lambda               one lambda node per clause
//	define                    the value, if any; Binding is the variable
//	set!                      the target variable and the value
//	if, and, or, when, unless the subexpressions
//	begin, cond-expand        the forms spliced in
//	let, let*, letrec(*)      the initializers then the body; Bindings
//	                          are the variables in order
//	named let                 the initializers then the body; Binding is
//	                          the loop procedure
//	do                        initializers, steps, the test clause as a
//	                          begin node, then the body
//	cond, case                the key (case only) then one begin node per
//	                          clause
//	delay                     the delayed expression
//	define-syntax             none; Binding is the macro
//	let-syntax, letrec-syntax the body
//	define-library            the library body
//	import                    none
type Node struct {
	Kind     NodeKind
	Special  SpecialKind
	Form     *LVal
	Value    *LVal
	Binding  *Binding
	Bindings []*Binding
	Children []*Node
	Source   *token.Location
}

// Walk calls fn for n and its descendants in depth-first order.  When fn
// returns false the node's children are skipped.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

func (n *Node) String() string {
	return n.Form.String()
}

// Unit is a compilation unit, a program or library body analyzed in one
// top-level frame.
type Unit struct {
	Name    *LVal
	Key     string
	Library *Library
	Root    *Env
	forward []forwardRef
}

type forwardRef struct {
	sym  *LVal
	env  *Env
	node *Node
}

func newUnit(name *LVal, env *Env) *Unit {
	key := "<unnamed>"
	switch {
	case name == nil:
	case name.Type == LString:
		key = name.Str
	default:
		key = name.String()
	}
	return &Unit{Name: name, Key: key, Root: env}
}

// Pending returns the symbols referenced before they were defined which have
// not yet been resolved by Finish.
func (u *Unit) Pending() []*LVal {
	syms := make([]*LVal, len(u.forward))
	for i, ref := range u.forward {
		syms[i] = ref.sym
	}
	return syms
}

// Analyze analyzes form in env with a background context.
func Analyze(form *LVal, env *Env) (*Node, error) {
	return env.Analyze(context.Background(), form)
}

// Analyze analyzes a form.  Definitions, imports and syntax definitions are
// permitted when env is a top-level frame.  The first error aborts analysis
// of the form.  Top-level definitions completed before the error remain
// bound.
func (env *Env) Analyze(ctx context.Context, form *LVal) (*Node, error) {
	rt := env.Runtime
	ctx, span := rt.startSpan(ctx, "analyze", trace.WithAttributes(formAttributes(form)...))
	defer span.End()
	a := &analyzer{ctx: ctx, rt: rt}
	pos := posExpr
	if env.IsTopLevel() {
		pos = posTop
	}
	node, err := a.analyze(form, env, pos)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return node, nil
}

// AnalyzeProgram analyzes forms in order, stopping at the first error.
func (env *Env) AnalyzeProgram(ctx context.Context, forms []*LVal) ([]*Node, error) {
	nodes := make([]*Node, 0, len(forms))
	for _, form := range forms {
		node, err := env.Analyze(ctx, form)
		if err != nil {
			return nodes, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Check analyzes every form, continuing with the next top-level form after an
// error, then resolves forward references.  All errors are returned in the
// order they were detected.
func (env *Env) Check(ctx context.Context, forms []*LVal) ([]*Node, []error) {
	var nodes []*Node
	var errs []error
	for _, form := range forms {
		node, err := env.Analyze(ctx, form)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		nodes = append(nodes, node)
	}
	errs = append(errs, env.Finish()...)
	return nodes, errs
}

// Finish resolves the forward references recorded while analyzing env's
// unit.  References which are still unbound are errors.
func (env *Env) Finish() []error {
	unit := env.Unit
	var errs []error
	for _, ref := range unit.forward {
		b := ref.env.Get(ref.sym)
		switch {
		case b == nil:
			errs = append(errs, NewError(CondUnboundVariable, ref.sym))
		case b.Kind != DenVariable:
			errs = append(errs, NewError(CondIllegalKeywordUsage, ref.sym))
		default:
			ref.node.Binding = b
		}
	}
	unit.forward = nil
	return errs
}

type position uint8

const (
	posExpr position = iota
	posTop
)

type analyzer struct {
	ctx   context.Context
	rt    *Runtime
	depth int
}

func (a *analyzer) analyze(form *LVal, env *Env, pos position) (*Node, error) {
	var node *Node
	var err error
	switch form.Type {
	case LSymbol:
		node, err = a.variable(form, env)
	case LSExpr:
		if form.IsNil() {
			node = a.literal(form, form)
			break
		}
		node, err = a.list(form, env, pos)
	default:
		node = a.literal(form, form)
	}
	if err != nil {
		var lerr *EvalError
		if errors.As(err, &lerr) {
			lerr.At(form.Source)
		}
		return nil, err
	}
	return node, nil
}

func (a *analyzer) literal(form, value *LVal) *Node {
	return &Node{
		Kind:   NodeLiteral,
		Form:   form,
		Value:  Strip(value),
		Source: form.Source,
	}
}

func (a *analyzer) variable(sym *LVal, env *Env) (*Node, error) {
	b, err := env.Classify(sym)
	if err != nil {
		return nil, err
	}
	node := &Node{Kind: NodeVariable, Form: sym, Source: sym.Source}
	switch b.Kind {
	case DenMacro, DenSpecialForm:
		return nil, NewError(CondIllegalKeywordUsage, sym)
	case DenUnbound:
		if env.Phase == 0 {
			return nil, NewError(CondUnboundVariable, sym)
		}
		env.Unit.forward = append(env.Unit.forward, forwardRef{sym: sym, env: env, node: node})
		return node, nil
	}
	if !b.Initialized && b.Phase == env.Phase {
		return nil, NewError(CondVariableNotYetInitialized, sym)
	}
	node.Binding = b
	return node, nil
}

func (a *analyzer) list(form *LVal, env *Env, pos position) (*Node, error) {
	head := form.Cells[0]
	if head.Type == LSymbol {
		b, err := env.Classify(head)
		if err != nil {
			return nil, err
		}
		switch b.Kind {
		case DenMacro:
			expanded, err := a.expand(b, form, env)
			if err != nil {
				return nil, err
			}
			a.depth++
			defer func() { a.depth-- }()
			return a.analyze(expanded, env, pos)
		case DenSpecialForm:
			op := specialOps[b.Special]
			if op == nil {
				return nil, NewError(CondIllegalKeywordUsage, head)
			}
			if form.Tail != nil {
				return nil, NewError(CondMalformedArgumentList, form)
			}
			node, err := op(a, form, env, pos)
			if err != nil {
				return nil, err
			}
			if node.Kind == NodeSpecial && node.Special == 0 {
				node.Special = b.Special
			}
			if node.Source == nil {
				node.Source = form.Source
			}
			return node, nil
		}
	}
	return a.application(form, env)
}

func (a *analyzer) application(form *LVal, env *Env) (*Node, error) {
	if form.Tail != nil {
		return nil, NewError(CondMalformedArgumentList, form)
	}
	head := form.Cells[0]
	switch head.Type {
	case LBool, LInt, LFloat, LChar, LString, LVector:
		return nil, NewError(CondNonApplicativeValue, head)
	case LSExpr:
		if head.IsNil() {
			return nil, NewError(CondNonApplicativeValue, head)
		}
	}
	children, err := a.sequence(form.Cells, env)
	if err != nil {
		return nil, err
	}
	op := children[0]
	if op.Kind == NodeVariable && op.Binding != nil && op.Binding.Primitive != nil {
		if !op.Binding.Primitive.Arity.Accepts(len(form.Cells) - 1) {
			return nil, NewError(CondArgumentError, head, form)
		}
	}
	return &Node{
		Kind:     NodeApplication,
		Form:     withNodes(form, nil, children),
		Children: children,
		Source:   form.Source,
	}, nil
}

// sequence analyzes forms as expressions, left to right.
func (a *analyzer) sequence(forms []*LVal, env *Env) ([]*Node, error) {
	nodes := make([]*Node, len(forms))
	for i, f := range forms {
		n, err := a.analyze(f, env, posExpr)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

// expand applies macro b to form.  Expansion depth counts the macro uses
// being expanded at once, including uses nested in an expansion's result.
func (a *analyzer) expand(b *Binding, form *LVal, env *Env) (*LVal, error) {
	name := form.Cells[0]
	if a.depth >= a.rt.MaxExpansionDepth {
		return nil, NewError(CondExpansionDepthExceeded, Int(a.rt.MaxExpansionDepth), name).At(form.Source)
	}
	_, span := a.rt.startSpan(a.ctx, "expand "+name.Str, trace.WithAttributes(
		attribute.String("schemex.macro", name.Str),
		attribute.Int("schemex.expansion.depth", a.depth),
	))
	defer span.End()
	out, err := b.Macro.Expand(form, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if out.Type == LSExpr && out != form {
		out = out.Copy()
		out.Source = form.Source
	}
	if a.rt.Logger.Enabled(a.ctx, slog.LevelDebug) {
		a.rt.Logger.Debug("macro expanded",
			"macro", name.Str,
			"depth", a.depth,
			"form", form.String(),
			"expansion", out.String())
	}
	return out, nil
}

// headExpand expands form while its head is a macro keyword.  It returns the
// expanded form and the number of expansions performed.
func (a *analyzer) headExpand(form *LVal, env *Env) (*LVal, int, error) {
	base := a.depth
	defer func() { a.depth = base }()
	n := 0
	for form.IsPair() && form.Cells[0].Type == LSymbol {
		b, err := env.Classify(form.Cells[0])
		if err != nil {
			return nil, 0, err
		}
		if b.Kind != DenMacro {
			break
		}
		a.depth = base + n
		form, err = a.expand(b, form, env)
		if err != nil {
			return nil, 0, err
		}
		n++
	}
	return form, n, nil
}

// keyword returns the special form kind v denotes in env, or zero.
func keyword(env *Env, v *LVal) SpecialKind {
	if v.Type != LSymbol {
		return 0
	}
	b := env.Get(v)
	if b == nil || b.Kind != DenSpecialForm {
		return 0
	}
	return b.Special
}

// isKeyword returns true if v denotes kind in env.  An unbound symbol
// spelled like an auxiliary keyword is also accepted.
func isKeyword(env *Env, v *LVal, kind SpecialKind) bool {
	if v.Type != LSymbol {
		return false
	}
	b := env.Get(v)
	if b == nil {
		return kind.Auxiliary() && v.Str == kind.String()
	}
	return b.Kind == DenSpecialForm && b.Special == kind
}

func formAttributes(form *LVal) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if form.Source.Native() {
		return attrs
	}
	attrs = append(attrs,
		semconv.CodeFilepath(form.Source.File),
		semconv.CodeLineNumber(form.Source.Line),
		semconv.CodeColumn(form.Source.Col),
	)
	if head := form.Head(); head != nil && head.Type == LSymbol {
		attrs = append(attrs, attribute.String("schemex.form", head.Str))
	}
	return attrs
}
