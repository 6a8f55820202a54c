// Copyright © 2024 The ELPS authors

// Package astutil provides shared walking utilities for scheme forms and
// analyzed nodes.
//
// The form helpers work on source as read, before expansion, and are
// therefore approximate: they know the binding forms of the core library by
// name.  The node helpers work on the output of the analyzer.
package astutil

import "github.com/luthersystems/schemex/lisp"

// Walk calls fn for every form in the tree, depth-first.  parent is nil for
// top-level expressions.  The bodies of quote and quasiquote forms are data
// and are not visited.
func Walk(exprs []*lisp.LVal, fn func(node *lisp.LVal, parent *lisp.LVal, depth int)) {
	for _, expr := range exprs {
		walkNode(expr, nil, 0, fn)
	}
}

func walkNode(node *lisp.LVal, parent *lisp.LVal, depth int, fn func(*lisp.LVal, *lisp.LVal, int)) {
	if node == nil {
		return
	}
	fn(node, parent, depth)
	switch node.Type {
	case lisp.LSExpr:
		switch HeadSymbol(node) {
		case "quote", "quasiquote":
			return
		}
	case lisp.LVector:
		// vector literals are self-evaluating
		return
	default:
		return
	}
	for _, child := range node.Cells {
		walkNode(child, node, depth+1, fn)
	}
	if node.Tail != nil {
		walkNode(node.Tail, node, depth+1, fn)
	}
}

// WalkSExprs calls fn for every unquoted, non-empty list in the tree.  Each
// is a potential application, special form or macro use.
func WalkSExprs(exprs []*lisp.LVal, fn func(sexpr *lisp.LVal, depth int)) {
	Walk(exprs, func(node *lisp.LVal, _ *lisp.LVal, depth int) {
		if node.IsPair() {
			fn(node, depth)
		}
	})
}

// HeadSymbol returns the symbol name at the head of a list, or "".
func HeadSymbol(sexpr *lisp.LVal) string {
	if !sexpr.IsPair() {
		return ""
	}
	head := sexpr.Cells[0]
	if head.Type == lisp.LSymbol {
		return head.Str
	}
	return ""
}

// ArgCount returns the number of arguments in a list (excluding the head).
// A dotted tail is not counted.
func ArgCount(sexpr *lisp.LVal) int {
	if len(sexpr.Cells) <= 1 {
		return 0
	}
	return len(sexpr.Cells) - 1
}

// Defined returns the set of names bound anywhere in the source.  This
// includes:
//   - Names introduced by define and define-syntax, including the
//     procedure name and formals of the (define (f . formals) ...) shorthand
//   - Formals of lambda and case-lambda clauses
//   - Variables bound by the let family, do, and named let loop names
//
// The result is file-global (not scope-aware).
func Defined(exprs []*lisp.LVal) map[string]bool {
	defs := make(map[string]bool)
	WalkSExprs(exprs, func(sexpr *lisp.LVal, _ int) {
		if ArgCount(sexpr) < 1 {
			return
		}
		arg := sexpr.Cells[1]
		switch HeadSymbol(sexpr) {
		case "define":
			// (define ((curried a) b) ...) nests the shorthand
			for arg.IsPair() {
				CollectFormals(arg.Rest(), defs)
				arg = arg.Cells[0]
			}
			if arg.Type == lisp.LSymbol {
				defs[arg.Str] = true
			}
		case "define-syntax":
			if arg.Type == lisp.LSymbol {
				defs[arg.Str] = true
			}
		case "lambda":
			CollectFormals(arg, defs)
		case "case-lambda":
			for _, clause := range sexpr.Cells[1:] {
				if clause.IsPair() {
					CollectFormals(clause.Cells[0], defs)
				}
			}
		case "let", "let*", "letrec", "letrec*", "do", "let-syntax", "letrec-syntax":
			if arg.Type == lisp.LSymbol && ArgCount(sexpr) >= 2 {
				defs[arg.Str] = true
				arg = sexpr.Cells[2]
			}
			collectBindings(arg, defs)
		}
	})
	return defs
}

func collectBindings(list *lisp.LVal, defs map[string]bool) {
	if list.Type != lisp.LSExpr {
		return
	}
	for _, b := range list.Cells {
		if b.IsPair() && b.Cells[0].Type == lisp.LSymbol {
			defs[b.Cells[0].Str] = true
		}
	}
}

// CollectFormals extracts symbol names from a formals list, which may be a
// single rest symbol, a proper list, or a dotted list.
func CollectFormals(formals *lisp.LVal, defs map[string]bool) {
	if formals == nil {
		return
	}
	switch formals.Type {
	case lisp.LSymbol:
		defs[formals.Str] = true
	case lisp.LSExpr:
		for _, sym := range formals.Cells {
			if sym.Type == lisp.LSymbol {
				defs[sym.Str] = true
			}
		}
		if formals.Tail != nil && formals.Tail.Type == lisp.LSymbol {
			defs[formals.Tail.Str] = true
		}
	}
}

// SourceOf returns the best source location for a form.
// Prefers the form's own source, falls back to first child's source.
func SourceOf(v *lisp.LVal) *lisp.LVal {
	if v.Source != nil && v.Source.Line > 0 {
		return v
	}
	if len(v.Cells) > 0 && v.Cells[0].Source != nil {
		return v.Cells[0]
	}
	return v
}

// References returns the variable nodes in the trees rooted at nodes in
// depth-first order.
func References(nodes []*lisp.Node) []*lisp.Node {
	var refs []*lisp.Node
	for _, n := range nodes {
		n.Walk(func(n *lisp.Node) bool {
			if n.Kind == lisp.NodeVariable {
				refs = append(refs, n)
			}
			return true
		})
	}
	return refs
}

// Free returns the names of variables referenced in nodes which are not
// bound by the trees themselves, keyed by the unit or library which created
// the binding.  Top-level definitions among nodes count as free.
// Unresolved forward references are keyed by the empty string.
func Free(nodes []*lisp.Node) map[string][]string {
	local := make(map[*lisp.Binding]bool)
	for _, n := range nodes {
		collectLocals(n, true, local)
	}
	free := make(map[string][]string)
	seen := make(map[string]bool)
	for _, ref := range References(nodes) {
		b := ref.Binding
		if b != nil && local[b] {
			continue
		}
		origin, name := "", ref.Form.Str
		if b != nil {
			origin, name = b.Origin, b.Name.Str
		}
		if key := origin + " " + name; !seen[key] {
			seen[key] = true
			free[origin] = append(free[origin], name)
		}
	}
	return free
}

func collectLocals(n *lisp.Node, top bool, local map[*lisp.Binding]bool) {
	for _, b := range n.Bindings {
		local[b] = true
	}
	if !top && n.Kind == lisp.NodeSpecial && n.Special == lisp.SpecDefine && n.Binding != nil {
		local[n.Binding] = true
	}
	if n.Kind == lisp.NodeSpecial && n.Special == lisp.SpecLet && n.Binding != nil {
		// named let loop variable
		local[n.Binding] = true
	}
	nested := !(n.Kind == lisp.NodeSpecial && (n.Special == lisp.SpecBegin || n.Special == lisp.SpecCondExpand))
	for _, c := range n.Children {
		collectLocals(c, top && !nested, local)
	}
}
