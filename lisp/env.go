// Copyright © 2018 The ELPS authors

package lisp

import (
	"fmt"
)

// Denotation is what a symbol currently means.
type Denotation uint8

// Denotation constants
const (
	DenUnbound Denotation = iota
	DenVariable
	DenMacro
	DenSpecialForm
)

func (d Denotation) String() string {
	switch d {
	case DenVariable:
		return "variable"
	case DenMacro:
		return "macro"
	case DenSpecialForm:
		return "special-form"
	default:
		return "unbound"
	}
}

// Binding is the denotation of an identifier in a scope frame.  Nodes
// produced by analysis reference Bindings directly so a downstream code
// generator can tell two same-named variables apart.
type Binding struct {
	ID        uint
	Kind      Denotation
	Name      *LVal
	Special   SpecialKind
	Macro     *SyntaxRules
	Primitive *Primitive
	// Origin is the key of the library or compilation unit which created
	// the binding.
	Origin string
	// Phase is the evaluation phase of the frame holding the binding.
	Phase int
	// Initialized is false while the binding's initializer is being
	// analyzed.
	Initialized bool
}

func (b *Binding) String() string {
	if b == nil {
		return "<unbound>"
	}
	return fmt.Sprintf("%s %s", b.Kind, b.Name.Ident())
}

// Unbound returns the denotation of a symbol with no binding.
func Unbound(sym *LVal) *Binding {
	return &Binding{Kind: DenUnbound, Name: sym}
}

// BindContext distinguishes the constructs which introduce bindings.  All
// contexts except BindLocal are restricted to the top-level frame.
type BindContext uint8

// BindContext constants
const (
	BindLocal BindContext = iota
	BindDefine
	BindSyntax
	BindImport
)

func (ctx BindContext) restricted() bool {
	return ctx != BindLocal
}

func (ctx BindContext) localError(sym *LVal) *EvalError {
	switch ctx {
	case BindSyntax:
		return NewError(CondDefineSyntaxInLocalEnv, sym)
	case BindImport:
		return NewError(CondImportInLocalEnv, sym)
	default:
		return NewError(CondDefineInLocalEnv, sym)
	}
}

// ScopeKind describes the construct which created a frame.
type ScopeKind uint8

// ScopeKind constants
const (
	ScopeTop ScopeKind = iota
	ScopeLambda
	ScopeLet
	ScopeSyntax
	ScopeDelay
)

var scopeKindStrings = []string{
	ScopeTop:    "top-level",
	ScopeLambda: "lambda",
	ScopeLet:    "let",
	ScopeSyntax: "syntax",
	ScopeDelay:  "delay",
}

func (k ScopeKind) String() string {
	if int(k) >= len(scopeKindStrings) {
		return "unknown"
	}
	return scopeKindStrings[k]
}

// Env is a frame in a chain of lexical scopes.  The frame with no parent is
// the top-level frame of a compilation unit and holds its definitions and
// imports.
type Env struct {
	ID      uint
	Parent  *Env
	Scope   map[Ident]*Binding
	Kind    ScopeKind
	Phase   int
	Unit    *Unit
	Runtime *Runtime
	closed  bool
}

// NewEnv returns a top-level frame for a new compilation unit named name.
// The frame binds nothing, not even the core special forms.  See
// NewUserEnv.
func NewEnv(rt *Runtime, name *LVal) *Env {
	if rt == nil {
		rt = StandardRuntime()
	}
	env := &Env{
		ID:      rt.GenEnvID(),
		Scope:   make(map[Ident]*Binding),
		Kind:    ScopeTop,
		Runtime: rt,
	}
	env.Unit = newUnit(name, env)
	return env
}

func (env *Env) String() string {
	return fmt.Sprintf("env[%d %s %s]", env.ID, env.Kind, env.Unit.Key)
}

// IsTopLevel returns true if env is the top-level frame of its unit.
func (env *Env) IsTopLevel() bool {
	return env.Parent == nil
}

// Root returns the top-level frame of env's unit.
func (env *Env) Root() *Env {
	for env.Parent != nil {
		env = env.Parent
	}
	return env
}

// Child returns a new frame enclosed by env.  Frames for procedure bodies
// and delayed expressions are one evaluation phase deeper than env.
func (env *Env) Child(kind ScopeKind) *Env {
	phase := env.Phase
	if kind == ScopeLambda || kind == ScopeDelay {
		phase++
	}
	return &Env{
		ID:      env.Runtime.GenEnvID(),
		Parent:  env,
		Scope:   make(map[Ident]*Binding),
		Kind:    kind,
		Phase:   phase,
		Unit:    env.Unit,
		Runtime: env.Runtime,
	}
}

// Close marks env as finished.  Resolving an identifier through a closed
// frame is an out-of-scope error.
func (env *Env) Close() {
	env.closed = true
}

// Closed returns true if env has been closed.
func (env *Env) Closed() bool {
	return env.closed
}

// Classify returns the denotation of sym.  Frames are searched from env
// outward to the unit's top-level frame.  A renamed symbol without a binding
// of its own is classified as its base symbol in the environment where the
// macro which inserted it was defined.  If no binding is found Classify
// returns an unbound denotation and a nil error.
func (env *Env) Classify(sym *LVal) (*Binding, error) {
	b, frame := env.lookup(sym)
	if b == nil {
		return Unbound(sym), nil
	}
	if frame.closed {
		return nil, NewError(CondOutOfScope, sym)
	}
	return b, nil
}

// Get is like Classify but ignores closed frames and returns nil for unbound
// symbols.
func (env *Env) Get(sym *LVal) *Binding {
	b, _ := env.lookup(sym)
	return b
}

func (env *Env) lookup(sym *LVal) (*Binding, *Env) {
	for {
		id := sym.Ident()
		for e := env; e != nil; e = e.Parent {
			if b, ok := e.Scope[id]; ok {
				return b, e
			}
		}
		if sym.Mark == nil || sym.Mark.Env == nil {
			return nil, nil
		}
		env, sym = sym.Mark.Env, sym.Mark.Base
	}
}

// Bind binds sym to b in frame env.  Restricted contexts are only permitted
// in the top-level frame.  In the top-level frame an existing binding created
// by the same unit or library as b is updated in place, so references
// analyzed earlier see the new definition.  Replacing a binding that came
// from a different library is an erroneous redefinition.
func (env *Env) Bind(sym *LVal, b *Binding, ctx BindContext) error {
	if sym.Type != LSymbol {
		return NewError(CondMalformedDefinition, sym)
	}
	if ctx.restricted() && !env.IsTopLevel() {
		return ctx.localError(sym)
	}
	if b.Name == nil {
		b.Name = sym
	}
	if b.Origin == "" {
		b.Origin = env.Unit.Key
	}
	b.Phase = env.Phase
	id := sym.Ident()
	old, ok := env.Scope[id]
	if !ok || !env.IsTopLevel() {
		if b.ID == 0 {
			b.ID = env.Runtime.GenBindingID()
		}
		env.Scope[id] = b
		return nil
	}
	if old == b {
		return nil
	}
	if old.Origin != b.Origin {
		return NewError(CondErroneousRedefinition, sym, String(b.Origin))
	}
	if ctx == BindImport {
		env.Scope[id] = b
		return nil
	}
	old.Kind = b.Kind
	old.Special = b.Special
	old.Macro = b.Macro
	old.Primitive = b.Primitive
	return nil
}

// Define binds sym as a variable in the top-level frame of env's unit.
func (env *Env) Define(sym *LVal) (*Binding, error) {
	b := &Binding{Kind: DenVariable, Initialized: true}
	err := env.Bind(sym, b, BindDefine)
	if err != nil {
		return nil, err
	}
	return env.Scope[sym.Ident()], nil
}

// Symbols returns the identifiers bound directly in env, sorted by name.
func (env *Env) Symbols() []Ident {
	ids := make([]Ident, 0, len(env.Scope))
	for id := range env.Scope {
		ids = append(ids, id)
	}
	sortIdents(ids)
	return ids
}
