// Copyright © 2018 The ELPS authors

package lisp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/luthersystems/schemex/parser/token"
)

// ErrorCategory groups related error kinds.
type ErrorCategory uint

// ErrorCategory constants
const (
	SyntaxErrors ErrorCategory = iota
	ScopeErrors
	MacroErrors
	LibraryErrors
)

func (c ErrorCategory) String() string {
	switch c {
	case SyntaxErrors:
		return "syntax"
	case ScopeErrors:
		return "scope"
	case MacroErrors:
		return "macro"
	case LibraryErrors:
		return "library"
	default:
		return "unknown"
	}
}

// ErrorKind identifies a compile-time failure.  The set of kinds is closed.
type ErrorKind uint

// Syntax errors
const (
	CondIllegalFormalParameter ErrorKind = iota
	CondIllegalFormalRestParameter
	CondMalformedCaseLambda
	CondMalformedArgumentList
	CondMalformedDefinition
	CondMalformedBinding
	CondMalformedBindings
	CondMalformedTest
	CondMalformedCondClause
	CondMalformedCondExpandClause
	CondMalformedCaseClause
	CondDuplicateBinding
	CondNonApplicativeValue
	CondArgumentError
	CondMalformedSpecialForm

	// Scope errors
	CondIllegalKeywordUsage
	CondUnboundVariable
	CondVariableNotYetInitialized
	CondOutOfScope
	CondDefineInLocalEnv
	CondImportInLocalEnv
	CondDefineSyntaxInLocalEnv

	// Macro errors
	CondMalformedTransformer
	CondMalformedSyntaxRule
	CondMalformedPatternInSyntaxRule
	CondMalformedSyntaxRulePattern
	CondMalformedSyntaxRuleLiterals
	CondInvalidContextInQuasiquote
	CondMacroMismatchedRepetitionPatterns
	CondNoExpansion
	CondExpansionDepthExceeded

	// Library errors
	CondImportInLibrary
	CondMalformedImportSet
	CondErroneousRedefinition
	CondCannotExpandImportSet
	CondMalformedLibraryDefinition
	CondMalformedLibraryName
	CondUninitializedExports
	CondUnknownLibrary
	CondCannotOpenFile

	numErrorKinds
)

type errorKindInfo struct {
	category  ErrorCategory
	condition string
	template  string
}

var errorKinds = [numErrorKinds]errorKindInfo{
	CondIllegalFormalParameter:     {SyntaxErrors, "illegal-formal-parameter", "illegal formal parameter: $0"},
	CondIllegalFormalRestParameter: {SyntaxErrors, "illegal-formal-rest-parameter", "illegal formal rest parameter: $0"},
	CondMalformedCaseLambda:        {SyntaxErrors, "malformed-case-lambda", "malformed lambda case list: $0"},
	CondMalformedArgumentList:      {SyntaxErrors, "malformed-argument-list", "malformed argument list: $0"},
	CondMalformedDefinition:        {SyntaxErrors, "malformed-definition", "malformed definition: $0"},
	CondMalformedBinding:           {SyntaxErrors, "malformed-binding", "malformed binding $0 in $1"},
	CondMalformedBindings:          {SyntaxErrors, "malformed-bindings", "malformed list of bindings: $0"},
	CondMalformedTest:              {SyntaxErrors, "malformed-test", "malformed test expression: $0"},
	CondMalformedCondClause:        {SyntaxErrors, "malformed-cond-clause", "malformed clause in cond form: $0"},
	CondMalformedCondExpandClause:  {SyntaxErrors, "malformed-cond-expand-clause", "malformed clause in cond-expand form: $0"},
	CondMalformedCaseClause:        {SyntaxErrors, "malformed-case-clause", "malformed clause in case form: $0"},
	CondDuplicateBinding:           {SyntaxErrors, "duplicate-binding", "symbol $0 bound multiple times in $1"},
	CondNonApplicativeValue:        {SyntaxErrors, "non-applicative-value", "cannot apply arguments to $0"},
	CondArgumentError:              {SyntaxErrors, "argument-error", "wrong number of arguments for $0: $1"},
	CondMalformedSpecialForm:       {SyntaxErrors, "malformed-special-form", "malformed $0 form: $1"},

	CondIllegalKeywordUsage:       {ScopeErrors, "illegal-keyword-usage", "illegal usage of syntactic keyword as expression: $0"},
	CondUnboundVariable:           {ScopeErrors, "unbound-variable", "unbound variable: $0"},
	CondVariableNotYetInitialized: {ScopeErrors, "variable-not-yet-initialized", "variable not yet initialized: $0"},
	CondOutOfScope:                {ScopeErrors, "out-of-scope", "out of scope evaluation of $0"},
	CondDefineInLocalEnv:          {ScopeErrors, "define-in-local-env", "definition of $0 in local environment"},
	CondImportInLocalEnv:          {ScopeErrors, "import-in-local-env", "import of $0 in local environment"},
	CondDefineSyntaxInLocalEnv:    {ScopeErrors, "define-syntax-in-local-env", "syntax definition of $0 in local environment"},

	CondMalformedTransformer:              {MacroErrors, "malformed-transformer", "malformed transformer: $0"},
	CondMalformedSyntaxRule:               {MacroErrors, "malformed-syntax-rule", "not a valid syntax rule: $0"},
	CondMalformedPatternInSyntaxRule:      {MacroErrors, "malformed-pattern-in-syntax-rule", "illegal pattern $0 in syntax rule pattern: $1"},
	CondMalformedSyntaxRulePattern:        {MacroErrors, "malformed-syntax-rule-pattern", "malformed syntax rule pattern: $0"},
	CondMalformedSyntaxRuleLiterals:       {MacroErrors, "malformed-syntax-rule-literals", "malformed list of syntax rule literals: $0"},
	CondInvalidContextInQuasiquote:        {MacroErrors, "invalid-context-in-quasiquote", "usage of $0 in invalid context within quasiquote: $1"},
	CondMacroMismatchedRepetitionPatterns: {MacroErrors, "macro-mismatched-repetition-patterns", "macro could not be expanded; mismatched repetition patterns: $0"},
	CondNoExpansion:                       {MacroErrors, "no-expansion", "no expansion for $0"},
	CondExpansionDepthExceeded:            {MacroErrors, "expansion-depth-exceeded", "maximum macro expansion depth $0 exceeded expanding $1"},

	CondImportInLibrary:            {LibraryErrors, "import-in-library", "illegal import in library $,0"},
	CondMalformedImportSet:         {LibraryErrors, "malformed-import-set", "malformed import set: $0"},
	CondErroneousRedefinition:      {LibraryErrors, "erroneous-redefinition", "attempted to redefine $0 with definition from $,1"},
	CondCannotExpandImportSet:      {LibraryErrors, "cannot-expand-import-set", "cannot expand import set $0"},
	CondMalformedLibraryDefinition: {LibraryErrors, "malformed-library-definition", "malformed library definition: $0"},
	CondMalformedLibraryName:       {LibraryErrors, "malformed-library-name", "malformed library name: $,0"},
	CondUninitializedExports:       {LibraryErrors, "uninitialized-exports", "library $1 does not initialize the exported definitions $,0"},
	CondUnknownLibrary:             {LibraryErrors, "unknown-library", "unknown library $,0"},
	CondCannotOpenFile:             {LibraryErrors, "cannot-open-file", "cannot open file: $,0"},
}

// ErrorKinds returns every error kind in declaration order.
func ErrorKinds() []ErrorKind {
	kinds := make([]ErrorKind, numErrorKinds)
	for i := range kinds {
		kinds[i] = ErrorKind(i)
	}
	return kinds
}

func (k ErrorKind) info() errorKindInfo {
	if k >= numErrorKinds {
		return errorKindInfo{condition: "unknown-error", template: "unknown error"}
	}
	return errorKinds[k]
}

// Condition returns the kebab-case name of k.
func (k ErrorKind) Condition() string {
	return k.info().condition
}

// Category returns the group k belongs to.
func (k ErrorKind) Category() ErrorCategory {
	return k.info().category
}

// Template returns the message template of k.  A placeholder $n is replaced
// by the raw rendering of the n-th irritant and $,n by its deep rendering.
func (k ErrorKind) Template() string {
	return k.info().template
}

func (k ErrorKind) String() string {
	return k.Condition()
}

// Renderer converts error irritants to text.
type Renderer interface {
	// Raw renders v as it would be written by the reader.
	Raw(v *LVal) string
	// Deep renders v for presentation.  Strings appear without quotes.
	Deep(v *LVal) string
}

type defaultRenderer struct{}

// DefaultRenderer is used by EvalError.Error.
var DefaultRenderer Renderer = defaultRenderer{}

func (defaultRenderer) Raw(v *LVal) string {
	return v.String()
}

func (defaultRenderer) Deep(v *LVal) string {
	if v.Type == LString {
		return v.Str
	}
	return v.String()
}

// EvalError is a compile-time failure.  An EvalError carries only the forms
// needed to render its message.
type EvalError struct {
	Kind      ErrorKind
	Irritants []*LVal
	Source    *token.Location
}

// NewError returns an EvalError of the given kind.  The error's source is taken
// from the first irritant that has one.  Irritants are stored with their
// hygiene marks removed, so an error holds no environment.
func NewError(kind ErrorKind, irritants ...*LVal) *EvalError {
	err := &EvalError{
		Kind:      kind,
		Irritants: make([]*LVal, len(irritants)),
	}
	for i, v := range irritants {
		if v == nil {
			continue
		}
		err.Irritants[i] = Strip(v)
		if err.Source == nil && !v.Source.Native() {
			err.Source = v.Source
		}
	}
	return err
}

// At returns err after setting its source location, if loc is known and err
// does not yet have one.
func (err *EvalError) At(loc *token.Location) *EvalError {
	if err.Source.Native() && !loc.Native() {
		err.Source = loc
	}
	return err
}

// Condition returns the kebab-case name of the error's kind.
func (err *EvalError) Condition() string {
	return err.Kind.Condition()
}

// Message renders the error message using DefaultRenderer.
func (err *EvalError) Message() string {
	return err.Render(DefaultRenderer)
}

// Error implements the error interface.
func (err *EvalError) Error() string {
	msg := err.Message()
	if err.Source.Native() {
		return fmt.Sprintf("%s: %s", err.Condition(), msg)
	}
	return fmt.Sprintf("%s: %s: %s", err.Source, err.Condition(), msg)
}

// Render substitutes the error's irritants into its message template using r.
// Placeholders referring to missing irritants are left in place.
func (err *EvalError) Render(r Renderer) string {
	tmpl := err.Kind.Template()
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '$' || i+1 >= len(tmpl) {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		deep := false
		if tmpl[j] == ',' {
			deep = true
			j++
		}
		k := j
		for k < len(tmpl) && '0' <= tmpl[k] && tmpl[k] <= '9' {
			k++
		}
		if k == j {
			b.WriteByte(c)
			continue
		}
		n, _ := strconv.Atoi(tmpl[j:k])
		if n >= len(err.Irritants) || err.Irritants[n] == nil {
			b.WriteString(tmpl[i:k])
			i = k - 1
			continue
		}
		if deep {
			b.WriteString(r.Deep(err.Irritants[n]))
		} else {
			b.WriteString(r.Raw(err.Irritants[n]))
		}
		i = k - 1
	}
	return b.String()
}
