// Copyright © 2024 The ELPS authors

package formatter

import "strings"

// IndentStyle determines how arguments in a list are indented when the list
// does not fit on one line.
type IndentStyle int

const (
	// IndentAlign indents subsequent lines to align with the first argument.
	IndentAlign IndentStyle = iota
	// IndentBody indents all subforms at bracket column + indent size.
	IndentBody
	// IndentSpecial keeps N header args on the first line, rest at bracket + indent size.
	IndentSpecial
)

// IndentRule specifies the indentation behavior for a particular form.
type IndentRule struct {
	Style      IndentStyle
	HeaderArgs int // for IndentSpecial: args before the "body"
}

// Config holds formatting configuration.
type Config struct {
	IndentSize int                    // spaces per indent level (default: 2)
	Width      int                    // preferred maximum line width (default: 80)
	Rules      map[string]*IndentRule // form name -> rule
}

// DefaultConfig returns the default formatting configuration.
func DefaultConfig() *Config {
	return &Config{
		IndentSize: 2,
		Width:      80,
		Rules:      DefaultRules(),
	}
}

// DefaultRules returns the default indent rules table.
func DefaultRules() map[string]*IndentRule {
	return map[string]*IndentRule{
		// 1 header arg + body
		"define":         {Style: IndentSpecial, HeaderArgs: 1},
		"define-syntax":  {Style: IndentSpecial, HeaderArgs: 1},
		"define-library": {Style: IndentSpecial, HeaderArgs: 1},
		"lambda":         {Style: IndentSpecial, HeaderArgs: 1},
		"let":            {Style: IndentSpecial, HeaderArgs: 1},
		"let*":           {Style: IndentSpecial, HeaderArgs: 1},
		"letrec":         {Style: IndentSpecial, HeaderArgs: 1},
		"letrec*":        {Style: IndentSpecial, HeaderArgs: 1},
		"let-syntax":     {Style: IndentSpecial, HeaderArgs: 1},
		"letrec-syntax":  {Style: IndentSpecial, HeaderArgs: 1},
		"syntax-rules":   {Style: IndentSpecial, HeaderArgs: 1},
		"when":           {Style: IndentSpecial, HeaderArgs: 1},
		"unless":         {Style: IndentSpecial, HeaderArgs: 1},
		"case":           {Style: IndentSpecial, HeaderArgs: 1},

		// 2 header args + body
		"do": {Style: IndentSpecial, HeaderArgs: 2},

		// all body
		"begin":        {Style: IndentBody},
		"cond":         {Style: IndentBody},
		"case-lambda":  {Style: IndentBody},
		"cond-expand":  {Style: IndentBody},
		"import":       {Style: IndentBody},
		"export":       {Style: IndentBody},
		"quasiquote":   {Style: IndentBody},
		"unquote":      {Style: IndentBody},
		"syntax-error": {Style: IndentBody},
	}
}

// RuleFor returns the indent rule for the given form name.
// If no specific rule exists, returns the default first-arg alignment rule.
// Forms starting with "define-" get define-style indent (1 header arg +
// body), which covers user definition macros like define-record-type.
func (c *Config) RuleFor(name string) *IndentRule {
	if r, ok := c.Rules[name]; ok {
		return r
	}
	if strings.HasPrefix(name, "define-") {
		return &IndentRule{Style: IndentSpecial, HeaderArgs: 1}
	}
	return &IndentRule{Style: IndentAlign}
}
