// Copyright © 2018 The ELPS authors

package lisp

// SyntaxRules is a macro transformer defined by syntax-rules.  Rules are
// validated when the transformer is defined so a malformed rule is reported
// at its definition rather than at a use.
type SyntaxRules struct {
	// Name is the keyword the transformer was first bound to, if any.
	Name *LVal
	// Ellipsis is the ellipsis identifier, or nil when an ellipsis literal
	// disabled repetition.
	Ellipsis *LVal
	Literals []*LVal
	Rules    []*SyntaxRule
	// Env is the environment of the definition.  Identifiers inserted by
	// an expansion are resolved there.
	Env  *Env
	Form *LVal

	// custom is true if the ellipsis was named explicitly and is compared
	// by identity rather than by name.
	custom bool
}

// SyntaxRule is one pattern and template pair.
type SyntaxRule struct {
	Pattern  *LVal
	Template *LVal
	// vars maps each pattern variable to the number of ellipses following
	// it in the pattern.
	vars map[Ident]int
	// groups are the sets of repeated variables which drive each ellipsis
	// at the top level of the template.
	groups [][]Ident
}

// ParseSyntaxRules validates the syntax-rules form spec defined in env.
func ParseSyntaxRules(spec *LVal, env *Env, name *LVal) (*SyntaxRules, error) {
	if !spec.IsList() || len(spec.Cells) < 2 {
		return nil, NewError(CondMalformedTransformer, spec)
	}
	sr := &SyntaxRules{
		Name:     name,
		Ellipsis: Symbol("..."),
		Env:      env,
		Form:     spec,
	}
	rest := spec.Cells[1:]
	if rest[0].Type == LSymbol {
		sr.Ellipsis = rest[0]
		sr.custom = true
		rest = rest[1:]
		if len(rest) == 0 {
			return nil, NewError(CondMalformedTransformer, spec)
		}
	}
	lits := rest[0]
	if !lits.IsList() {
		return nil, NewError(CondMalformedSyntaxRuleLiterals, lits).At(spec.Source)
	}
	for _, lit := range lits.Cells {
		if lit.Type != LSymbol {
			return nil, NewError(CondMalformedSyntaxRuleLiterals, lits).At(spec.Source)
		}
		sr.Literals = append(sr.Literals, lit)
	}
	for _, lit := range sr.Literals {
		if sr.isEllipsis(lit) {
			sr.Ellipsis = nil
			break
		}
	}
	for _, rule := range rest[1:] {
		r, err := sr.parseRule(rule)
		if err != nil {
			return nil, err
		}
		sr.Rules = append(sr.Rules, r)
	}
	return sr, nil
}

func (sr *SyntaxRules) String() string {
	if sr.Name == nil {
		return "#<syntax-rules>"
	}
	return "#<syntax-rules " + sr.Name.Str + ">"
}

func (sr *SyntaxRules) isEllipsis(v *LVal) bool {
	if sr.Ellipsis == nil || v.Type != LSymbol {
		return false
	}
	if sr.custom {
		return v.Ident() == sr.Ellipsis.Ident()
	}
	return v.Str == "..."
}

func (sr *SyntaxRules) isLiteral(v *LVal) bool {
	if v.Type != LSymbol {
		return false
	}
	for _, lit := range sr.Literals {
		if lit.Ident() == v.Ident() {
			return true
		}
	}
	return false
}

func (sr *SyntaxRules) isWildcard(v *LVal) bool {
	return v.Type == LSymbol && v.Str == "_" && !sr.isLiteral(v)
}

// isVariable returns true if v is a pattern variable of p.
func (sr *SyntaxRules) isVariable(v *LVal) bool {
	return v.Type == LSymbol && !sr.isEllipsis(v) && !sr.isLiteral(v) && !sr.isWildcard(v)
}

func (sr *SyntaxRules) parseRule(rule *LVal) (*SyntaxRule, error) {
	if !rule.IsList() || len(rule.Cells) != 2 {
		return nil, NewError(CondMalformedSyntaxRule, rule)
	}
	pattern, template := rule.Cells[0], rule.Cells[1]
	if !pattern.IsPair() {
		return nil, NewError(CondMalformedSyntaxRulePattern, pattern).At(rule.Source)
	}
	if pattern.Cells[0].Type != LSymbol {
		return nil, NewError(CondMalformedSyntaxRulePattern, pattern).At(rule.Source)
	}
	r := &SyntaxRule{
		Pattern:  pattern,
		Template: template,
		vars:     make(map[Ident]int),
	}
	// the keyword position is ignored
	err := sr.collectVars(pattern.Rest(), 0, r.vars, pattern)
	if err != nil {
		return nil, err
	}
	err = sr.checkTemplate(template, 0, false, r, rule)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// collectVars records the pattern variables of p with their ellipsis depth.
func (sr *SyntaxRules) collectVars(p *LVal, depth int, vars map[Ident]int, whole *LVal) error {
	switch p.Type {
	case LSymbol:
		if sr.isEllipsis(p) {
			return NewError(CondMalformedPatternInSyntaxRule, p, whole)
		}
		if !sr.isVariable(p) {
			return nil
		}
		if _, ok := vars[p.Ident()]; ok {
			return NewError(CondDuplicateBinding, p, whole)
		}
		vars[p.Ident()] = depth
		return nil
	case LSExpr, LVector:
		seen := false
		for i, c := range p.Cells {
			if sr.isEllipsis(c) {
				if i == 0 || seen {
					return NewError(CondMalformedPatternInSyntaxRule, c, whole)
				}
				seen = true
				continue
			}
			d := depth
			if i+1 < len(p.Cells) && sr.isEllipsis(p.Cells[i+1]) {
				d++
			}
			err := sr.collectVars(c, d, vars, whole)
			if err != nil {
				return err
			}
		}
		if p.Tail != nil {
			if sr.isEllipsis(p.Tail) {
				return NewError(CondMalformedPatternInSyntaxRule, p.Tail, whole)
			}
			return sr.collectVars(p.Tail, depth, vars, whole)
		}
	}
	return nil
}

// checkTemplate verifies that every pattern variable in t is followed by at
// least as many ellipses as in the pattern, and that a run of k ellipses
// follows a subtemplate containing a variable repeated at least k more times.
// Shallower variables in the subtemplate are replicated.
func (sr *SyntaxRules) checkTemplate(t *LVal, depth int, escaped bool, r *SyntaxRule, rule *LVal) error {
	switch t.Type {
	case LSymbol:
		if d, ok := r.vars[t.Ident()]; ok && d > depth {
			return NewError(CondMalformedSyntaxRule, rule)
		}
		return nil
	case LSExpr, LVector:
		if !escaped && t.Type == LSExpr && len(t.Cells) == 2 && t.Tail == nil && sr.isEllipsis(t.Cells[0]) {
			return sr.checkTemplate(t.Cells[1], depth, true, r, rule)
		}
		for i := 0; i < len(t.Cells); i++ {
			c := t.Cells[i]
			if !escaped && sr.isEllipsis(c) {
				return NewError(CondMalformedSyntaxRule, rule)
			}
			k := 0
			for !escaped && i+1+k < len(t.Cells) && sr.isEllipsis(t.Cells[i+1+k]) {
				k++
			}
			if k > 0 {
				if len(r.repeated(c, depth+k-1)) == 0 {
					return NewError(CondMalformedSyntaxRule, rule)
				}
				if depth == 0 {
					r.groups = append(r.groups, r.repeated(c, depth))
				}
			}
			err := sr.checkTemplate(c, depth+k, escaped, r, rule)
			if err != nil {
				return err
			}
			i += k
		}
		if t.Tail != nil {
			if !escaped && sr.isEllipsis(t.Tail) {
				return NewError(CondMalformedSyntaxRule, rule)
			}
			return sr.checkTemplate(t.Tail, depth, escaped, r, rule)
		}
	}
	return nil
}

// repeated returns the pattern variables in t which are repeated more than
// depth times.  The variables are returned in order of first occurrence.
func (r *SyntaxRule) repeated(t *LVal, depth int) []Ident {
	var ids []Ident
	seen := make(map[Ident]bool)
	var walk func(v *LVal)
	walk = func(v *LVal) {
		switch v.Type {
		case LSymbol:
			id := v.Ident()
			if d, ok := r.vars[id]; ok && d > depth && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		case LSExpr, LVector:
			for _, c := range v.Cells {
				walk(c)
			}
			if v.Tail != nil {
				walk(v.Tail)
			}
		}
	}
	walk(t)
	return ids
}

// Expand rewrites the macro use form, which occurs in env, using the first
// rule whose pattern matches.
func (sr *SyntaxRules) Expand(form *LVal, env *Env) (*LVal, error) {
	input := form.Rest()
	for _, r := range sr.Rules {
		b := make(bindings)
		ok := sr.match(r.Pattern.Rest(), input, env, b)
		if !ok {
			continue
		}
		for _, group := range r.groups {
			if !b.sameLength(group) {
				return nil, NewError(CondMacroMismatchedRepetitionPatterns, form)
			}
		}
		x := &expansion{
			sr:    sr,
			form:  form,
			marks: make(map[Ident]*Mark),
		}
		return x.instantiate(r.Template, b, false)
	}
	return nil, NewError(CondNoExpansion, form)
}
