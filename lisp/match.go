// Copyright © 2018 The ELPS authors

package lisp

// matched is the form bound to a pattern variable.  A variable followed by
// ellipses in the pattern is bound to a sequence with one entry per
// repetition.
type matched struct {
	form *LVal
	seq  []*matched
	rep  bool
}

type bindings map[Ident]*matched

// sameLength returns true if the repeated variables in group matched the
// same number of times.
func (b bindings) sameLength(group []Ident) bool {
	n := -1
	for _, id := range group {
		m, ok := b[id]
		if !ok || !m.rep {
			continue
		}
		if n < 0 {
			n = len(m.seq)
		} else if len(m.seq) != n {
			return false
		}
	}
	return true
}

// match matches input form f, which occurs in env, against pattern p.
func (sr *SyntaxRules) match(p, f *LVal, env *Env, b bindings) bool {
	switch p.Type {
	case LSymbol:
		switch {
		case sr.isLiteral(p):
			return f.Type == LSymbol && sr.sameBinding(p, f, env)
		case sr.isWildcard(p):
			return true
		}
		b[p.Ident()] = &matched{form: f}
		return true
	case LSExpr:
		if f.Type != LSExpr {
			if p.Tail == nil || sr.ellipsisIndex(p.Cells) < 0 {
				return false
			}
			// (x ... . r) matches an atom with no repetitions
			return sr.matchSeq(p.Cells, p.Tail, nil, f, env, b)
		}
		return sr.matchSeq(p.Cells, p.Tail, f.Cells, f.Tail, env, b)
	case LVector:
		if f.Type != LVector {
			return false
		}
		return sr.matchSeq(p.Cells, nil, f.Cells, nil, env, b)
	default:
		return Equal(p, f)
	}
}

func (sr *SyntaxRules) ellipsisIndex(cells []*LVal) int {
	for i := 0; i+1 < len(cells); i++ {
		if sr.isEllipsis(cells[i+1]) {
			return i
		}
	}
	return -1
}

// matchSeq matches the elements fc and tail ft of a list or vector against
// pattern elements pc and tail pt.  Elements after a repeated subpattern are
// reserved before repetitions are consumed.
func (sr *SyntaxRules) matchSeq(pc []*LVal, pt *LVal, fc []*LVal, ft *LVal, env *Env, b bindings) bool {
	k := sr.ellipsisIndex(pc)
	if k < 0 {
		if len(fc) < len(pc) {
			return false
		}
		for i := range pc {
			if !sr.match(pc[i], fc[i], env, b) {
				return false
			}
		}
		if pt == nil {
			return len(fc) == len(pc) && ft == nil
		}
		return sr.match(pt, remainder(fc[len(pc):], ft), env, b)
	}
	before, rep, after := pc[:k], pc[k], pc[k+2:]
	min := len(before) + len(after)
	if len(fc) < min || (pt == nil && ft != nil) {
		return false
	}
	for i := range before {
		if !sr.match(before[i], fc[i], env, b) {
			return false
		}
	}
	n := len(fc) - min
	vars := sr.patternVars(rep)
	seqs := make(map[Ident][]*matched, len(vars))
	for i := 0; i < n; i++ {
		sub := make(bindings, len(vars))
		if !sr.match(rep, fc[k+i], env, sub) {
			return false
		}
		for _, id := range vars {
			seqs[id] = append(seqs[id], sub[id])
		}
	}
	for _, id := range vars {
		b[id] = &matched{seq: seqs[id], rep: true}
	}
	for j := range after {
		if !sr.match(after[j], fc[k+n+j], env, b) {
			return false
		}
	}
	if pt != nil {
		if ft == nil {
			return sr.match(pt, Nil(), env, b)
		}
		return sr.match(pt, ft, env, b)
	}
	return true
}

func remainder(cells []*LVal, tail *LVal) *LVal {
	if len(cells) == 0 && tail == nil {
		return Nil()
	}
	return DottedList(cells, tail)
}

// patternVars returns the pattern variables of p in order of occurrence.
func (sr *SyntaxRules) patternVars(p *LVal) []Ident {
	var ids []Ident
	var walk func(v *LVal)
	walk = func(v *LVal) {
		switch v.Type {
		case LSymbol:
			if sr.isVariable(v) {
				ids = append(ids, v.Ident())
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
	walk(p)
	return ids
}

// sameBinding compares a literal identifier of the macro with an input
// identifier.  They match when both denote the same binding, or when both
// are unbound and have the same name.
func (sr *SyntaxRules) sameBinding(lit, input *LVal, env *Env) bool {
	lb := sr.Env.Get(lit)
	ib := env.Get(input)
	if lb == nil && ib == nil {
		return lit.Str == input.Str
	}
	return lb == ib
}
