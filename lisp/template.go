// Copyright © 2018 The ELPS authors

package lisp

// expansion instantiates one template.  Every identifier the template
// inserts is renamed with a mark shared by all occurrences of the identifier
// in this expansion and no other.
type expansion struct {
	sr    *SyntaxRules
	form  *LVal
	marks map[Ident]*Mark
}

func (x *expansion) rename(sym *LVal) *LVal {
	id := sym.Ident()
	m, ok := x.marks[id]
	if !ok {
		m = &Mark{
			ID:   x.sr.Env.Runtime.GenMarkID(),
			Base: sym,
			Env:  x.sr.Env,
		}
		x.marks[id] = m
	}
	return Rename(sym, m)
}

func (x *expansion) instantiate(t *LVal, b bindings, escaped bool) (*LVal, error) {
	switch t.Type {
	case LSymbol:
		if m, ok := b[t.Ident()]; ok {
			if m.rep {
				return nil, NewError(CondMalformedSyntaxRule, t)
			}
			return m.form, nil
		}
		return x.rename(t), nil
	case LSExpr, LVector:
		sr := x.sr
		if !escaped && t.Type == LSExpr && len(t.Cells) == 2 && t.Tail == nil && sr.isEllipsis(t.Cells[0]) {
			return x.instantiate(t.Cells[1], b, true)
		}
		cells := make([]*LVal, 0, len(t.Cells))
		for i := 0; i < len(t.Cells); i++ {
			c := t.Cells[i]
			k := 0
			for !escaped && i+1+k < len(t.Cells) && sr.isEllipsis(t.Cells[i+1+k]) {
				k++
			}
			if k == 0 {
				v, err := x.instantiate(c, b, escaped)
				if err != nil {
					return nil, err
				}
				cells = append(cells, v)
				continue
			}
			vals, err := x.repeat(c, b, k)
			if err != nil {
				return nil, err
			}
			cells = append(cells, vals...)
			i += k
		}
		var out *LVal
		if t.Type == LVector {
			out = Vector(cells)
		} else {
			var tail *LVal
			if t.Tail != nil {
				var err error
				tail, err = x.instantiate(t.Tail, b, escaped)
				if err != nil {
					return nil, err
				}
			}
			out = DottedList(cells, tail)
			if out.Type != LSExpr {
				return out, nil
			}
		}
		out.Source = t.Source
		return out, nil
	default:
		return t, nil
	}
}

// repeat instantiates t once for each repetition of the repeated variables
// it contains, k levels deep.
func (x *expansion) repeat(t *LVal, b bindings, k int) ([]*LVal, error) {
	var vars []Ident
	for _, id := range templateVars(t) {
		if m, ok := b[id]; ok && m.rep {
			vars = append(vars, id)
		}
	}
	if len(vars) == 0 {
		return nil, NewError(CondMalformedSyntaxRule, t)
	}
	n := len(b[vars[0]].seq)
	for _, id := range vars[1:] {
		if len(b[id].seq) != n {
			return nil, NewError(CondMacroMismatchedRepetitionPatterns, x.form)
		}
	}
	var out []*LVal
	for j := 0; j < n; j++ {
		sub := make(bindings, len(b))
		for id, m := range b {
			sub[id] = m
		}
		for _, id := range vars {
			sub[id] = b[id].seq[j]
		}
		if k > 1 {
			vals, err := x.repeat(t, sub, k-1)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
			continue
		}
		v, err := x.instantiate(t, sub, false)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// templateVars returns the symbols of t in order of first occurrence.
func templateVars(t *LVal) []Ident {
	var ids []Ident
	seen := make(map[Ident]bool)
	var walk func(v *LVal)
	walk = func(v *LVal) {
		switch v.Type {
		case LSymbol:
			if id := v.Ident(); !seen[id] {
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
