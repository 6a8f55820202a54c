// Copyright © 2024 The ELPS authors

package formatter

import (
	"strings"

	"github.com/luthersystems/schemex/lisp"
)

type printer struct {
	buf strings.Builder
	cfg *Config
	col int // current column (0-indexed)
}

func newPrinter(cfg *Config) *printer {
	return &printer{cfg: cfg}
}

// fits returns true if s can be written at the current column.
func (p *printer) fits(s string) bool {
	return p.cfg.Width <= 0 || (!strings.Contains(s, "\n") && p.col+len(s) <= p.cfg.Width)
}

// writeExpr writes v starting at the current column.  Continuation lines are
// indented relative to the column v starts at.
func (p *printer) writeExpr(v *lisp.LVal) {
	flat := v.String()
	if p.fits(flat) {
		p.writeString(flat)
		return
	}
	switch v.Type {
	case lisp.LSExpr:
		if v.IsNil() {
			p.writeString(flat)
			return
		}
		if abbrev, ok := lisp.Abbreviation(v); ok {
			p.writeString(abbrev)
			p.writeExpr(v.Cells[1])
			return
		}
		p.writeList(v)
	case lisp.LVector:
		p.writeVector(v)
	default:
		p.writeString(flat)
	}
}

// writeList writes a list which does not fit on the current line.
func (p *printer) writeList(v *lisp.LVal) {
	bracketCol := p.col
	p.writeString("(")
	head := v.Cells[0]
	p.writeExpr(head)

	// Data lists (a binding list or a cond clause) align elements just
	// inside the bracket.
	rule := &IndentRule{Style: IndentAlign}
	firstArgCol := p.col + 1
	if head.Type == lisp.LSymbol {
		rule = p.cfg.RuleFor(head.Str)
		if rule.Style == IndentSpecial && head.Str == "let" && len(v.Cells) > 2 && v.Cells[1].Type == lisp.LSymbol {
			// named let
			rule = &IndentRule{Style: IndentSpecial, HeaderArgs: 2}
		}
	} else {
		firstArgCol = bracketCol + 1
	}

	for i := 1; i < len(v.Cells); i++ {
		child := v.Cells[i]
		if p.sameLine(rule, i, head.Type == lisp.LSymbol) {
			p.writeString(" ")
		} else {
			p.newline(p.childIndent(rule, i, firstArgCol, bracketCol))
		}
		p.writeExpr(child)
	}
	if v.Tail != nil {
		p.newline(p.childIndent(rule, len(v.Cells), firstArgCol, bracketCol))
		p.writeString(". ")
		p.writeExpr(v.Tail)
	}
	p.writeString(")")
}

func (p *printer) writeVector(v *lisp.LVal) {
	p.writeString("#(")
	openCol := p.col
	for i, child := range v.Cells {
		if i > 0 {
			p.newline(openCol)
		}
		p.writeExpr(child)
	}
	p.writeString(")")
}

// sameLine returns true if child i of a broken list stays on the line of
// the previous child.
func (p *printer) sameLine(rule *IndentRule, i int, isCall bool) bool {
	if !isCall {
		return false
	}
	switch rule.Style {
	case IndentSpecial:
		return i <= rule.HeaderArgs
	case IndentAlign:
		return i == 1
	default:
		return false
	}
}

// childIndent determines the indentation for child at index i.
func (p *printer) childIndent(rule *IndentRule, i int, firstArgCol int, bracketCol int) int {
	switch rule.Style {
	case IndentBody, IndentSpecial:
		return bracketCol + p.cfg.IndentSize
	default: // IndentAlign
		return firstArgCol
	}
}

// writeString writes a string, updating column tracking.
func (p *printer) writeString(s string) {
	p.buf.WriteString(s)
	if idx := strings.LastIndex(s, "\n"); idx >= 0 {
		p.col = len(s) - idx - 1
	} else {
		p.col += len(s)
	}
}

// newline writes a newline and indents the next line to col.
func (p *printer) newline(col int) {
	p.buf.WriteByte('\n')
	p.buf.WriteString(strings.Repeat(" ", col))
	p.col = col
}
