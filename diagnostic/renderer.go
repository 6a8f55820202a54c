// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/muesli/reflow/ansi"
)

const tabWidth = 4

// Renderer formats diagnostics as annotated source snippets.
type Renderer struct {
	// Color controls ANSI color output. Default is ColorAuto.
	Color ColorMode

	// Sources holds source text which is not on disk, such as REPL input,
	// keyed by the file name in its locations.  Sources are consulted
	// before SourceReader.
	Sources map[string]string

	// SourceReader reads source file contents. If nil, os.ReadFile is used.
	SourceReader func(string) ([]byte, error)
}

// Render writes a single diagnostic to w.
func (r *Renderer) Render(w io.Writer, d Diagnostic) error {
	p := choosePalette(r.Color, fileFromWriter(w))
	bw := bufio.NewWriter(w)
	ew := &errWriter{w: bw}

	r.writeHeader(ew, d, p)
	for _, span := range d.Spans {
		r.writeSpan(ew, span, p)
	}
	for _, note := range d.Notes {
		ew.printf("   %s=%s note: %s\n", p.boldCyan, p.reset, note)
	}

	if ew.err != nil {
		return ew.err
	}
	return bw.Flush()
}

// RenderAll writes all diagnostics to w separated by blank lines.
func (r *Renderer) RenderAll(w io.Writer, diags []Diagnostic) error {
	for i, d := range diags {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := r.Render(w, d); err != nil {
			return err
		}
	}
	return nil
}

// errWriter captures the first write error and drops subsequent writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, a ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, a...)
}

func (ew *errWriter) print(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = io.WriteString(ew.w, s)
}

func (r *Renderer) writeHeader(ew *errWriter, d Diagnostic, p palette) {
	sevColor := p.boldRed
	switch d.Severity {
	case SeverityWarning:
		sevColor = p.yellow
	case SeverityNote:
		sevColor = p.boldCyan
	}
	label := d.Severity.String()
	if d.Code != "" {
		label += "[" + d.Code + "]"
	}
	ew.printf("%s%s%s%s: %s%s%s\n", sevColor, p.bold, label, p.reset, p.bold, d.Message, p.reset)
}

func (r *Renderer) writeSpan(ew *errWriter, span Span, p palette) {
	loc := span.File
	if span.Line > 0 {
		loc += ":" + strconv.Itoa(span.Line)
		if span.Col > 0 {
			loc += ":" + strconv.Itoa(span.Col)
		}
	}
	ew.printf("  %s-->%s %s\n", p.boldBlue, p.reset, loc)

	source, ok := r.sourceLine(span.File, span.Line)
	if !ok {
		ew.printf("   %s|%s\n", p.boldBlue, p.reset)
		return
	}

	lineStr := strconv.Itoa(span.Line)
	pad := strings.Repeat(" ", len(lineStr))
	ew.printf(" %s%s |%s\n", p.boldBlue, pad, p.reset)
	ew.printf(" %s%s |%s  %s\n", p.boldBlue, lineStr, p.reset, expandTabs(source))

	col := span.Col
	if col <= 0 {
		col = 1
	}
	endCol := span.EndCol
	if endCol <= 0 {
		endCol = detectEndCol(source, col)
	}
	if endCol < col {
		endCol = col
	}

	prefix := ""
	if col-1 <= len(source) {
		prefix = source[:col-1]
	}
	under := source
	if col-1 < len(source) {
		under = source[col-1:]
		if endCol <= len(source) {
			under = source[col-1 : endCol]
		}
	} else {
		under = " "
	}
	underPad := strings.Repeat(" ", displayWidth(prefix))
	underline := strings.Repeat("^", max(displayWidth(under), 1))

	ew.printf(" %s%s |%s  %s%s%s%s", p.boldBlue, pad, p.reset, underPad, p.boldRed, underline, p.reset)
	if span.Label != "" {
		ew.printf(" %s%s%s", p.boldRed, span.Label, p.reset)
	}
	ew.print("\n")
	ew.printf(" %s%s |%s\n", p.boldBlue, pad, p.reset)
}

func (r *Renderer) sourceLine(file string, line int) (string, bool) {
	if line <= 0 || file == "" {
		return "", false
	}
	var text string
	if src, ok := r.Sources[file]; ok {
		text = src
	} else {
		reader := r.SourceReader
		if reader == nil {
			reader = os.ReadFile
		}
		data, err := reader(file)
		if err != nil {
			return "", false
		}
		text = string(data)
	}
	lines := strings.Split(text, "\n")
	if line > len(lines) {
		return "", false
	}
	return strings.TrimSuffix(lines[line-1], "\r"), true
}

// detectEndCol returns the 1-based column of the last byte of the form
// starting at col.  A list is underlined through its closing parenthesis
// when that is on the same line and to the end of the line otherwise.
func detectEndCol(source string, col int) int {
	if col <= 0 || col > len(source) {
		return col
	}
	start := col - 1
	if strings.HasPrefix(source[start:], "#(") {
		start++
	}
	switch source[start] {
	case '(', '[':
		return matchClose(source, start)
	case '"':
		return matchQuote(source, start)
	}
	end := start
	for end < len(source) {
		ch, size := utf8.DecodeRuneInString(source[end:])
		if isDelimiter(ch) {
			break
		}
		end += size
	}
	if end == start {
		return col
	}
	return end
}

func isDelimiter(ch rune) bool {
	switch ch {
	case ' ', '\t', '(', ')', '[', ']', '"', ';':
		return true
	}
	return false
}

func matchClose(source string, open int) int {
	depth := 0
	for i := open; i < len(source); i++ {
		switch source[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		case '"':
			i = matchQuote(source, i) - 1
		case ';':
			return len(source)
		case '#':
			// character literals may name a bracket
			if i+2 < len(source) && source[i+1] == '\\' {
				i += 2
			}
		}
	}
	return len(source)
}

func matchQuote(source string, open int) int {
	for i := open + 1; i < len(source); i++ {
		switch source[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(source)
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}

// displayWidth returns the number of terminal cells s occupies, expanding
// tabs.
func displayWidth(s string) int {
	return ansi.PrintableRuneWidth(expandTabs(s))
}

// fileFromWriter extracts an *os.File from a writer for terminal detection.
func fileFromWriter(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
