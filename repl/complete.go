// Copyright © 2018 The ELPS authors

package repl

import (
	"sort"
	"strings"

	"github.com/luthersystems/schemex/lisp"
)

// symbolCompleter implements readline.AutoCompleter by enumerating the
// identifiers bound in the repl environment.
type symbolCompleter struct {
	env *lisp.Env
}

func (c *symbolCompleter) Do(line []rune, pos int) ([][]rune, int) {
	// Extract the word being typed (backwards from cursor to a delimiter).
	start := pos
	for start > 0 {
		ch := line[start-1]
		if ch == ' ' || ch == '\t' || ch == '(' || ch == '[' || ch == '\'' || ch == '`' || ch == ',' {
			break
		}
		start--
	}
	prefix := string(line[start:pos])
	if prefix == "" {
		return nil, 0
	}

	candidates := c.collectSymbols(prefix)
	if len(candidates) == 0 {
		return nil, 0
	}

	// Build completions: each entry is the suffix to append.
	result := make([][]rune, 0, len(candidates))
	for _, sym := range candidates {
		result = append(result, []rune(sym[len(prefix):]))
	}
	return result, len(prefix)
}

// collectSymbols returns the names visible in the environment which start
// with prefix.  Identifiers introduced by macro expansion are not
// accessible by name and are skipped.
func (c *symbolCompleter) collectSymbols(prefix string) []string {
	seen := make(map[string]bool)
	var result []string
	for env := c.env; env != nil; env = env.Parent {
		for _, id := range env.Symbols() {
			if id.Mark != nil || seen[id.Name] || !strings.HasPrefix(id.Name, prefix) {
				continue
			}
			seen[id.Name] = true
			result = append(result, id.Name)
		}
	}
	sort.Strings(result)
	return result
}
