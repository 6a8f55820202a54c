// Copyright © 2018 The ELPS authors

package parser

import (
	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/parser/rdparser"
)

// NewReader returns a new lisp.Reader
func NewReader() lisp.Reader {
	return rdparser.NewReader()
}
