// Copyright © 2018 The ELPS authors

// Package lisplib is used to conveniently register the standard libraries
// with a runtime.
package lisplib

import (
	"github.com/luthersystems/schemex/lisp"
	"github.com/luthersystems/schemex/lisp/lisplib/libbase"
	"github.com/luthersystems/schemex/lisp/lisplib/libmath"
	"github.com/luthersystems/schemex/lisp/lisplib/libstring"
)

// loaders are ordered so that each library is registered after the
// libraries it imports.
var loaders = []func(*lisp.Runtime) error{
	libbase.LoadLibrary,
	libmath.LoadLibrary,
	libstring.LoadLibrary,
}

// LoadLibraries registers the standard libraries with rt.
func LoadLibraries(rt *lisp.Runtime) error {
	for _, load := range loaders {
		err := load(rt)
		if err != nil {
			return err
		}
	}
	return nil
}

// WithStandardLibraries returns a Config that registers the standard
// libraries.  The runtime's reader must be configured first.
func WithStandardLibraries() lisp.Config {
	return LoadLibraries
}

// NewUserEnv returns a user environment in a new runtime with the standard
// libraries registered.
func NewUserEnv(config ...lisp.Config) (*lisp.Env, error) {
	config = append(config, WithStandardLibraries())
	rt, err := lisp.NewRuntime(config...)
	if err != nil {
		return nil, err
	}
	return lisp.NewUserEnv(rt)
}
