// Copyright © 2018 The ELPS authors

package lisp

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Config is a function that configures a Runtime.
type Config func(rt *Runtime) error

// WithMaxExpansionDepth returns a Config that bounds the number of nested
// macro expansions to n.  Exceeding the bound is an expansion-depth-exceeded
// error.
func WithMaxExpansionDepth(n int) Config {
	return func(rt *Runtime) error {
		if n <= 0 {
			return fmt.Errorf("invalid maximum expansion depth: %d", n)
		}
		rt.MaxExpansionDepth = n
		return nil
	}
}

// WithLogger returns a Config that makes the runtime write debug records to
// logger.
func WithLogger(logger *slog.Logger) Config {
	return func(rt *Runtime) error {
		rt.Logger = logger
		return nil
	}
}

// WithTracer returns a Config that makes the runtime emit spans with tracer.
func WithTracer(tracer trace.Tracer) Config {
	return func(rt *Runtime) error {
		rt.Tracer = tracer
		return nil
	}
}

// WithReader returns a Config that makes the runtime use r to parse source
// streams.  There is no default Reader.
func WithReader(r Reader) Config {
	return func(rt *Runtime) error {
		rt.Reader = r
		return nil
	}
}

// WithLibraryLoader returns a Config that makes the runtime use l to locate
// libraries which are not registered.
func WithLibraryLoader(l LibraryLoader) Config {
	return func(rt *Runtime) error {
		rt.Loader = l
		return nil
	}
}

// WithFeatures returns a Config that replaces the features recognized by
// cond-expand.
func WithFeatures(features ...string) Config {
	return func(rt *Runtime) error {
		rt.Features = append([]string(nil), features...)
		return nil
	}
}

// WithLibrary returns a Config that registers a native library built by fn.
func WithLibrary(name []string, fn func(lib *NativeLibrary) error) Config {
	return func(rt *Runtime) error {
		return rt.DefineNativeLibrary(name, fn)
	}
}
