// Copyright © 2018 The ELPS authors

package lisp

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer used when a Runtime has no Tracer.
const TracerName = "schemex"

// DefaultMaxExpansionDepth is the default bound on nested macro expansions.
const DefaultMaxExpansionDepth = 1024

// Runtime is an object underlying a family of compilation units.  It holds
// the library registry and shared configuration, and generates identifiers
// for environments, bindings and expansion marks.
type Runtime struct {
	Libraries         *LibraryRegistry
	Reader            Reader
	Loader            LibraryLoader
	Logger            *slog.Logger
	Tracer            trace.Tracer
	Features          []string
	MaxExpansionDepth int
	ids               *idCounters
}

// idCounters are shared by a runtime and its forks so identifiers stay
// unique after Join.
type idCounters struct {
	numenv     atomicCounter
	numbinding atomicCounter
	nummark    atomicCounter
}

// StandardRuntime returns a new Runtime with a registry containing only the
// core library and a discarding logger.  Spans go to the global OpenTelemetry
// tracer provider unless a Tracer is configured.
func StandardRuntime() *Runtime {
	rt := &Runtime{
		Libraries:         NewLibraryRegistry(),
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Features:          DefaultFeatures(),
		MaxExpansionDepth: DefaultMaxExpansionDepth,
		ids:               &idCounters{},
	}
	rt.Libraries.Register(coreLibrary(rt))
	return rt
}

// NewRuntime returns a StandardRuntime after applying config.
func NewRuntime(config ...Config) (*Runtime, error) {
	rt := StandardRuntime()
	for _, fn := range config {
		err := fn(rt)
		if err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// DefaultFeatures returns the feature identifiers recognized by cond-expand
// unless configured otherwise.
func DefaultFeatures() []string {
	return []string{"r7rs", "exact-closed", "ratios", "full-unicode", "schemex"}
}

// HasFeature returns true if name is one of the runtime's features.
func (rt *Runtime) HasFeature(name string) bool {
	for _, f := range rt.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Fork returns a runtime sharing rt's configuration with an independent
// snapshot of its library registry.  Units analyzed with the fork do not
// affect rt until Join is called.  Environment, binding and mark identifiers
// are drawn from the same sequences as rt.
func (rt *Runtime) Fork() *Runtime {
	return &Runtime{
		Libraries:         rt.Libraries.Snapshot(),
		Reader:            rt.Reader,
		Loader:            rt.Loader,
		Logger:            rt.Logger,
		Tracer:            rt.Tracer,
		Features:          rt.Features,
		MaxExpansionDepth: rt.MaxExpansionDepth,
		ids:               rt.ids,
	}
}

// Join merges the ready libraries registered in fork into rt.  Libraries
// already present in rt are kept.
func (rt *Runtime) Join(fork *Runtime) {
	rt.Libraries.Merge(fork.Libraries)
}

func (rt *Runtime) GenEnvID() uint {
	return rt.ids.numenv.Add(1)
}

func (rt *Runtime) GenBindingID() uint {
	return rt.ids.numbinding.Add(1)
}

func (rt *Runtime) GenMarkID() uint {
	return rt.ids.nummark.Add(1)
}

func (rt *Runtime) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := rt.Tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(TracerName)
	}
	return tracer.Start(ctx, name, opts...)
}

type atomicCounter uint64

func (c *atomicCounter) Add(n uint) uint {
	return uint(atomic.AddUint64((*uint64)(c), uint64(n)))
}

func sortIdents(ids []Ident) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Name != ids[j].Name {
			return ids[i].Name < ids[j].Name
		}
		return markID(ids[i].Mark) < markID(ids[j].Mark)
	})
}

func markID(m *Mark) uint {
	if m == nil {
		return 0
	}
	return m.ID
}
