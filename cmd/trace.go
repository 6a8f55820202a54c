// Copyright © 2024 The ELPS authors

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/luthersystems/schemex/lisp"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// spanWriter is a span exporter which writes one line per finished span.
type spanWriter struct {
	mu sync.Mutex
	w  io.Writer
}

var _ sdktrace.SpanExporter = (*spanWriter)(nil)

func (e *spanWriter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, span := range spans {
		var b strings.Builder
		fmt.Fprintf(&b, "trace: %s %s", span.Name(), span.EndTime().Sub(span.StartTime()))
		for _, kv := range span.Attributes() {
			fmt.Fprintf(&b, " %s=%s", kv.Key, kv.Value.Emit())
		}
		if span.Status().Code == codes.Error {
			fmt.Fprintf(&b, " error=%q", span.Status().Description)
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(e.w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func (e *spanWriter) Shutdown(context.Context) error {
	return nil
}

// tracerFromConfig returns a tracer writing spans to w when tracing is
// enabled, and nil otherwise.
func tracerFromConfig(w io.Writer) trace.Tracer {
	if !viper.GetBool("trace") {
		return nil
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(&spanWriter{w: w}),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return tp.Tracer(lisp.TracerName)
}
