// Package otelutil carries the small amount of OpenTelemetry plumbing the
// runtime shares between packages.
package otelutil

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the tracer for a package of this module, named after the
// package's import path.
func Tracer(pkg string) trace.Tracer {
	return otel.Tracer("github.com/vessel-dev/vessel/" + pkg)
}

// RecordStatus ends err's span bookkeeping: nil leaves the span status
// untouched, anything else records the error and flips the span to Error.
func RecordStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
