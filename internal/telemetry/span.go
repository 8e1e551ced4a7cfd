package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans created by this module.
const InstrumentationName = "github.com/patdav1503/securelog-msg-network"

// Attribute keys shared by engine spans.
const (
	AttrCaller      = attribute.Key("securelog.caller")
	AttrOperation   = attribute.Key("securelog.operation")
	AttrResource    = attribute.Key("securelog.resource")
	AttrTransaction = attribute.Key("securelog.transaction_id")
	AttrEvents      = attribute.Key("securelog.events")
)

// Tracer returns the module tracer from tp, or from the global provider
// when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// End finishes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
