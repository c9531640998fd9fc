package coolfhir

import (
	"fmt"
	"net/http"

	libotel "github.com/SanteonNL/bptrafficlight/lib/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type TracedHTTPTransport struct {
	base   http.RoundTripper
	tracer trace.Tracer
}

func NewTracedHTTPTransport(base http.RoundTripper, tracer trace.Tracer) *TracedHTTPTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &TracedHTTPTransport{
		base:   base,
		tracer: tracer,
	}
}

func (t *TracedHTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(),
		"fhir "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(libotel.HTTPMethod, req.Method),
			attribute.String(libotel.HTTPURL, req.URL.String()),
			attribute.String("http.host", req.URL.Host),
			attribute.String("http.target", req.URL.Path),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	req = req.WithContext(ctx)
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(
		attribute.Int(libotel.HTTPStatusCode, resp.StatusCode),
		attribute.String(libotel.HTTPStatusText, resp.Status),
	)
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return resp, nil
}
