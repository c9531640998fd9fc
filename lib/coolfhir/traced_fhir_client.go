package coolfhir

import (
	"context"
	"net/http"
	"net/url"

	"github.com/SanteonNL/bptrafficlight/lib/otel"
	fhirclient "github.com/SanteonNL/go-fhir-client"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var _ fhirclient.Client = &TracedFHIRClient{}

// TracedFHIRClient wraps a FHIR client, recording a client span per operation.
type TracedFHIRClient struct {
	client fhirclient.Client
	tracer trace.Tracer
}

func NewTracedFHIRClient(client fhirclient.Client, tracer trace.Tracer) *TracedFHIRClient {
	return &TracedFHIRClient{
		client: client,
		tracer: tracer,
	}
}

// injectTraceContext creates headers with injected trace context and adds them to options
func (t *TracedFHIRClient) injectTraceContext(ctx context.Context, options []fhirclient.Option) []fhirclient.Option {
	headers := make(http.Header)
	baseotel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
	if len(headers) > 0 {
		options = append(options, fhirclient.RequestHeaders(headers))
	}
	return options
}

func (t *TracedFHIRClient) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("fhir.operation", operation))
	return t.tracer.Start(ctx, "fhir."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func end(span trace.Span, err error) error {
	if err != nil {
		return otel.Error(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (t *TracedFHIRClient) CreateWithContext(ctx context.Context, resource any, result any, options ...fhirclient.Option) error {
	ctx, span := t.start(ctx, "create", attribute.String(otel.FHIRResourceType, ResourceType(resource)))
	defer span.End()
	return end(span, t.client.CreateWithContext(ctx, resource, result, t.injectTraceContext(ctx, options)...))
}

func (t *TracedFHIRClient) Create(resource any, result any, options ...fhirclient.Option) error {
	return t.CreateWithContext(context.Background(), resource, result, options...)
}

func (t *TracedFHIRClient) ReadWithContext(ctx context.Context, path string, result any, options ...fhirclient.Option) error {
	ctx, span := t.start(ctx, "read", attribute.String("fhir.path", path))
	defer span.End()
	return end(span, t.client.ReadWithContext(ctx, path, result, t.injectTraceContext(ctx, options)...))
}

func (t *TracedFHIRClient) Read(path string, result any, options ...fhirclient.Option) error {
	return t.ReadWithContext(context.Background(), path, result, options...)
}

func (t *TracedFHIRClient) UpdateWithContext(ctx context.Context, path string, resource any, result any, options ...fhirclient.Option) error {
	ctx, span := t.start(ctx, "update", attribute.String(otel.FHIRResourceType, ResourceType(resource)))
	defer span.End()
	return end(span, t.client.UpdateWithContext(ctx, path, resource, result, t.injectTraceContext(ctx, options)...))
}

func (t *TracedFHIRClient) Update(path string, resource any, result any, options ...fhirclient.Option) error {
	return t.UpdateWithContext(context.Background(), path, resource, result, options...)
}

func (t *TracedFHIRClient) DeleteWithContext(ctx context.Context, path string, options ...fhirclient.Option) error {
	ctx, span := t.start(ctx, "delete", attribute.String("fhir.path", path))
	defer span.End()
	return end(span, t.client.DeleteWithContext(ctx, path, t.injectTraceContext(ctx, options)...))
}

func (t *TracedFHIRClient) Delete(path string, options ...fhirclient.Option) error {
	return t.DeleteWithContext(context.Background(), path, options...)
}

func (t *TracedFHIRClient) SearchWithContext(ctx context.Context, resourceType string, params url.Values, result any, options ...fhirclient.Option) error {
	ctx, span := t.start(ctx, "search",
		attribute.String(otel.FHIRResourceType, resourceType),
		attribute.Int("fhir.search.param_count", len(params)),
	)
	defer span.End()
	return end(span, t.client.SearchWithContext(ctx, resourceType, params, result, t.injectTraceContext(ctx, options)...))
}

func (t *TracedFHIRClient) Search(resourceType string, params url.Values, result any, options ...fhirclient.Option) error {
	return t.SearchWithContext(context.Background(), resourceType, params, result, options...)
}

func (t *TracedFHIRClient) Path(path ...string) *url.URL {
	return t.client.Path(path...)
}
