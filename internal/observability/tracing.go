package observability

import (
	"context"
	"hash/fnv"
)

// Span captures tracing span operations.
type Span interface {
	SetAttribute(key, value string)
	RecordError(err error)
	End()
}

// Tracer is an optional tracing dependency; the admission path never blocks
// on it.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Sampler decides if a trace should be sampled.
type Sampler interface {
	Sampled(traceID string) bool
}

// NoopTracer records nothing. It is the default: fail-open admission (spec
// §4.5) has nothing for a trace exporter to load-bear, so wiring a full
// tracing SDK has no component to drive it.
type NoopTracer struct{}

// NoopSpan is a span that records nothing.
type NoopSpan struct{}

// StartSpan starts a span that does nothing.
func (NoopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

func (NoopSpan) SetAttribute(key, value string) {}
func (NoopSpan) RecordError(err error)          {}
func (NoopSpan) End()                           {}

// HashSampler samples traces by hashing the trace ID, for when a real
// tracer is later wired in.
type HashSampler struct {
	rate int
}

// NewHashSampler returns a HashSampler that samples roughly 1 in rate
// traces.
func NewHashSampler(rate int) HashSampler {
	return HashSampler{rate: rate}
}

// Sampled reports whether the trace should be sampled.
func (s HashSampler) Sampled(traceID string) bool {
	if traceID == "" || s.rate <= 0 {
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(traceID))
	return int(h.Sum32()%uint32(s.rate)) == 0
}
