// Package admission implements the request-path admission decision: match
// descriptors against the Rule Store, advance the Window Clock, update the
// Counter Store, and render an admit/deny verdict plus observability
// headers (spec §4.5). It is grounded directly in the teacher's
// RateLimitHandler.CheckLimit.
package admission

import (
	"fmt"
	"time"

	"hivemind/internal/counterstore"
	"hivemind/internal/observability"
	"hivemind/internal/ruleforest"
	"hivemind/internal/window"
)

// Code mirrors the Envoy v3 rate-limit response code enum (spec §6).
type Code int

const (
	CodeUnknown Code = iota
	CodeOK
	CodeOverLimit
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeOverLimit:
		return "OVER_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// Request is one ShouldRateLimit call. Descriptors holds one vector per
// item Envoy batched into the call; Hits is the already-defaulted
// hits_addend (the gRPC transport layer resolves the wire default of 1
// before constructing a Request, so the engine itself treats 0 purely as
// the no-op Open Question resolution documented for the Counter Store).
type Request struct {
	Domain      string
	Descriptors []ruleforest.Vector
	Hits        uint64
}

// DescriptorStatus is one matched descriptor's outcome and headers.
type DescriptorStatus struct {
	Code               Code
	CurrentLimit       uint64
	LimitRemaining     uint64
	DurationUntilReset time.Duration
}

// Response is the result of one ShouldRateLimit call.
type Response struct {
	OverallCode Code
	Statuses    []DescriptorStatus
}

// Options configures an Engine.
type Options struct {
	Logger  observability.Logger
	Metrics observability.Metrics
	Now     func() time.Time
}

// Engine ties the Rule Store, Window Clock, and Counter Store together into
// the admission algorithm.
type Engine struct {
	domains map[string]*ruleforest.Forest
	clock   *window.Clock
	store   *counterstore.Store
	logger  observability.Logger
	metrics observability.Metrics
	now     func() time.Time
}

// New constructs an Engine. domains maps domain name to its built Rule
// Store forest; an unknown domain yields OK with no statuses, per spec §6.
func New(domains map[string]*ruleforest.Forest, clock *window.Clock, store *counterstore.Store, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		domains: domains,
		clock:   clock,
		store:   store,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     now,
	}
}

// ShouldRateLimit runs the algorithm from spec §4.5 step by step. It never
// returns an error: any internal failure is caught and converted to the
// fail-open response (overall OK, empty statuses), matching the teacher's
// LIMITER_UNAVAILABLE/LIMITER_ERROR fail-soft branches in CheckLimit.
func (e *Engine) ShouldRateLimit(req Request) (resp Response) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Error("admission engine panic", map[string]any{"panic": fmt.Sprintf("%v", r)})
			}
			if e.metrics != nil {
				e.metrics.IncFallback("panic")
			}
			resp = Response{OverallCode: CodeOK}
		}
		if e.metrics != nil {
			e.metrics.ObserveCheckLatency(e.now().Sub(start))
		}
	}()

	if e == nil || e.store == nil || e.clock == nil {
		return Response{OverallCode: CodeOK}
	}
	if len(req.Descriptors) == 0 {
		// The request itself is malformed; spec §7 reserves UNKNOWN for
		// exactly this case.
		return Response{OverallCode: CodeUnknown}
	}

	forest, ok := e.domains[req.Domain]
	if !ok {
		return Response{OverallCode: CodeOK}
	}

	overall := CodeOK
	statuses := make([]DescriptorStatus, 0, len(req.Descriptors))
	for _, vec := range req.Descriptors {
		rule, matched := forest.Match(vec)
		if !matched {
			// Missing rule: admitted unconditionally, no status entry
			// (spec §8 scenario 5: "empty statuses").
			continue
		}

		windowID := e.clock.Current(rule.Unit)
		key := counterstore.Key{RuleID: rule.ID, WindowID: windowID, Unit: rule.Unit}

		e.store.Increment(key, req.Hits)
		global := e.store.GlobalSum(key)

		code := CodeOK
		if global > rule.RequestsPerUnit {
			code = CodeOverLimit
			overall = CodeOverLimit
		}

		statuses = append(statuses, DescriptorStatus{
			Code:               code,
			CurrentLimit:       rule.RequestsPerUnit,
			LimitRemaining:     counterstore.Remaining(rule.RequestsPerUnit, global),
			DurationUntilReset: window.RemainingIn(rule.Unit, windowID, e.now()),
		})

		if e.metrics != nil {
			e.metrics.IncCheck(req.Domain, code.String())
		}
	}

	return Response{OverallCode: overall, Statuses: statuses}
}
