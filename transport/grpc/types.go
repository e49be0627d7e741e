// Package grpc exposes the Envoy v3 rate-limit contract (spec §6) and a
// read-only Health service over gRPC, grounded in the teacher's
// GRPCTransport. The retrieval pack contains no protobuf-generated types
// for this contract (no .proto or .pb.go files anywhere in it), so the
// wire messages here are hand-written Go structs carried over a small
// JSON codec registered with grpc-go's encoding package — the server and
// client sides of ServiceDesc/Invoke stay the real grpc-go APIs; only the
// message marshaling is custom, in place of protoc-generated marshaling.
package grpc

// HeaderValue is one (name, value) pair in a response's headers-to-add
// list (spec §6).
type HeaderValue struct {
	Name  string
	Value string
}

// DescriptorEntry is one (key, value) pair of a descriptor vector.
type DescriptorEntry struct {
	Key   string
	Value string
}

// DescriptorVector is an ordered sequence of descriptor entries.
type DescriptorVector struct {
	Entries []DescriptorEntry
}

// ShouldRateLimitRequest mirrors spec §6's Request schema.
type ShouldRateLimitRequest struct {
	Domain      string
	Descriptors []DescriptorVector
	// HitsAddend is the wire field; 0 means "use the default of 1" per
	// spec §6, resolved to 1 by rateLimitServer.shouldRateLimit before reaching the
	// Admission Engine (which treats a literal 0 Hits as the no-op Open
	// Question resolution documented in internal/counterstore).
	HitsAddend uint32
}

// DescriptorStatus mirrors one entry of spec §6's Response.statuses.
type DescriptorStatus struct {
	Code               int32
	CurrentLimit       uint64
	LimitRemaining     uint64
	DurationUntilResetMs int64
}

// ShouldRateLimitResponse mirrors spec §6's Response schema.
type ShouldRateLimitResponse struct {
	OverallCode          int32
	Statuses             []DescriptorStatus
	ResponseHeadersToAdd []HeaderValue
	RequestHeadersToAdd  []HeaderValue
}

// HealthRequest is the empty request for the Health/Ready RPCs.
type HealthRequest struct{}

// HealthResponse carries a short status label, matching the teacher's
// grpcHealthServer return shape.
type HealthResponse struct {
	Status      string
	PeerCount   int32
	DomainCount int32
}
