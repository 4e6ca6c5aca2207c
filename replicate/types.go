// Package replicate implements the per-follower replicate message buffer: a
// contiguous, size-capped staging area for messages produced by the log
// cache and consumed by the replication sender through a single-slot
// handoff rendezvous.
package replicate

import "errors"

// Sentinel error kinds surfaced by this package, checked with errors.Is.
var (
	// ErrInvalidArgument is returned by Append for a nil message.
	ErrInvalidArgument = errors.New("replicate: invalid argument")
	// ErrIllegalState is returned by Append when the message does not
	// extend the buffer contiguously.
	ErrIllegalState = errors.New("replicate: non-contiguous append")
	// ErrIncomplete indicates the requested op is still pending append in
	// the log cache; the buffer is left unchanged.
	ErrIncomplete = errors.New("replicate: op pending append")
	// ErrContinue is an informational, non-resetting status: the cache
	// stopped short of the requested fill and the caller may resume.
	ErrContinue = errors.New("replicate: cache stopped early")
)

// OpId identifies a log entry by (term, index).
type OpId struct {
	Term  int64
	Index int64
}

// ReplicateRef is a shared-ownership handle to a single log message staged
// for replication. The buffer never copies message payloads; it only
// tracks references and releases them on reset.
type ReplicateRef struct {
	id      OpId
	payload []byte
}

// NewReplicateRef wraps a message at the given OpId.
func NewReplicateRef(id OpId, payload []byte) ReplicateRef {
	return ReplicateRef{id: id, payload: payload}
}

// Index is the log index of the referenced message.
func (r ReplicateRef) Index() int64 { return r.id.Index }

// Id is the OpId of the referenced message.
func (r ReplicateRef) Id() OpId { return r.id }

// Size is the encoded size of the referenced message, in bytes.
func (r ReplicateRef) Size() int64 { return int64(len(r.payload)) }

// ReadContext carries the target peer's identity and routing requirement
// into a cache read.
type ReadContext struct {
	PeerUUID     string
	Host         string
	Port         int32
	RouteViaProxy bool
}

// CacheReadResult is returned by LogCache.ReadOps.
type CacheReadResult struct {
	Msgs         []ReplicateRef
	PrecedingOp  OpId
	StoppedEarly bool
}

// LogCache is the external collaborator the buffer falls back to when an
// in-memory append cannot satisfy demand.
type LogCache interface {
	// ReadOps returns up to maxBytes of messages starting immediately after
	// startingAt. It returns ErrIncomplete if the next op is not yet
	// appended to the log, or any other error verbatim.
	ReadOps(startingAt int64, maxBytes int64, ctx ReadContext) (CacheReadResult, error)
}

// HandedOffBufferData is the payload delivered to a consumer on handoff
// fulfillment.
type HandedOffBufferData struct {
	Msgs          []ReplicateRef
	PrecedingOpId OpId
}
