package replicate

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// noHandoffPending is the handoffInitialIndex sentinel meaning "no consumer
// is currently waiting".
const noHandoffPending int64 = -1

// handoffResult is what a fulfilled handoff delivers to its waiter.
type handoffResult struct {
	status error
	data   HandedOffBufferData
}

// onceResult is a single-use, single-value promise. Exactly one Fulfill
// call is honored; any further calls are silently dropped, which is how an
// orphan fulfill (no observer left) is tolerated.
type onceResult struct {
	ch   chan handoffResult
	once sync.Once
}

func newOnceResult() *onceResult {
	return &onceResult{ch: make(chan handoffResult, 1)}
}

func (o *onceResult) fulfill(v handoffResult) {
	o.once.Do(func() { o.ch <- v })
}

// HandoffFuture is returned by RequestHandoff; the consumer waits on it for
// the producer to fulfill the pending request.
type HandoffFuture struct {
	res *onceResult
}

// Wait blocks until the handoff is fulfilled or ctx is done. Dropping the
// future (abandoning Wait) does not clear the pending handoff index; the
// next successful producer fulfillment still completes an orphaned promise
// harmlessly.
func (f HandoffFuture) Wait(ctx context.Context) (HandedOffBufferData, error) {
	select {
	case r := <-f.res.ch:
		return r.data, r.status
	case <-ctx.Done():
		return HandedOffBufferData{}, ctx.Err()
	}
}

// PeerMessageBuffer owns a try-lock-guarded BufferData and the handoff
// rendezvous used to deliver buffered messages to the replication sender.
type PeerMessageBuffer struct {
	mu   sync.Mutex
	data BufferData

	// promise is replaced wholesale by RequestHandoff (the consumer); the
	// producer only ever reads the current value while holding mu.
	promise *onceResult

	// handoffInitialIndex and proxyOpsNeeded are read/written outside mu by
	// design: handoffInitialIndex via atomic exchange for single-slot
	// consumer->producer signaling, proxyOpsNeeded under the contract that
	// the consumer only writes it when no handoff is outstanding.
	handoffInitialIndex atomic.Int64
	proxyOpsNeeded      bool

	log *zap.Logger
}

// NewPeerMessageBuffer returns an empty buffer with no handoff pending.
func NewPeerMessageBuffer(log *zap.Logger) *PeerMessageBuffer {
	if log == nil {
		log = zap.NewNop()
	}
	b := &PeerMessageBuffer{data: NewBufferData(), log: log}
	b.handoffInitialIndex.Store(noHandoffPending)
	return b
}

// LockedHandle is the affine handle returned by TryLock; it must be released
// exactly once, on every exit path.
type LockedHandle struct {
	buf      *PeerMessageBuffer
	released bool
}

// TryLock attempts to acquire the buffer without blocking. A nil return
// means a concurrent operation holds it; the caller must surrender and
// retry later rather than wait.
func (b *PeerMessageBuffer) TryLock() *LockedHandle {
	if !b.mu.TryLock() {
		return nil
	}
	return &LockedHandle{buf: b}
}

// Release unlocks the buffer. Safe to call more than once.
func (h *LockedHandle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.buf.mu.Unlock()
}

// Data exposes the guarded BufferData for the holder to append to or fill
// from cache while holding the lock.
func (h *LockedHandle) Data() *BufferData {
	return &h.buf.data
}

// IndexForHandoff atomically swaps handoffInitialIndex with "no pending
// handoff" and returns its previous value, if any was pending.
func (h *LockedHandle) IndexForHandoff() (int64, bool) {
	prev := h.buf.handoffInitialIndex.Swap(noHandoffPending)
	if prev == noHandoffPending {
		return 0, false
	}
	return prev, true
}

// ProxyRequirementSatisfied reports whether the pending handoff's proxy
// requirement matches how the buffer is currently assembled.
func (h *LockedHandle) ProxyRequirementSatisfied() bool {
	return h.buf.proxyOpsNeeded == h.buf.data.BufferedForProxying()
}

// Fulfill resolves the outstanding handoff promise (if any) with status and
// the buffer's current contents, then resets the buffer for the next batch.
func (h *LockedHandle) Fulfill(status error) {
	moved := h.buf.data.MoveAndReset()
	if h.buf.promise != nil {
		h.buf.promise.fulfill(handoffResult{status: status, data: moved})
	}
}

// RequestHandoff is the consumer path: it resets the promise, records the
// proxy requirement, and posts the desired starting index. It must observe
// a prior value of "no pending handoff"; calling it again before a Fulfill
// is a programming error.
func (b *PeerMessageBuffer) RequestHandoff(index int64, proxyOpsNeeded bool) HandoffFuture {
	b.proxyOpsNeeded = proxyOpsNeeded
	p := newOnceResult()
	b.promise = p
	if prev := b.handoffInitialIndex.Swap(index); prev != noHandoffPending {
		panic("replicate: request_handoff called with a handoff already outstanding")
	}
	return HandoffFuture{res: p}
}

// TryProgress implements the producer side of the handoff protocol: it
// tries to acquire the buffer, applies fill (which may append or read from
// cache), and fulfills any pending handoff whose requirements are met. It
// returns false if the lock could not be acquired; callers should simply
// retry on a later event.
func (b *PeerMessageBuffer) TryProgress(fill func(*BufferData) error) (acquired bool, err error) {
	handle := b.TryLock()
	if handle == nil {
		return false, nil
	}
	defer handle.Release()

	requestedIndex, pending := handle.IndexForHandoff()
	if !pending {
		if fill != nil {
			err = fill(handle.Data())
		}
		return true, err
	}

	if !handle.ProxyRequirementSatisfied() {
		handle.Data().Reset(b.proxyOpsNeeded, requestedIndex-1)
	}

	if fill != nil {
		err = fill(handle.Data())
	}

	if err != nil && err != ErrContinue && err != ErrIncomplete {
		handle.Fulfill(err)
		return true, err
	}
	if !handle.Data().Empty() {
		handle.Fulfill(nil)
	} else {
		// Nothing to deliver yet; re-post the same handoff request so a
		// future TryProgress call picks it back up.
		b.handoffInitialIndex.Store(requestedIndex)
	}
	return true, err
}
