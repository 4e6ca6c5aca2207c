package replicate

// BufferData is a value-type buffer of contiguous pending replicate
// messages, filled either by direct in-memory Append calls or by reading
// from a LogCache when Append cannot keep up.
type BufferData struct {
	msgBufferRefs       []ReplicateRef
	lastBuffered        int64
	precedingOpid       OpId
	bufferedForProxying bool
	bytesBuffered       int64
}

// NewBufferData returns an empty, unanchored buffer.
func NewBufferData() BufferData {
	return BufferData{lastBuffered: -1}
}

// LastBuffered is the highest index held, or -1 if empty and unanchored.
func (b *BufferData) LastBuffered() int64 { return b.lastBuffered }

// PrecedingOpId is the OpId immediately before the first buffered message.
func (b *BufferData) PrecedingOpId() OpId { return b.precedingOpid }

// BufferedForProxying reports whether staged messages were assembled for
// proxy routing.
func (b *BufferData) BufferedForProxying() bool { return b.bufferedForProxying }

// BytesBuffered is the sum of encoded sizes of currently staged messages.
func (b *BufferData) BytesBuffered() int64 { return b.bytesBuffered }

// Empty reports whether no messages are currently staged.
func (b *BufferData) Empty() bool { return len(b.msgBufferRefs) == 0 }

// Messages returns the currently staged messages, in index order.
func (b *BufferData) Messages() []ReplicateRef {
	return append([]ReplicateRef(nil), b.msgBufferRefs...)
}

// Reset clears staged messages and re-anchors the buffer at lastIndex: the
// next Append must carry index lastIndex+1.
func (b *BufferData) Reset(forProxy bool, lastIndex int64) {
	b.msgBufferRefs = nil
	b.lastBuffered = lastIndex
	b.precedingOpid = OpId{}
	b.bufferedForProxying = forProxy
	b.bytesBuffered = 0
}

// Append stages msg, which must carry index LastBuffered()+1. On the first
// message into an empty buffer, PrecedingOpId is set to msg.Id(), matching
// the observed upstream behavior: semantically PrecedingOpId should be the
// OpId before the first buffered message, but callers and the wire contract
// rely on this exact assignment, so it is kept as-is.
func (b *BufferData) Append(msg *ReplicateRef) error {
	if msg == nil {
		return ErrInvalidArgument
	}
	if msg.Index() != b.lastBuffered+1 {
		return ErrIllegalState
	}
	if len(b.msgBufferRefs) == 0 {
		b.precedingOpid = msg.Id()
	}
	b.msgBufferRefs = append(b.msgBufferRefs, *msg)
	b.lastBuffered = msg.Index()
	b.bytesBuffered += msg.Size()
	return nil
}

// ReadFromCache fills the buffer from cache starting at LastBuffered(),
// capped by maxBufferFill per attempt and by maxBatch total bytes staged.
//
// On success with new messages: LastBuffered and BufferedForProxying are
// updated, and PrecedingOpId is adopted from the cache's result if the
// buffer was empty entering this call. A cache-reported StoppedEarly surfaces
// as ErrContinue without resetting the buffer. ErrIncomplete likewise leaves
// the buffer untouched, since the requested op simply hasn't been appended
// to the log yet. Any other error resets the buffer before being returned.
func (b *BufferData) ReadFromCache(cache LogCache, ctx ReadContext, maxBufferFill, maxBatch int64) error {
	fillSize := maxBufferFill
	if remaining := maxBatch - b.bytesBuffered; remaining < fillSize {
		if remaining < 0 {
			remaining = 0
		}
		fillSize = remaining
	}

	wasEmpty := b.Empty()
	result, err := cache.ReadOps(b.lastBuffered, fillSize, ctx)
	if err != nil {
		if err == ErrIncomplete {
			return err
		}
		b.Reset(ctx.RouteViaProxy, b.lastBuffered)
		return err
	}

	if len(result.Msgs) > 0 {
		b.msgBufferRefs = append(b.msgBufferRefs, result.Msgs...)
		for _, m := range result.Msgs {
			b.bytesBuffered += m.Size()
		}
		b.lastBuffered = result.Msgs[len(result.Msgs)-1].Index()
		b.bufferedForProxying = ctx.RouteViaProxy
	}
	if wasEmpty {
		b.precedingOpid = result.PrecedingOp
	}
	if result.StoppedEarly {
		return ErrContinue
	}
	return nil
}

// MoveAndReset returns the current messages and preceding OpId for handoff,
// leaving LastBuffered and BufferedForProxying intact so subsequent appends
// remain contiguous.
func (b *BufferData) MoveAndReset() HandedOffBufferData {
	out := HandedOffBufferData{
		Msgs:          b.msgBufferRefs,
		PrecedingOpId: b.precedingOpid,
	}
	b.msgBufferRefs = nil
	b.bytesBuffered = 0
	b.precedingOpid = OpId{}
	return out
}
