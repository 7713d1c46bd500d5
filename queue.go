// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import "fmt"

// MinMessages is the minimum number of physical slots a queue may have.
// A minimum of 3 guarantees there is always a slot the producer may
// write to even when the consumer holds one and one more is published.
const MinMessages = 3

// sharedQueue is the shared-memory layout backing one queue: an index
// region (tail, head, chain[0..N)) followed by a data region of N
// cache-line-padded message slots. Grounded on
// original_source/src/queue.rs's Queue struct.
type sharedQueue struct {
	chunk       *Chunk
	capacity    int // N = 3 + additional_messages
	messageSize int // caller-facing message size, unpadded
	stride      int // cacheline_aligned(messageSize)

	tail  *atomicIndex
	head  *atomicIndex
	chain []*atomicIndex
	data  []byte
}

// queueByteSize returns the total arena footprint of a queue with the
// given additional message count and (unpadded) message size, matching
// original_source/src/lib.rs's ChannelParam::size (index region size +
// data region size, each independently cache-line aligned). The index
// region reserves queueIndexHeaderSize ahead of the chain array to keep
// tail and head on separate cache lines (see queueIndexHeader).
func queueByteSize(additionalMessages, messageSize int) int {
	capacity := MinMessages + additionalMessages
	indexRegion := cachelineAligned(queueIndexHeaderSize + capacity*4)
	stride := cachelineAligned(messageSize)
	dataRegion := capacity * stride
	return indexRegion + dataRegion
}

func newSharedQueue(chunk *Chunk, additionalMessages, messageSize int) (*sharedQueue, error) {
	if messageSize <= 0 {
		return nil, fmt.Errorf("%w: message size must be positive", ErrMalformedRequest)
	}
	capacity := MinMessages + additionalMessages
	indexRegion := cachelineAligned(queueIndexHeaderSize + capacity*4)
	stride := cachelineAligned(messageSize)
	dataRegion := capacity * stride

	tail, err := chunk.index32(queueIndexTailOffset)
	if err != nil {
		return nil, err
	}
	head, err := chunk.index32(queueIndexHeadOffset)
	if err != nil {
		return nil, err
	}
	chain := make([]*atomicIndex, capacity)
	for i := 0; i < capacity; i++ {
		cell, err := chunk.index32(queueIndexHeaderSize + i*4)
		if err != nil {
			return nil, err
		}
		chain[i] = cell
	}
	data, err := chunk.Bytes(indexRegion, dataRegion)
	if err != nil {
		return nil, err
	}

	return &sharedQueue{
		chunk:       chunk,
		capacity:    capacity,
		messageSize: messageSize,
		stride:      stride,
		tail:        tail,
		head:        head,
		chain:       chain,
		data:        data,
	}, nil
}

// initQueueIndex writes the queue's initial shared state: the identity
// permutation chain and the tail/head sentinels. Performed exactly once
// by the handshake initiator for every queue in the vector, before the
// request is sent — neither ProducerQueue nor ConsumerQueue construction
// touches shared memory, per spec: "the acceptor does not touch the
// index region before the first use."
func initQueueIndex(q *sharedQueue) {
	last := q.capacity - 1
	for i := 0; i < last; i++ {
		q.chain[i].storeRelaxed(index(i + 1))
	}
	q.chain[last].storeRelaxed(0)
	q.tail.storeRelaxed(indexInvalid)
	q.head.storeRelaxed(indexInvalid)
}

func (q *sharedQueue) message(i index) []byte {
	start := int(i) * q.stride
	return q.data[start : start+q.messageSize]
}

// ForceResult distinguishes the two non-failure outcomes of ForcePush.
type ForceResult int

const (
	// ForceSuccess means the message was published without discarding
	// anything.
	ForceSuccess ForceResult = iota
	// ForceSuccessDiscarded means the queue was full and the oldest
	// unread message was discarded to make room.
	ForceSuccessDiscarded
)

// TryResult distinguishes the two non-failure outcomes of TryPush.
type TryResult int

const (
	// TrySuccess means the message was published.
	TrySuccess TryResult = iota
	// TryQueueFull means the queue was full; nothing was mutated.
	TryQueueFull
)

// PopResult distinguishes the four non-failure outcomes of Pop.
type PopResult int

const (
	// PopNoMessage means nothing has ever been published.
	PopNoMessage PopResult = iota
	// PopNoNewMessage means a message was already consumed and no
	// newer one has been published since.
	PopNoNewMessage
	// PopSuccess means a new message is available with no messages
	// discarded.
	PopSuccess
	// PopSuccessDiscarded means a new message is available, but one or
	// more older messages were discarded by the producer.
	PopSuccessDiscarded
)

// FlushResult distinguishes the two non-failure outcomes of Flush.
type FlushResult int

const (
	// FlushSuccess means the consumer now holds the freshest message.
	FlushSuccess FlushResult = iota
	// FlushNoMessage means nothing has ever been published.
	FlushNoMessage
)

// ProducerQueue is the producer-side view of a queue: wait-free publish
// operations plus the producer-only local state (chain mirror, head
// cache, current write slot, and the in-flight overrun slot).
//
// Grounded on original_source/src/queue.rs's ProducerQueue.
type ProducerQueue struct {
	q       *sharedQueue
	chain   []index // local mirror; producer is the sole writer of chain
	head    index    // local cache of the shared head
	current index    // slot the producer is currently writing
	overrun index     // slot stolen from a stuck consumer, or indexInvalid
}

// NewProducerQueue constructs the producer-side view over an
// already-initialized queue (see initQueueIndex). It assumes — per the
// handshake protocol — that shared memory already holds the identity
// chain and sentinel tail/head, and derives its local mirror
// analytically instead of reading it back from shared memory.
func NewProducerQueue(q *sharedQueue) *ProducerQueue {
	capacity := q.capacity
	chain := make([]index, capacity)
	for i := 0; i < capacity-1; i++ {
		chain[i] = index(i + 1)
	}
	chain[capacity-1] = 0

	return &ProducerQueue{
		q:       q,
		chain:   chain,
		head:    indexInvalid,
		current: 0,
		overrun: indexInvalid,
	}
}

// MessageSize returns the queue's caller-facing message size.
func (p *ProducerQueue) MessageSize() int { return p.q.messageSize }

// AdditionalMessages returns the queue's additional_messages dimension.
func (p *ProducerQueue) AdditionalMessages() int { return p.q.capacity - MinMessages }

// CurrentMessage returns a mutable view of the slot the next push will
// publish.
func (p *ProducerQueue) CurrentMessage() []byte { return p.q.message(p.current) }

func (p *ProducerQueue) queueStore(idx, val index) {
	p.chain[idx] = val
	p.q.chain[idx].storeRelease(val)
}

func (p *ProducerQueue) moveTail(tail index) bool {
	next := p.chain[tail&indexValueMask]
	return p.q.tail.casAcqRel(tail, next)
}

func (p *ProducerQueue) enqueueFirstMessage() {
	p.queueStore(p.current, indexInvalid)
	p.q.tail.storeRelease(p.current)
	p.head = p.current
	p.q.head.storeRelease(p.head)
}

func (p *ProducerQueue) enqueueMessage() {
	p.queueStore(p.current, indexInvalid)
	p.queueStore(p.head, p.current)
	p.head = p.current
	p.q.head.storeRelease(p.head)
}

// doOverrun attempts to jump the producer over a tail still held by the
// consumer. Returns true if the tail was stolen (discard reported).
func (p *ProducerQueue) doOverrun(tail index) bool {
	newCurrent := p.chain[tail&indexValueMask]
	newTail := p.chain[newCurrent]

	if p.q.tail.casAcqRel(tail, newTail) {
		p.overrun = tail & indexValueMask
		p.current = newCurrent
		return true
	}
	// consumer just released tail between our reads; use it.
	p.current = tail & indexValueMask
	return false
}

// Full reports whether the next ForcePush/TryPush would have to
// discard (force) or would fail (try).
func (p *ProducerQueue) Full() bool {
	if p.head == indexInvalid {
		return false
	}
	tail := p.q.tail.loadAcquire()
	if !validIndex(tail&indexValueMask, p.q.capacity) {
		return false
	}
	if p.overrun != indexInvalid {
		return tail&consumedFlag == 0
	}
	next := p.chain[p.current]
	return next == tail&indexValueMask
}

// ForcePush publishes the producer's current slot as the newest
// message. If the queue is full it discards the oldest unread message
// instead of blocking or failing.
func (p *ProducerQueue) ForcePush() (ForceResult, error) {
	next := p.chain[p.current]

	if p.head == indexInvalid {
		p.enqueueFirstMessage()
		p.current = next
		return ForceSuccess, nil
	}

	discarded := false
	p.enqueueMessage()

	tail := p.q.tail.loadAcquire()
	if !validIndex(tail&indexValueMask, p.q.capacity) {
		return 0, ErrQueueCorrupted
	}
	consumed := tail&consumedFlag != 0

	switch {
	case p.overrun != indexInvalid:
		if consumed {
			p.queueStore(p.overrun, next)
			p.current = p.overrun
			p.overrun = indexInvalid
		} else if p.moveTail(tail) {
			p.current = tail & indexValueMask
			discarded = true
		} else {
			p.queueStore(p.overrun, next)
			p.current = p.overrun
			p.overrun = indexInvalid
		}
	case next == tail&indexValueMask:
		// queue full, no previous overrun in flight
		if !consumed {
			if p.moveTail(tail) {
				p.current = next
				discarded = true
			} else {
				discarded = p.doOverrun(tail | consumedFlag)
			}
		} else {
			discarded = p.doOverrun(tail)
		}
	default:
		p.current = next
	}

	if discarded {
		return ForceSuccessDiscarded, nil
	}
	return ForceSuccess, nil
}

// TryPush publishes the producer's current slot only if the queue is
// not full. On a full queue it returns TryQueueFull without mutating
// anything.
func (p *ProducerQueue) TryPush() (TryResult, error) {
	next := p.chain[p.current]

	if p.head == indexInvalid {
		p.enqueueFirstMessage()
		p.current = next
		return TrySuccess, nil
	}

	tail := p.q.tail.loadAcquire()
	if !validIndex(tail&indexValueMask, p.q.capacity) {
		return 0, ErrQueueCorrupted
	}

	if p.overrun != indexInvalid {
		if tail&consumedFlag != 0 {
			p.enqueueMessage()
			p.queueStore(p.overrun, next)
			p.current = p.overrun
			p.overrun = indexInvalid
			return TrySuccess, nil
		}
		return TryQueueFull, nil
	}

	if next != tail&indexValueMask {
		p.enqueueMessage()
		p.current = next
		return TrySuccess, nil
	}
	return TryQueueFull, nil
}

// ConsumerQueue is the consumer-side view of a queue: wait-free Pop and
// Flush, plus the consumer-only local state (the currently readable
// slot).
//
// Grounded on original_source/src/queue.rs's ConsumerQueue.
type ConsumerQueue struct {
	q          *sharedQueue
	current    index
	everPopped bool
}

// NewConsumerQueue constructs the consumer-side view over an
// already-initialized queue.
func NewConsumerQueue(q *sharedQueue) *ConsumerQueue {
	return &ConsumerQueue{q: q, current: 0}
}

// MessageSize returns the queue's caller-facing message size.
func (c *ConsumerQueue) MessageSize() int { return c.q.messageSize }

// AdditionalMessages returns the queue's additional_messages dimension.
func (c *ConsumerQueue) AdditionalMessages() int { return c.q.capacity - MinMessages }

// CurrentMessage returns a read-only view of the last slot delivered by
// Pop or Flush. The second return is false until the first successful
// delivery.
func (c *ConsumerQueue) CurrentMessage() ([]byte, bool) {
	if !c.everPopped {
		return nil, false
	}
	return c.q.message(c.current), true
}

// Pop reads the next unread message into the consumer's current slot.
func (c *ConsumerQueue) Pop() (PopResult, error) {
	old := c.q.tail.fetchOrAcqRel(consumedFlag)
	if old == indexInvalid {
		return PopNoMessage, nil
	}
	if !validIndex(old&indexValueMask, c.q.capacity) {
		return 0, ErrQueueCorrupted
	}

	if old&consumedFlag == 0 {
		// producer moved tail since our last pop, before observing our
		// consumed flag; use it.
		c.current = old & indexValueMask
		c.everPopped = true
		return PopSuccessDiscarded, nil
	}

	next := c.q.chain[c.current].loadAcquire()
	if next == indexInvalid {
		return PopNoNewMessage, nil
	}
	if !validIndex(next, c.q.capacity) {
		return 0, ErrQueueCorrupted
	}

	if c.q.tail.casAcqRel(old, next|consumedFlag) {
		c.current = next
		c.everPopped = true
		return PopSuccess, nil
	}

	// producer overran us between our reads.
	reloaded := c.q.tail.fetchOrAcqRel(consumedFlag)
	if !validIndex(reloaded&indexValueMask, c.q.capacity) {
		return 0, ErrQueueCorrupted
	}
	c.current = reloaded & indexValueMask
	c.everPopped = true
	return PopSuccessDiscarded, nil
}

// Flush discards everything up to and including the current head,
// leaving the single freshest message for reading.
func (c *ConsumerQueue) Flush() (FlushResult, error) {
	for {
		tail := c.q.tail.fetchOrAcqRel(consumedFlag)
		if tail == indexInvalid {
			return FlushNoMessage, nil
		}
		if !validIndex(tail&indexValueMask, c.q.capacity) {
			return 0, ErrQueueCorrupted
		}

		head := c.q.head.loadAcquire()
		if !validIndex(head, c.q.capacity) {
			return 0, ErrQueueCorrupted
		}

		if c.q.tail.casAcqRel(tail|consumedFlag, head|consumedFlag) {
			c.current = head
			c.everPopped = true
			return FlushSuccess, nil
		}
	}
}
