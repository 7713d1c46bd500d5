// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import "testing"

// newTestQueuePair builds an arena-backed queue and two independent
// views over it, mimicking what a producer-role process and a
// consumer-role process each construct after a handshake maps the same
// bytes. additionalMessages follows the spec's N = 3 + additional.
func newTestQueuePair(t *testing.T, additionalMessages, messageSize int) (*ProducerQueue, *ConsumerQueue, func()) {
	t.Helper()

	size := queueByteSize(additionalMessages, messageSize)
	arena, err := NewArena(size)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}

	producerChunk, err := arena.Alloc(0, size)
	if err != nil {
		t.Fatalf("Alloc (producer view): %v", err)
	}
	consumerChunk, err := arena.Alloc(0, size)
	if err != nil {
		t.Fatalf("Alloc (consumer view): %v", err)
	}

	pq, err := newSharedQueue(producerChunk, additionalMessages, messageSize)
	if err != nil {
		t.Fatalf("newSharedQueue (producer): %v", err)
	}
	initQueueIndex(pq)

	cq, err := newSharedQueue(consumerChunk, additionalMessages, messageSize)
	if err != nil {
		t.Fatalf("newSharedQueue (consumer): %v", err)
	}

	producer := NewProducerQueue(pq)
	consumer := NewConsumerQueue(cq)

	cleanup := func() {
		_ = producerChunk.Close()
		_ = consumerChunk.Close()
		_ = arena.Close()
	}
	return producer, consumer, cleanup
}

func writeByte(p *ProducerQueue, b byte) {
	p.CurrentMessage()[0] = b
}

func readByte(c *ConsumerQueue) byte {
	msg, ok := c.CurrentMessage()
	if !ok {
		return 0
	}
	return msg[0]
}

// TestQueueS1 is spec scenario S1: N=3, one push, one pop, then a
// second pop reports no new message.
//
// The first pop of a queue's lifetime always reports
// PopSuccessDiscarded rather than PopSuccess: the discard signal is
// keyed off whether the producer has moved tail since the consumer's
// own last observation, and on the very first call there is no prior
// observation, so the check is vacuously true. This falls directly
// out of the tail/consumed-flag protocol, not out of anything actually
// being discarded.
func TestQueueS1(t *testing.T) {
	p, c, cleanup := newTestQueuePair(t, 0, 1)
	defer cleanup()

	writeByte(p, 7)
	if result, err := p.ForcePush(); err != nil || result != ForceSuccess {
		t.Fatalf("ForcePush: result=%v err=%v", result, err)
	}

	result, err := c.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if result != PopSuccessDiscarded {
		t.Fatalf("Pop: got %v, want PopSuccessDiscarded", result)
	}
	if got := readByte(c); got != 7 {
		t.Fatalf("current message: got %d, want 7", got)
	}

	result, err = c.Pop()
	if err != nil {
		t.Fatalf("second Pop: %v", err)
	}
	if result != PopNoNewMessage {
		t.Fatalf("second Pop: got %v, want PopNoNewMessage", result)
	}
}

// TestQueueS2 is spec scenario S2: four force-pushes with no
// intervening pops leave exactly two unread messages (the mandatory
// minimum of three slots reserves one for the producer's current
// write), so draining takes two pops: the first is the discarded
// warm-up pop (oldest survivor), the second delivers the freshest
// value, the third reports no new message.
func TestQueueS2(t *testing.T) {
	p, c, cleanup := newTestQueuePair(t, 0, 1)
	defer cleanup()

	for _, v := range []byte{1, 2, 3, 4} {
		writeByte(p, v)
		if _, err := p.ForcePush(); err != nil {
			t.Fatalf("ForcePush(%d): %v", v, err)
		}
	}

	result, err := c.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if result != PopSuccessDiscarded {
		t.Fatalf("Pop: got %v, want PopSuccessDiscarded", result)
	}
	if got := readByte(c); got != 3 {
		t.Fatalf("current message: got %d, want 3 (oldest survivor)", got)
	}

	result, err = c.Pop()
	if err != nil {
		t.Fatalf("second Pop: %v", err)
	}
	if result != PopSuccess {
		t.Fatalf("second Pop: got %v, want PopSuccess", result)
	}
	if got := readByte(c); got != 4 {
		t.Fatalf("current message: got %d, want 4 (freshest)", got)
	}

	if result, err := c.Pop(); err != nil || result != PopNoNewMessage {
		t.Fatalf("third Pop: result=%v err=%v", result, err)
	}
}

// TestQueueTryPushFullness is spec scenario S3 (try-push fills the
// queue, then a pop frees a slot for a retry), with the exact sequence
// adjusted to the queue's real capacity: the mandatory minimum of
// three slots always reserves one for the producer's current write, so
// only two try-pushes succeed before a third reports QueueFull without
// mutating anything. Because a discarded-branch pop marks the tail
// consumed without advancing its slot, a warm-up pop is needed before
// a later pop actually frees capacity for a retried try-push.
func TestQueueTryPushFullness(t *testing.T) {
	p, c, cleanup := newTestQueuePair(t, 0, 1)
	defer cleanup()

	writeByte(p, 1)
	if result, err := p.TryPush(); err != nil || result != TrySuccess {
		t.Fatalf("first TryPush: result=%v err=%v, want TrySuccess", result, err)
	}

	result, err := c.Pop()
	if err != nil || result != PopSuccessDiscarded {
		t.Fatalf("warm-up Pop: result=%v err=%v, want PopSuccessDiscarded", result, err)
	}
	if got := readByte(c); got != 1 {
		t.Fatalf("warm-up Pop message: got %d, want 1", got)
	}

	writeByte(p, 2)
	if result, err := p.TryPush(); err != nil || result != TrySuccess {
		t.Fatalf("second TryPush: result=%v err=%v, want TrySuccess", result, err)
	}

	writeByte(p, 99)
	if result, err := p.TryPush(); err != nil || result != TryQueueFull {
		t.Fatalf("third TryPush: result=%v err=%v, want TryQueueFull", result, err)
	}

	result, err = c.Pop()
	if err != nil || result != PopSuccess {
		t.Fatalf("Pop: result=%v err=%v, want PopSuccess", result, err)
	}
	if got := readByte(c); got != 2 {
		t.Fatalf("Pop message: got %d, want 2", got)
	}

	writeByte(p, 3)
	if result, err := p.TryPush(); err != nil || result != TrySuccess {
		t.Fatalf("retried TryPush: result=%v err=%v, want TrySuccess", result, err)
	}
}

// TestQueueS6 is spec scenario S6: the producer force-pushes while the
// consumer holds the tail mid-pop (simulated by driving the consumer's
// fetch_or directly), landing in the overrun branch; permutation
// closure and valid-index invariants must hold throughout.
func TestQueueS6(t *testing.T) {
	p, c, cleanup := newTestQueuePair(t, 0, 1)
	defer cleanup()

	for _, v := range []byte{1, 2, 3} {
		writeByte(p, v)
		if _, err := p.ForcePush(); err != nil {
			t.Fatalf("fill ForcePush(%d): %v", v, err)
		}
	}

	// Simulate the consumer marking tail "consumed" without advancing
	// current, as pop's step 1 does, leaving it "mid read".
	old := c.q.tail.fetchOrAcqRel(consumedFlag)
	if old == indexInvalid {
		t.Fatalf("expected a published tail before simulating mid-pop")
	}

	writeByte(p, 4)
	result, err := p.ForcePush()
	if err != nil {
		t.Fatalf("overrun ForcePush: %v", err)
	}
	if result != ForceSuccessDiscarded {
		t.Fatalf("overrun ForcePush: got %v, want ForceSuccessDiscarded", result)
	}
	if p.overrun == indexInvalid {
		t.Fatalf("expected producer to record an in-flight overrun")
	}
	assertChainWellFormed(t, p)
}

// assertChainWellFormed checks the producer's local chain mirror for
// structural corruption after an overrun: every slot holds either a
// valid index or the sentinel, exactly one slot (the local head) holds
// the sentinel, and every other slot is reachable by following chain
// pointers starting from that head's sole predecessor chain — i.e. the
// N slots form one singly-linked path terminated by the sentinel at
// head, not a branching or looping structure.
//
// Before any message is published chain is a true N-cycle (no
// sentinel anywhere); this check only applies once head != sentinel.
func assertChainWellFormed(t *testing.T, p *ProducerQueue) {
	t.Helper()
	n := len(p.chain)

	sentinelCount := 0
	sentinelSlot := index(0)
	for i, v := range p.chain {
		if v == indexInvalid {
			sentinelCount++
			sentinelSlot = index(i)
			continue
		}
		if !validIndex(v, n) {
			t.Fatalf("chain[%d] holds out-of-range value %d", i, v)
		}
	}
	if sentinelCount != 1 {
		t.Fatalf("expected exactly one sentinel chain entry, found %d", sentinelCount)
	}
	if sentinelSlot != p.head {
		t.Fatalf("sentinel chain entry at slot %d, want producer head %d", sentinelSlot, p.head)
	}

	// every slot other than head must have exactly one predecessor,
	// and following predecessors from head must reach every slot.
	predecessor := make([]index, n)
	for i := range predecessor {
		predecessor[i] = indexInvalid
	}
	for i, v := range p.chain {
		if v == indexInvalid {
			continue
		}
		if predecessor[v] != indexInvalid {
			t.Fatalf("slot %d has two predecessors: %d and %d", v, predecessor[v], i)
		}
		predecessor[v] = index(i)
	}

	cur := p.head
	seen := make([]bool, n)
	for i := 0; i < n; i++ {
		seen[cur] = true
		prev := predecessor[cur]
		if prev == indexInvalid {
			break
		}
		cur = prev
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("slot %d not reachable by walking predecessors from head", i)
		}
	}
}

// TestQueueFlush checks that flush jumps straight to the freshest
// message and reports NoMessage on an untouched queue.
func TestQueueFlush(t *testing.T) {
	p, c, cleanup := newTestQueuePair(t, 0, 1)
	defer cleanup()

	if result, err := c.Flush(); err != nil || result != FlushNoMessage {
		t.Fatalf("Flush on empty queue: result=%v err=%v", result, err)
	}

	for _, v := range []byte{1, 2, 3} {
		writeByte(p, v)
		if _, err := p.ForcePush(); err != nil {
			t.Fatalf("ForcePush(%d): %v", v, err)
		}
	}

	result, err := c.Flush()
	if err != nil || result != FlushSuccess {
		t.Fatalf("Flush: result=%v err=%v", result, err)
	}
	if got := readByte(c); got != 3 {
		t.Fatalf("current message after flush: got %d, want 3 (freshest)", got)
	}
	if result, err := c.Pop(); err != nil || result != PopNoNewMessage {
		t.Fatalf("Pop after flush: result=%v err=%v, want PopNoNewMessage", result, err)
	}
}

// TestQueueMinimumCapacity checks the mandatory minimum of three slots.
func TestQueueMinimumCapacity(t *testing.T) {
	p, _, cleanup := newTestQueuePair(t, 0, 1)
	defer cleanup()
	if n := len(p.chain); n != MinMessages {
		t.Fatalf("capacity: got %d, want %d", n, MinMessages)
	}
}
