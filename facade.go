// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import (
	"fmt"
	"unsafe"
)

// Producer is a typed view of a queue's producer side: T's byte size
// must not exceed the underlying queue's message size. An optional
// local scratch buffer lets the caller build up a multi-field message
// without exposing half-written state to an opportunistic overrun.
//
// Grounded on original_source/src/channel.rs's Producer<T>.
type Producer[T any] struct {
	queue *ProducerQueue
	wake  *WakeSource
	cache *T
}

// NewProducer wraps a producer queue view as a typed façade. Fails if
// T's size exceeds the queue's message size.
func NewProducer[T any](q *ProducerQueue, wake *WakeSource) (*Producer[T], error) {
	var zero T
	if int(unsafe.Sizeof(zero)) > q.MessageSize() {
		return nil, fmt.Errorf("%w: type size %d exceeds message size %d", ErrMalformedRequest, unsafe.Sizeof(zero), q.MessageSize())
	}
	return &Producer[T]{queue: q, wake: wake}, nil
}

// EnableCache allocates the local scratch buffer. Subsequent calls to
// CurrentMessage return the scratch buffer instead of the queue's
// current slot; it is copied in on the next push.
func (p *Producer[T]) EnableCache() {
	if p.cache == nil {
		p.cache = new(T)
	}
}

// DisableCache flushes and releases the local scratch buffer. After
// this call, CurrentMessage again addresses the queue's current slot
// directly.
func (p *Producer[T]) DisableCache() {
	p.flushCache()
	p.cache = nil
}

// CurrentMessage returns a mutable view of the next message to be
// published: the scratch buffer if caching is enabled, otherwise the
// queue's current slot directly.
func (p *Producer[T]) CurrentMessage() *T {
	if p.cache != nil {
		return p.cache
	}
	return (*T)(unsafe.Pointer(&p.queue.CurrentMessage()[0]))
}

func (p *Producer[T]) flushCache() {
	if p.cache == nil {
		return
	}
	dst := (*T)(unsafe.Pointer(&p.queue.CurrentMessage()[0]))
	*dst = *p.cache
}

func (p *Producer[T]) signal() error {
	if p.wake == nil {
		return nil
	}
	return p.wake.Signal()
}

// ForcePush publishes the current message, discarding the oldest
// unread one if the queue is full, and never blocks. On any success
// outcome the wake-up descriptor (if present) is incremented by one.
func (p *Producer[T]) ForcePush() (ForceResult, error) {
	p.flushCache()
	result, err := p.queue.ForcePush()
	if err != nil {
		return 0, err
	}
	if err := p.signal(); err != nil {
		return result, err
	}
	return result, nil
}

// TryPush publishes the current message only if the queue is not
// full. If caching is enabled, the full check runs before the scratch
// buffer is copied in, so a full queue leaves it untouched.
func (p *Producer[T]) TryPush() (TryResult, error) {
	if p.cache != nil && p.queue.Full() {
		return TryQueueFull, nil
	}
	p.flushCache()
	result, err := p.queue.TryPush()
	if err != nil {
		return 0, err
	}
	if result == TrySuccess {
		if err := p.signal(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Consumer is a typed, read-only view of a queue's consumer side.
//
// Grounded on original_source/src/channel.rs's Consumer<T>.
type Consumer[T any] struct {
	queue *ConsumerQueue
	wake  *WakeSource
}

// NewConsumer wraps a consumer queue view as a typed façade. Fails if
// T's size exceeds the queue's message size.
func NewConsumer[T any](q *ConsumerQueue, wake *WakeSource) (*Consumer[T], error) {
	var zero T
	if int(unsafe.Sizeof(zero)) > q.MessageSize() {
		return nil, fmt.Errorf("%w: type size %d exceeds message size %d", ErrMalformedRequest, unsafe.Sizeof(zero), q.MessageSize())
	}
	return &Consumer[T]{queue: q, wake: wake}, nil
}

// CurrentMessage returns a read-only view of the last message
// delivered by Pop. The second return is false until the first
// successful delivery.
func (c *Consumer[T]) CurrentMessage() (*T, bool) {
	bytes, ok := c.queue.CurrentMessage()
	if !ok {
		return nil, false
	}
	return (*T)(unsafe.Pointer(&bytes[0])), true
}

// Pop first drains one unit from the wake-up descriptor (if present)
// non-blockingly. If the descriptor reports no units and the consumer
// already holds a message, it short-circuits to PopNoNewMessage; if no
// units and no message has ever been delivered, PopNoMessage; otherwise
// it delegates to the underlying queue.
func (c *Consumer[T]) Pop() (PopResult, error) {
	if c.wake != nil {
		consumed, err := c.wake.TryConsume()
		if err != nil {
			return 0, err
		}
		if !consumed {
			if _, ok := c.queue.CurrentMessage(); ok {
				return PopNoNewMessage, nil
			}
			return PopNoMessage, nil
		}
	}
	return c.queue.Pop()
}

// Flush discards everything but the freshest message.
func (c *Consumer[T]) Flush() (FlushResult, error) {
	return c.queue.Flush()
}
