// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import (
	"fmt"

	"code.hybscloud.com/atomix"
)

// ChannelSpec describes one channel's dimensions ahead of a handshake:
// how many messages beyond the mandatory minimum of three it can hold,
// the size of each message, whether it carries a wake-up descriptor,
// and an opaque info blob carried alongside it.
//
// Grounded on original_source/src/protocol.rs's ChannelParam.
type ChannelSpec struct {
	AdditionalMessages int
	MessageSize        int
	WakeUp             bool
	Info               []byte
}

func (s ChannelSpec) byteSize() int {
	return queueByteSize(s.AdditionalMessages, s.MessageSize)
}

// producerChannel is one producer-role slot inside a ChannelVector: a
// queue, an optional wake-up descriptor, an info blob, and a
// single-take guard.
type producerChannel struct {
	queue *ProducerQueue
	wake  *WakeSource
	info  []byte
	taken atomix.Bool
}

// consumerChannel is the consumer-role counterpart.
type consumerChannel struct {
	queue *ConsumerQueue
	wake  *WakeSource
	info  []byte
	taken atomix.Bool
}

// ChannelVector is a bidirectional bundle of independent queues mapped
// over one shared-memory arena: an ordered list of producer channels,
// an ordered list of consumer channels, and one vector-level info blob.
// Ordering is part of identity — both peers address a channel by index.
//
// Grounded on original_source/src/channel.rs's ChannelVector.
type ChannelVector struct {
	arena     *Arena
	producers []*producerChannel
	consumers []*consumerChannel
	info      []byte
}

// Info returns the vector-level opaque metadata blob.
func (v *ChannelVector) Info() []byte { return v.info }

// NumProducers returns the number of producer-role channels.
func (v *ChannelVector) NumProducers() int { return len(v.producers) }

// NumConsumers returns the number of consumer-role channels.
func (v *ChannelVector) NumConsumers() int { return len(v.consumers) }

// ProducerInfo returns the info blob of producer channel i.
func (v *ChannelVector) ProducerInfo(i int) ([]byte, error) {
	if i < 0 || i >= len(v.producers) {
		return nil, fmt.Errorf("%w: producer index %d out of range", ErrInvalidResource, i)
	}
	return v.producers[i].info, nil
}

// ConsumerInfo returns the info blob of consumer channel i.
func (v *ChannelVector) ConsumerInfo(i int) ([]byte, error) {
	if i < 0 || i >= len(v.consumers) {
		return nil, fmt.Errorf("%w: consumer index %d out of range", ErrInvalidResource, i)
	}
	return v.consumers[i].info, nil
}

// TakeProducer yields ownership of producer channel i. It succeeds
// exactly once per index; subsequent calls return [ErrRejected].
func (v *ChannelVector) TakeProducer(i int) (*ProducerQueue, *WakeSource, error) {
	if i < 0 || i >= len(v.producers) {
		return nil, nil, fmt.Errorf("%w: producer index %d out of range", ErrInvalidResource, i)
	}
	ch := v.producers[i]
	if !ch.taken.CompareAndSwapAcqRel(false, true) {
		return nil, nil, fmt.Errorf("%w: producer %d already taken", ErrRejected, i)
	}
	return ch.queue, ch.wake, nil
}

// TakeConsumer yields ownership of consumer channel i. It succeeds
// exactly once per index; subsequent calls return [ErrRejected].
func (v *ChannelVector) TakeConsumer(i int) (*ConsumerQueue, *WakeSource, error) {
	if i < 0 || i >= len(v.consumers) {
		return nil, nil, fmt.Errorf("%w: consumer index %d out of range", ErrInvalidResource, i)
	}
	ch := v.consumers[i]
	if !ch.taken.CompareAndSwapAcqRel(false, true) {
		return nil, nil, fmt.Errorf("%w: consumer %d already taken", ErrRejected, i)
	}
	return ch.queue, ch.wake, nil
}

// Close releases every queue's chunk and the vector's own reference on
// the underlying arena, and closes the wake-up descriptor of every
// channel, taken or not.
func (v *ChannelVector) Close() error {
	for _, ch := range v.producers {
		if ch.wake != nil {
			_ = ch.wake.Close()
		}
		_ = ch.queue.q.chunk.Close()
	}
	for _, ch := range v.consumers {
		if ch.wake != nil {
			_ = ch.wake.Close()
		}
		_ = ch.queue.q.chunk.Close()
	}
	return v.arena.Close()
}
