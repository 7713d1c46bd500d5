// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"code.hybscloud.com/rtipc/internal/sockmsg"
)

// Predicate inspects a freshly-constructed channel vector on the
// acceptor side and decides whether to accept the handshake.
type Predicate func(*ChannelVector) bool

type handshakeOptions struct {
	logger    log.Logger
	predicate Predicate
}

// Option configures a handshake endpoint.
type Option func(*handshakeOptions)

// WithLogger sets the logger used for handshake diagnostics. Defaults
// to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(o *handshakeOptions) { o.logger = logger }
}

// WithPredicate sets the acceptor-side predicate run against the
// constructed vector before the accept response is sent.
func WithPredicate(p Predicate) Option {
	return func(o *handshakeOptions) { o.predicate = p }
}

func buildOptions(opts ...Option) handshakeOptions {
	o := handshakeOptions{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// allocateQueues carves one sharedQueue out of arena per spec, in
// order, packing them back to back starting at offset. It returns the
// offset just past the last queue it carved, so callers can thread one
// running offset across the producer list and then the consumer list —
// matching original_source/src/lib.rs's calc_shm_size, which accumulates
// a single running size across both lists in sequence. Both the
// initiator and the acceptor call this over the same spec lists, in the
// same producers-then-consumers order, and therefore land on identical
// offsets without needing to transmit them.
func allocateQueues(arena *Arena, specs []ChannelSpec, offset int) ([]*sharedQueue, int, error) {
	queues := make([]*sharedQueue, len(specs))
	for i, s := range specs {
		size := s.byteSize()
		chunk, err := arena.Alloc(offset, size)
		if err != nil {
			return nil, 0, err
		}
		q, err := newSharedQueue(chunk, s.AdditionalMessages, s.MessageSize)
		if err != nil {
			return nil, 0, err
		}
		queues[i] = q
		offset += size
	}
	return queues, offset, nil
}

// Dial performs the initiator side of the handshake: it allocates the
// arena and wake-up descriptors, initializes every queue's index
// region, sends the request datagram with ancillary descriptors, and
// waits for the accept/reject response.
//
// Grounded on original_source/src/socket.rs's initiator path.
func Dial(addr string, spec VectorSpec, opts ...Option) (*ChannelVector, error) {
	o := buildOptions(opts...)

	size := spec.byteSize()
	arena, err := NewArena(size)
	if err != nil {
		return nil, err
	}

	producerQueues, offset, err := allocateQueues(arena, spec.Producers, 0)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}
	consumerQueues, _, err := allocateQueues(arena, spec.Consumers, offset)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}
	for _, q := range producerQueues {
		initQueueIndex(q)
	}
	for _, q := range consumerQueues {
		initQueueIndex(q)
	}

	producerWakes := make([]*WakeSource, len(spec.Producers))
	for i, s := range spec.Producers {
		if !s.WakeUp {
			continue
		}
		w, err := NewWakeSource()
		if err != nil {
			_ = arena.Close()
			return nil, err
		}
		producerWakes[i] = w
	}
	consumerWakes := make([]*WakeSource, len(spec.Consumers))
	for i, s := range spec.Consumers {
		if !s.WakeUp {
			continue
		}
		w, err := NewWakeSource()
		if err != nil {
			_ = arena.Close()
			return nil, err
		}
		consumerWakes[i] = w
	}

	ep, err := sockmsg.Dial(addr)
	if err != nil {
		_ = arena.Close()
		return nil, fmt.Errorf("%w: dial: %v", ErrResourceExhausted, err)
	}
	defer func() { _ = ep.Close() }()

	fds := []int{arena.Fd()}
	for _, w := range producerWakes {
		if w != nil {
			fds = append(fds, w.Fd())
		}
	}
	for _, w := range consumerWakes {
		if w != nil {
			fds = append(fds, w.Fd())
		}
	}

	if err := ep.Send(sockmsg.Message{Bytes: encodeRequest(spec), Fds: fds}); err != nil {
		_ = arena.Close()
		return nil, fmt.Errorf("%w: send request: %v", ErrResourceExhausted, err)
	}

	respMsg, err := ep.Recv()
	if err != nil {
		_ = arena.Close()
		return nil, fmt.Errorf("%w: recv response: %v", ErrResourceExhausted, err)
	}
	accepted, err := decodeResponse(respMsg.Bytes)
	if err != nil {
		_ = arena.Close()
		return nil, err
	}
	if !accepted {
		level.Info(o.logger).Log("msg", "handshake rejected by acceptor")
		_ = arena.Close()
		return nil, ErrRejected
	}

	vec := &ChannelVector{arena: arena, info: spec.Info}
	vec.producers = make([]*producerChannel, len(spec.Producers))
	for i, q := range producerQueues {
		vec.producers[i] = &producerChannel{
			queue: NewProducerQueue(q),
			wake:  producerWakes[i],
			info:  spec.Producers[i].Info,
		}
	}
	vec.consumers = make([]*consumerChannel, len(spec.Consumers))
	for i, q := range consumerQueues {
		vec.consumers[i] = &consumerChannel{
			queue: NewConsumerQueue(q),
			wake:  consumerWakes[i],
			info:  spec.Consumers[i].Info,
		}
	}
	return vec, nil
}

// Server listens for incoming handshakes on a SOCK_SEQPACKET address.
type Server struct {
	ep   *sockmsg.Endpoint
	addr string
	o    handshakeOptions
}

// Listen creates a listening handshake server bound to addr.
func Listen(addr string, opts ...Option) (*Server, error) {
	ep, err := sockmsg.Listen(addr, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: listen: %v", ErrResourceExhausted, err)
	}
	return &Server{ep: ep, addr: addr, o: buildOptions(opts...)}, nil
}

// Close closes the listening socket.
func (s *Server) Close() error { return s.ep.Close() }

// Accept performs the acceptor side of one handshake: it accepts a
// connection, receives the request datagram and ancillary descriptors,
// validates the header against this host's layout, verifies each
// descriptor's kind, maps the arena, swaps the producer/consumer lists
// to build this side's view, runs the optional predicate, and sends
// the accept/reject response.
//
// Grounded on original_source/src/socket.rs's acceptor path.
func (s *Server) Accept() (*ChannelVector, error) {
	conn, err := s.ep.Accept()
	if err != nil {
		return nil, fmt.Errorf("%w: accept: %v", ErrResourceExhausted, err)
	}
	defer func() { _ = conn.Close() }()

	msg, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("%w: recv request: %v", ErrResourceExhausted, err)
	}

	spec, err := decodeRequest(msg.Bytes)
	if err != nil {
		level.Info(s.o.logger).Log("msg", "rejecting malformed or mismatched request", "err", err)
		_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
		return nil, err
	}

	if len(msg.Fds) < 1 {
		_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
		return nil, fmt.Errorf("%w: no descriptors attached", ErrMissingDescriptor)
	}

	arena, err := AdoptArena(msg.Fds[0])
	if err != nil {
		_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
		return nil, err
	}

	fdIdx := 1
	nextWake := func() (int, bool, error) {
		if fdIdx >= len(msg.Fds) {
			return 0, false, fmt.Errorf("%w: expected wake-up descriptor", ErrMissingDescriptor)
		}
		fd := msg.Fds[fdIdx]
		fdIdx++
		return fd, true, nil
	}

	// The request's producer list is the initiator's producer role,
	// which becomes this side's consumer role; and vice versa. Offsets
	// are threaded across both lists in the same producers-then-
	// consumers order the initiator used to size and lay out the arena.
	initiatorProducerQueues, offset, err := allocateQueues(arena, spec.Producers, 0)
	if err != nil {
		_ = arena.Close()
		_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
		return nil, err
	}
	myConsumers := make([]*consumerChannel, len(spec.Producers))
	for i, q := range initiatorProducerQueues {
		var wake *WakeSource
		if spec.Producers[i].WakeUp {
			fd, ok, err := nextWake()
			if !ok {
				_ = arena.Close()
				_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
				return nil, err
			}
			wake, err = AdoptWakeSource(fd)
			if err != nil {
				_ = arena.Close()
				_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
				return nil, err
			}
		}
		myConsumers[i] = &consumerChannel{
			queue: NewConsumerQueue(q),
			wake:  wake,
			info:  spec.Producers[i].Info,
		}
	}

	initiatorConsumerQueues, _, err := allocateQueues(arena, spec.Consumers, offset)
	if err != nil {
		_ = arena.Close()
		_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
		return nil, err
	}
	myProducers := make([]*producerChannel, len(spec.Consumers))
	for i, q := range initiatorConsumerQueues {
		var wake *WakeSource
		if spec.Consumers[i].WakeUp {
			fd, ok, err := nextWake()
			if !ok {
				_ = arena.Close()
				_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
				return nil, err
			}
			wake, err = AdoptWakeSource(fd)
			if err != nil {
				_ = arena.Close()
				_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
				return nil, err
			}
		}
		myProducers[i] = &producerChannel{
			queue: NewProducerQueue(q),
			wake:  wake,
			info:  spec.Consumers[i].Info,
		}
	}

	vec := &ChannelVector{
		arena:     arena,
		producers: myProducers,
		consumers: myConsumers,
		info:      spec.Info,
	}

	if s.o.predicate != nil && !s.o.predicate(vec) {
		_ = conn.Send(sockmsg.Message{Bytes: encodeResponse(false)})
		_ = vec.Close()
		return nil, ErrRejected
	}

	if err := conn.Send(sockmsg.Message{Bytes: encodeResponse(true)}); err != nil {
		_ = vec.Close()
		return nil, fmt.Errorf("%w: send response: %v", ErrResourceExhausted, err)
	}

	return vec, nil
}
