// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rtipc provides a low-latency shared-memory message transport for
// two cooperating processes on the same host.
//
// Two processes establish a bidirectional channel vector: a bundle of
// independent single-producer/single-consumer queues living inside one
// shared memory arena. Producers publish the newest value without
// blocking; consumers retrieve either the next unread message or the
// freshest available one.
//
// # Quick start
//
// The initiator allocates the arena and dials a [Server] over a local
// SOCK_SEQPACKET socket:
//
//	vec, err := rtipc.Dial("rtipc.sock", rtipc.VectorSpec{
//	    Producers: []rtipc.ChannelSpec{{MessageSize: 8}},
//	    Consumers: []rtipc.ChannelSpec{{MessageSize: 16, AdditionalMessages: 10, WakeUp: true}},
//	})
//
// The acceptor listens and accepts:
//
//	srv, err := rtipc.Listen("rtipc.sock")
//	vec, err := srv.Accept()
//
// Either side then takes typed façades over its channels:
//
//	type Command struct{ ID uint32 }
//	q, wake, err := vec.TakeConsumer(0)
//	cmd, err := rtipc.NewConsumer[Command](q, wake)
//
// # Queue semantics
//
// Each queue is wait-free on both the producer and the consumer side.
// ForcePush never blocks and never reports the queue full — it discards
// the oldest unread message instead. TryPush never overwrites: it
// reports [TryQueueFull] and leaves the queue untouched. Pop returns one
// of four outcomes distinguishing "nothing yet", "nothing new", a clean
// delivery, and a delivery that skipped one or more discarded messages,
// or fails with [ErrQueueCorrupted] on a corrupt index cell.
//
// # Resource model
//
// The arena and any wake-up descriptors are released once both sides
// drop their views. There are no locks; the only blocking points are the
// handshake socket's send/receive and, optionally, a caller polling a
// wake-up descriptor.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for the shared index
// cells, [code.hybscloud.com/spin] for CAS backoff, and
// [code.hybscloud.com/iox] for would-block error classification —
// consistent with the rest of the hybscloud lock-free ecosystem.
// Handshake and codec diagnostics are logged through
// [github.com/go-kit/log].
package rtipc
