// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import (
	"encoding/binary"
	"fmt"
)

const (
	requestMagic   uint16 = 0x1f0c
	requestVersion uint16 = 1
	atomicIndexWidth uint16 = 4

	headerSize      = 20 // magic,version,cacheline,width,vectorInfoSize,producers,consumers
	channelEntrySize = 16
	responseSize    = 4
)

// VectorSpec is the wire-level description of a channel vector's
// dimensions, independent of any particular arena: the producer and
// consumer channel specs (in order) and the vector-level info blob.
//
// Grounded on original_source/src/protocol.rs's Request/ChannelParam.
type VectorSpec struct {
	Producers []ChannelSpec
	Consumers []ChannelSpec
	Info      []byte
}

// byteSize returns the arena size needed to hold every queue named by
// the spec (index + data regions for each channel).
func (s VectorSpec) byteSize() int {
	total := 0
	for _, p := range s.Producers {
		total += p.byteSize()
	}
	for _, c := range s.Consumers {
		total += c.byteSize()
	}
	return total
}

// encodeRequest serializes spec into the wire request format described
// in the protocol's external interface: fixed header, vector info
// length, producer/consumer counts, a packed channel-entry table,
// vector info bytes, then per-channel info bytes in producer-then-
// consumer order.
func encodeRequest(spec VectorSpec) []byte {
	entries := len(spec.Producers) + len(spec.Consumers)
	size := headerSize + entries*channelEntrySize + len(spec.Info)
	for _, p := range spec.Producers {
		size += len(p.Info)
	}
	for _, c := range spec.Consumers {
		size += len(c.Info)
	}

	buf := make([]byte, size)
	binary.NativeEndian.PutUint16(buf[0:2], requestMagic)
	binary.NativeEndian.PutUint16(buf[2:4], requestVersion)
	binary.NativeEndian.PutUint16(buf[4:6], uint16(CacheLineSize()))
	binary.NativeEndian.PutUint16(buf[6:8], atomicIndexWidth)
	binary.NativeEndian.PutUint32(buf[8:12], uint32(len(spec.Info)))
	binary.NativeEndian.PutUint32(buf[12:16], uint32(len(spec.Producers)))
	binary.NativeEndian.PutUint32(buf[16:20], uint32(len(spec.Consumers)))

	off := headerSize
	putEntry := func(c ChannelSpec) {
		binary.NativeEndian.PutUint32(buf[off:off+4], uint32(c.AdditionalMessages))
		binary.NativeEndian.PutUint32(buf[off+4:off+8], uint32(c.MessageSize))
		flag := uint32(0)
		if c.WakeUp {
			flag = 1
		}
		binary.NativeEndian.PutUint32(buf[off+8:off+12], flag)
		binary.NativeEndian.PutUint32(buf[off+12:off+16], uint32(len(c.Info)))
		off += channelEntrySize
	}
	for _, p := range spec.Producers {
		putEntry(p)
	}
	for _, c := range spec.Consumers {
		putEntry(c)
	}

	off += copy(buf[off:], spec.Info)
	for _, p := range spec.Producers {
		off += copy(buf[off:], p.Info)
	}
	for _, c := range spec.Consumers {
		off += copy(buf[off:], c.Info)
	}

	return buf
}

// decodeRequest parses a wire request, rejecting on a header mismatch
// against this host's own cache line size and atomic index width, or
// on any truncation or length inconsistency.
func decodeRequest(buf []byte) (VectorSpec, error) {
	var spec VectorSpec

	if len(buf) < headerSize {
		return spec, fmt.Errorf("%w: request shorter than header", ErrMalformedRequest)
	}
	magic := binary.NativeEndian.Uint16(buf[0:2])
	version := binary.NativeEndian.Uint16(buf[2:4])
	cacheLine := binary.NativeEndian.Uint16(buf[4:6])
	width := binary.NativeEndian.Uint16(buf[6:8])
	if magic != requestMagic || version != requestVersion {
		return spec, fmt.Errorf("%w: magic/version mismatch", ErrLayoutMismatch)
	}
	if int(cacheLine) != CacheLineSize() || width != atomicIndexWidth {
		return spec, fmt.Errorf("%w: cache line or atomic width mismatch", ErrLayoutMismatch)
	}

	vectorInfoSize := binary.NativeEndian.Uint32(buf[8:12])
	producerCount := binary.NativeEndian.Uint32(buf[12:16])
	consumerCount := binary.NativeEndian.Uint32(buf[16:20])
	entries := int(producerCount) + int(consumerCount)

	tableEnd := headerSize + entries*channelEntrySize
	if tableEnd > len(buf) {
		return spec, fmt.Errorf("%w: channel entry table exceeds buffer", ErrMalformedRequest)
	}

	type rawEntry struct {
		additionalMessages, messageSize, eventfdFlag, infoSize uint32
	}
	raw := make([]rawEntry, entries)
	off := headerSize
	for i := range raw {
		raw[i] = rawEntry{
			additionalMessages: binary.NativeEndian.Uint32(buf[off : off+4]),
			messageSize:        binary.NativeEndian.Uint32(buf[off+4 : off+8]),
			eventfdFlag:        binary.NativeEndian.Uint32(buf[off+8 : off+12]),
			infoSize:           binary.NativeEndian.Uint32(buf[off+12 : off+16]),
		}
		if raw[i].messageSize == 0 {
			return spec, fmt.Errorf("%w: zero message size at entry %d", ErrMalformedRequest, i)
		}
		off += channelEntrySize
	}

	remaining := len(buf) - tableEnd
	if int(vectorInfoSize) > remaining {
		return spec, fmt.Errorf("%w: vector info size exceeds buffer", ErrMalformedRequest)
	}
	off = tableEnd
	spec.Info = buf[off : off+int(vectorInfoSize)]
	off += int(vectorInfoSize)

	specs := make([]ChannelSpec, entries)
	for i, r := range raw {
		if int(r.infoSize) > len(buf)-off {
			return spec, fmt.Errorf("%w: channel info size exceeds buffer", ErrMalformedRequest)
		}
		specs[i] = ChannelSpec{
			AdditionalMessages: int(r.additionalMessages),
			MessageSize:        int(r.messageSize),
			WakeUp:             r.eventfdFlag != 0,
			Info:               buf[off : off+int(r.infoSize)],
		}
		off += int(r.infoSize)
	}

	spec.Producers = specs[:producerCount]
	spec.Consumers = specs[producerCount:]
	return spec, nil
}

// encodeResponse produces the 4-byte accept/reject sentinel.
func encodeResponse(accept bool) []byte {
	buf := make([]byte, responseSize)
	if !accept {
		for i := range buf {
			buf[i] = 0xFF
		}
	}
	return buf
}

// decodeResponse parses the 4-byte response, failing with
// [ErrMalformedResponse] on anything other than the all-zero or
// all-0xFF sentinels.
func decodeResponse(buf []byte) (bool, error) {
	if len(buf) != responseSize {
		return false, fmt.Errorf("%w: response is not %d bytes", ErrMalformedResponse, responseSize)
	}
	allZero, allFF := true, true
	for _, b := range buf {
		if b != 0x00 {
			allZero = false
		}
		if b != 0xFF {
			allFF = false
		}
	}
	switch {
	case allZero:
		return true, nil
	case allFF:
		return false, nil
	default:
		return false, fmt.Errorf("%w: unrecognized response sentinel", ErrMalformedResponse)
	}
}
