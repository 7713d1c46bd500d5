// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// index is the logical type of a shared queue index cell: a 31-bit slot
// id, plus, for the tail cell only, the consumed flag in the top bit.
type index = uint32

const (
	// indexInvalid is the sentinel meaning "no slot" (the spec's
	// 0xFFFFFFFF, masked).
	indexInvalid index = ^index(0)

	// consumedFlag is the high bit of the shared tail cell, asserted by
	// the consumer on any pop attempt.
	consumedFlag index = 1 << 31

	// indexValueMask strips the consumed flag, leaving the 31-bit slot
	// id (or the masked sentinel, which is never itself a valid id).
	indexValueMask index = consumedFlag - 1
)

// atomicIndex is a single shared 32-bit index cell. It is laid out
// identically to atomix.Int32 (a single wrapped field), which lets
// shm.Chunk hand out *atomicIndex pointers directly into mapped memory
// the same way original_source's queue.rs builds AtomicIndex::from_ptr
// over raw *mut Index cells.
//
// The queue's index values are logically uint32, but atomix exposes
// signed 32-bit atomics; the bit pattern is identical either way, so
// conversion at the edges here is the only place that needs to know.
type atomicIndex struct {
	v atomix.Int32
}

func (c *atomicIndex) loadRelaxed() index {
	return index(uint32(c.v.LoadRelaxed()))
}

func (c *atomicIndex) storeRelaxed(val index) {
	c.v.StoreRelaxed(int32(val))
}

func (c *atomicIndex) loadAcquire() index {
	return index(uint32(c.v.LoadAcquire()))
}

func (c *atomicIndex) storeRelease(val index) {
	c.v.StoreRelease(int32(val))
}

func (c *atomicIndex) casAcqRel(old, new index) bool {
	return c.v.CompareAndSwapAcqRel(int32(old), int32(new))
}

// fetchOrAcqRel sets the given bits and returns the value observed
// before the update. atomix has no native fetch-or, so this emulates it
// with a CAS retry loop, backing off with spin.Wait the same way the
// teacher's own CAS loops do in mpmc_compact.go and mpmc_seq.go.
func (c *atomicIndex) fetchOrAcqRel(bits index) index {
	sw := spin.Wait{}
	for {
		old := c.loadAcquire()
		if old&bits == bits {
			return old
		}
		if c.casAcqRel(old, old|bits) {
			return old
		}
		sw.Once()
	}
}

// validIndex reports whether idx (already masked of the consumed flag)
// is a valid slot id for a queue of the given capacity.
func validIndex(idx index, capacity int) bool {
	return idx < index(capacity)
}
