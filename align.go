// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import "unsafe"

// cachelineAligned rounds size up to the nearest multiple of the host's
// cache line size, matching original_source's cache_env.rs/cache.rs
// `cacheline_aligned` helper.
func cachelineAligned(size int) int {
	return alignUp(size, CacheLineSize())
}

// alignUp rounds n up to the nearest multiple of align. align must be a
// positive power of two.
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// pad is cache-line padding to prevent false sharing between adjacent
// hot fields, matching the teacher's pad type in options.go.
type pad [64]byte

// queueIndexHeader mirrors the teacher's own head/tail field layout in
// spsc.go (hot atomic field, pad, hot atomic field, pad): tail is
// contended (the consumer sets the consumed flag on every pop; the
// producer moves it on force-push and overrun), while head is written
// by the producer only. Separating them by a full pad keeps the
// consumer's tail traffic from invalidating the producer's head cache
// line. It is never instantiated over real memory — only its field
// offsets and overall size feed the arena's index region layout.
type queueIndexHeader struct {
	tail atomicIndex
	_    pad
	head atomicIndex
	_    pad
}

const (
	queueIndexTailOffset = int(unsafe.Offsetof(queueIndexHeader{}.tail))
	queueIndexHeadOffset = int(unsafe.Offsetof(queueIndexHeader{}.head))
	queueIndexHeaderSize = int(unsafe.Sizeof(queueIndexHeader{}))
)
