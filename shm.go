// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Arena is a scoped, sealed, memory-mapped shared-memory region backed
// by an anonymous file (memfd). It hands out Chunks by byte offset; the
// mapping is released exactly once, when the last
// outstanding Chunk (plus the Arena's own initial reference) has been
// closed.
//
// Grounded on original_source/src/shm.rs (SharedMemory/Chunk/Span).
type Arena struct {
	fd   int
	size int
	base unsafe.Pointer

	refs   atomic.Int64
	once   sync.Once
	closed atomic.Bool
}

// NewArena allocates an anonymous, sealed, memory-mapped region of
// exactly size bytes. size must be non-zero.
func NewArena(size int) (*Arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: arena size must be positive", ErrResourceExhausted)
	}

	fd, err := unix.MemfdCreate("rtipc-arena", unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("%w: memfd_create: %v", ErrResourceExhausted, err)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: ftruncate: %v", ErrResourceExhausted, err)
	}

	seals := unix.F_SEAL_GROW | unix.F_SEAL_SHRINK | unix.F_SEAL_SEAL
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, seals); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: fcntl add seals: %v", ErrResourceExhausted, err)
	}

	return mapArena(fd, size)
}

// AdoptArena maps an existing descriptor received from a peer. The size
// is read from the descriptor's file status. Fails with
// [ErrInvalidResource] if the size is zero or the descriptor is not a
// memfd.
func AdoptArena(fd int) (*Arena, error) {
	if !isMemfd(fd) {
		return nil, fmt.Errorf("%w: descriptor is not a memfd", ErrInvalidResource)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("%w: fstat: %v", ErrInvalidResource, err)
	}
	if st.Size <= 0 {
		return nil, fmt.Errorf("%w: zero-size descriptor", ErrInvalidResource)
	}

	return mapArena(fd, int(st.Size))
}

func mapArena(fd, size int) (*Arena, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: mmap: %v", ErrResourceExhausted, err)
	}

	a := &Arena{
		fd:   fd,
		size: size,
		base: unsafe.Pointer(&data[0]),
	}
	a.refs.Store(1)
	return a, nil
}

// Fd returns the raw file descriptor backing the arena, for handing off
// to a peer during the handshake.
func (a *Arena) Fd() int { return a.fd }

// Size returns the arena's total byte size.
func (a *Arena) Size() int { return a.size }

// Alloc returns a handle to the byte range [offset, offset+size). It is
// checked against the arena size only: earlier allocations are not
// tracked, so an overlapping or repeated range is not rejected, and
// keeping queues apart rests on the caller's offsets.
func (a *Arena) Alloc(offset, size int) (*Chunk, error) {
	if offset < 0 || size <= 0 || offset+size > a.size {
		return nil, fmt.Errorf("%w: chunk [%d,%d) exceeds arena size %d", ErrInvalidResource, offset, offset+size, a.size)
	}
	a.refs.Add(1)
	return &Chunk{arena: a, offset: offset, size: size}, nil
}

// Close releases the Arena's own initial reference. The mapping is torn
// down once every Chunk allocated from it has also been closed.
func (a *Arena) Close() error {
	return a.release()
}

func (a *Arena) release() error {
	if a.refs.Add(-1) == 0 {
		a.once.Do(func() {
			a.closed.Store(true)
			data := unsafe.Slice((*byte)(a.base), a.size)
			_ = unix.Munmap(data)
			_ = unix.Close(a.fd)
		})
	}
	return nil
}

// Chunk is a handle to a byte range inside an Arena.
type Chunk struct {
	arena  *Arena
	offset int
	size   int
}

// Size returns the chunk's byte length.
func (c *Chunk) Size() int { return c.size }

// Close releases the chunk's reference on the underlying arena.
func (c *Chunk) Close() error { return c.arena.release() }

// Bytes returns the raw byte slice backing span [inner, inner+size)
// within the chunk, bounds-checked against the chunk's extent.
func (c *Chunk) Bytes(inner, size int) ([]byte, error) {
	if inner < 0 || size < 0 || inner+size > c.size {
		return nil, fmt.Errorf("%w: span [%d,%d) exceeds chunk size %d", ErrInvalidResource, inner, inner+size, c.size)
	}
	ptr := unsafe.Add(c.arena.base, c.offset+inner)
	return unsafe.Slice((*byte)(ptr), size), nil
}

// index32 returns a pointer to the 32-bit atomic index cell at the
// given inner byte offset, bounds-checked against the chunk's extent.
// Alignment of the offset to 4 bytes is the caller's responsibility; in
// practice all callers derive offsets from cache-line-aligned regions
// plus a whole number of 4-byte cells.
func (c *Chunk) index32(inner int) (*atomicIndex, error) {
	if inner < 0 || inner+4 > c.size {
		return nil, fmt.Errorf("%w: index cell at %d exceeds chunk size %d", ErrInvalidResource, inner, c.size)
	}
	ptr := unsafe.Add(c.arena.base, c.offset+inner)
	return (*atomicIndex)(ptr), nil
}

// isMemfd verifies, by inspecting /proc/self/fd/<fd>, that fd points to
// a memfd-backed file. This is the Go rendering of
// original_source/src/unix.rs::check_memfd, preventing a peer from
// passing a regular file or socket that would misbehave when mmap'd.
func isMemfd(fd int) bool {
	link, err := readFdLink(fd)
	if err != nil {
		return false
	}
	const prefix = "/memfd:"
	return len(link) >= len(prefix) && link[:len(prefix)] == prefix
}

func readFdLink(fd int) (string, error) {
	path := fmt.Sprintf("/proc/self/fd/%d", fd)
	buf := make([]byte, 128)
	n, err := unix.Readlink(path, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}
