// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// WakeSource is a counting-semaphore wake-up descriptor: each push
// increments it by one, each pop decrements it by one, non-blockingly.
// Backed by a Linux eventfd opened in semaphore mode.
//
// Grounded on original_source/src/unix.rs's EventFd wrapper.
type WakeSource struct {
	fd int
}

// NewWakeSource creates a new eventfd in EFD_SEMAPHORE|EFD_NONBLOCK
// mode, starting at zero.
func NewWakeSource() (*WakeSource, error) {
	fd, err := unix.Eventfd(0, unix.EFD_SEMAPHORE|unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: eventfd: %v", ErrResourceExhausted, err)
	}
	return &WakeSource{fd: fd}, nil
}

// AdoptWakeSource wraps a descriptor received from a peer. Fails with
// [ErrInvalidResource] if it is not an eventfd.
func AdoptWakeSource(fd int) (*WakeSource, error) {
	if !isEventfd(fd) {
		return nil, fmt.Errorf("%w: descriptor is not an eventfd", ErrInvalidResource)
	}
	return &WakeSource{fd: fd}, nil
}

// Fd returns the raw descriptor, for handing off during the handshake.
func (w *WakeSource) Fd() int { return w.fd }

// Signal increments the counter by one.
func (w *WakeSource) Signal() error {
	var buf [8]byte
	buf[0] = 1
	if _, err := unix.Write(w.fd, buf[:]); err != nil {
		return fmt.Errorf("%w: eventfd write: %v", ErrResourceExhausted, err)
	}
	return nil
}

// TryConsume decrements the counter by one if it is non-zero. It never
// blocks: a zero counter returns (false, nil).
func (w *WakeSource) TryConsume() (bool, error) {
	var buf [8]byte
	_, err := unix.Read(w.fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return false, nil
		}
		return false, fmt.Errorf("%w: eventfd read: %v", ErrResourceExhausted, err)
	}
	return true, nil
}

// Close releases the descriptor.
func (w *WakeSource) Close() error {
	return unix.Close(w.fd)
}

func isEventfd(fd int) bool {
	link, err := readFdLink(fd)
	if err != nil {
		return false
	}
	const prefix = "anon_inode:[eventfd]"
	return link == prefix
}
