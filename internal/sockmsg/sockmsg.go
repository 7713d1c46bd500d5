// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sockmsg isolates the raw SOCK_SEQPACKET + SCM_RIGHTS
// plumbing used by the handshake: one datagram, optionally carrying a
// list of ancillary file descriptors. It mirrors the teacher's
// internal/asm convention of quarantining unsafe, OS-specific code
// behind an internal package boundary, applied here to syscall
// plumbing instead of architecture-specific assembly.
package sockmsg

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// maxFds bounds the ancillary descriptors accepted per datagram. The
// handshake never needs more than one arena fd plus one wake-up per
// channel; this is a generous ceiling against a malformed peer.
const maxFds = 256

// maxPayload bounds a single datagram's byte payload.
const maxPayload = 1 << 20

// Message is one SOCK_SEQPACKET datagram: a byte payload and zero or
// more ancillary file descriptors, in the order the sender attached
// them.
type Message struct {
	Bytes []byte
	Fds   []int
}

// Endpoint wraps a bound SOCK_SEQPACKET socket descriptor.
type Endpoint struct {
	fd int
}

// Listen creates a listening SOCK_SEQPACKET endpoint bound to addr (a
// filesystem path). The caller is responsible for unlinking addr, if
// filesystem-backed, once the endpoint is closed.
func Listen(addr string, backlog int) (*Endpoint, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	sa := &unix.SockaddrUnix{Name: addr}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Endpoint{fd: fd}, nil
}

// Dial connects a SOCK_SEQPACKET endpoint to a listening peer at addr.
func Dial(addr string) (*Endpoint, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	sa := &unix.SockaddrUnix{Name: addr}
	if err := unix.Connect(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Endpoint{fd: fd}, nil
}

// Accept blocks until a connecting peer arrives and returns an
// endpoint for the accepted connection.
func (e *Endpoint) Accept() (*Endpoint, error) {
	fd, _, err := unix.Accept(e.fd)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	return &Endpoint{fd: fd}, nil
}

// Fd returns the raw socket descriptor.
func (e *Endpoint) Fd() int { return e.fd }

// Close closes the endpoint.
func (e *Endpoint) Close() error { return unix.Close(e.fd) }

// Send writes one datagram, attaching fds as an SCM_RIGHTS ancillary
// message when non-empty.
func (e *Endpoint) Send(msg Message) error {
	var oob []byte
	if len(msg.Fds) > 0 {
		oob = unix.UnixRights(msg.Fds...)
	}
	return unix.Sendmsg(e.fd, msg.Bytes, oob, nil, 0)
}

// Recv reads one datagram and any attached SCM_RIGHTS descriptors.
func (e *Endpoint) Recv() (Message, error) {
	buf := make([]byte, maxPayload)
	oob := make([]byte, unix.CmsgSpace(maxFds*4))

	n, oobn, _, _, err := unix.Recvmsg(e.fd, buf, oob, 0)
	if err != nil {
		return Message{}, fmt.Errorf("recvmsg: %w", err)
	}

	fds, err := parseFds(oob[:oobn])
	if err != nil {
		return Message{}, err
	}

	return Message{Bytes: buf[:n], Fds: fds}, nil
}

func parseFds(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for _, scm := range scms {
		parsed, err := unix.ParseUnixRights(&scm)
		if err != nil {
			return nil, fmt.Errorf("parse unix rights: %w", err)
		}
		fds = append(fds, parsed...)
	}
	return fds, nil
}
