// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc

import "code.hybscloud.com/iox"

// Hard failures. Each represents a condition the caller cannot retry its
// way out of: the resource, the peer, or the shared memory itself is in
// a state the protocol does not define recovery from.
var (
	// ErrResourceExhausted means an arena, wake-up descriptor, or socket
	// could not be allocated.
	ErrResourceExhausted = &rtipcError{"resource exhausted"}

	// ErrInvalidResource means a descriptor passed over the handshake
	// socket is not of the expected kind (not a memfd, not an eventfd)
	// or has zero size.
	ErrInvalidResource = &rtipcError{"invalid resource"}

	// ErrLayoutMismatch means the request header's magic, version,
	// cache-line size, or atomic index width disagrees with this host.
	ErrLayoutMismatch = &rtipcError{"layout mismatch"}

	// ErrMalformedRequest means the request buffer is truncated, names
	// a zero message size, or an info length exceeding the buffer.
	ErrMalformedRequest = &rtipcError{"malformed request"}

	// ErrMalformedResponse means the 4-byte response did not parse to
	// either the accept or reject sentinel.
	ErrMalformedResponse = &rtipcError{"malformed response"}

	// ErrRejected means the acceptor's predicate returned false, or the
	// response parsed to the reject sentinel.
	ErrRejected = &rtipcError{"handshake rejected"}

	// ErrMissingDescriptor means fewer ancillary descriptors arrived
	// than the request's channel entries demand.
	ErrMissingDescriptor = &rtipcError{"missing file descriptor"}

	// ErrQueueCorrupted means an index cell held a value outside its
	// invariant (neither a valid slot id nor the sentinel). The queue
	// that produced it is poisoned; callers should tear it down.
	ErrQueueCorrupted = &rtipcError{"queue index corrupted"}

	// ErrInterrupted means an underlying system call was interrupted
	// and may be retried.
	ErrInterrupted = &rtipcError{"interrupted"}
)

// Semantic control-flow signals. These are not failures: they tell the
// caller the operation did not change state and may be retried or is
// simply a normal outcome (e.g. nothing to read yet).
var (
	// ErrQueueFull is the error form of a full queue; TryPush itself
	// reports a full queue as the TryQueueFull result, not as this
	// error. Aliased onto iox's would-block classification so callers
	// that already branch on iox.IsWouldBlock treat it the same way
	// they treat a full channel elsewhere in the ecosystem.
	ErrQueueFull = iox.ErrWouldBlock

	// ErrNoMessage means nothing has ever been published to the queue.
	ErrNoMessage = &rtipcError{"no message"}

	// ErrNoNewMessage means a message was previously consumed and no
	// newer one has been published since.
	ErrNoNewMessage = &rtipcError{"no new message"}
)

// rtipcError is a minimal comparable sentinel error, matching the
// teacher's own errors.go preference for plain sentinels over a
// hierarchy of error types.
type rtipcError struct{ text string }

func (e *rtipcError) Error() string { return "rtipc: " + e.text }

// IsWouldBlock reports whether err is a control-flow signal meaning the
// operation could not proceed immediately (full queue, no message).
// Delegates to [iox.IsWouldBlock] for the ErrQueueFull case and treats
// ErrNoMessage/ErrNoNewMessage the same way.
func IsWouldBlock(err error) bool {
	return err == ErrNoMessage || err == ErrNoNewMessage || iox.IsWouldBlock(err)
}
