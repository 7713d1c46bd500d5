// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sockmsg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSendRecvRoundTrip(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "sockmsg.sock")

	listener, err := Listen(addr, 1)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer func() { _ = listener.Close() }()

	accepted := make(chan *Endpoint, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- conn
	}()

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = client.Close() }()

	var server *Endpoint
	select {
	case err := <-acceptErr:
		t.Fatalf("Accept: %v", err)
	case server = <-accepted:
	}
	defer func() { _ = server.Close() }()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer func() { _ = r.Close() }()
	defer func() { _ = w.Close() }()

	payload := []byte("hello")
	if err := client.Send(Message{Bytes: payload, Fds: []int{int(r.Fd())}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(msg.Bytes) != string(payload) {
		t.Fatalf("payload: got %q, want %q", msg.Bytes, payload)
	}
	if len(msg.Fds) != 1 {
		t.Fatalf("fds: got %d, want 1", len(msg.Fds))
	}
	// The received descriptor is a distinct fd number but refers to the
	// same pipe: a write on w must be visible through a read on it.
	received := os.NewFile(uintptr(msg.Fds[0]), "received")
	defer func() { _ = received.Close() }()

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("write to original: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := received.Read(buf); err != nil {
		t.Fatalf("read from received descriptor: %v", err)
	}
	if buf[0] != 'x' {
		t.Fatalf("received descriptor did not observe write through the original: got %q", buf[0])
	}
}

func TestSendWithoutFds(t *testing.T) {
	addr := filepath.Join(t.TempDir(), "sockmsg.sock")

	listener, err := Listen(addr, 1)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer func() { _ = listener.Close() }()

	accepted := make(chan *Endpoint, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = client.Close() }()
	server := <-accepted
	defer func() { _ = server.Close() }()

	if err := client.Send(Message{Bytes: []byte("no-fds")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if len(msg.Fds) != 0 {
		t.Fatalf("fds: got %d, want 0", len(msg.Fds))
	}
}
