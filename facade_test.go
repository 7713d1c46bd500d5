// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtipc_test

import (
	"path/filepath"
	"testing"

	"code.hybscloud.com/rtipc"
)

type testPayload struct {
	A uint32
	B uint32
	C uint32
}

func newLocalVectorPair(t *testing.T) (*rtipc.ChannelVector, *rtipc.ChannelVector) {
	t.Helper()
	addr := filepath.Join(t.TempDir(), "rtipc.sock")

	server, err := rtipc.Listen(addr)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })

	accepted := make(chan *rtipc.ChannelVector, 1)
	acceptErr := make(chan error, 1)
	go func() {
		vec, err := server.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- vec
	}()

	spec := rtipc.VectorSpec{
		Producers: []rtipc.ChannelSpec{{AdditionalMessages: 2, MessageSize: 12}},
		Consumers: []rtipc.ChannelSpec{{AdditionalMessages: 2, MessageSize: 12}},
	}
	clientVec, err := rtipc.Dial(addr, spec)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = clientVec.Close() })

	var serverVec *rtipc.ChannelVector
	select {
	case err := <-acceptErr:
		t.Fatalf("Accept: %v", err)
	case serverVec = <-accepted:
	}
	t.Cleanup(func() { _ = serverVec.Close() })

	return clientVec, serverVec
}

// TestChannelVectorTakeIsIdempotent checks testable property 7: a
// channel can only be taken once; a second take of the same index fails
// without disturbing the first.
func TestChannelVectorTakeIsIdempotent(t *testing.T) {
	clientVec, _ := newLocalVectorPair(t)

	if _, _, err := clientVec.TakeProducer(0); err != nil {
		t.Fatalf("first TakeProducer: %v", err)
	}
	if _, _, err := clientVec.TakeProducer(0); err == nil {
		t.Fatalf("second TakeProducer: want error, got nil")
	}
}

// TestProducerCacheWriteThrough checks testable property 8: with the
// scratch buffer enabled, a partially-built message is never visible to
// the consumer until ForcePush copies the whole struct in at once.
func TestProducerCacheWriteThrough(t *testing.T) {
	clientVec, serverVec := newLocalVectorPair(t)

	producerQ, _, err := clientVec.TakeProducer(0)
	if err != nil {
		t.Fatalf("TakeProducer: %v", err)
	}
	producer, err := rtipc.NewProducer[testPayload](producerQ, nil)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	producer.EnableCache()

	consumerQ, _, err := serverVec.TakeConsumer(0)
	if err != nil {
		t.Fatalf("TakeConsumer: %v", err)
	}
	consumer, err := rtipc.NewConsumer[testPayload](consumerQ, nil)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}

	msg := producer.CurrentMessage()
	msg.A = 1
	msg.B = 2
	// The underlying queue slot must still be whatever was there before
	// ForcePush (nothing), since the write went to the scratch buffer.
	if result, err := consumer.Pop(); err != nil || result != rtipc.PopNoMessage {
		t.Fatalf("Pop before push: result=%v err=%v, want PopNoMessage", result, err)
	}

	msg.C = 3
	if _, err := producer.ForcePush(); err != nil {
		t.Fatalf("ForcePush: %v", err)
	}

	result, err := consumer.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if result != rtipc.PopSuccessDiscarded && result != rtipc.PopSuccess {
		t.Fatalf("Pop: got %v, want a success variant", result)
	}
	got, ok := consumer.CurrentMessage()
	if !ok {
		t.Fatalf("CurrentMessage: got ok=false after a successful pop")
	}
	if got.A != 1 || got.B != 2 || got.C != 3 {
		t.Fatalf("delivered message: got %+v, want {1 2 3} (fully built, not partial)", *got)
	}
}

func TestProducerRejectsOversizedType(t *testing.T) {
	clientVec, _ := newLocalVectorPair(t)
	producerQ, _, err := clientVec.TakeProducer(0)
	if err != nil {
		t.Fatalf("TakeProducer: %v", err)
	}

	type tooBig struct {
		_ [4096]byte
	}
	if _, err := rtipc.NewProducer[tooBig](producerQ, nil); err == nil {
		t.Fatalf("NewProducer with oversized type: want error, got nil")
	}
}
