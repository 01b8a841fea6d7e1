package clientlib

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"aether/internal/bus"
	"aether/internal/daemon"
	"aether/internal/ring"
)

func startTestDaemon(t *testing.T) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "aether.sock")
	registry := daemon.NewRegistry(nil, 0)
	acceptor := daemon.NewAcceptor(sockPath, registry, nil)
	if err := acceptor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		acceptor.Stop()
		registry.Shutdown()
	})
	return sockPath
}

func TestSubscribePublishConsumeRoundTrip(t *testing.T) {
	sockPath := startTestDaemon(t)
	topic := fmt.Sprintf("roundtrip-%d", time.Now().UnixNano())

	sub, err := Subscribe(sockPath, topic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer Unsubscribe(sub)

	if sub.ShmName == "" || sub.Capacity == 0 {
		t.Fatalf("unexpected subscription: %+v", sub)
	}

	if err := bus.Publish(sub.Segment().View(), []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	readSeq := uint64(0)
	buf := make([]byte, ring.SlotDataSize)
	result, n := bus.Consume(sub.Segment().View(), buf, &readSeq)
	if result != bus.Ok || string(buf[:n]) != "hello" {
		t.Fatalf("Consume = %v %q, want Ok %q", result, buf[:n], "hello")
	}
}

func TestSubscribeTwiceYieldsSameSegment(t *testing.T) {
	sockPath := startTestDaemon(t)
	topic := fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())

	first, err := Subscribe(sockPath, topic)
	if err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	defer Unsubscribe(first)

	second, err := Subscribe(sockPath, topic)
	if err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}
	defer Unsubscribe(second)

	if first.ShmName != second.ShmName {
		t.Fatalf("shm_name mismatch: %q != %q", first.ShmName, second.ShmName)
	}
}

func TestUnsubscribeDetachesWithoutDestroying(t *testing.T) {
	sockPath := startTestDaemon(t)
	topic := fmt.Sprintf("unsubscribe-%d", time.Now().UnixNano())

	sub, err := Subscribe(sockPath, topic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	shmName := sub.ShmName

	if err := Unsubscribe(sub); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if sub.Segment() != nil {
		t.Fatalf("expected Segment() to be nil after Unsubscribe")
	}

	// A fresh subscribe to the same topic must still work: the segment
	// itself outlives this subscriber's detach.
	second, err := Subscribe(sockPath, topic)
	if err != nil {
		t.Fatalf("re-Subscribe after Unsubscribe: %v", err)
	}
	defer Unsubscribe(second)
	if second.ShmName != shmName {
		t.Fatalf("shm_name changed after unsubscribe/resubscribe: %q != %q", second.ShmName, shmName)
	}
}
