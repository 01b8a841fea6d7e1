package daemon

import (
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"aether/internal/bus"
	"aether/internal/ring"
	"aether/internal/segment"
	"aether/internal/wire"
)

func dialUnix(sockPath string) (net.Conn, error) {
	return net.Dial("unix", sockPath)
}

func uniqueSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "aether.sock")
}

func uniqueTopic(t *testing.T, suffix string) string {
	t.Helper()
	return fmt.Sprintf("%s-%d", suffix, time.Now().UnixNano())
}

// subscribe dials sock, sends one SubscribeRequest for topic, and returns
// the decoded response.
func subscribe(t *testing.T, sockPath, topic string) wire.SubscribeResponse {
	t.Helper()

	conn, err := dialUnix(sockPath)
	if err != nil {
		t.Fatalf("dial %s: %v", sockPath, err)
	}
	defer conn.Close()

	req, err := wire.SubscribeRequest{Topic: topic}.Encode()
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	if err := wire.WriteFull(conn, req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	respBuf := make([]byte, wire.SubscribeResponseSize)
	if err := wire.ReadFull(conn, respBuf); err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := wire.DecodeSubscribeResponse(respBuf)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// TestRepeatSubscribeReturnsSameSegment mirrors spec.md §8 scenario S4:
// subscribing twice to the same topic returns the same shm_name.
func TestRepeatSubscribeReturnsSameSegment(t *testing.T) {
	sockPath := uniqueSocketPath(t)
	registry := NewRegistry(nil, 0)
	acceptor := NewAcceptor(sockPath, registry, nil)
	if err := acceptor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer acceptor.Stop()

	topic := uniqueTopic(t, "repeat")

	first := subscribe(t, sockPath, topic)
	second := subscribe(t, sockPath, topic)

	if first.Status != wire.StatusOk || second.Status != wire.StatusOk {
		t.Fatalf("status = %v, %v, want Ok, Ok", first.Status, second.Status)
	}
	if first.ShmName != second.ShmName {
		t.Fatalf("shm_name mismatch across repeat subscribe: %q != %q", first.ShmName, second.ShmName)
	}
	if first.Capacity != second.Capacity {
		t.Fatalf("capacity mismatch across repeat subscribe: %d != %d", first.Capacity, second.Capacity)
	}
}

// TestDistinctTopicsAreIsolated mirrors spec.md §8 scenario S5: messages
// published on one topic's segment never appear on another's.
func TestDistinctTopicsAreIsolated(t *testing.T) {
	sockPath := uniqueSocketPath(t)
	registry := NewRegistry(nil, 0)
	acceptor := NewAcceptor(sockPath, registry, nil)
	if err := acceptor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer acceptor.Stop()

	topicA := uniqueTopic(t, "a")
	topicB := uniqueTopic(t, "b")

	respA := subscribe(t, sockPath, topicA)
	respB := subscribe(t, sockPath, topicB)

	if respA.ShmName == respB.ShmName {
		t.Fatalf("expected distinct segments, got the same name %q for both topics", respA.ShmName)
	}

	segA, err := segment.Attach(respA.ShmName)
	if err != nil {
		t.Fatalf("attach A: %v", err)
	}
	defer segA.Detach()
	segB, err := segment.Attach(respB.ShmName)
	if err != nil {
		t.Fatalf("attach B: %v", err)
	}
	defer segB.Detach()

	if err := bus.Publish(segA.View(), []byte("only on A")); err != nil {
		t.Fatalf("publish A: %v", err)
	}

	readSeq := uint64(0)
	buf := make([]byte, ring.SlotDataSize)
	result, _ := bus.Consume(segB.View(), buf, &readSeq)
	if result != bus.Empty {
		t.Fatalf("Consume on B after publish on A = %v, want Empty", result)
	}

	result, n := bus.Consume(segA.View(), buf, &readSeq)
	if result != bus.Ok || string(buf[:n]) != "only on A" {
		t.Fatalf("Consume on A = %v %q, want Ok %q", result, buf[:n], "only on A")
	}
}

// TestShutdownRemovesSocketAndSegments covers the invariant that a clean
// shutdown leaves no control socket and no shm segment files behind.
func TestShutdownRemovesSocketAndSegments(t *testing.T) {
	sockPath := uniqueSocketPath(t)
	registry := NewRegistry(nil, 0)
	acceptor := NewAcceptor(sockPath, registry, nil)
	if err := acceptor.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	topic := uniqueTopic(t, "cleanup")
	resp := subscribe(t, sockPath, topic)
	if resp.Status != wire.StatusOk {
		t.Fatalf("subscribe status = %v, want Ok", resp.Status)
	}

	if err := acceptor.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	registry.Shutdown()

	if _, err := dialUnix(sockPath); err == nil {
		t.Fatalf("expected socket %s to be gone after Stop", sockPath)
	}
	if segment.Exists(resp.ShmName) {
		t.Fatalf("expected segment %s to be destroyed after Shutdown", resp.ShmName)
	}
}
