package bus

import (
	"bytes"
	"testing"

	"aether/internal/ring"
)

func newTestView(t *testing.T, capacity uint32) *ring.View {
	t.Helper()
	size, err := ring.SegmentSize(capacity)
	if err != nil {
		t.Fatalf("SegmentSize: %v", err)
	}
	v := ring.NewView(make([]byte, size))
	v.InitFromCreate(capacity)
	return v
}

// TestBasicRoundTrip mirrors spec.md §8 scenario S1.
func TestBasicRoundTrip(t *testing.T) {
	v := newTestView(t, 16)

	if err := Publish(v, []byte("hello aether")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	buf := make([]byte, ring.SlotDataSize)
	readSeq := uint64(0)

	result, n := Consume(v, buf, &readSeq)
	if result != Ok {
		t.Fatalf("Consume result = %v, want Ok", result)
	}
	if n != 12 {
		t.Fatalf("Consume n = %d, want 12", n)
	}
	if !bytes.Equal(buf[:n], []byte("hello aether")) {
		t.Fatalf("Consume data = %q, want %q", buf[:n], "hello aether")
	}
	if readSeq != 1 {
		t.Fatalf("readSeq = %d, want 1", readSeq)
	}

	result, _ = Consume(v, buf, &readSeq)
	if result != Empty {
		t.Fatalf("second Consume result = %v, want Empty", result)
	}
	if readSeq != 1 {
		t.Fatalf("readSeq after Empty = %d, want 1", readSeq)
	}
}

// TestOversizedPublishRejected mirrors spec.md §8 scenario S2.
func TestOversizedPublishRejected(t *testing.T) {
	v := newTestView(t, 16)
	if err := Publish(v, []byte("hello aether")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	oversized := bytes.Repeat([]byte("x"), ring.SlotDataSize+1)
	if err := Publish(v, oversized); err == nil {
		t.Fatalf("expected oversized Publish to fail")
	}

	if got := v.WriteSeq(); got != 1 {
		t.Fatalf("WriteSeq after rejected publish = %d, want 1", got)
	}
}

// TestLapDetection mirrors spec.md §8 scenario S3.
func TestLapDetection(t *testing.T) {
	const capacity = 16
	v := newTestView(t, capacity)

	if err := Publish(v, []byte("hello aether")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	readSeq := uint64(1)

	for i := 0; i < 17; i++ {
		if err := Publish(v, []byte("msg")); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if got := v.WriteSeq(); got != 18 {
		t.Fatalf("WriteSeq = %d, want 18", got)
	}

	buf := make([]byte, ring.SlotDataSize)
	result, _ := Consume(v, buf, &readSeq)
	if result != Lapped {
		t.Fatalf("Consume result = %v, want Lapped", result)
	}
	if readSeq != 2 {
		t.Fatalf("readSeq after Lapped = %d, want 2", readSeq)
	}

	result, _ = Consume(v, buf, &readSeq)
	if result != Ok {
		t.Fatalf("Consume after Lapped result = %v, want Ok", result)
	}
}

func TestRoundTripIsByteForByte(t *testing.T) {
	v := newTestView(t, 16)
	payload := bytes.Repeat([]byte{0xAB}, 37)

	if err := Publish(v, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	readSeq := uint64(0)
	buf := make([]byte, ring.SlotDataSize)
	result, n := Consume(v, buf, &readSeq)
	if result != Ok || n != len(payload) || !bytes.Equal(buf[:n], payload) {
		t.Fatalf("round trip mismatch: result=%v n=%d data=%v", result, n, buf[:n])
	}
}

func TestMultiProducerPerProducerOrdering(t *testing.T) {
	const capacity = 1024
	const producers = 4
	const perProducer = 200

	v := newTestView(t, capacity)

	type msg struct {
		publisher int
		seq       int
	}

	done := make(chan struct{})
	for p := 0; p < producers; p++ {
		go func(p int) {
			for i := 0; i < perProducer; i++ {
				payload := make([]byte, 8)
				payload[0] = byte(p)
				payload[1] = byte(i)
				payload[2] = byte(i >> 8)
				if err := Publish(v, payload); err != nil {
					t.Errorf("producer %d publish %d: %v", p, i, err)
				}
			}
			done <- struct{}{}
		}(p)
	}
	for p := 0; p < producers; p++ {
		<-done
	}

	readSeq := uint64(0)
	buf := make([]byte, ring.SlotDataSize)
	lastSeqByProducer := make(map[int]int)
	for p := 0; p < producers; p++ {
		lastSeqByProducer[p] = -1
	}

	received := 0
	for received < producers*perProducer {
		result, n := Consume(v, buf, &readSeq)
		switch result {
		case Ok:
			p := int(buf[0])
			seq := int(buf[1]) | int(buf[2])<<8
			if last, ok := lastSeqByProducer[p]; ok && seq <= last {
				t.Fatalf("producer %d: out-of-order seq %d after %d", p, seq, last)
			}
			lastSeqByProducer[p] = seq
			received++
			_ = n
		case Empty:
			continue
		case Lapped:
			t.Fatalf("unexpected Lapped with capacity %d and only %d messages", capacity, producers*perProducer)
		}
	}
}
