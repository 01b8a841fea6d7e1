// Package bus implements the lock-free publish and consume algorithms
// that ride on top of internal/ring's layout. This is the hot path: no
// heap allocations, no blocking, no locks — only the release/acquire pair
// on Slot.sequence described in spec.md §4.C.
//
// Grounded on original_source/lib/publish.cpp and lib/consume.cpp for the
// exact comparison order, and on the teacher's atomic-accessor style
// (generalized into internal/ring's View/Slot methods) for exposing
// shared mutable state only through typed methods.
package bus

import (
	"fmt"

	"aether/internal/ring"
)

// Result is the outcome of a Consume call.
type Result int

const (
	// Ok means buf was filled with a message; ReadSeq has been advanced.
	Ok Result = iota
	// Empty means the slot at ReadSeq has not been published yet.
	Empty
	// Lapped means the producer overwrote the slot before it was read;
	// ReadSeq has been advanced to the oldest message still in the ring.
	Lapped
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "Ok"
	case Empty:
		return "Empty"
	case Lapped:
		return "Lapped"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Publish writes payload into the next available slot of the ring
// described by v. It is safe to call concurrently from any number of
// producer goroutines or processes that have the segment mapped.
//
// Returns ring.ErrPayloadTooLarge if len(payload) > ring.SlotDataSize;
// nothing is mutated in that case.
func Publish(v *ring.View, payload []byte) error {
	if len(payload) > ring.SlotDataSize {
		return fmt.Errorf("bus: publish %d bytes: %w", len(payload), ring.ErrPayloadTooLarge)
	}

	seq := v.ClaimSeq()
	slot := v.Slot(uint32(seq % uint64(v.Capacity())))
	slot.Publish(seq, payload)
	return nil
}

// Consume attempts to read the message at *readSeq into buf, which must
// be sized at least ring.SlotDataSize to guarantee no truncation on Ok.
//
// On Ok, min(n, len(buf)) bytes of the message are copied into buf, n is
// the message's full published length (which may exceed len(buf) if the
// caller under-sized it), and *readSeq is incremented.
// On Empty, buf and *readSeq are unchanged.
// On Lapped, *readSeq is advanced to the oldest sequence still live in the
// ring (write_seq - capacity, with wrapping uint64 arithmetic); buf is
// unchanged. Callers typically loop: a Lapped result followed immediately
// by another Consume call will usually succeed.
func Consume(v *ring.View, buf []byte, readSeq *uint64) (Result, int) {
	capacity := uint64(v.Capacity())
	slot := v.Slot(uint32(*readSeq % capacity))

	seq := slot.Sequence()

	switch {
	case seq == *readSeq:
		// Every slot starts with sequence == its index, so on the ring's
		// first pass a matching sequence alone does not prove publication.
		// A sequence number no producer has claimed yet is still Empty.
		if *readSeq >= v.WriteSeq() {
			return Empty, 0
		}
		payloadLen := int(slot.PayloadLen())
		copyLen := payloadLen
		if copyLen > len(buf) {
			copyLen = len(buf)
		}
		copy(buf[:copyLen], slot.Data()[:copyLen])
		*readSeq++
		return Ok, payloadLen

	case seq < *readSeq:
		return Empty, 0

	default: // seq > *readSeq
		*readSeq = v.WriteSeq() - capacity
		return Lapped, 0
	}
}
