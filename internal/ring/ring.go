// Package ring defines the binary layout of an aether shared-memory
// segment: the header that lives at offset 0 and the fixed-size slots that
// follow it. Nothing in this package touches the filesystem or performs
// I/O — it only describes the bytes, the same way the teacher's
// shm_segment.go separates layout (SegmentHeader/RingHeader) from mapping
// (shm_mmap_unix.go).
package ring

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Magic identifies a valid aether ring segment.
const Magic uint64 = 0xAE7E4000DEADC0DE

// Version is the current layout version. Bump on any incompatible change
// to Header or Slot.
const Version uint32 = 1

// SlotDataSize is the maximum payload a single message may carry.
// Payloads larger than this are rejected by Publish, never truncated.
const SlotDataSize = 4096

// MaxTopicLen is the maximum length, in bytes, of a topic name.
const MaxTopicLen = 64

// MaxShmNameLen is the maximum length, in bytes, of a segment name
// (including the trailing NUL reserved in the wire format).
const MaxShmNameLen = 64

// cacheLine is the assumed cache line size used to keep adjacent slots
// from sharing a line (false-sharing avoidance), matching the teacher's
// RingHeaderSize/SegmentHeaderSize alignment choices.
const cacheLine = 64

// Header lives at offset 0 of a segment. All fields beyond magic/version
// are either immutable after creation or accessed exclusively through
// sync/atomic — no lock is ever taken on this struct.
type Header struct {
	magic    uint64
	version  uint32
	capacity uint32
	writeSeq atomic.Uint64
	_        [cacheLine - 24]byte // pad to a full cache line
}

// HeaderSize is the size in bytes of Header, aligned to a cache line.
const HeaderSize = unsafe.Sizeof(Header{})

// Slot is one ring entry. Aligned to a 64-byte cache line so adjacent
// slots never share a line with each other or with Header.
type Slot struct {
	sequence   atomic.Uint64
	payloadLen uint32
	_          [cacheLine - 8 - 4]byte
	data       [SlotDataSize]byte
}

// SlotSize is the size in bytes of Slot, a multiple of the cache line size.
const SlotSize = unsafe.Sizeof(Slot{})

func init() {
	if HeaderSize%cacheLine != 0 {
		panic("ring: Header size is not a multiple of the cache line size")
	}
	if SlotSize%cacheLine != 0 {
		panic("ring: Slot size is not a multiple of the cache line size")
	}
	var u64 atomic.Uint64
	if !u64CompareAndSwapIsLockFree(&u64) {
		panic("ring: atomic.Uint64 is not always lock-free on this platform")
	}
}

// u64CompareAndSwapIsLockFree is a placeholder for a true lock-free check.
// Go's sync/atomic on every platform it supports for 64-bit words is
// always lock-free (the runtime refuses to build otherwise), so this is a
// static guarantee of the toolchain rather than something we can probe at
// runtime the way C++'s std::atomic<uint64_t>::is_always_lock_free does;
// the function exists so the invariant from spec.md §4.A has a concrete,
// named home in the code instead of being an implicit assumption.
func u64CompareAndSwapIsLockFree(_ *atomic.Uint64) bool { return true }

// SegmentSize returns the total number of bytes a segment with the given
// slot capacity occupies: the header plus capacity slots.
func SegmentSize(capacity uint32) (uint64, error) {
	if capacity == 0 {
		return 0, fmt.Errorf("ring: capacity must be > 0")
	}
	total := uint64(HeaderSize) + uint64(capacity)*uint64(SlotSize)
	if total < uint64(HeaderSize) {
		return 0, fmt.Errorf("ring: segment size overflow for capacity %d", capacity)
	}
	return total, nil
}

// View is a typed, unsafe window onto a mapped segment's bytes. It never
// owns the memory — the caller (internal/segment) is responsible for the
// mmap's lifetime. This mirrors the teacher's hdrView/ringView split: a
// thin pointer wrapper with accessor methods, never raw field access from
// outside the package.
type View struct {
	base []byte
}

// NewView wraps a mapped segment's bytes. base must be at least
// SegmentSize(capacity) bytes for any capacity the caller intends to read
// from the header; callers validate the header before trusting Capacity().
func NewView(base []byte) *View {
	return &View{base: base}
}

func (v *View) header() *Header {
	return (*Header)(unsafe.Pointer(&v.base[0]))
}

// Magic returns the segment's magic value.
func (v *View) Magic() uint64 { return v.header().magic }

// Version returns the segment's layout version.
func (v *View) Version() uint32 { return v.header().version }

// Capacity returns the segment's slot count. Immutable after creation.
func (v *View) Capacity() uint32 { return v.header().capacity }

// WriteSeq returns the current value of the producer claim counter.
func (v *View) WriteSeq() uint64 { return v.header().writeSeq.Load() }

// ClaimSeq atomically claims and returns the next sequence number.
func (v *View) ClaimSeq() uint64 { return v.header().writeSeq.Add(1) - 1 }

// initHeader writes magic/version/capacity/writeSeq=0 and is only ever
// called by internal/segment.Create, immediately after mmap, before the
// segment is handed to any other goroutine or process.
func (v *View) initHeader(capacity uint32) {
	h := v.header()
	h.magic = Magic
	h.version = Version
	h.capacity = capacity
	h.writeSeq.Store(0)
}

// Slot returns a pointer to the slot at the given ring index (already
// reduced modulo capacity by the caller).
func (v *View) Slot(index uint32) *Slot {
	off := uintptr(HeaderSize) + uintptr(index)*uintptr(SlotSize)
	return (*Slot)(unsafe.Pointer(&v.base[off]))
}

// initSlots sets every slot's sequence to its own index (the "never
// written" marker) and zeroes payloadLen/data. Only called by Create.
func (v *View) initSlots(capacity uint32) {
	for i := uint32(0); i < capacity; i++ {
		s := v.Slot(i)
		s.sequence.Store(uint64(i))
		s.payloadLen = 0
		clear(s.data[:])
	}
}

// InitFromCreate performs the one-time initialisation of a freshly
// ftruncate'd, freshly mmap'd segment: header fields and every slot's
// sequence marker. Exported so internal/segment.Create can call it without
// internal/ring exposing its unexported Header/Slot layout.
func (v *View) InitFromCreate(capacity uint32) {
	v.initHeader(capacity)
	v.initSlots(capacity)
}

// Validate checks magic and version against the build constants. It does
// not touch capacity, write_seq, or any slot.
func (v *View) Validate() error {
	if got := v.Magic(); got != Magic {
		return fmt.Errorf("ring: %w: magic 0x%x, want 0x%x", ErrSegmentInvalid, got, Magic)
	}
	if got := v.Version(); got != Version {
		return fmt.Errorf("ring: %w: version %d, want %d", ErrSegmentInvalid, got, Version)
	}
	return nil
}

// PayloadLen returns the number of valid bytes in the slot's data area.
func (s *Slot) PayloadLen() uint32 { return s.payloadLen }

// Data returns the slot's fixed-size backing array as a slice. Callers
// must respect PayloadLen(); bytes beyond it are stale or zero.
func (s *Slot) Data() []byte { return s.data[:] }

// Sequence returns the slot's publication marker, acquire-loaded.
func (s *Slot) Sequence() uint64 { return s.sequence.Load() }

// setAndPublish writes payload_len and data with plain stores, then
// releases the slot by storing seq with a release-ordered atomic store.
// This is the sole synchronisation edge described in spec.md §4.C: the
// release here pairs with the acquire in Sequence().
func (s *Slot) setAndPublish(seq uint64, payload []byte) {
	s.payloadLen = uint32(len(payload))
	copy(s.data[:], payload)
	s.sequence.Store(seq)
}

// Publish is exported for internal/bus — it is the only way outside this
// package to write into a slot, keeping the release-store discipline in
// one place.
func (s *Slot) Publish(seq uint64, payload []byte) { s.setAndPublish(seq, payload) }
