// Package daemon implements the control-plane process that owns one
// segment per topic: the topic registry, the connection acceptor, signal
// handling, and stats/metrics reporting.
//
// Grounded on original_source/daemon/topic_registry.cpp for the
// lookup-or-create-under-one-mutex discipline (spec.md §9: "the mutex
// covers both the lookup and the segment creation") and on the teacher's
// registration style in register.go for how a small, instrumentable Go
// type wraps the underlying segment/ring primitives.
package daemon

import (
	"fmt"
	"log/slog"
	"sync"

	"aether/internal/ring"
	"aether/internal/segment"
)

// DefaultTopicCapacity is the slot count used for every topic's segment
// when the registry is given no capacity of its own. The control protocol has no per-topic capacity negotiation (spec.md
// §4.D); every topic gets the same ring size.
const DefaultTopicCapacity = 1024

// topicEntry is the registry's record for one topic: the segment name
// handed out on the wire, and the live mapping so stats can read
// write_seq without a fresh Attach.
type topicEntry struct {
	shmName string
	seg     *segment.Segment
}

// Registry owns exactly one segment per topic name. It is the daemon's
// only mutable shared state; every other request/response path is
// stateless. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	topics   map[string]*topicEntry
	log      *slog.Logger
	capacity uint32
}

// NewRegistry returns an empty registry that creates every topic's
// segment with the given slot capacity. log may be nil, in which case
// slog.Default() is used; capacity 0 falls back to DefaultTopicCapacity.
func NewRegistry(log *slog.Logger, capacity uint32) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if capacity == 0 {
		capacity = DefaultTopicCapacity
	}
	return &Registry{topics: make(map[string]*topicEntry), log: log, capacity: capacity}
}

// segmentNameFor constructs the "/aether_<topic>" segment name for a
// topic and validates it fits within ring.MaxShmNameLen including the
// NUL terminator reserved in the wire format.
func segmentNameFor(topic string) (string, error) {
	name := "/aether_" + topic
	if len(name) > ring.MaxShmNameLen-1 {
		return "", fmt.Errorf("daemon: topic %q: segment name %q exceeds %d bytes", topic, name, ring.MaxShmNameLen-1)
	}
	return name, nil
}

// GetOrCreate returns the entry for topic, creating its segment on first
// reference. Any stale segment left over from a previous crash under the
// same name is destroyed first. Creation failure leaves the registry
// without a partial entry for topic.
func (r *Registry) GetOrCreate(topic string) (shmName string, capacity uint32, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.topics[topic]; ok {
		return entry.shmName, entry.seg.View().Capacity(), nil
	}

	name, err := segmentNameFor(topic)
	if err != nil {
		return "", 0, err
	}

	if segment.Exists(name) {
		r.log.Warn("stale segment from previous run, removing", "topic", topic, "segment", name)
		if err := segment.Destroy(name); err != nil {
			return "", 0, fmt.Errorf("daemon: clean up stale segment for topic %q: %w", topic, err)
		}
	}

	seg, err := segment.Create(name, r.capacity)
	if err != nil {
		return "", 0, fmt.Errorf("daemon: create segment for topic %q: %w", topic, err)
	}

	r.topics[topic] = &topicEntry{shmName: name, seg: seg}
	r.log.Info("created topic", "topic", topic, "segment", name, "capacity", r.capacity)

	return name, r.capacity, nil
}

// TopicStats is a point-in-time snapshot of one topic for stats dumps.
type TopicStats struct {
	Topic             string
	SegmentName       string
	Capacity          uint32
	MessagesPublished uint64
}

// Stats returns a snapshot of every registered topic, sorted by nothing
// in particular — callers that need a stable order sort the result.
func (r *Registry) Stats() []TopicStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]TopicStats, 0, len(r.topics))
	for topic, entry := range r.topics {
		stats = append(stats, TopicStats{
			Topic:             topic,
			SegmentName:       entry.shmName,
			Capacity:          entry.seg.View().Capacity(),
			MessagesPublished: entry.seg.View().WriteSeq(),
		})
	}
	return stats
}

// Shutdown detaches and destroys every registered segment. Call exactly
// once, after the acceptor has stopped accepting new connections.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic, entry := range r.topics {
		if err := entry.seg.Detach(); err != nil {
			r.log.Error("detach failed during shutdown", "topic", topic, "error", err)
		}
		if err := segment.Destroy(entry.shmName); err != nil {
			r.log.Error("destroy failed during shutdown", "topic", topic, "error", err)
		} else {
			r.log.Info("destroyed topic", "topic", topic, "segment", entry.shmName)
		}
	}
	r.topics = make(map[string]*topicEntry)
}
