// Package clientlib implements the subscribe/unsubscribe control-plane
// operations that every publisher and subscriber uses to obtain a mapped
// segment for a topic: dial the daemon's control socket, exchange one
// SubscribeRequest/SubscribeResponse pair, then attach the named segment
// directly. Once Subscribe returns, all data traffic bypasses the daemon
// entirely.
package clientlib

import (
	"errors"
	"fmt"
	"net"
	"time"

	"aether/internal/segment"
	"aether/internal/wire"
)

// ErrTopicNotFound is returned when the daemon reports StatusTopicNotFound.
var ErrTopicNotFound = errors.New("clientlib: topic not found")

// ErrDaemon wraps a StatusInternalError response from the daemon.
var ErrDaemon = errors.New("clientlib: daemon internal error")

// DefaultDialTimeout bounds how long Subscribe waits to connect to the
// daemon's control socket.
const DefaultDialTimeout = 5 * time.Second

// Subscription is a topic's mapped ring segment plus the metadata the
// daemon returned when it was opened. It is shared by publishers and
// subscribers alike; which role a caller plays is determined entirely by
// whether it calls bus.Publish or bus.Consume against Segment().View().
type Subscription struct {
	Topic    string
	ShmName  string
	Capacity uint32
	seg      *segment.Segment
}

// Segment returns the attached segment backing this subscription.
func (s *Subscription) Segment() *segment.Segment {
	return s.seg
}

// Subscribe asks the daemon at socketPath to resolve topic to a segment,
// creating it on first reference, then attaches that segment. Unlike the
// original C++ client library, which terminates the process on any
// failure, Subscribe always returns an error to the caller instead.
func Subscribe(socketPath, topic string) (*Subscription, error) {
	conn, err := net.DialTimeout("unix", socketPath, DefaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("clientlib: dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	reqBuf, err := wire.SubscribeRequest{Topic: topic}.Encode()
	if err != nil {
		return nil, fmt.Errorf("clientlib: encode request for topic %q: %w", topic, err)
	}
	if err := wire.WriteFull(conn, reqBuf); err != nil {
		return nil, fmt.Errorf("clientlib: send request for topic %q: %w", topic, err)
	}

	respBuf := make([]byte, wire.SubscribeResponseSize)
	if err := wire.ReadFull(conn, respBuf); err != nil {
		return nil, fmt.Errorf("clientlib: read response for topic %q: %w", topic, err)
	}
	resp, err := wire.DecodeSubscribeResponse(respBuf)
	if err != nil {
		return nil, fmt.Errorf("clientlib: decode response for topic %q: %w", topic, err)
	}

	switch resp.Status {
	case wire.StatusOk:
	case wire.StatusTopicNotFound:
		return nil, fmt.Errorf("clientlib: topic %q: %w", topic, ErrTopicNotFound)
	default:
		return nil, fmt.Errorf("clientlib: topic %q: %w (status %v)", topic, ErrDaemon, resp.Status)
	}

	seg, err := segment.Attach(resp.ShmName)
	if err != nil {
		return nil, fmt.Errorf("clientlib: attach segment %q for topic %q: %w", resp.ShmName, topic, err)
	}

	return &Subscription{
		Topic:    topic,
		ShmName:  resp.ShmName,
		Capacity: resp.Capacity,
		seg:      seg,
	}, nil
}

// Unsubscribe detaches the subscription's segment mapping. It does not
// contact the daemon and does not destroy the segment — other attached
// processes may still be using it. Matches the reference client
// library's unsubscribe(), which is purely a local unmap.
func Unsubscribe(sub *Subscription) error {
	if sub == nil || sub.seg == nil {
		return nil
	}
	if err := sub.seg.Detach(); err != nil {
		return fmt.Errorf("clientlib: detach topic %q: %w", sub.Topic, err)
	}
	sub.seg = nil
	return nil
}
