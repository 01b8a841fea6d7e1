// Package wire defines the fixed-size control-plane request/response
// structures described in spec.md §4.D and their binary encoding.
//
// Unlike internal/ring (whose structs live directly in a shared mmap and
// can therefore rely on Go's in-process struct layout), these structs
// cross a socket between potentially different builds of the client and
// daemon binaries, so they are encoded explicitly with encoding/binary —
// the same split the teacher draws between shm_segment.go (layout trusted
// in place) and frame.go (explicit wire encoding), generalized here to a
// much smaller fixed-size protocol than HTTP/2 framing.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"aether/internal/ring"
)

// Status is the result code carried in a SubscribeResponse.
type Status uint8

const (
	// StatusOk indicates the subscribe request succeeded.
	StatusOk Status = 0
	// StatusTopicNotFound is reserved for lookup-only control operations;
	// the current daemon always creates on miss, so subscribe never
	// returns this, but it's part of the wire contract other client
	// implementations may rely on.
	StatusTopicNotFound Status = 1
	// StatusInternalError indicates the daemon failed to create or look
	// up the segment for the requested topic (including an overlong
	// topic name).
	StatusInternalError Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusTopicNotFound:
		return "TopicNotFound"
	case StatusInternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// SubscribeRequestSize is the fixed wire size of a SubscribeRequest:
// 4 bytes topic_len + 64 bytes topic.
const SubscribeRequestSize = 4 + ring.MaxTopicLen

// SubscribeResponseSize is the fixed wire size of a SubscribeResponse:
// 1 byte status + 4 bytes capacity + 64 bytes shm_name.
const SubscribeResponseSize = 1 + 4 + ring.MaxShmNameLen

// SubscribeRequest names the topic a client wants to subscribe (or
// publish) to.
type SubscribeRequest struct {
	Topic string
}

// Encode writes the fixed-size wire form of req. Returns
// ErrTopicNameTooLong if len(req.Topic) is outside [1, MaxTopicLen].
func (req SubscribeRequest) Encode() ([]byte, error) {
	n := len(req.Topic)
	if n < 1 || n > ring.MaxTopicLen {
		return nil, fmt.Errorf("wire: topic %q: %w", req.Topic, ErrTopicNameTooLong)
	}

	buf := make([]byte, SubscribeRequestSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	copy(buf[4:4+n], req.Topic)
	return buf, nil
}

// DecodeSubscribeRequest parses a fixed-size wire buffer previously
// produced by Encode. buf must be exactly SubscribeRequestSize bytes.
func DecodeSubscribeRequest(buf []byte) (SubscribeRequest, error) {
	if len(buf) != SubscribeRequestSize {
		return SubscribeRequest{}, fmt.Errorf("wire: subscribe request: %w: got %d bytes, want %d",
			ErrControlProtocol, len(buf), SubscribeRequestSize)
	}
	topicLen := binary.LittleEndian.Uint32(buf[0:4])
	if topicLen == 0 || topicLen > ring.MaxTopicLen {
		return SubscribeRequest{}, fmt.Errorf("wire: subscribe request: %w: topic_len %d", ErrTopicNameTooLong, topicLen)
	}
	topic := string(buf[4 : 4+topicLen])
	return SubscribeRequest{Topic: topic}, nil
}

// SubscribeResponse is the daemon's reply to a SubscribeRequest.
type SubscribeResponse struct {
	Status   Status
	Capacity uint32
	ShmName  string
}

// Encode writes the fixed-size wire form of resp. The shm_name field is
// NUL-padded to MaxShmNameLen bytes.
func (resp SubscribeResponse) Encode() ([]byte, error) {
	if len(resp.ShmName) > ring.MaxShmNameLen {
		return nil, fmt.Errorf("wire: shm_name %q exceeds %d bytes", resp.ShmName, ring.MaxShmNameLen)
	}

	buf := make([]byte, SubscribeResponseSize)
	buf[0] = byte(resp.Status)
	binary.LittleEndian.PutUint32(buf[1:5], resp.Capacity)
	copy(buf[5:5+len(resp.ShmName)], resp.ShmName)
	return buf, nil
}

// DecodeSubscribeResponse parses a fixed-size wire buffer previously
// produced by Encode. buf must be exactly SubscribeResponseSize bytes.
func DecodeSubscribeResponse(buf []byte) (SubscribeResponse, error) {
	if len(buf) != SubscribeResponseSize {
		return SubscribeResponse{}, fmt.Errorf("wire: subscribe response: %w: got %d bytes, want %d",
			ErrControlProtocol, len(buf), SubscribeResponseSize)
	}
	status := Status(buf[0])
	capacity := binary.LittleEndian.Uint32(buf[1:5])
	nameBytes := buf[5 : 5+ring.MaxShmNameLen]
	name := string(bytes.TrimRight(nameBytes, "\x00"))
	return SubscribeResponse{Status: status, Capacity: capacity, ShmName: name}, nil
}

// ReadFull reads exactly len(buf) bytes from r, returning
// ErrControlProtocol wrapping the underlying error on a short read.
func ReadFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("wire: short read: %w: %v", ErrControlProtocol, err)
	}
	return nil
}

// WriteFull writes all of buf to w, returning ErrControlProtocol wrapping
// the underlying error on a short write.
func WriteFull(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("wire: short write: %w: %v", ErrControlProtocol, err)
	}
	if n != len(buf) {
		return fmt.Errorf("wire: short write: %w: wrote %d of %d bytes", ErrControlProtocol, n, len(buf))
	}
	return nil
}
