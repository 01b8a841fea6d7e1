package wire

import "errors"

// ErrControlProtocol indicates a short read or short write on the control
// socket. The connection is always closed after this is returned.
var ErrControlProtocol = errors.New("wire: control protocol error")

// ErrTopicNameTooLong indicates a topic name could not be encoded because
// it is empty or exceeds ring.MaxTopicLen bytes.
var ErrTopicNameTooLong = errors.New("wire: topic name too long")
