package ring

import "errors"

// ErrSegmentInvalid is returned when an attached segment's magic or
// version does not match the build constants.
var ErrSegmentInvalid = errors.New("ring: segment invalid")

// ErrPayloadTooLarge is returned by bus.Publish when len(payload) exceeds
// SlotDataSize. No side effects occur when this is returned.
var ErrPayloadTooLarge = errors.New("ring: payload too large")
