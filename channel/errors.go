package channel

import (
	"errors"
	"fmt"
)

// Protocol errors. None of them is retryable at this layer: the caller
// decides whether and how to retry.
var (
	// ErrNoData is returned when a consume is attempted while the channel is idle.
	ErrNoData = errors.New("channel: no data available")

	// ErrBusy is returned when a publish is attempted while the channel is busy.
	ErrBusy = errors.New("channel: busy")

	// ErrTimeout is reserved for future protocol extensions.
	ErrTimeout = errors.New("channel: timeout")

	// ErrInvalidOperation is returned on a role mismatch, e.g. a consumer
	// handle attempting to publish.
	ErrInvalidOperation = errors.New("channel: invalid operation for role")

	// ErrPayloadTooLarge is returned when a payload exceeds the channel capacity.
	ErrPayloadTooLarge = errors.New("channel: payload too large")

	// ErrSequenceMismatch is reserved for future protocol extensions.
	ErrSequenceMismatch = errors.New("channel: sequence mismatch")

	// ErrBufferTooSmall is returned when a channel size is below the minimum
	// or a destination buffer is smaller than the declared payload.
	ErrBufferTooSmall = errors.New("channel: buffer too small")

	// ErrIo is returned when an underlying medium access fails.
	ErrIo = errors.New("channel: medium access failed")

	// ErrUninit is returned when attaching to a channel whose size field is
	// still zero.
	ErrUninit = errors.New("channel: uninitialized")

	// ErrNotAligned is returned when a base address is not a multiple of 4.
	ErrNotAligned = errors.New("channel: base address not aligned")
)

// ioErr maps an opaque medium failure to ErrIo. Transport-specific detail is
// kept in the message only; classification via errors.Is always yields ErrIo.
func ioErr(err error) error {
	return fmt.Errorf("%w: %v", ErrIo, err)
}
