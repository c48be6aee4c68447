// Package cb defines the fixed control block layout placed at the base of
// every channel region, plus the derived addressing arithmetic.
//
// The layout is a cross-component wire contract shared by both sides of a
// channel and must never change without a protocol version bump:
//
//	offset  0  channel_size  total region size in bytes, 0 = uninitialized
//	offset  4  producer_seq  incremented once per completed publish
//	offset  8  consumer_seq  set to producer_seq once per completed consume
//	offset 12  flags         status flag, only FlagsOk is produced today
//	offset 16  data_size     payload length in bytes, valid while busy
//	offset 20  payload area
//
// All fields are 32-bit little-endian words. The base address of a region
// must be a multiple of 4.
package cb

// Field offsets in bytes from the channel base address.
const (
	OffChannelSize uint32 = 0
	OffProducerSeq uint32 = 4
	OffConsumerSeq uint32 = 8
	OffFlags       uint32 = 12
	OffDataSize    uint32 = 16
)

const (
	// Size is the control block size in bytes. The payload area starts
	// immediately after it.
	Size uint32 = 20

	// MinChannelSize is the smallest legal channel region: the control
	// block plus one word of payload.
	MinChannelSize uint32 = Size + 4
)

// Flags is the status flag word written by the producer before each publish.
type Flags uint32

const (
	// FlagsOk is the only flag the current engine produces.
	FlagsOk Flags = iota
	// FlagsBusy is reserved for future protocol versions.
	FlagsBusy
	// FlagsError is reserved for future protocol versions.
	FlagsError
	// FlagsTimeout is reserved for future protocol versions.
	FlagsTimeout
)

func (f Flags) String() string {
	switch f {
	case FlagsOk:
		return "ok"
	case FlagsBusy:
		return "busy"
	case FlagsError:
		return "error"
	case FlagsTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// DecodeFlags converts a wire word into Flags.
// Values outside the known range decode as FlagsError.
func DecodeFlags(word uint32) Flags {
	f := Flags(word)
	switch f {
	case FlagsOk, FlagsBusy, FlagsError, FlagsTimeout:
		return f
	default:
		return FlagsError
	}
}

// DataAddr returns the address of the first payload word.
func DataAddr(base uint32) uint32 {
	return base + Size
}

// DataCapacity returns the payload capacity in bytes for a region of the
// given total size. The caller must have validated the size with
// ValidChannelSize first, otherwise the subtraction underflows.
func DataCapacity(channelSize uint32) uint32 {
	return channelSize - Size
}

// AlignedBaseAddr reports whether addr is a legal channel base address.
func AlignedBaseAddr(addr uint32) bool {
	return addr%4 == 0
}

// ValidChannelSize reports whether size can hold the control block and at
// least one word of payload.
func ValidChannelSize(size uint32) bool {
	return size >= MinChannelSize
}
