// Package medium abstracts the flat 32-bit address space through which a
// channel region is reached: directly addressable memory, a memory-mapped
// file shared between processes, or a remote byte-oriented transport such as
// a debug-probe link.
//
// # Contract
//
// Single-word operations are atomic at the medium level: a word read or
// write can never be observed half-complete by the peer. Bulk operations
// carry no atomicity guarantee and are used only for payload data, never for
// control block fields.
//
// The protocol built on top additionally requires strong in-order visibility:
// single-word writes become visible to the peer in program order, and a bulk
// write completes, from the writer's perspective, before any subsequent
// single-word write. This is a documented precondition on the supported
// environments (e.g. no incoherent caches between the two access paths); it
// is not verified, and no implementation inserts memory barriers to simulate
// ordering the underlying transport cannot provide.
//
// Whether an operation may suspend is an implementation property, not part of
// the interface: direct backends (Mem, Shm) complete every call without
// ceding control, while transport backends (Remote) may block on a slow
// round-trip and honor context cancellation.
//
// Both sides of a channel must use the same byte order. The wire convention
// is little-endian and the direct backends assume a little-endian host.
//
// A capability is shared, not owned: successive channel handles may reuse it
// sequentially, but two live handles must never access it concurrently.
package medium

import (
	"context"
	"errors"
)

// Io grants word-level access to the medium.
type Io interface {
	// ReadWord performs an atomic single-word read.
	ReadWord(ctx context.Context, addr uint32) (uint32, error)

	// WriteWord performs an atomic single-word write.
	WriteWord(ctx context.Context, addr uint32, word uint32) error

	// ReadWords performs a bulk read into buf, with no atomicity guarantee.
	ReadWords(ctx context.Context, addr uint32, buf []uint32) error

	// WriteWords performs a bulk write of words, with no atomicity guarantee.
	WriteWords(ctx context.Context, addr uint32, words []uint32) error
}

// Errors returned by the built-in backends.
var (
	// ErrOutOfRange is returned when an access falls outside the medium window.
	ErrOutOfRange = errors.New("medium: address out of range")

	// ErrMisaligned is returned when a word access is not 4-byte aligned.
	ErrMisaligned = errors.New("medium: address not word aligned")
)
