// Package condotto provides the main entrypoint for the condotto library.
//
// Condotto implements a reliable single-producer/single-consumer transfer
// protocol over a shared memory medium connecting two independent execution
// contexts, typically a debug host and an embedded target that share no OS,
// no atomics across the link, and no locks. One channel carries one payload
// at a time; reliability comes from a sequence-number handshake built on
// ordered single-word memory operations.
//
// The building blocks:
//   - [Channel] ([github.com/FerroO2000/condotto/channel]): the protocol engine.
//   - [Medium] ([github.com/FerroO2000/condotto/medium]): access to the shared
//     address space, direct or through a remote transport.
//   - [Client] ([github.com/FerroO2000/condotto/client]): request/response
//     calls over a command/response channel pair.
package condotto

import (
	"context"

	"github.com/FerroO2000/condotto/channel"
	"github.com/FerroO2000/condotto/client"
	"github.com/FerroO2000/condotto/medium"
)

// Role represents the fixed role of a channel handle.
type Role = channel.Role

const (
	// RoleProducer publishes payloads into a channel.
	RoleProducer = channel.RoleProducer
	// RoleConsumer drains payloads from a channel.
	RoleConsumer = channel.RoleConsumer
)

// Channel is a handle over one channel region.
type Channel = channel.Channel

// Medium grants word-level access to the shared address space.
type Medium = medium.Io

// Client is the two-channel RPC client.
type Client = client.Client

// ClientConfig is the configuration for the RPC client.
type ClientConfig = client.Config

// CreateChannel formats a fresh channel region and returns a handle bound to
// the given role. Used by the side that owns the region.
func CreateChannel(ctx context.Context, io Medium, role Role, baseAddr uint32, size uint32) (*Channel, error) {
	return channel.Create(ctx, io, role, baseAddr, size)
}

// AttachChannel validates an existing channel region and returns a handle
// bound to the given role. Used by the peer of the creating side.
func AttachChannel(ctx context.Context, io Medium, role Role, baseAddr uint32) (*Channel, error) {
	return channel.Attach(ctx, io, role, baseAddr)
}

// Protocol errors, re-exported for convenience.
var (
	ErrNoData           = channel.ErrNoData
	ErrBusy             = channel.ErrBusy
	ErrTimeout          = channel.ErrTimeout
	ErrInvalidOperation = channel.ErrInvalidOperation
	ErrPayloadTooLarge  = channel.ErrPayloadTooLarge
	ErrSequenceMismatch = channel.ErrSequenceMismatch
	ErrBufferTooSmall   = channel.ErrBufferTooSmall
	ErrIo               = channel.ErrIo
	ErrUninit           = channel.ErrUninit
	ErrNotAligned       = channel.ErrNotAligned
)
