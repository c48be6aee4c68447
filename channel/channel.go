// Package channel implements the single-slot message transfer protocol over
// a shared medium.
//
// A channel is one unidirectional region with a control block followed by a
// payload area. Exactly one producer and one consumer use it, and at most
// one payload is in flight at a time. All coordination happens through the
// two sequence numbers in the control block: the channel is idle when they
// are equal and busy when they differ. Only equality is ever tested, so the
// 32-bit counters may wrap freely.
//
// The protocol is expressed once; whether an operation may suspend depends
// entirely on the medium.Io backend it runs against (see package medium).
// No operation waits internally: waiting for data is always external polling
// of DataAvailable, with the yield between probes supplied by the caller.
//
// A handle owns exclusive use of its medium.Io for its lifetime. Dropping
// the handle releases the capability for the next channel without touching
// memory state.
package channel

import (
	"context"
	"sync/atomic"

	"github.com/FerroO2000/condotto/internal"
	"github.com/FerroO2000/condotto/internal/cb"
	"github.com/FerroO2000/condotto/internal/codec"
	"github.com/FerroO2000/condotto/medium"
)

// Role is the fixed role a handle is bound to: a producer only publishes,
// a consumer only consumes.
type Role uint8

const (
	// RoleProducer publishes payloads into the channel.
	RoleProducer Role = iota
	// RoleConsumer drains payloads from the channel.
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "producer"
	case RoleConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

// Channel is a handle over one channel region. It does not own the region's
// memory, only temporary exclusive access to the capability used to reach it.
type Channel struct {
	tel *internal.Telemetry

	io       medium.Io
	role     Role
	baseAddr uint32

	// Metrics
	published atomic.Int64
	consumed  atomic.Int64
}

// Create formats a fresh control block at baseAddr and returns a handle
// bound to the given role. It is used by the side that owns the region.
//
// The write ordering is load-bearing: the size field is zeroed first and
// written with the real value last, so a peer racing to attach can never
// observe a torn header. Until the final write the channel is
// indistinguishable from an uninitialized one.
func Create(ctx context.Context, io medium.Io, role Role, baseAddr uint32, size uint32) (*Channel, error) {
	if !cb.AlignedBaseAddr(baseAddr) {
		return nil, ErrNotAligned
	}

	if !cb.ValidChannelSize(size) {
		return nil, ErrBufferTooSmall
	}

	ch := newChannel(io, role, baseAddr)

	// Channel is only valid once the size is non-zero.
	if err := ch.writeChannelSize(ctx, 0); err != nil {
		return nil, err
	}

	if err := ch.writeProducerSeq(ctx, 0); err != nil {
		return nil, err
	}
	if err := ch.writeConsumerSeq(ctx, 0); err != nil {
		return nil, err
	}
	if err := ch.writeFlags(ctx, cb.FlagsOk); err != nil {
		return nil, err
	}
	if err := ch.writeDataSize(ctx, 0); err != nil {
		return nil, err
	}

	// Final step is to set the channel size.
	if err := ch.writeChannelSize(ctx, size); err != nil {
		return nil, err
	}

	ch.tel.LogDebug("created channel", "base_addr", baseAddr, "size", size)

	return ch, nil
}

// Attach validates an existing control block at baseAddr and returns a
// handle bound to the given role. It is used by the peer of the side that
// created the channel; it trusts the existing sequence numbers and flags.
func Attach(ctx context.Context, io medium.Io, role Role, baseAddr uint32) (*Channel, error) {
	if !cb.AlignedBaseAddr(baseAddr) {
		return nil, ErrNotAligned
	}

	ch := newChannel(io, role, baseAddr)

	size, err := ch.readChannelSize(ctx)
	if err != nil {
		return nil, err
	}

	if size == 0 {
		return nil, ErrUninit
	}

	if !cb.ValidChannelSize(size) {
		return nil, ErrBufferTooSmall
	}

	ch.tel.LogDebug("attached channel", "base_addr", baseAddr, "size", size)

	return ch, nil
}

func newChannel(io medium.Io, role Role, baseAddr uint32) *Channel {
	ch := &Channel{
		tel: internal.NewTelemetry("channel", role.String()),

		io:       io,
		role:     role,
		baseAddr: baseAddr,
	}

	switch role {
	case RoleProducer:
		ch.tel.NewCounter("published_messages", func() int64 { return ch.published.Load() })
	case RoleConsumer:
		ch.tel.NewCounter("consumed_messages", func() int64 { return ch.consumed.Load() })
	}

	return ch
}

// Role returns the role the handle is bound to.
func (c *Channel) Role() Role {
	return c.role
}

// BaseAddr returns the channel base address.
func (c *Channel) BaseAddr() uint32 {
	return c.baseAddr
}

// DataCapacity returns the payload capacity of the channel in bytes.
func (c *Channel) DataCapacity(ctx context.Context) (int, error) {
	size, err := c.readChannelSize(ctx)
	if err != nil {
		return 0, err
	}

	return int(cb.DataCapacity(size)), nil
}

// PublishWords atomically publishes a word-aligned payload.
//
// Use PublishBytes for payloads of arbitrary byte length. The channel must
// be idle; a publish while busy fails with ErrBusy instead of queueing.
func (c *Channel) PublishWords(ctx context.Context, words []uint32) error {
	if err := c.producerOnly(); err != nil {
		return err
	}

	byteLen := len(words) * 4

	capacity, err := c.DataCapacity(ctx)
	if err != nil {
		return err
	}
	if byteLen > capacity {
		return ErrPayloadTooLarge
	}

	if err := c.checkIdle(ctx); err != nil {
		return err
	}

	// Write the payload first (bulk). No consumer can be reading yet:
	// the channel is still idle.
	if err := c.writeWords(ctx, cb.DataAddr(c.baseAddr), words); err != nil {
		return err
	}

	// Metadata before publishing
	if err := c.writeDataSize(ctx, uint32(byteLen)); err != nil {
		return err
	}
	if err := c.writeFlags(ctx, cb.FlagsOk); err != nil {
		return err
	}

	// Incrementing producer_seq is the single write that flips the channel
	// to busy for the consumer, so it must come last.
	if err := c.incProducerSeq(ctx); err != nil {
		return err
	}

	c.published.Add(1)
	return nil
}

// PublishBytes atomically publishes a payload of arbitrary byte length and
// alignment. Each group of 4 bytes is packed little-endian into a word; a
// trailing group of 1-3 bytes goes into a zero-padded final word.
func (c *Channel) PublishBytes(ctx context.Context, data []byte) error {
	if err := c.producerOnly(); err != nil {
		return err
	}

	capacity, err := c.DataCapacity(ctx)
	if err != nil {
		return err
	}
	if len(data) > capacity {
		return ErrPayloadTooLarge
	}

	if err := c.checkIdle(ctx); err != nil {
		return err
	}

	dataAddr := cb.DataAddr(c.baseAddr)

	// Aligned portion with individual word writes
	wordCount := len(data) / 4
	for wordIdx := range wordCount {
		word := codec.Word(data[wordIdx*4:])
		if err := c.writeWord(ctx, dataAddr+uint32(wordIdx*4), word); err != nil {
			return err
		}
	}

	// Remaining 1-3 bytes
	if remaining := len(data) % 4; remaining > 0 {
		word := codec.PackPartial(data[wordCount*4:])
		if err := c.writeWord(ctx, dataAddr+uint32(wordCount*4), word); err != nil {
			return err
		}
	}

	// Metadata before publishing
	if err := c.writeDataSize(ctx, uint32(len(data))); err != nil {
		return err
	}
	if err := c.writeFlags(ctx, cb.FlagsOk); err != nil {
		return err
	}

	if err := c.incProducerSeq(ctx); err != nil {
		return err
	}

	c.published.Add(1)
	return nil
}

// CanPublish reports whether the channel is available for publishing.
func (c *Channel) CanPublish(ctx context.Context) (bool, error) {
	return c.idle(ctx)
}

// ConsumeWords atomically consumes the current payload into buf, reading
// whole words. The last word is zero-padded when the payload length is not
// a multiple of 4. Returns the number of words written into buf.
func (c *Channel) ConsumeWords(ctx context.Context, buf []uint32) (int, error) {
	if err := c.consumerOnly(); err != nil {
		return 0, err
	}

	if err := c.checkBusy(ctx); err != nil {
		return 0, err
	}

	byteSize, err := c.readDataSize(ctx)
	if err != nil {
		return 0, err
	}
	wordSize := codec.WordCount(int(byteSize))

	if wordSize > len(buf) {
		return 0, ErrBufferTooSmall
	}

	capacity, err := c.DataCapacity(ctx)
	if err != nil {
		return 0, err
	}
	if int(byteSize) > capacity {
		return 0, ErrPayloadTooLarge
	}

	if err := c.readWords(ctx, cb.DataAddr(c.baseAddr), buf[:wordSize]); err != nil {
		return 0, err
	}

	// Updating consumer_seq last is what releases the slot to the producer.
	if err := c.syncConsumerSeq(ctx); err != nil {
		return 0, err
	}

	c.consumed.Add(1)
	return wordSize, nil
}

// ConsumeBytes atomically consumes the current payload into buf as bytes,
// handling payload lengths that are not a multiple of 4. Returns the number
// of bytes written into buf.
func (c *Channel) ConsumeBytes(ctx context.Context, buf []byte) (int, error) {
	if err := c.consumerOnly(); err != nil {
		return 0, err
	}

	if err := c.checkBusy(ctx); err != nil {
		return 0, err
	}

	byteSize, err := c.readDataSize(ctx)
	if err != nil {
		return 0, err
	}

	if int(byteSize) > len(buf) {
		return 0, ErrBufferTooSmall
	}

	capacity, err := c.DataCapacity(ctx)
	if err != nil {
		return 0, err
	}
	if int(byteSize) > capacity {
		return 0, ErrPayloadTooLarge
	}

	dataAddr := cb.DataAddr(c.baseAddr)

	// Aligned portion with individual word reads
	wordCount := int(byteSize) / 4
	for wordIdx := range wordCount {
		word, err := c.readWord(ctx, dataAddr+uint32(wordIdx*4))
		if err != nil {
			return 0, err
		}
		codec.PutWord(buf[wordIdx*4:], word)
	}

	// Remaining 1-3 bytes
	if remaining := int(byteSize) % 4; remaining > 0 {
		word, err := c.readWord(ctx, dataAddr+uint32(wordCount*4))
		if err != nil {
			return 0, err
		}
		codec.UnpackInto(buf[wordCount*4:int(byteSize)], word)
	}

	if err := c.syncConsumerSeq(ctx); err != nil {
		return 0, err
	}

	c.consumed.Add(1)
	return int(byteSize), nil
}

// Flags is a non-mutating probe returning the status flag of the current
// payload. Meaningful while the channel is busy; the engine itself only ever
// publishes FlagsOk.
func (c *Channel) Flags(ctx context.Context) (cb.Flags, error) {
	word, err := c.readWord(ctx, c.baseAddr+cb.OffFlags)
	if err != nil {
		return cb.FlagsError, err
	}

	return cb.DecodeFlags(word), nil
}

// DataAvailable is a non-mutating probe: it returns the payload size and
// true when the channel is busy, or false when it is idle.
func (c *Channel) DataAvailable(ctx context.Context) (int, bool, error) {
	idle, err := c.idle(ctx)
	if err != nil {
		return 0, false, err
	}

	if idle {
		return 0, false, nil
	}

	size, err := c.readDataSize(ctx)
	if err != nil {
		return 0, false, err
	}

	return int(size), true, nil
}

// Control block field access

func (c *Channel) readWord(ctx context.Context, addr uint32) (uint32, error) {
	word, err := c.io.ReadWord(ctx, addr)
	if err != nil {
		return 0, ioErr(err)
	}
	return word, nil
}

func (c *Channel) writeWord(ctx context.Context, addr uint32, word uint32) error {
	if err := c.io.WriteWord(ctx, addr, word); err != nil {
		return ioErr(err)
	}
	return nil
}

func (c *Channel) readWords(ctx context.Context, addr uint32, buf []uint32) error {
	if err := c.io.ReadWords(ctx, addr, buf); err != nil {
		return ioErr(err)
	}
	return nil
}

func (c *Channel) writeWords(ctx context.Context, addr uint32, words []uint32) error {
	if err := c.io.WriteWords(ctx, addr, words); err != nil {
		return ioErr(err)
	}
	return nil
}

func (c *Channel) readChannelSize(ctx context.Context) (uint32, error) {
	return c.readWord(ctx, c.baseAddr+cb.OffChannelSize)
}

func (c *Channel) writeChannelSize(ctx context.Context, size uint32) error {
	return c.writeWord(ctx, c.baseAddr+cb.OffChannelSize, size)
}

func (c *Channel) readProducerSeq(ctx context.Context) (uint32, error) {
	return c.readWord(ctx, c.baseAddr+cb.OffProducerSeq)
}

func (c *Channel) writeProducerSeq(ctx context.Context, seq uint32) error {
	return c.writeWord(ctx, c.baseAddr+cb.OffProducerSeq, seq)
}

func (c *Channel) readConsumerSeq(ctx context.Context) (uint32, error) {
	return c.readWord(ctx, c.baseAddr+cb.OffConsumerSeq)
}

func (c *Channel) writeConsumerSeq(ctx context.Context, seq uint32) error {
	return c.writeWord(ctx, c.baseAddr+cb.OffConsumerSeq, seq)
}

func (c *Channel) writeFlags(ctx context.Context, flags cb.Flags) error {
	return c.writeWord(ctx, c.baseAddr+cb.OffFlags, uint32(flags))
}

func (c *Channel) readDataSize(ctx context.Context) (uint32, error) {
	return c.readWord(ctx, c.baseAddr+cb.OffDataSize)
}

func (c *Channel) writeDataSize(ctx context.Context, size uint32) error {
	return c.writeWord(ctx, c.baseAddr+cb.OffDataSize, size)
}

// State helpers

func (c *Channel) idle(ctx context.Context) (bool, error) {
	producerSeq, err := c.readProducerSeq(ctx)
	if err != nil {
		return false, err
	}

	consumerSeq, err := c.readConsumerSeq(ctx)
	if err != nil {
		return false, err
	}

	return producerSeq == consumerSeq, nil
}

func (c *Channel) checkIdle(ctx context.Context) error {
	idle, err := c.idle(ctx)
	if err != nil {
		return err
	}

	if !idle {
		return ErrBusy
	}
	return nil
}

func (c *Channel) checkBusy(ctx context.Context) error {
	idle, err := c.idle(ctx)
	if err != nil {
		return err
	}

	if idle {
		return ErrNoData
	}
	return nil
}

func (c *Channel) incProducerSeq(ctx context.Context) error {
	seq, err := c.readProducerSeq(ctx)
	if err != nil {
		return err
	}

	// Wrapping add; only equality is ever observed, never magnitude.
	return c.writeProducerSeq(ctx, seq+1)
}

// syncConsumerSeq sets consumer_seq to producer_seq. Read-then-write, not a
// blind increment: only the producer ever advances producer_seq.
func (c *Channel) syncConsumerSeq(ctx context.Context) error {
	seq, err := c.readProducerSeq(ctx)
	if err != nil {
		return err
	}

	return c.writeConsumerSeq(ctx, seq)
}

func (c *Channel) producerOnly() error {
	if c.role != RoleProducer {
		return ErrInvalidOperation
	}
	return nil
}

func (c *Channel) consumerOnly() error {
	if c.role != RoleConsumer {
		return ErrInvalidOperation
	}
	return nil
}
