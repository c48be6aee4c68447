package channel

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FerroO2000/condotto/internal/cb"
	"github.com/FerroO2000/condotto/internal/codec"
	"github.com/FerroO2000/condotto/medium"
)

const testBaseAddr uint32 = 0x2000_0000

// newTestRegion returns the backing buffer of a channel region and two
// independent capabilities over it, one per side.
func newTestRegion(t *testing.T, size uint32) ([]byte, *medium.Mem, *medium.Mem) {
	t.Helper()

	buf := make([]byte, size)

	prodIo, err := medium.NewMem(testBaseAddr, buf)
	assert.NoError(t, err)

	consIo, err := medium.NewMem(testBaseAddr, buf)
	assert.NoError(t, err)

	return buf, prodIo, consIo
}

func Test_createThenAttach(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	_, prodIo, consIo := newTestRegion(t, 64)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)

	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	prodCap, err := prodCh.DataCapacity(ctx)
	assert.NoError(err)
	consCap, err := consCh.DataCapacity(ctx)
	assert.NoError(err)
	assert.Equal(64-int(cb.Size), prodCap)
	assert.Equal(prodCap, consCap)

	// Both sides observe the channel as idle
	canPublish, err := prodCh.CanPublish(ctx)
	assert.NoError(err)
	assert.True(canPublish)

	_, ok, err := consCh.DataAvailable(ctx)
	assert.NoError(err)
	assert.False(ok)
}

func Test_attachUninitialized(t *testing.T) {
	assert := assert.New(t)

	_, _, consIo := newTestRegion(t, 64)

	_, err := Attach(t.Context(), consIo, RoleConsumer, testBaseAddr)
	assert.ErrorIs(err, ErrUninit)
}

func Test_notAligned(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	_, prodIo, consIo := newTestRegion(t, 64)

	_, err := Create(ctx, prodIo, RoleProducer, testBaseAddr+2, 64)
	assert.ErrorIs(err, ErrNotAligned)

	_, err = Attach(ctx, consIo, RoleConsumer, testBaseAddr+2)
	assert.ErrorIs(err, ErrNotAligned)
}

func Test_createTooSmall(t *testing.T) {
	assert := assert.New(t)

	_, prodIo, _ := newTestRegion(t, 64)

	_, err := Create(t.Context(), prodIo, RoleProducer, testBaseAddr, cb.MinChannelSize-1)
	assert.ErrorIs(err, ErrBufferTooSmall)
}

func Test_byteRoundTrip(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	const size = 64
	capacity := int(size - cb.Size)

	_, prodIo, consIo := newTestRegion(t, size)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, size)
	assert.NoError(err)
	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	for _, payloadLen := range []int{0, 1, 3, 4, 5, capacity - 1, capacity} {
		payload := make([]byte, payloadLen)
		for idx := range payload {
			payload[idx] = byte(idx + 1)
		}

		assert.NoError(prodCh.PublishBytes(ctx, payload))

		available, ok, err := consCh.DataAvailable(ctx)
		assert.NoError(err)
		assert.True(ok)
		assert.Equal(payloadLen, available)

		buf := make([]byte, capacity)
		received, err := consCh.ConsumeBytes(ctx, buf)
		assert.NoError(err)
		assert.Equal(payloadLen, received)
		assert.Equal(payload, buf[:received])
	}
}

func Test_payloadTooLargeNoMutation(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	const size = 64
	capacity := int(size - cb.Size)

	buf, prodIo, _ := newTestRegion(t, size)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, size)
	assert.NoError(err)

	snapshot := bytes.Clone(buf)

	oversized := make([]byte, capacity+1)
	assert.ErrorIs(prodCh.PublishBytes(ctx, oversized), ErrPayloadTooLarge)
	assert.Equal(snapshot, buf)

	oversizedWords := make([]uint32, capacity/4+1)
	assert.ErrorIs(prodCh.PublishWords(ctx, oversizedWords), ErrPayloadTooLarge)
	assert.Equal(snapshot, buf)
}

func Test_probeIdempotence(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	_, prodIo, consIo := newTestRegion(t, 64)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)
	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	for range 3 {
		canPublish, err := prodCh.CanPublish(ctx)
		assert.NoError(err)
		assert.True(canPublish)

		_, ok, err := consCh.DataAvailable(ctx)
		assert.NoError(err)
		assert.False(ok)
	}

	assert.NoError(prodCh.PublishBytes(ctx, []byte{0xAA, 0xBB}))

	flags, err := consCh.Flags(ctx)
	assert.NoError(err)
	assert.Equal(cb.FlagsOk, flags)

	for range 3 {
		canPublish, err := prodCh.CanPublish(ctx)
		assert.NoError(err)
		assert.False(canPublish)

		available, ok, err := consCh.DataAvailable(ctx)
		assert.NoError(err)
		assert.True(ok)
		assert.Equal(2, available)
	}
}

func Test_busyIdleAlternation(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	_, prodIo, consIo := newTestRegion(t, 64)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)
	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	buf := make([]byte, 16)

	// Consume while idle
	_, err = consCh.ConsumeBytes(ctx, buf)
	assert.ErrorIs(err, ErrNoData)

	// Publish while idle succeeds, second publish is rejected, not queued
	assert.NoError(prodCh.PublishBytes(ctx, []byte{1, 2, 3}))
	assert.ErrorIs(prodCh.PublishBytes(ctx, []byte{4, 5, 6}), ErrBusy)

	// Consume drains exactly once
	received, err := consCh.ConsumeBytes(ctx, buf)
	assert.NoError(err)
	assert.Equal(3, received)

	_, err = consCh.ConsumeBytes(ctx, buf)
	assert.ErrorIs(err, ErrNoData)

	// Channel is reusable after draining
	assert.NoError(prodCh.PublishBytes(ctx, []byte{7}))
	received, err = consCh.ConsumeBytes(ctx, buf)
	assert.NoError(err)
	assert.Equal(1, received)
}

func Test_roleMismatch(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	_, prodIo, consIo := newTestRegion(t, 64)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)
	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	assert.ErrorIs(consCh.PublishBytes(ctx, []byte{1}), ErrInvalidOperation)
	assert.ErrorIs(consCh.PublishWords(ctx, []uint32{1}), ErrInvalidOperation)

	_, err = prodCh.ConsumeBytes(ctx, make([]byte, 4))
	assert.ErrorIs(err, ErrInvalidOperation)
	_, err = prodCh.ConsumeWords(ctx, make([]uint32, 1))
	assert.ErrorIs(err, ErrInvalidOperation)
}

func Test_sequenceWraparound(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	_, prodIo, consIo := newTestRegion(t, 64)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)
	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	// Force both sequence numbers to the wrap boundary; the channel is
	// still idle because only equality matters.
	assert.NoError(prodIo.WriteWord(ctx, testBaseAddr+cb.OffProducerSeq, 0xFFFF_FFFF))
	assert.NoError(prodIo.WriteWord(ctx, testBaseAddr+cb.OffConsumerSeq, 0xFFFF_FFFF))

	canPublish, err := prodCh.CanPublish(ctx)
	assert.NoError(err)
	assert.True(canPublish)

	assert.NoError(prodCh.PublishBytes(ctx, []byte{0x42}))

	// producer_seq wrapped to 0, consumer_seq is still 0xFFFFFFFF
	seq, err := prodIo.ReadWord(ctx, testBaseAddr+cb.OffProducerSeq)
	assert.NoError(err)
	assert.Equal(uint32(0), seq)

	available, ok, err := consCh.DataAvailable(ctx)
	assert.NoError(err)
	assert.True(ok)
	assert.Equal(1, available)

	buf := make([]byte, 4)
	received, err := consCh.ConsumeBytes(ctx, buf)
	assert.NoError(err)
	assert.Equal(1, received)
	assert.Equal(byte(0x42), buf[0])

	_, ok, err = consCh.DataAvailable(ctx)
	assert.NoError(err)
	assert.False(ok)
}

func Test_wordVsBytePublish(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	words := []uint32{0x0403_0201, 0x0807_0605}
	payload := make([]byte, len(words)*4)
	codec.WordsToBytes(payload, words)

	wordBuf, wordIo, _ := newTestRegion(t, 64)
	byteBuf, byteIo, _ := newTestRegion(t, 64)

	wordCh, err := Create(ctx, wordIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)
	byteCh, err := Create(ctx, byteIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)

	assert.NoError(wordCh.PublishWords(ctx, words))
	assert.NoError(byteCh.PublishBytes(ctx, payload))

	// Same logical payload produces identical bytes on the wire
	assert.Equal(wordBuf, byteBuf)
}

func Test_consumeWordsPadding(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	_, prodIo, consIo := newTestRegion(t, 64)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)
	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	assert.NoError(prodCh.PublishBytes(ctx, []byte{0x01, 0x02, 0x03, 0x04, 0x05}))

	buf := make([]uint32, 4)
	words, err := consCh.ConsumeWords(ctx, buf)
	assert.NoError(err)
	assert.Equal(2, words)
	assert.Equal(uint32(0x0403_0201), buf[0])
	// The trailing partial word carries zero padding in the unused lanes
	assert.Equal(uint32(0x0000_0005), buf[1])
}

func Test_consumeBufferTooSmall(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	_, prodIo, consIo := newTestRegion(t, 64)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)
	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	assert.NoError(prodCh.PublishBytes(ctx, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	_, err = consCh.ConsumeBytes(ctx, make([]byte, 4))
	assert.ErrorIs(err, ErrBufferTooSmall)
	_, err = consCh.ConsumeWords(ctx, make([]uint32, 1))
	assert.ErrorIs(err, ErrBufferTooSmall)

	// The failed consume must not release the slot
	buf := make([]byte, 8)
	received, err := consCh.ConsumeBytes(ctx, buf)
	assert.NoError(err)
	assert.Equal(8, received)
}

type faultyIo struct {
	err error
}

func (f *faultyIo) ReadWord(_ context.Context, _ uint32) (uint32, error) { return 0, f.err }
func (f *faultyIo) WriteWord(_ context.Context, _ uint32, _ uint32) error {
	return f.err
}
func (f *faultyIo) ReadWords(_ context.Context, _ uint32, _ []uint32) error  { return f.err }
func (f *faultyIo) WriteWords(_ context.Context, _ uint32, _ []uint32) error { return f.err }

func Test_mediumFault(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	io := &faultyIo{err: errors.New("link down")}

	_, err := Create(ctx, io, RoleProducer, testBaseAddr, 64)
	assert.ErrorIs(err, ErrIo)

	_, err = Attach(ctx, io, RoleConsumer, testBaseAddr)
	assert.ErrorIs(err, ErrIo)
}

func Test_concurrentTransfer(t *testing.T) {
	assert := assert.New(t)
	ctx := t.Context()

	const items = 1000

	_, prodIo, consIo := newTestRegion(t, 64)

	prodCh, err := Create(ctx, prodIo, RoleProducer, testBaseAddr, 64)
	assert.NoError(err)
	consCh, err := Attach(ctx, consIo, RoleConsumer, testBaseAddr)
	assert.NoError(err)

	go func() {
		payload := make([]byte, 4)
		for val := range items {
			codec.PutWord(payload, uint32(val))

			// Spin until the previous payload is drained
			for {
				if err := prodCh.PublishBytes(ctx, payload); err == nil {
					break
				}
				runtime.Gosched()
			}
		}
	}()

	buf := make([]byte, 4)
	for val := range items {
		for {
			received, err := consCh.ConsumeBytes(ctx, buf)
			if err != nil {
				runtime.Gosched()
				continue
			}

			assert.Equal(4, received)
			assert.Equal(uint32(val), codec.Word(buf))
			break
		}
	}
}
