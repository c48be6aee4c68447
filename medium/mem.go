package medium

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/FerroO2000/condotto/internal/codec"
)

// Mem is the non-suspending direct-memory backend: a byte buffer exposed as
// a window of the 32-bit address space starting at a fixed base address.
// Every operation completes synchronously without ceding control; the context
// is ignored.
//
// This is the single module allowed to reinterpret raw memory: word accesses
// go through sync/atomic on the backing bytes, which is what makes the
// control block handshake sound between two execution contexts sharing the
// buffer. All other code reaches memory only through the Io contract.
type Mem struct {
	base uint32
	buf  []byte
}

var _ Io = (*Mem)(nil)

// NewMem returns a Mem exposing buf at the given base address.
// The base address and the buffer start must be 4-byte aligned, and the
// buffer must hold at least one word.
func NewMem(base uint32, buf []byte) (*Mem, error) {
	if base%4 != 0 {
		return nil, fmt.Errorf("%w: base %#010x", ErrMisaligned, base)
	}

	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: buffer of %d bytes", ErrOutOfRange, len(buf))
	}

	if uintptr(unsafe.Pointer(unsafe.SliceData(buf)))%4 != 0 {
		return nil, fmt.Errorf("%w: buffer start", ErrMisaligned)
	}

	return &Mem{
		base: base,
		buf:  buf,
	}, nil
}

// Base returns the base address of the window.
func (m *Mem) Base() uint32 {
	return m.base
}

// Size returns the window size in bytes.
func (m *Mem) Size() int {
	return len(m.buf)
}

// offset translates addr into a buffer offset, checking that byteLen bytes
// fit inside the window.
func (m *Mem) offset(addr uint32, byteLen int) (int, error) {
	if addr < m.base {
		return 0, fmt.Errorf("%w: %#010x below base %#010x", ErrOutOfRange, addr, m.base)
	}

	off := uint64(addr - m.base)
	if off+uint64(byteLen) > uint64(len(m.buf)) {
		return 0, fmt.Errorf("%w: %d bytes at %#010x", ErrOutOfRange, byteLen, addr)
	}

	return int(off), nil
}

func (m *Mem) wordPtr(addr uint32) (*uint32, error) {
	if addr%4 != 0 {
		return nil, fmt.Errorf("%w: %#010x", ErrMisaligned, addr)
	}

	off, err := m.offset(addr, 4)
	if err != nil {
		return nil, err
	}

	return (*uint32)(unsafe.Pointer(&m.buf[off])), nil
}

// ReadWord performs an atomic single-word read.
func (m *Mem) ReadWord(_ context.Context, addr uint32) (uint32, error) {
	ptr, err := m.wordPtr(addr)
	if err != nil {
		return 0, err
	}

	return atomic.LoadUint32(ptr), nil
}

// WriteWord performs an atomic single-word write.
func (m *Mem) WriteWord(_ context.Context, addr uint32, word uint32) error {
	ptr, err := m.wordPtr(addr)
	if err != nil {
		return err
	}

	atomic.StoreUint32(ptr, word)
	return nil
}

// ReadWords performs a bulk, non-atomic read into buf.
func (m *Mem) ReadWords(_ context.Context, addr uint32, buf []uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("%w: %#010x", ErrMisaligned, addr)
	}

	off, err := m.offset(addr, len(buf)*4)
	if err != nil {
		return err
	}

	codec.BytesToWords(buf, m.buf[off:off+len(buf)*4])
	return nil
}

// WriteWords performs a bulk, non-atomic write of words.
func (m *Mem) WriteWords(_ context.Context, addr uint32, words []uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("%w: %#010x", ErrMisaligned, addr)
	}

	off, err := m.offset(addr, len(words)*4)
	if err != nil {
		return err
	}

	codec.WordsToBytes(m.buf[off:], words)
	return nil
}
