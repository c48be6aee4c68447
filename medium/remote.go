package medium

import (
	"context"
	"fmt"

	"github.com/FerroO2000/condotto/internal/codec"
)

// Reader is the read half of a byte-oriented transport into the peer's
// address space, such as a debug-probe link. A ReadAt call may suspend while
// the transport round-trips; a single 4-byte read must be performed as one
// operation that cannot be observed half-complete.
type Reader interface {
	// ReadAt reads len(buf) bytes starting at the absolute address addr.
	ReadAt(ctx context.Context, addr uint32, buf []byte) error

	// UpdateBaseAddress rebases the transport's addressing window if it is
	// later detected to have shifted.
	UpdateBaseAddress(newBase uint32)
}

// Writer is the write half of a byte-oriented transport into the peer's
// address space. The same contract as Reader applies.
type Writer interface {
	// WriteAt writes data starting at the absolute address addr.
	WriteAt(ctx context.Context, addr uint32, data []byte) error

	// UpdateBaseAddress rebases the transport's addressing window if it is
	// later detected to have shifted.
	UpdateBaseAddress(newBase uint32)
}

// Remote is the suspending backend: it adapts a byte-oriented Reader/Writer
// transport to the word-level Io contract. Words cross the transport in the
// fixed little-endian wire convention; the conversion is an explicit encode/
// decode step, never a reinterpretation of memory layout.
type Remote struct {
	reader Reader
	writer Writer
}

var _ Io = (*Remote)(nil)

// NewRemote returns a Remote over the given transport halves.
func NewRemote(reader Reader, writer Writer) *Remote {
	return &Remote{
		reader: reader,
		writer: writer,
	}
}

// UpdateBaseAddress rebases both transport halves.
func (r *Remote) UpdateBaseAddress(newBase uint32) {
	r.reader.UpdateBaseAddress(newBase)
	r.writer.UpdateBaseAddress(newBase)
}

// ReadWord performs an atomic single-word read as one transport round trip.
func (r *Remote) ReadWord(ctx context.Context, addr uint32) (uint32, error) {
	var buf [4]byte
	if err := r.reader.ReadAt(ctx, addr, buf[:]); err != nil {
		return 0, fmt.Errorf("remote read at %#010x: %w", addr, err)
	}

	return codec.Word(buf[:]), nil
}

// WriteWord performs an atomic single-word write as one transport round trip.
func (r *Remote) WriteWord(ctx context.Context, addr uint32, word uint32) error {
	var buf [4]byte
	codec.PutWord(buf[:], word)

	if err := r.writer.WriteAt(ctx, addr, buf[:]); err != nil {
		return fmt.Errorf("remote write at %#010x: %w", addr, err)
	}

	return nil
}

// ReadWords performs a bulk read as a single byte transfer.
func (r *Remote) ReadWords(ctx context.Context, addr uint32, buf []uint32) error {
	raw := make([]byte, len(buf)*4)
	if err := r.reader.ReadAt(ctx, addr, raw); err != nil {
		return fmt.Errorf("remote bulk read at %#010x: %w", addr, err)
	}

	codec.BytesToWords(buf, raw)
	return nil
}

// WriteWords performs a bulk write as a single byte transfer.
func (r *Remote) WriteWords(ctx context.Context, addr uint32, words []uint32) error {
	raw := make([]byte, len(words)*4)
	codec.WordsToBytes(raw, words)

	if err := r.writer.WriteAt(ctx, addr, raw); err != nil {
		return fmt.Errorf("remote bulk write at %#010x: %w", addr, err)
	}

	return nil
}
