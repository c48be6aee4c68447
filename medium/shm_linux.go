//go:build linux

package medium

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Shm is a Mem backed by a memory-mapped file, letting two processes on the
// same machine share a channel region. Like Mem it is non-suspending.
type Shm struct {
	*Mem

	file *os.File
	mem  []byte
	path string
}

// CreateShm creates the file at path with the given size, maps it, and
// exposes it at the given base address. The file must not exist yet.
func CreateShm(path string, base uint32, size uint32) (*Shm, error) {
	if !validShmSize(size) {
		return nil, fmt.Errorf("%w: shm size %d", ErrOutOfRange, size)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create shm file %s: %w", path, err)
	}

	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to resize shm file %s: %w", path, err)
	}

	shm, err := mapShm(file, base, int(size))
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}

	return shm, nil
}

// OpenShm maps an existing file created by CreateShm, exposing it at the
// given base address. The size is taken from the file itself.
func OpenShm(path string, base uint32) (*Shm, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open shm file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat shm file %s: %w", path, err)
	}

	if !validShmSize(uint32(info.Size())) || int64(uint32(info.Size())) != info.Size() {
		file.Close()
		return nil, fmt.Errorf("%w: shm file of %d bytes", ErrOutOfRange, info.Size())
	}

	shm, err := mapShm(file, base, int(info.Size()))
	if err != nil {
		file.Close()
		return nil, err
	}

	return shm, nil
}

func mapShm(file *os.File, base uint32, size int) (*Shm, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap shm file %s: %w", file.Name(), err)
	}

	// Mappings are page aligned, so the Mem alignment checks cannot fail
	// for the buffer itself.
	window, err := NewMem(base, mem)
	if err != nil {
		unix.Munmap(mem)
		return nil, err
	}

	return &Shm{
		Mem:  window,
		file: file,
		mem:  mem,
		path: file.Name(),
	}, nil
}

func validShmSize(size uint32) bool {
	return size >= 4
}

// Path returns the backing file path.
func (s *Shm) Path() string {
	return s.path
}

// Close unmaps the region and closes the backing file.
// The file itself is left in place for other processes; remove it separately
// when the channel region is no longer needed.
func (s *Shm) Close() error {
	if s.mem == nil {
		return nil
	}

	err := unix.Munmap(s.mem)
	s.mem = nil

	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}

	return err
}
