// Package socstore keeps the battery state of charge in a small memory mapped
// file so the last value survives the process being killed.
//
// The file holds a single native-endian float32. Other processes can read the
// file at any time; this package is the only writer.
package socstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

const (
	DefaultPath = "/var/lib/battery_shm"
	DefaultPerm = os.FileMode(0600)

	size = 4
)

type Store struct {
	path  string
	file  *os.File
	data  []byte
	fresh bool
}

// Open maps the file at path, creating it with perm if needed. A file that
// was just created or had the wrong size is zeroed and reported by Fresh.
func Open(path string, perm os.FileMode) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, perm)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	fresh := fi.Size() != size
	if fresh {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &Store{
		path:  path,
		file:  f,
		data:  data,
		fresh: fresh,
	}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Fresh reports whether the file had no previous value when opened.
func (s *Store) Fresh() bool {
	return s.fresh
}

func (s *Store) SoC() float32 {
	return math.Float32frombits(binary.NativeEndian.Uint32(s.data))
}

// SetSoC updates the mapped value. It is not durable until Persist is called.
func (s *Store) SetSoC(soc float32) {
	binary.NativeEndian.PutUint32(s.data, math.Float32bits(soc))
	s.fresh = false
}

// Persist flushes the mapping and then the file to stable storage.
func (s *Store) Persist() error {
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync %s: %w", s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", s.path, err)
	}
	return nil
}

// Close unmaps and closes the file, leaving it in place for the next start.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}
	unmapErr := unix.Munmap(s.data)
	closeErr := s.file.Close()
	s.data = nil
	s.file = nil
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

// Dispose closes the store and removes the file. Only used on a clean stop.
func (s *Store) Dispose() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read returns the value in the file at path without mapping it.
func Read(path string) (float32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(b) != size {
		return 0, fmt.Errorf("%s: expected %d bytes, got %d", path, size, len(b))
	}
	return math.Float32frombits(binary.NativeEndian.Uint32(b)), nil
}
