// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is a password or access token held in locked, non-dumpable
// memory. Reading a closed Buffer panics.
type Buffer struct {
	mu     sync.Mutex
	region []byte
}

// NewFromBytes moves source into a new Buffer. source is zeroed on
// success and on failure.
func NewFromBytes(source []byte) (*Buffer, error) {
	defer Zero(source)
	if len(source) == 0 {
		return nil, errors.New("secret: empty value")
	}
	region, err := lockRegion(len(source))
	if err != nil {
		return nil, err
	}
	copy(region, source)
	return &Buffer{region: region}, nil
}

// lockRegion maps size bytes of anonymous memory, pins it in RAM and
// excludes it from core dumps.
func lockRegion(size int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: madvise: %w", err)
	}
	return region, nil
}

// Bytes returns the value in place. The slice is invalid after Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked()
}

// String returns a heap copy, for the request body or Authorization
// header that needs one.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.openLocked())
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.region)
}

func (b *Buffer) openLocked() []byte {
	if b.region == nil {
		panic("secret: buffer used after Close")
	}
	return b.region
}

// Close wipes and releases the memory. Calling it again is a no-op.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.region == nil {
		return nil
	}
	region := b.region
	b.region = nil
	Zero(region)
	return errors.Join(unix.Munlock(region), unix.Munmap(region))
}

// Zero wipes a transient heap copy.
func Zero(data []byte) {
	clear(data)
}
