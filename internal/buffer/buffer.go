package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Handle is an opaque reference to externally allocated memory, such as a
// dma-buf name handed over by a producer.
type Handle string

// Allocator maps external handles into device address space.
// Attach takes a reference on the handle; Detach drops it.
type Allocator interface {
	Attach(ctx context.Context, h Handle) (addr uint64, size uint64, err error)
	Detach(h Handle)
}

// ErrNoHandle is returned when a plane has no handle to import.
var ErrNoHandle = errors.New("empty buffer handle")

// Buffer is a device-addressable view of an imported handle.
// It holds one allocator reference until Release.
type Buffer struct {
	Handle        Handle
	DeviceAddress uint64
	Size          uint64

	allocator Allocator
	released  atomic.Bool
}

// Release returns the reference to the allocator. Only the first call has an
// effect; it reports whether this call performed the release.
func (b *Buffer) Release() bool {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return false
	}
	b.allocator.Detach(b.Handle)
	return true
}

// Released reports whether the buffer reference has been returned.
func (b *Buffer) Released() bool {
	return b.released.Load()
}

// Importer wraps an Allocator into reference-counted Buffers.
type Importer struct {
	allocator Allocator
}

// NewImporter creates an importer backed by allocator.
func NewImporter(allocator Allocator) *Importer {
	return &Importer{allocator: allocator}
}

// Import attaches a single handle.
func (i *Importer) Import(ctx context.Context, h Handle) (*Buffer, error) {
	if h == "" {
		return nil, ErrNoHandle
	}
	addr, size, err := i.allocator.Attach(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", h, err)
	}
	return &Buffer{
		Handle:        h,
		DeviceAddress: addr,
		Size:          size,
		allocator:     i.allocator,
	}, nil
}

// ImportAll attaches every handle or none: on the first failure all buffers
// imported so far are released again.
func (i *Importer) ImportAll(ctx context.Context, handles []Handle) ([]*Buffer, error) {
	out := make([]*Buffer, 0, len(handles))
	for _, h := range handles {
		buf, err := i.Import(ctx, h)
		if err != nil {
			ReleaseAll(out)
			return nil, err
		}
		out = append(out, buf)
	}
	return out, nil
}

// ReleaseAll releases every buffer in bufs and returns how many were released
// by this call.
func ReleaseAll(bufs []*Buffer) int {
	n := 0
	for _, b := range bufs {
		if b.Release() {
			n++
		}
	}
	return n
}
