package buffer

import (
	"context"
	"fmt"
	"sync"
)

const simBaseAddress = 0x8000_0000

type simEntry struct {
	addr uint64
	size uint64
	refs int
}

// SimAllocator is an in-memory Allocator. Handles must be registered before
// they can be attached; each registration gets a distinct device address range.
type SimAllocator struct {
	mu      sync.Mutex
	entries map[Handle]*simEntry
	next    uint64
}

// NewSimAllocator creates an empty simulated allocator.
func NewSimAllocator() *SimAllocator {
	return &SimAllocator{
		entries: make(map[Handle]*simEntry),
		next:    simBaseAddress,
	}
}

// Register makes h importable with the given byte size. Registering an
// existing handle is a no-op.
func (s *SimAllocator) Register(h Handle, size uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[h]; ok {
		return
	}
	s.entries[h] = &simEntry{addr: s.next, size: size}
	// keep allocations page aligned
	s.next += (size + 0xfff) &^ 0xfff
}

// Attach implements Allocator.
func (s *SimAllocator) Attach(_ context.Context, h Handle) (uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[h]
	if !ok {
		return 0, 0, fmt.Errorf("unknown handle %q", h)
	}
	e.refs++
	return e.addr, e.size, nil
}

// Detach implements Allocator.
func (s *SimAllocator) Detach(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[h]; ok && e.refs > 0 {
		e.refs--
	}
}

// RefCount returns the number of outstanding attachments of h.
func (s *SimAllocator) RefCount(h Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[h]; ok {
		return e.refs
	}
	return 0
}

// Outstanding returns the total number of attachments across all handles.
func (s *SimAllocator) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		n += e.refs
	}
	return n
}
