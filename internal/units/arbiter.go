// Package units arbitrates the scaler/rotator blocks shared by the display
// pipelines. A unit feeds exactly one pipeline at a time, and ownership moves
// only after the unit has been seen idle.
package units

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ID identifies a compositing unit.
type ID int

// ErrBusy is returned when a unit is still in use by another owner.
var ErrBusy = errors.New("compositing unit busy")

// ErrUnknown is returned for an ID that is not part of the pool.
var ErrUnknown = errors.New("unknown compositing unit")

// Hardware is the register interface of the unit pool.
type Hardware interface {
	// Idle reports whether the unit has stopped processing.
	Idle(id ID) bool
	// Route points the unit output at the named pipeline.
	Route(id ID, owner string) error
}

// Unit is a snapshot of one unit's arbitration state.
type Unit struct {
	ID    ID     `json:"id"`
	Busy  bool   `json:"busy"`
	Owner string `json:"owner,omitempty"`
}

// Options configures an Arbiter.
type Options struct {
	IDs []ID
	// DrainTimeout bounds how long Acquire waits for another owner's unit to go idle.
	DrainTimeout time.Duration
	// DrainInterval is the idle poll period.
	DrainInterval time.Duration
	// OnChange is called after ownership of a unit changes (optional).
	OnChange func(id ID, oldOwner, newOwner string)
	Logger   *slog.Logger
}

// Arbiter serializes ownership of the unit pool.
type Arbiter struct {
	hw     Hardware
	opts   Options
	owners map[ID]string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewArbiter creates an arbiter for the units listed in opts.
func NewArbiter(hw Hardware, opts Options) *Arbiter {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 50 * time.Millisecond
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	owners := make(map[ID]string, len(opts.IDs))
	for _, id := range opts.IDs {
		owners[id] = ""
	}

	return &Arbiter{
		hw:     hw,
		opts:   opts,
		owners: owners,
		logger: logger,
	}
}

// Acquire makes owner the owner of unit id. Acquiring a unit already owned by
// owner is a no-op. A unit owned by someone else is polled until idle, up to
// the drain timeout, before ownership is moved.
func (a *Arbiter) Acquire(ctx context.Context, id ID, owner string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, ok := a.owners[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknown, id)
	}
	if current == owner {
		return nil
	}

	if current != "" {
		if !a.drain(ctx, id) {
			a.logger.Warn("Compositing unit still busy", "unit", id, "owner", current, "requested_by", owner)
			return fmt.Errorf("%w: unit %d owned by %s", ErrBusy, id, current)
		}
		a.logger.Info("Compositing unit drained", "unit", id, "from", current, "to", owner)
	}

	if err := a.hw.Route(id, owner); err != nil {
		return fmt.Errorf("route unit %d to %s: %w", id, owner, err)
	}
	a.owners[id] = owner
	a.notify(id, current, owner)
	return nil
}

// drain polls the unit until it is idle (must hold lock).
func (a *Arbiter) drain(ctx context.Context, id ID) bool {
	if a.hw.Idle(id) {
		return true
	}

	deadline := time.NewTimer(a.opts.DrainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return a.hw.Idle(id)
		case <-ticker.C:
			if a.hw.Idle(id) {
				return true
			}
		}
	}
}

// Release drops ownership of unit id. Releasing a free or unknown unit is a no-op.
func (a *Arbiter) Release(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, ok := a.owners[id]
	if !ok || current == "" {
		return
	}
	a.owners[id] = ""
	a.notify(id, current, "")
}

// ReleaseOwned releases every unit held by owner except those in keep.
func (a *Arbiter) ReleaseOwned(owner string, keep map[ID]bool) {
	for _, id := range a.OwnedBy(owner) {
		if !keep[id] {
			a.Release(id)
		}
	}
}

// Owner returns the current owner of id, or "".
func (a *Arbiter) Owner(id ID) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owners[id]
}

// OwnedBy returns the units currently held by owner.
func (a *Arbiter) OwnedBy(owner string) []ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []ID
	for id, o := range a.owners {
		if o == owner {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IDs returns every unit in the pool.
func (a *Arbiter) IDs() []ID {
	out := make([]ID, len(a.opts.IDs))
	copy(out, a.opts.IDs)
	return out
}

// Units returns a snapshot of the pool.
func (a *Arbiter) Units() []Unit {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Unit, 0, len(a.owners))
	for id, owner := range a.owners {
		out = append(out, Unit{ID: id, Busy: !a.hw.Idle(id), Owner: owner})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (a *Arbiter) notify(id ID, oldOwner, newOwner string) {
	if a.opts.OnChange != nil {
		a.opts.OnChange(id, oldOwner, newOwner)
	}
}
