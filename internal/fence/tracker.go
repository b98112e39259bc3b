// Package fence issues release tokens for committed frames and lets producers
// wait for them.
//
// Tokens are issued in submission order starting at 1 and are signaled exactly
// once, in the same order. A token is either released, meaning the frame
// reached the panel and the buffers it superseded were handed back, or aborted.
package fence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Token identifies one submitted frame.
type Token uint64

// Status is the outcome of waiting on a token.
type Status string

// Wait outcomes.
const (
	StatusPending  Status = "pending"
	StatusReleased Status = "released"
	StatusAborted  Status = "aborted"
	StatusTimedOut Status = "timed_out"
)

// Errors returned by the tracker.
var (
	ErrUnknownToken = errors.New("token was never issued")
	ErrOutOfOrder   = errors.New("token signaled out of order")
)

// DefaultHistory is how many aborted tokens are remembered.
const DefaultHistory = 256

// Tracker hands out tokens and records their outcome.
type Tracker struct {
	mu        sync.Mutex
	issued    Token
	signaled  Token
	aborted   map[Token]struct{}
	order     []Token
	abandoned map[Token]struct{}
	history   int
	changed   chan struct{}
}

// NewTracker creates a tracker remembering up to history aborted tokens.
func NewTracker(history int) *Tracker {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Tracker{
		aborted:   make(map[Token]struct{}),
		abandoned: make(map[Token]struct{}),
		history:   history,
		changed:   make(chan struct{}),
	}
}

// Issue returns the next token.
func (t *Tracker) Issue() Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issued++
	return t.issued
}

// Signal completes token. Only the oldest outstanding token may be signaled.
func (t *Tracker) Signal(token Token, aborted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if token == 0 || token > t.issued {
		return fmt.Errorf("%w: %d", ErrUnknownToken, token)
	}
	if token != t.signaled+1 {
		return fmt.Errorf("%w: got %d, next is %d", ErrOutOfOrder, token, t.signaled+1)
	}

	t.complete(token, aborted)
	t.advance()
	t.broadcast()
	return nil
}

// Abandon aborts a token whose frame never reached the worker. The token is
// completed once every older token has been signaled, so ordering holds.
func (t *Tracker) Abandon(token Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if token == 0 || token > t.issued {
		return fmt.Errorf("%w: %d", ErrUnknownToken, token)
	}
	if token <= t.signaled {
		return nil
	}
	t.abandoned[token] = struct{}{}
	if t.advance() {
		t.broadcast()
	}
	return nil
}

// complete records the outcome of the next token (must hold lock).
func (t *Tracker) complete(token Token, aborted bool) {
	t.signaled = token
	if !aborted {
		return
	}
	t.aborted[token] = struct{}{}
	t.order = append(t.order, token)
	if len(t.order) > t.history {
		delete(t.aborted, t.order[0])
		t.order = t.order[1:]
	}
}

// advance completes abandoned tokens that are now next in line (must hold lock).
func (t *Tracker) advance() bool {
	moved := false
	for {
		next := t.signaled + 1
		if _, ok := t.abandoned[next]; !ok {
			return moved
		}
		delete(t.abandoned, next)
		t.complete(next, true)
		moved = true
	}
}

func (t *Tracker) broadcast() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// Status returns the current state of token without blocking.
func (t *Tracker) Status(token Token) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(token)
}

func (t *Tracker) statusLocked(token Token) (Status, error) {
	if token == 0 || token > t.issued {
		return "", fmt.Errorf("%w: %d", ErrUnknownToken, token)
	}
	if token > t.signaled {
		return StatusPending, nil
	}
	if _, ok := t.aborted[token]; ok {
		return StatusAborted, nil
	}
	return StatusReleased, nil
}

// Wait blocks until token is signaled, timeout elapses or ctx is done. A zero
// timeout waits for ctx only.
func (t *Tracker) Wait(ctx context.Context, token Token, timeout time.Duration) (Status, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		t.mu.Lock()
		status, err := t.statusLocked(token)
		changed := t.changed
		t.mu.Unlock()

		if err != nil {
			return "", err
		}
		if status != StatusPending {
			return status, nil
		}

		select {
		case <-changed:
		case <-expired:
			return StatusTimedOut, nil
		case <-ctx.Done():
			return StatusTimedOut, ctx.Err()
		}
	}
}

// Last returns the most recently signaled token, or 0.
func (t *Tracker) Last() Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signaled
}

// Issued returns the most recently issued token, or 0.
func (t *Tracker) Issued() Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.issued
}
