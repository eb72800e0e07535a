// File: internal/usecase/control.go
package usecase

import (
	"context"
	"fmt"
	"sync"

	"longform-scriptgen/internal/domain"
)

type RunState int

const (
	RunRunning RunState = iota
	RunPaused
	RunStopped
)

func (s RunState) String() string {
	switch s {
	case RunPaused:
		return "paused"
	case RunStopped:
		return "stopped"
	default:
		return "running"
	}
}

// RunControl is the pause/stop signal shared between a running pipeline and
// whoever drives it. Every state change wakes all waiters.
type RunControl struct {
	mu      sync.Mutex
	state   RunState
	changed chan struct{}
}

func NewRunControl() *RunControl {
	return &RunControl{changed: make(chan struct{})}
}

// Set switches state. STOPPED is terminal.
func (c *RunControl) Set(s RunState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == RunStopped || c.state == s {
		return
	}
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *RunControl) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RunControl) snapshot() (RunState, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.changed
}

// Checkpoint returns nil when running, blocks while paused and returns
// ErrStoppedByUser once stopped or ctx is done. onPause runs once when the
// checkpoint starts blocking, onResume once when it is released to run.
func (c *RunControl) Checkpoint(ctx context.Context, onPause, onResume func()) error {
	paused := false
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoppedByUser, err)
		}
		state, changed := c.snapshot()
		switch state {
		case RunStopped:
			return domain.ErrStoppedByUser
		case RunRunning:
			if paused && onResume != nil {
				onResume()
			}
			return nil
		}
		if !paused {
			paused = true
			if onPause != nil {
				onPause()
			}
		}
		select {
		case <-ctx.Done():
		case <-changed:
		}
	}
}
