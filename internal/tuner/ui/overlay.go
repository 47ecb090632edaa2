package ui

import (
	"context"
	"sync"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/exec"
)

// targetOverlay is the transient target menu. The coordinator blocks in
// Choose on its own goroutine while the panel renders the overlay and feeds
// key presses in; the probe polls it through the Surface interface.
type targetOverlay struct {
	mu      sync.Mutex
	visible bool
	targets []exec.Target
	cursor  int
	choice  chan exec.Target
	closed  chan struct{}

	// opened wakes the UI so the overlay renders without waiting for the
	// next unrelated message.
	opened chan struct{}
}

func newTargetOverlay() *targetOverlay {
	return &targetOverlay{
		opened: make(chan struct{}, 1),
	}
}

// Choose implements exec.Chooser.
func (o *targetOverlay) Choose(ctx context.Context, targets []exec.Target) (exec.Target, error) {
	o.mu.Lock()
	o.visible = true
	o.targets = append([]exec.Target{}, targets...)
	o.cursor = 0
	o.choice = make(chan exec.Target, 1)
	o.closed = make(chan struct{})
	choice := o.choice
	closed := o.closed
	o.mu.Unlock()

	select {
	case o.opened <- struct{}{}:
	default:
	}

	select {
	case <-ctx.Done():
		o.hide()
		return exec.Target{}, ctx.Err()
	case <-closed:
		return exec.Target{}, domain.FailedPrecondition("target selection dismissed")
	case chosen := <-choice:
		return chosen, nil
	}
}

// Visible implements exec.Surface.
func (o *targetOverlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// OptionCount implements exec.Surface.
func (o *targetOverlay) OptionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.targets)
}

// Dismiss implements exec.Surface: it hides the menu and unblocks Choose
// with a dismissal error.
func (o *targetOverlay) Dismiss() {
	o.mu.Lock()
	if !o.visible {
		o.mu.Unlock()
		return
	}
	o.visible = false
	closed := o.closed
	o.closed = nil
	o.mu.Unlock()

	if closed != nil {
		close(closed)
	}
}

func (o *targetOverlay) hide() {
	o.mu.Lock()
	o.visible = false
	o.closed = nil
	o.mu.Unlock()
}

func (o *targetOverlay) moveCursor(delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := o.cursor + delta
	if next >= 0 && next < len(o.targets) {
		o.cursor = next
	}
}

// selectCurrent resolves Choose with the highlighted target.
func (o *targetOverlay) selectCurrent() {
	o.mu.Lock()
	if !o.visible || o.cursor >= len(o.targets) {
		o.mu.Unlock()
		return
	}
	chosen := o.targets[o.cursor]
	choice := o.choice
	o.visible = false
	o.closed = nil
	o.mu.Unlock()

	if choice != nil {
		choice <- chosen
	}
}

func (o *targetOverlay) snapshot() (visible bool, targets []exec.Target, cursor int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible, append([]exec.Target{}, o.targets...), o.cursor
}
