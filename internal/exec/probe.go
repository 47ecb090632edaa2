package exec

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultProbeInterval = 200 * time.Millisecond
	defaultProbeWindow   = 3 * time.Second
)

// Surface is a transient options menu the host may render after a submit
// click. Visible means it occupies non-zero layout space.
type Surface interface {
	Visible() bool
	OptionCount() int
	Dismiss()
}

// Inspector reports the surfaces currently rendered by the host.
type Inspector interface {
	Surfaces() []Surface
}

type ProbeOptions struct {
	Interval time.Duration
	Window   time.Duration
	// OnEmpty fires when a visible surface with zero options is found, after
	// the surface has been dismissed.
	OnEmpty func(Surface)
}

// Probe watches for the one failure mode that strands the user: a target menu
// that rendered with nothing in it, making the click look like a no-op. It
// polls the inspector for a bounded window after each trigger. Finding a
// populated menu, or finding nothing at all before the window closes, is
// normal and ends the poll silently.
type Probe struct {
	inspector Inspector
	interval  time.Duration
	window    time.Duration
	onEmpty   func(Surface)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewProbe(inspector Inspector, opts ProbeOptions) *Probe {
	if opts.Interval <= 0 {
		opts.Interval = defaultProbeInterval
	}
	if opts.Window <= 0 {
		opts.Window = defaultProbeWindow
	}
	return &Probe{
		inspector: inspector,
		interval:  opts.Interval,
		window:    opts.Window,
		onEmpty:   opts.OnEmpty,
	}
}

// Observe starts a poll for the current trigger. Any outstanding poll from an
// earlier trigger is cancelled first, so a stale poll can never warn about a
// menu that belongs to a later, successful action.
func (p *Probe) Observe() {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.window)
	p.cancel = cancel
	p.mu.Unlock()

	go p.poll(ctx, cancel, gen)
}

// Close cancels any outstanding poll.
func (p *Probe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Probe) poll(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			surface, found := p.findVisible()
			if !found {
				continue
			}
			if surface.OptionCount() > 0 {
				return
			}
			if !p.stillCurrent(gen) {
				return
			}
			log.Printf("warn: execution target menu rendered with no options; dismissing")
			surface.Dismiss()
			if p.onEmpty != nil {
				p.onEmpty(surface)
			}
			return
		}
	}
}

func (p *Probe) findVisible() (Surface, bool) {
	if p.inspector == nil {
		return nil, false
	}
	for _, surface := range p.inspector.Surfaces() {
		if surface.Visible() {
			return surface, true
		}
	}
	return nil, false
}

func (p *Probe) stillCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen
}
