package exec

import (
	"context"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
)

// Coordinator wraps one submit click: it arms the probe, resolves the
// execution target, invokes the provider, and relays the outcome into the
// tracker. There is no mid-flight cancellation; once Execute is called the
// coordinator waits for the provider's outcome.
type Coordinator struct {
	provider  Provider
	tracker   *Tracker
	probe     *Probe
	chooser   Chooser
	callbacks Callbacks
}

func NewCoordinator(provider Provider, tracker *Tracker, probe *Probe, chooser Chooser, callbacks Callbacks) *Coordinator {
	return &Coordinator{
		provider:  provider,
		tracker:   tracker,
		probe:     probe,
		chooser:   chooser,
		callbacks: callbacks,
	}
}

// Submit starts an asynchronous submission; its outcome arrives through the
// callbacks and the tracker. Returns an error only when a prior submission is
// still pending.
func (c *Coordinator) Submit(ctx context.Context, request Request) error {
	if !c.tracker.Submit() {
		return domain.FailedPrecondition("a submission is already in progress")
	}
	if c.probe != nil {
		c.probe.Observe()
	}
	go c.run(ctx, request)
	return nil
}

func (c *Coordinator) run(ctx context.Context, request Request) {
	targets, err := c.provider.ListTargets(ctx)
	if err != nil {
		c.tracker.Resolve(Failed(err))
		return
	}

	switch {
	case len(targets) == 0:
		// Nothing configured. The submission still goes to the provider's
		// default path; if the host rendered an empty chooser for it, the
		// probe handles the warning.
	case len(targets) == 1:
		request.Target = targets[0].Name
		c.selected(targets[0])
	default:
		if c.chooser == nil {
			request.Target = targets[0].Name
			c.selected(targets[0])
			break
		}
		chosen, chooseErr := c.chooser.Choose(ctx, targets)
		if chooseErr != nil {
			c.tracker.Resolve(Failed(chooseErr))
			return
		}
		request.Target = chosen.Name
		c.selected(chosen)
	}

	c.tracker.Resolve(c.provider.Execute(ctx, request))
}

func (c *Coordinator) selected(target Target) {
	if c.callbacks.OnOptionSelected != nil {
		c.callbacks.OnOptionSelected(target)
	}
}
