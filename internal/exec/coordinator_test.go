package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	mu       sync.Mutex
	targets  []Target
	listErr  error
	outcome  Outcome
	requests []Request
	block    chan struct{}
}

func (p *fakeProvider) ListTargets(context.Context) ([]Target, error) {
	return p.targets, p.listErr
}

func (p *fakeProvider) Execute(_ context.Context, request Request) Outcome {
	p.mu.Lock()
	p.requests = append(p.requests, request)
	block := p.block
	p.mu.Unlock()
	if block != nil {
		<-block
	}
	return p.outcome
}

func (p *fakeProvider) lastRequest(t *testing.T) Request {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		t.Fatalf("provider was never invoked")
	}
	return p.requests[len(p.requests)-1]
}

type staticChooser struct {
	pick Target
	err  error
	hits int
}

func (c *staticChooser) Choose(_ context.Context, targets []Target) (Target, error) {
	c.hits++
	if c.err != nil {
		return Target{}, c.err
	}
	return c.pick, nil
}

type callbackRecorder struct {
	mu       sync.Mutex
	sequence []string
	jobRef   string
	err      error
	done     chan struct{}
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{done: make(chan struct{}, 4)}
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		OnOptionSelected: func(Target) {
			r.mu.Lock()
			r.sequence = append(r.sequence, "selected")
			r.mu.Unlock()
		},
		OnSuccess: func(delegated bool, jobRef string, _ map[string]any) {
			r.mu.Lock()
			r.sequence = append(r.sequence, "success")
			r.jobRef = jobRef
			r.mu.Unlock()
			r.done <- struct{}{}
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.sequence = append(r.sequence, "error")
			r.err = err
			r.mu.Unlock()
			r.done <- struct{}{}
		},
	}
}

func (r *callbackRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(time.Second):
		t.Fatalf("no terminal callback fired")
	}
}

func (r *callbackRecorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.sequence...)
}

func newTestCoordinator(provider Provider, chooser Chooser, recorder *callbackRecorder) (*Coordinator, *Tracker) {
	callbacks := recorder.callbacks()
	tracker := NewTracker(callbacks)
	return NewCoordinator(provider, tracker, nil, chooser, callbacks), tracker
}

func TestCoordinatorDelegatedFlow(t *testing.T) {
	provider := &fakeProvider{
		targets: []Target{{Name: "orchestrator-a", Delegated: true}},
		outcome: Delegated("job_42"),
	}
	recorder := newCallbackRecorder()
	coordinator, tracker := newTestCoordinator(provider, nil, recorder)

	if err := coordinator.Submit(context.Background(), Request{Operator: "model_fine_tuner"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	recorder.wait(t)

	events := recorder.events()
	if len(events) != 2 || events[0] != "selected" || events[1] != "success" {
		t.Fatalf("unexpected callback order %v", events)
	}
	if recorder.jobRef != "job_42" {
		t.Fatalf("job reference not relayed: %q", recorder.jobRef)
	}
	if provider.lastRequest(t).Target != "orchestrator-a" {
		t.Fatalf("single target must be auto-selected")
	}
	if tracker.State() != StateNotifying {
		t.Fatalf("delegated success must enter notifying, got %s", tracker.State())
	}
}

func TestCoordinatorImmediateFlow(t *testing.T) {
	provider := &fakeProvider{
		targets: []Target{{Name: "local"}},
		outcome: Immediate(map[string]any{"tag_counts": map[string]any{}}),
	}
	recorder := newCallbackRecorder()
	coordinator, tracker := newTestCoordinator(provider, nil, recorder)

	if err := coordinator.Submit(context.Background(), Request{Operator: "get_tag_counts"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	recorder.wait(t)

	if tracker.State() != StateIdle {
		t.Fatalf("immediate outcome must end idle, got %s", tracker.State())
	}
	if notification, _ := tracker.Notification(); notification.Visible {
		t.Fatalf("immediate outcome created a notification")
	}
}

func TestCoordinatorConsultsChooserForMultipleTargets(t *testing.T) {
	provider := &fakeProvider{
		targets: []Target{
			{Name: "local"},
			{Name: "orchestrator-a", Delegated: true},
			{Name: "orchestrator-b", Delegated: true},
		},
		outcome: Delegated("job_7"),
	}
	chooser := &staticChooser{pick: Target{Name: "orchestrator-b", Delegated: true}}
	recorder := newCallbackRecorder()
	coordinator, _ := newTestCoordinator(provider, chooser, recorder)

	if err := coordinator.Submit(context.Background(), Request{Operator: "model_fine_tuner"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	recorder.wait(t)

	if chooser.hits != 1 {
		t.Fatalf("chooser consulted %d times, want 1", chooser.hits)
	}
	if provider.lastRequest(t).Target != "orchestrator-b" {
		t.Fatalf("chosen target not applied to request")
	}
}

func TestCoordinatorProviderFailure(t *testing.T) {
	boom := errors.New("gpu pool offline")
	provider := &fakeProvider{
		targets: []Target{{Name: "local"}},
		outcome: Failed(boom),
	}
	recorder := newCallbackRecorder()
	coordinator, tracker := newTestCoordinator(provider, nil, recorder)

	if err := coordinator.Submit(context.Background(), Request{Operator: "model_fine_tuner"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	recorder.wait(t)

	events := recorder.events()
	errorCount := 0
	for _, event := range events {
		if event == "error" {
			errorCount++
		}
	}
	if errorCount != 1 {
		t.Fatalf("OnError fired %d times, want 1 (%v)", errorCount, events)
	}
	if !errors.Is(recorder.err, boom) {
		t.Fatalf("provider error not surfaced verbatim: %v", recorder.err)
	}
	if tracker.State() != StateIdle {
		t.Fatalf("failure must end idle, got %s", tracker.State())
	}
	if notification, _ := tracker.Notification(); notification.Visible {
		t.Fatalf("failure created a notification")
	}
}

func TestCoordinatorRefusesConcurrentSubmit(t *testing.T) {
	provider := &fakeProvider{
		targets: []Target{{Name: "local"}},
		outcome: Immediate(nil),
		block:   make(chan struct{}),
	}
	recorder := newCallbackRecorder()
	coordinator, _ := newTestCoordinator(provider, nil, recorder)

	if err := coordinator.Submit(context.Background(), Request{Operator: "model_fine_tuner"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := coordinator.Submit(context.Background(), Request{Operator: "model_fine_tuner"}); err == nil {
		t.Fatalf("second submit while pending must fail")
	}
	close(provider.block)
	recorder.wait(t)
}
