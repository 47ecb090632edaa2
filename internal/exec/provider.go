// Package exec drives a submitted tuner job from click to outcome: target
// selection, the empty-menu probe, and the notification state machine.
package exec

import "context"

// Request identifies one operator invocation. Immutable once submitted.
type Request struct {
	Operator string
	Params   map[string]any
	Target   string
}

type OutcomeKind int

const (
	// OutcomeImmediate means the provider ran synchronously and Result holds
	// the payload.
	OutcomeImmediate OutcomeKind = iota
	// OutcomeDelegated means the provider enqueued the job and JobRef holds
	// the reference to poll.
	OutcomeDelegated
	OutcomeError
)

type Outcome struct {
	Kind   OutcomeKind
	Result map[string]any
	JobRef string
	Err    error
}

func Immediate(result map[string]any) Outcome {
	return Outcome{Kind: OutcomeImmediate, Result: result}
}

func Delegated(jobRef string) Outcome {
	return Outcome{Kind: OutcomeDelegated, JobRef: jobRef}
}

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}

// Target is one execution destination offered by the provider: the local
// immediate runner or a delegated orchestrator queue.
type Target struct {
	Name      string `json:"name"`
	Delegated bool   `json:"delegated"`
}

// Provider is the external execution boundary. The hub client implements it;
// tests use fakes.
type Provider interface {
	ListTargets(ctx context.Context) ([]Target, error)
	Execute(ctx context.Context, request Request) Outcome
}

// Chooser resolves which target to use when the provider offers more than
// one. Implementations block until the user picks or ctx is done; the panel
// backs this with its target overlay.
type Chooser interface {
	Choose(ctx context.Context, targets []Target) (Target, error)
}

// Callbacks observe a submission. OnOptionSelected always fires before
// OnSuccess for the same submission; OnError fires at most once.
type Callbacks struct {
	OnOptionSelected func(target Target)
	OnSuccess        func(delegated bool, jobRef string, result map[string]any)
	OnError          func(err error)
}
