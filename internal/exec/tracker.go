package exec

import (
	"fmt"
	"sync"
)

type TrackerState int

const (
	StateIdle TrackerState = iota
	StatePending
	StateNotifying
)

func (s TrackerState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateNotifying:
		return "notifying"
	default:
		return "idle"
	}
}

// NotificationTicks is how many one-second ticks a delegated-success
// notification stays visible without user interaction.
const NotificationTicks = 5

type Notification struct {
	Message        string
	RemainingTicks int
	Visible        bool
}

// Tracker is the job-outcome state machine: Idle -> Pending -> Idle for
// immediate and failed submissions, with a Notifying detour after a delegated
// success. The tracker does not schedule ticks itself; the owner arms a
// one-second timer while Notifying and feeds ticks back with the generation it
// was armed for. A tick carrying a stale generation is ignored, so a timer
// that outlives its notification can never decrement the next one.
type Tracker struct {
	mu           sync.Mutex
	state        TrackerState
	gen          uint64
	notification Notification
	callbacks    Callbacks
}

func NewTracker(callbacks Callbacks) *Tracker {
	return &Tracker{callbacks: callbacks}
}

// Submit moves Idle to Pending. It refuses re-submission while a job is
// pending or a notification is still showing its countdown's first moments;
// only Idle accepts.
func (t *Tracker) Submit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return false
	}
	t.state = StatePending
	return true
}

// Resolve consumes the provider outcome for the pending submission. Outcomes
// arriving in any other state are dropped.
func (t *Tracker) Resolve(outcome Outcome) {
	t.mu.Lock()
	if t.state != StatePending {
		t.mu.Unlock()
		return
	}

	switch outcome.Kind {
	case OutcomeImmediate:
		t.state = StateIdle
		onSuccess := t.callbacks.OnSuccess
		t.mu.Unlock()
		if onSuccess != nil {
			onSuccess(false, "", outcome.Result)
		}
	case OutcomeDelegated:
		t.state = StateNotifying
		t.gen++
		t.notification = Notification{
			Message:        fmt.Sprintf("Job scheduled for delegated execution (%s)", outcome.JobRef),
			RemainingTicks: NotificationTicks,
			Visible:        true,
		}
		onSuccess := t.callbacks.OnSuccess
		t.mu.Unlock()
		if onSuccess != nil {
			onSuccess(true, outcome.JobRef, nil)
		}
	default:
		t.state = StateIdle
		err := outcome.Err
		if err == nil {
			err = fmt.Errorf("execution failed")
		}
		onError := t.callbacks.OnError
		t.mu.Unlock()
		if onError != nil {
			onError(err)
		}
	}
}

// Tick decrements the countdown armed under gen. Returns true while another
// tick should be scheduled.
func (t *Tracker) Tick(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateNotifying || gen != t.gen {
		return false
	}
	t.notification.RemainingTicks--
	if t.notification.RemainingTicks <= 0 {
		t.notification = Notification{}
		t.state = StateIdle
		return false
	}
	return true
}

// Dismiss hides the notification immediately. The generation bump invalidates
// any tick already in flight.
func (t *Tracker) Dismiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateNotifying {
		return
	}
	t.gen++
	t.notification = Notification{}
	t.state = StateIdle
}

// Reset returns the tracker to Idle from any state and invalidates pending
// ticks. Called on panel teardown and dataset switch.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.notification = Notification{}
	t.state = StateIdle
}

func (t *Tracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Notification returns the current notification and the generation a timer
// must carry for its ticks to count.
func (t *Tracker) Notification() (Notification, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notification, t.gen
}
