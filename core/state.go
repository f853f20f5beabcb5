package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	apperrors "github.com/Skryldev/photoreel/errors"
)

// StateKind enumerates the engine lifecycle phases.
type StateKind int

const (
	StateIdle StateKind = iota
	StateWorking
	StateFinished
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateFinished:
		return "finished"
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

// State is a snapshot of the engine.  Progress is only meaningful while
// Working; Result is only set when Finished.
type State struct {
	Kind     StateKind
	Progress float64
	Result   *MergeResult
}

// progressEpsilon is how close to 1 a progress value must be to snap to 1.
const progressEpsilon = 1e-9

// ErrSubscriptionClosed is returned by Subscription.Next after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// ── State machine ─────────────────────────────────────────────────────────────

// StateMachine owns the engine state.  It is safe for concurrent use and
// broadcasts every transition to all subscribers in order.
type StateMachine struct {
	mu     sync.Mutex
	state  State
	subs   map[*Subscription]struct{}
	logger Logger
}

// NewStateMachine returns a machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{subs: make(map[*Subscription]struct{})}
}

// SetLogger attaches a logger for misuse warnings.
func (m *StateMachine) SetLogger(l Logger) {
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

// Current returns a snapshot of the state.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start moves Idle to Working with zero progress.
func (m *StateMachine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != StateIdle {
		return apperrors.New(apperrors.CategoryPipeline, "state.start",
			fmt.Errorf("%w: engine is %s", apperrors.ErrBusy, m.state.Kind))
	}
	m.setLocked(State{Kind: StateWorking})
	return nil
}

// Advance adds delta to the progress, clamped to 1.  It is a no-op outside
// Working or for a negative delta.
func (m *StateMachine) Advance(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != StateWorking {
		m.warnLocked("state.advance.ignored", "state", m.state.Kind.String(), "delta", delta)
		return
	}
	if delta < 0 {
		m.warnLocked("state.advance.negative", "delta", delta)
		return
	}
	p := m.state.Progress + delta
	if p > 1 || 1-p < progressEpsilon {
		p = 1
	}
	m.setLocked(State{Kind: StateWorking, Progress: p})
}

// Finish moves Working to Finished carrying result.
func (m *StateMachine) Finish(result *MergeResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != StateWorking {
		m.warnLocked("state.finish.ignored", "state", m.state.Kind.String())
		return
	}
	m.setLocked(State{Kind: StateFinished, Progress: 1, Result: result})
}

// Reset returns to Idle from any state.
func (m *StateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind == StateIdle {
		return
	}
	m.setLocked(State{Kind: StateIdle})
}

// Subscribe registers a new observer.  The current state is delivered first.
func (m *StateMachine) Subscribe() *Subscription {
	s := &Subscription{notify: make(chan struct{}, 1), owner: m}
	m.mu.Lock()
	m.subs[s] = struct{}{}
	s.push(m.state)
	m.mu.Unlock()
	return s
}

func (m *StateMachine) unsubscribe(s *Subscription) {
	m.mu.Lock()
	delete(m.subs, s)
	m.mu.Unlock()
}

func (m *StateMachine) setLocked(st State) {
	m.state = st
	for s := range m.subs {
		s.push(st)
	}
}

func (m *StateMachine) warnLocked(msg string, fields ...interface{}) {
	if m.logger != nil {
		m.logger.Warn(msg, fields...)
	}
}

// ── Subscription ──────────────────────────────────────────────────────────────

// Subscription is one observer's ordered, unbounded view of transitions.
type Subscription struct {
	mu     sync.Mutex
	queue  []State
	closed bool
	notify chan struct{}
	owner  *StateMachine
}

func (s *Subscription) push(st State) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, st)
	}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until the next state is available, ctx is done, or the
// subscription is closed.  Queued states are still returned after Close.
func (s *Subscription) Next(ctx context.Context) (State, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			st := s.queue[0]
			s.queue[0] = State{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return st, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return State{}, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return State{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Pending reports how many states are queued.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close detaches the subscription from its machine.  It is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.owner.unsubscribe(s)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
