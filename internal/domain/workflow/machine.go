package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc decides whether a transition may run. A nil return allows it.
type GuardFunc func(ctx context.Context) error

// Rule permits Trigger to move an approval from From to To when Guard passes.
// A nil Guard always passes. Several rules may share a From and Trigger; the
// first one whose guard passes wins.
type Rule struct {
	From    State
	Trigger Trigger
	To      State
	Guard   GuardFunc
}

// StateMachine tracks the current state of one approval and validates transitions
type StateMachine interface {
	State() State

	// CanFire reports whether any rule matches. Guards are not evaluated.
	CanFire(trigger Trigger) bool

	// Fire evaluates guards and moves to the target state.
	// A refusing guard's error is returned wrapped in ErrGuardFailed.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers with a rule from the current state, sorted
	PermittedTriggers() []Trigger
}

type machine struct {
	state State
	rules []Rule
}

// NewMachine validates rules and returns a machine positioned at initial
func NewMachine(initial State, rules []Rule) (StateMachine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: initial state %q", ErrInvalidRule, initial)
	}
	for i, r := range rules {
		switch {
		case !r.From.IsValid():
			return nil, fmt.Errorf("%w: rule %d has unknown source %q", ErrInvalidRule, i, r.From)
		case r.From.IsTerminal():
			return nil, fmt.Errorf("%w: rule %d leaves terminal state %s", ErrInvalidRule, i, r.From)
		case !r.To.IsValid():
			return nil, fmt.Errorf("%w: rule %d has unknown target %q", ErrInvalidRule, i, r.To)
		case r.Trigger.ActionType() == "":
			return nil, fmt.Errorf("%w: rule %d has unknown trigger %q", ErrInvalidRule, i, r.Trigger)
		}
	}
	return &machine{state: initial, rules: append([]Rule(nil), rules...)}, nil
}

func (m *machine) State() State {
	return m.state
}

func (m *machine) matching(trigger Trigger) []Rule {
	var out []Rule
	for _, r := range m.rules {
		if r.From == m.state && r.Trigger == trigger {
			out = append(out, r)
		}
	}
	return out
}

func (m *machine) CanFire(trigger Trigger) bool {
	return len(m.matching(trigger)) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	if m.state.IsTerminal() {
		return fmt.Errorf("%w: cannot %s from %s", ErrTerminalState, trigger, m.state)
	}

	candidates := m.matching(trigger)
	if len(candidates) == 0 {
		return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, trigger, m.state)
	}

	var refusal error
	for _, r := range candidates {
		if r.Guard == nil {
			m.state = r.To
			return nil
		}
		err := r.Guard(ctx)
		if err == nil {
			m.state = r.To
			return nil
		}
		if refusal == nil {
			refusal = err
		}
	}
	return fmt.Errorf("%w: %s from %s: %w", ErrGuardFailed, trigger, m.state, refusal)
}

func (m *machine) PermittedTriggers() []Trigger {
	seen := make(map[Trigger]bool)
	out := []Trigger{}
	for _, r := range m.rules {
		if r.From == m.state && !seen[r.Trigger] {
			seen[r.Trigger] = true
			out = append(out, r.Trigger)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
