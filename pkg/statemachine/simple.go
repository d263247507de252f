package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// SimpleStateMachine is an in-memory state machine.
// Transitions are indexed [fromState][event] for O(1) lookup.
type SimpleStateMachine struct {
	current     State
	transitions map[string]map[string][]Transition
	mu          sync.RWMutex
}

func (sm *SimpleStateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

func (sm *SimpleStateMachine) addTransition(t Transition) error {
	if t.From == nil || t.To == nil || t.Event == nil {
		return ErrInvalidTransition
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := t.From.Name()
	if _, ok := sm.transitions[from]; !ok {
		sm.transitions[from] = make(map[string][]Transition)
	}
	// Several transitions per from/event allow guard-based branching.
	sm.transitions[from][t.Event.Name()] = append(sm.transitions[from][t.Event.Name()], t)
	return nil
}

// Fire runs the first transition whose guards pass, then its actions, and
// moves to the target state only if every action succeeded.
func (sm *SimpleStateMachine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	t, err := sm.match(ctx, event, data)
	if err != nil {
		return err
	}

	for _, action := range t.Actions {
		if err := action(ctx, sm.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	sm.current = t.To
	return nil
}

func (sm *SimpleStateMachine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, err := sm.match(ctx, event, data)
	return err == nil
}

// match must be called with the lock held.
func (sm *SimpleStateMachine) match(ctx context.Context, event Event, data any) (*Transition, error) {
	state, name := sm.current.Name(), event.Name()

	candidates := sm.transitions[state][name]
	if len(candidates) == 0 {
		return nil, &ErrNoTransitionAvailable{StateName: state, EventName: name}
	}

next:
	for i := range candidates {
		for _, guard := range candidates[i].Guards {
			if !guard(ctx, sm.current, event, data) {
				continue next
			}
		}
		return &candidates[i], nil
	}
	return nil, &ErrTransitionRejected{StateName: state, EventName: name}
}
