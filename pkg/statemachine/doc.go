// Package statemachine provides a small, concurrency-safe finite state machine.
//
// States and events are anything with a Name. A transition may carry guards,
// which must all pass for it to be chosen, and actions, which run in order
// before the state changes. A failing action aborts the transition and leaves
// the machine in its previous state, so actions are the natural place for the
// side effect that makes a transition durable (a database write, for example).
//
// Machines are cheap to build. A common pattern is to seed a machine from a
// persisted record, fire one event and discard it:
//
//	sm, err := statemachine.New(statemachine.StringState(row.Status),
//		statemachine.WithTransition(draft, review, submit, statemachine.WithAction(save)),
//	)
//	if err != nil {
//		return err
//	}
//	if err := sm.Fire(ctx, submit, row); err != nil {
//		if statemachine.IsNoTransitionAvailableError(err) {
//			// the event is not allowed from the current state
//		}
//		return err
//	}
package statemachine
