package fsm

import (
	"context"
	"errors"
	"time"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// events converts domain.Transitions into looplab/fsm EventDesc format,
// folding transitions that share an action and destination into one
// EventDesc with several sources (cancel is valid from draft, pending and
// approved).
var events = buildEvents()

func buildEvents() []loopfsm.EventDesc {
	type key struct {
		action string
		dst    string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range domain.Transitions {
		k := key{action: string(t.Action), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.action,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// A short-lived machine is built per Apply call, initialized with the
// budget's current status, with a before-event callback that enforces the
// business guards of the action.
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks that the action is valid from the budget's status and that
// its guard holds, and returns the destination status. An action that does
// not leave the current status yields a *domain.TransitionError; a failed
// guard yields the guard's *domain.ValidationError.
func (v *Validator) Apply(ctx context.Context, budget domain.Budget, action domain.Action, now time.Time) (domain.Status, error) {
	guard := func(_ context.Context, e *loopfsm.Event) {
		if err := budget.CheckGuard(action, now); err != nil {
			e.Cancel(err)
		}
	}
	machine := loopfsm.NewFSM(string(budget.Status), events, loopfsm.Callbacks{
		"before_" + string(action): guard,
	})

	if err := machine.Event(ctx, string(action)); err != nil {
		var canceled loopfsm.CanceledError
		if errors.As(err, &canceled) && canceled.Err != nil {
			return "", canceled.Err
		}
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Action:  action,
				Current: budget.Status,
			}
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}
