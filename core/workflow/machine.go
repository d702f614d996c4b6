// Package workflow wraps looplab/fsm for the stateless, row-backed state machines of the domain:
// the current state lives in the database, a machine is only built to validate one transition.
package workflow

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
)

// Transition describes an event moving an entity from one of Src to Dst.
type Transition struct {
	Event string
	Src   []string
	Dst   string
}

type Machine struct {
	name   string
	events fsm.Events
}

func NewMachine(name string, transitions ...Transition) Machine {
	events := make(fsm.Events, 0, len(transitions))
	for _, tr := range transitions {
		events = append(events, fsm.EventDesc{Name: tr.Event, Src: tr.Src, Dst: tr.Dst})
	}
	return Machine{name: name, events: events}
}

// Can reports whether event may fire from current.
func (m Machine) Can(current, event string) bool {
	return fsm.NewFSM(current, m.events, fsm.Callbacks{}).Can(event)
}

// Fire returns the state reached by firing event from current.
// An event leading back to current is a no-op; an event not allowed from current yields a *core.Conflict.
func (m Machine) Fire(ctx context.Context, current, event string) (string, error) {
	f := fsm.NewFSM(current, m.events, fsm.Callbacks{})
	if err := f.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return current, nil
		}
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return "", core.NewConflict(fmt.Sprintf("%s: cannot %s when %s", m.name, event, current))
		}
		return "", errors.Wrap(err, fmt.Sprintf("%s: firing %s", m.name, event))
	}
	return f.Current(), nil
}
