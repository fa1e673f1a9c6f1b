package submission

// State is a step of a single submission attempt.
type State string

const (
	StateIdle         State = "idle"
	StateValidating   State = "validating"
	StateGateChecking State = "gate_checking"
	StatePersisting   State = "persisting"
	StateRejected     State = "rejected"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	allowed, ok := validTransitions[s]
	return ok && len(allowed) == 0
}

var validTransitions = map[State][]State{
	StateIdle:         {StateValidating},
	StateValidating:   {StateRejected, StateGateChecking},
	StateGateChecking: {StateRejected, StatePersisting},
	StatePersisting:   {StateSucceeded, StateFailed},
	StateRejected:     {},
	StateSucceeded:    {},
	StateFailed:       {},
}

// ValidateTransition checks if a state transition is valid.
func ValidateTransition(from, to State) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}

// Observer receives every transition of an attempt, in order.
type Observer func(from, to State)

// attempt tracks the state of one Submit call.
type attempt struct {
	state    State
	observer Observer
}

func (a *attempt) moveTo(to State) {
	from := a.state
	a.state = to
	if a.observer != nil {
		a.observer(from, to)
	}
}
