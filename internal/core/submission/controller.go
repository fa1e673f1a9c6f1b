package submission

import (
	"context"

	"github.com/artpar/fnhost/internal/core/function"
)

// Persister stores normalized configs. Implementations translate their own
// failures into function.ErrNotFound, *function.InputError or an opaque error.
type Persister interface {
	Create(ctx context.Context, cfg function.Config, intent Intent) (*function.Function, error)
	Update(ctx context.Context, id string, cfg function.Config, intent Intent) (*function.Function, error)
}

// Request is one submission attempt. An empty ID creates a new record.
type Request struct {
	ID        string
	Candidate function.Candidate
	Intent    Intent
}

// Outcome is a successful submission.
type Outcome struct {
	Function  *function.Function
	Intent    Intent
	MarkClean bool
}

// Controller runs submission attempts against a Persister.
type Controller struct {
	persister Persister
	observer  Observer
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers a callback for state transitions.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// NewController creates a Controller.
func NewController(p Persister, opts ...Option) *Controller {
	c := &Controller{persister: p}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit validates the candidate, applies the intent gate and, if both pass,
// makes exactly one Persister call.
func (c *Controller) Submit(ctx context.Context, req Request) (*Outcome, error) {
	a := &attempt{state: StateIdle, observer: c.observer}

	a.moveTo(StateValidating)
	res := function.Validate(req.Candidate)
	if !res.Valid() {
		a.moveTo(StateRejected)
		return nil, &ValidationError{Fields: res.Errors}
	}

	a.moveTo(StateGateChecking)
	if err := Gate(req.Intent, res.Config); err != nil {
		a.moveTo(StateRejected)
		return nil, err
	}

	a.moveTo(StatePersisting)
	fn, err := c.persist(ctx, req.ID, res.Config, req.Intent)
	if err != nil {
		a.moveTo(StateFailed)
		return nil, err
	}

	a.moveTo(StateSucceeded)
	return &Outcome{
		Function:  fn,
		Intent:    req.Intent,
		MarkClean: req.Intent.MarksClean(),
	}, nil
}

func (c *Controller) persist(ctx context.Context, id string, cfg function.Config, intent Intent) (*function.Function, error) {
	if id == "" {
		fn, err := c.persister.Create(ctx, cfg, intent)
		if err != nil {
			return nil, &PersistenceError{Op: "create", Err: err}
		}
		return fn, nil
	}

	fn, err := c.persister.Update(ctx, id, cfg, intent)
	if err != nil {
		return nil, &PersistenceError{Op: "update", ID: id, Err: err}
	}
	return fn, nil
}
