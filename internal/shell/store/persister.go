package store

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/core/submission"
)

// Persister adapts a Store to submission.Persister.
type Persister struct {
	store Store
}

var _ submission.Persister = (*Persister)(nil)

// NewPersister creates a Persister backed by s.
func NewPersister(s Store) *Persister {
	return &Persister{store: s}
}

// Create stores a new function with the status implied by intent.
func (p *Persister) Create(ctx context.Context, cfg function.Config, intent submission.Intent) (*function.Function, error) {
	fn := function.NewFunction(cfg, intent.TargetStatus())

	err := p.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateFunction(ctx, fn); err != nil {
			return err
		}
		return markCredentialUsed(ctx, tx, fn)
	})
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// Update replaces the configuration of an existing function. Unknown IDs
// return function.ErrNotFound.
func (p *Persister) Update(ctx context.Context, id string, cfg function.Config, intent submission.Intent) (*function.Function, error) {
	var updated *function.Function

	err := p.store.WithTx(ctx, func(tx Store) error {
		fn, err := tx.GetFunction(ctx, id)
		if err != nil {
			return err
		}

		fn.Apply(cfg, intent.TargetStatus())
		if err := tx.UpdateFunction(ctx, fn); err != nil {
			return err
		}
		if err := markCredentialUsed(ctx, tx, fn); err != nil {
			return err
		}

		updated = fn
		return nil
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", function.ErrNotFound, id)
		}
		return nil, err
	}
	return updated, nil
}

// markCredentialUsed records a deploy trigger against the referenced
// credential. The reference is opaque, so a missing credential is ignored.
func markCredentialUsed(ctx context.Context, tx Store, fn *function.Function) error {
	if fn.Status != function.StatusDeploying || fn.CredentialID == "" {
		return nil
	}
	usedAt := time.Now().UTC()
	if fn.LastDeployedAt != nil {
		usedAt = *fn.LastDeployedAt
	}
	if err := tx.TouchCredential(ctx, fn.CredentialID, usedAt); err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}
