package store

import (
	"context"
	"time"

	"github.com/artpar/fnhost/internal/core/credential"
	"github.com/artpar/fnhost/internal/core/function"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for functions and credentials.
type Store interface {
	// Function operations
	CreateFunction(ctx context.Context, fn *function.Function) error
	GetFunction(ctx context.Context, id string) (*function.Function, error)
	UpdateFunction(ctx context.Context, fn *function.Function) error
	DeleteFunction(ctx context.Context, id string) error
	ListFunctions(ctx context.Context, opts FunctionListOptions) ([]function.Function, int, error)

	// Credential operations
	CreateCredential(ctx context.Context, cred *credential.Credential) error
	GetCredential(ctx context.Context, id string) (*credential.Credential, error)
	DeleteCredential(ctx context.Context, id string) error
	ListCredentials(ctx context.Context, opts ListOptions) ([]credential.Credential, error)
	TouchCredential(ctx context.Context, id string, usedAt time.Time) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// FunctionListOptions adds a case-insensitive name filter.
type FunctionListOptions struct {
	ListOptions
	Search string
}
