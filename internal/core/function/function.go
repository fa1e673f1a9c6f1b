// Package function contains the function configuration record, its validation
// schema and normalization rules.
// This is part of the Functional Core - all functions are pure with no I/O.
package function

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Source Types
// =============================================================================

// SourceType identifies where a function's code comes from.
type SourceType string

const (
	SourceInline SourceType = "inline"
	SourceGitHub SourceType = "github"
)

// IsValid checks if the source type is known.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceInline, SourceGitHub:
		return true
	default:
		return false
	}
}

// =============================================================================
// Runtimes
// =============================================================================

// Runtime is the execution environment a function runs on.
type Runtime string

const (
	RuntimeNodeJS18 Runtime = "nodejs18.x"
)

// SupportedRuntimes lists every runtime a function may be configured with.
var SupportedRuntimes = []Runtime{RuntimeNodeJS18}

// IsSupported checks if the runtime is in SupportedRuntimes.
func (r Runtime) IsSupported() bool {
	for _, supported := range SupportedRuntimes {
		if r == supported {
			return true
		}
	}
	return false
}

// =============================================================================
// Status
// =============================================================================

// Status is the lifecycle status of a stored function.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusDeploying Status = "deploying"
	StatusDeployed  Status = "deployed"
	StatusError     Status = "error"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusDeploying, StatusDeployed, StatusError:
		return true
	default:
		return false
	}
}

// =============================================================================
// Defaults and Bounds
// =============================================================================

const (
	DefaultSourceType = SourceInline
	DefaultHandler    = "index.handler"
	DefaultTimeout    = 30
	DefaultMemory     = 128
	EmptySchema       = "{}"

	MinNameLength        = 3
	MaxNameLength        = 50
	MaxDescriptionLength = 255
	MinTimeout           = 1
	MaxTimeout           = 300
	MinMemory            = 128
	MaxMemory            = 1024
	MemoryStep           = 64
)

// =============================================================================
// Config
// =============================================================================

// Config is a normalized function configuration. Values of this type are
// produced by Validate and always satisfy every field and cross-field rule.
type Config struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	SourceType   SourceType `json:"sourceType"`
	Runtime      Runtime    `json:"runtime"`
	Handler      string     `json:"handler"`
	Timeout      int        `json:"timeout"`
	Memory       int        `json:"memory"`
	InlineCode   string     `json:"inlineCode,omitempty"`
	RepoURL      string     `json:"repoUrl,omitempty"`
	Branch       string     `json:"branch,omitempty"`
	FilePath     string     `json:"filePath,omitempty"`
	InputSchema  string     `json:"inputSchema"`
	OutputSchema string     `json:"outputSchema"`
	CredentialID string     `json:"credentialId,omitempty"`
}

// Candidate converts the config back into an untrusted candidate so that it
// can be run through Validate again.
func (c Config) Candidate() Candidate {
	return Candidate{
		FieldName:         c.Name,
		FieldDescription:  c.Description,
		FieldSourceType:   string(c.SourceType),
		FieldRuntime:      string(c.Runtime),
		FieldHandler:      c.Handler,
		FieldTimeout:      c.Timeout,
		FieldMemory:       c.Memory,
		FieldInlineCode:   c.InlineCode,
		FieldRepoURL:      c.RepoURL,
		FieldBranch:       c.Branch,
		FieldFilePath:     c.FilePath,
		FieldInputSchema:  c.InputSchema,
		FieldOutputSchema: c.OutputSchema,
		FieldCredentialID: c.CredentialID,
	}
}

// =============================================================================
// Function
// =============================================================================

// Function is a stored function configuration enriched with server-assigned
// fields.
type Function struct {
	Config
	ID             string     `json:"id"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastDeployedAt *time.Time `json:"lastDeployed,omitempty"`
}

// NewID generates a new function ID.
func NewID() string {
	return "fn-" + uuid.New().String()[:8]
}

// NewFunction creates a stored record for a normalized config.
func NewFunction(cfg Config, status Status) *Function {
	if cfg.SourceType == "" {
		cfg.SourceType = DefaultSourceType
	}

	now := time.Now().UTC()
	fn := &Function{
		Config:    cfg,
		ID:        NewID(),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == StatusDeploying {
		fn.LastDeployedAt = &now
	}
	return fn
}

// Apply replaces the configuration of an existing record, keeping its ID and
// creation time.
func (f *Function) Apply(cfg Config, status Status) {
	if cfg.SourceType == "" {
		cfg.SourceType = DefaultSourceType
	}

	now := time.Now().UTC()
	f.Config = cfg
	f.Status = status
	f.UpdatedAt = now
	if status == StatusDeploying {
		f.LastDeployedAt = &now
	}
}
