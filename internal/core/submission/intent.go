package submission

import (
	"fmt"
	"strings"

	"github.com/artpar/fnhost/internal/core/function"
)

// Intent is the caller-declared purpose of a submission.
type Intent string

const (
	IntentDraft  Intent = "draft"
	IntentDeploy Intent = "deploy"
)

// ParseIntent converts a wire value into an Intent.
func ParseIntent(s string) (Intent, error) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentDraft:
		return IntentDraft, nil
	case IntentDeploy:
		return IntentDeploy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownIntent, s)
	}
}

// TargetStatus is the status a record is stored with for this intent.
func (i Intent) TargetStatus() function.Status {
	switch i {
	case IntentDeploy:
		return function.StatusDeploying
	default:
		return function.StatusDraft
	}
}

// MarksClean reports whether a successful submission leaves the caller's
// local copy clean. Deploys are followed by a redirect or status polling, so
// the caller decides.
func (i Intent) MarksClean() bool {
	switch i {
	case IntentDraft:
		return true
	default:
		return false
	}
}

// Gate applies the intent-specific business rule to a field-valid config.
func Gate(intent Intent, cfg function.Config) error {
	switch intent {
	case IntentDraft:
		return nil
	case IntentDeploy:
		if cfg.SourceType != function.SourceInline {
			return &PolicyError{Intent: intent, SourceType: cfg.SourceType, Err: ErrDeployUnsupported}
		}
		return nil
	default:
		return &PolicyError{Intent: intent, SourceType: cfg.SourceType, Err: ErrUnknownIntent}
	}
}
