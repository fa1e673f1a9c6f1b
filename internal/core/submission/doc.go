// Package submission mediates between a function candidate, a declared
// intent and an external persistence collaborator.
//
// A submission attempt runs through a fixed state machine:
//
//	Idle -> Validating -> Rejected
//	                   -> GateChecking -> Rejected
//	                                   -> Persisting -> Succeeded | Failed
//
// Validation failures and policy failures never reach the Persister. A
// Persister failure is returned once, wrapped in a PersistenceError that
// unwraps to the original error.
//
// # Usage
//
//	ctrl := submission.NewController(persister)
//	out, err := ctrl.Submit(ctx, submission.Request{Candidate: c, Intent: submission.IntentDraft})
//	var verr *submission.ValidationError
//	if errors.As(err, &verr) {
//	    // Re-prompt with verr.Fields
//	}
package submission
