package submission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/fnhost/internal/core/function"
)

// stubPersister records calls and returns canned results.
type stubPersister struct {
	creates int
	updates int
	lastID  string
	lastCfg function.Config
	result  *function.Function
	err     error
}

func (s *stubPersister) Create(_ context.Context, cfg function.Config, intent Intent) (*function.Function, error) {
	s.creates++
	s.lastCfg = cfg
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return function.NewFunction(cfg, intent.TargetStatus()), nil
}

func (s *stubPersister) Update(_ context.Context, id string, cfg function.Config, intent Intent) (*function.Function, error) {
	s.updates++
	s.lastID = id
	s.lastCfg = cfg
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	fn := function.NewFunction(cfg, intent.TargetStatus())
	fn.ID = id
	return fn, nil
}

func (s *stubPersister) calls() int {
	return s.creates + s.updates
}

func inlineCandidate() function.Candidate {
	return function.Candidate{
		"name":       "hello-world",
		"runtime":    "nodejs18.x",
		"sourceType": "inline",
		"inlineCode": "exports.handler = async () => 'ok';",
	}
}

func githubCandidate() function.Candidate {
	return function.Candidate{
		"name":       "from-github",
		"runtime":    "nodejs18.x",
		"sourceType": "github",
		"inlineCode": "",
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestSubmit_DraftCallsPersisterOnce(t *testing.T) {
	stored := &function.Function{ID: "fn-stored"}
	p := &stubPersister{result: stored}
	ctrl := NewController(p)

	out, err := ctrl.Submit(context.Background(), Request{Candidate: inlineCandidate(), Intent: IntentDraft})
	require.NoError(t, err)

	assert.Equal(t, 1, p.creates)
	assert.Equal(t, 0, p.updates)
	assert.Same(t, stored, out.Function, "persisted record is returned unchanged")
	assert.True(t, out.MarkClean)
	assert.Equal(t, IntentDraft, out.Intent)
	assert.Equal(t, function.DefaultHandler, p.lastCfg.Handler, "persister receives the normalized config")
}

func TestSubmit_UpdateWhenIDSet(t *testing.T) {
	p := &stubPersister{}
	ctrl := NewController(p)

	out, err := ctrl.Submit(context.Background(), Request{ID: "fn-123", Candidate: inlineCandidate(), Intent: IntentDraft})
	require.NoError(t, err)

	assert.Equal(t, 0, p.creates)
	assert.Equal(t, 1, p.updates)
	assert.Equal(t, "fn-123", p.lastID)
	assert.Equal(t, "fn-123", out.Function.ID)
}

func TestSubmit_DeployInline(t *testing.T) {
	p := &stubPersister{}
	ctrl := NewController(p)

	out, err := ctrl.Submit(context.Background(), Request{Candidate: inlineCandidate(), Intent: IntentDeploy})
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls())
	assert.False(t, out.MarkClean)
	assert.Equal(t, function.StatusDeploying, out.Function.Status)
}

func TestSubmit_ValidationErrorSkipsPersister(t *testing.T) {
	p := &stubPersister{}
	ctrl := NewController(p)

	c := inlineCandidate()
	c["inlineCode"] = "   "
	c["memory"] = 200

	_, err := ctrl.Submit(context.Background(), Request{Candidate: c, Intent: IntentDraft})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"inlineCode", "memory"}, verr.Fields.Fields())
	assert.Equal(t, 0, p.calls())
	assert.Equal(t, StateRejected, TerminalState(err))
}

func TestSubmit_GitHubDraftIsAllowed(t *testing.T) {
	p := &stubPersister{}
	ctrl := NewController(p)

	out, err := ctrl.Submit(context.Background(), Request{Candidate: githubCandidate(), Intent: IntentDraft})
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls())
	assert.Equal(t, function.SourceGitHub, out.Function.SourceType)
}

func TestSubmit_GitHubDeployIsPolicyError(t *testing.T) {
	p := &stubPersister{}
	ctrl := NewController(p)

	_, err := ctrl.Submit(context.Background(), Request{Candidate: githubCandidate(), Intent: IntentDeploy})

	var perr *PolicyError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ErrDeployUnsupported)
	assert.Equal(t, function.SourceGitHub, perr.SourceType)
	assert.Equal(t, 0, p.calls())
	assert.Equal(t, StateRejected, TerminalState(err))

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr), "policy errors are not field errors")
}

func TestSubmit_UnknownIntentIsRejected(t *testing.T) {
	p := &stubPersister{}
	ctrl := NewController(p)

	_, err := ctrl.Submit(context.Background(), Request{Candidate: inlineCandidate(), Intent: Intent("publish")})
	assert.ErrorIs(t, err, ErrUnknownIntent)
	assert.Equal(t, 0, p.calls())
}

func TestSubmit_PersisterErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("connection reset")
	p := &stubPersister{err: boom}
	ctrl := NewController(p)

	_, err := ctrl.Submit(context.Background(), Request{Candidate: inlineCandidate(), Intent: IntentDraft})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Same(t, boom, perr.Unwrap())
	assert.Equal(t, "create", perr.Op)
	assert.Equal(t, 1, p.calls(), "no retry")
	assert.Equal(t, StateFailed, TerminalState(err))
}

func TestSubmit_PersisterNotFound(t *testing.T) {
	p := &stubPersister{err: function.ErrNotFound}
	ctrl := NewController(p)

	_, err := ctrl.Submit(context.Background(), Request{ID: "fn-missing", Candidate: inlineCandidate(), Intent: IntentDraft})
	assert.ErrorIs(t, err, function.ErrNotFound)
	assert.Contains(t, err.Error(), "fn-missing")
}

func TestSubmit_PersisterInputError(t *testing.T) {
	p := &stubPersister{err: &function.InputError{Fields: function.FieldErrors{"name": "taken"}}}
	ctrl := NewController(p)

	_, err := ctrl.Submit(context.Background(), Request{Candidate: inlineCandidate(), Intent: IntentDraft})

	var inErr *function.InputError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, "taken", inErr.Fields["name"])
}

// =============================================================================
// State Machine Tests
// =============================================================================

func recordTransitions() (*[]State, Option) {
	var states []State
	return &states, WithObserver(func(from, to State) {
		if len(states) == 0 {
			states = append(states, from)
		}
		states = append(states, to)
	})
}

func assertValidPath(t *testing.T, states []State) {
	t.Helper()
	for i := 1; i < len(states); i++ {
		assert.NoError(t, ValidateTransition(states[i-1], states[i]), "%s -> %s", states[i-1], states[i])
	}
	assert.True(t, states[len(states)-1].IsTerminal())
}

func TestSubmit_StatePaths(t *testing.T) {
	tests := []struct {
		name      string
		candidate function.Candidate
		intent    Intent
		persistEr error
		want      []State
	}{
		{
			name:      "success",
			candidate: inlineCandidate(),
			intent:    IntentDraft,
			want:      []State{StateIdle, StateValidating, StateGateChecking, StatePersisting, StateSucceeded},
		},
		{
			name:      "field rejection",
			candidate: function.Candidate{},
			intent:    IntentDraft,
			want:      []State{StateIdle, StateValidating, StateRejected},
		},
		{
			name:      "policy rejection",
			candidate: githubCandidate(),
			intent:    IntentDeploy,
			want:      []State{StateIdle, StateValidating, StateGateChecking, StateRejected},
		},
		{
			name:      "persistence failure",
			candidate: inlineCandidate(),
			intent:    IntentDeploy,
			persistEr: errors.New("500"),
			want:      []State{StateIdle, StateValidating, StateGateChecking, StatePersisting, StateFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			states, opt := recordTransitions()
			ctrl := NewController(&stubPersister{err: tt.persistEr}, opt)

			_, err := ctrl.Submit(context.Background(), Request{Candidate: tt.candidate, Intent: tt.intent})

			assert.Equal(t, tt.want, *states)
			assert.Equal(t, tt.want[len(tt.want)-1], TerminalState(err))
			assertValidPath(t, *states)
		})
	}
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StateIdle, StateValidating))
	assert.ErrorIs(t, ValidateTransition(StateIdle, StatePersisting), ErrInvalidTransition)
	assert.ErrorIs(t, ValidateTransition(StateSucceeded, StateValidating), ErrInvalidTransition)
	assert.ErrorIs(t, ValidateTransition(State("bogus"), StateIdle), ErrInvalidTransition)
}

func TestState_IsTerminal(t *testing.T) {
	for _, s := range []State{StateRejected, StateSucceeded, StateFailed} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []State{StateIdle, StateValidating, StateGateChecking, StatePersisting} {
		assert.False(t, s.IsTerminal(), s)
	}
}

// =============================================================================
// Intent Tests
// =============================================================================

func TestParseIntent(t *testing.T) {
	got, err := ParseIntent("draft")
	require.NoError(t, err)
	assert.Equal(t, IntentDraft, got)

	got, err = ParseIntent(" Deploy ")
	require.NoError(t, err)
	assert.Equal(t, IntentDeploy, got)

	_, err = ParseIntent("publish")
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestGate(t *testing.T) {
	inline := function.Config{SourceType: function.SourceInline}
	github := function.Config{SourceType: function.SourceGitHub}

	assert.NoError(t, Gate(IntentDraft, inline))
	assert.NoError(t, Gate(IntentDraft, github))
	assert.NoError(t, Gate(IntentDeploy, inline))
	assert.ErrorIs(t, Gate(IntentDeploy, github), ErrDeployUnsupported)
}

func TestIntent_TargetStatus(t *testing.T) {
	assert.Equal(t, function.StatusDraft, IntentDraft.TargetStatus())
	assert.Equal(t, function.StatusDeploying, IntentDeploy.TargetStatus())
}
