package session

import "errors"

var (
	// ErrAlreadyActive is returned when an operator with a running session
	// tries to start another one. The existing session is left untouched.
	ErrAlreadyActive = errors.New("operator already has an active session")

	// ErrNoActiveSession is returned for events addressed to an operator
	// without a session. No state is created.
	ErrNoActiveSession = errors.New("no active session for operator")

	// ErrInvalidChoice is returned for a choice payload that does not match
	// any valid option for the session's current state. The session is not
	// mutated.
	ErrInvalidChoice = errors.New("choice not valid for current state")

	// ErrAssetMissing is returned when the selected asset has no checklist
	// template; session creation is aborted.
	ErrAssetMissing = errors.New("asset has no checklist template")

	// ErrNotForSession marks a free-text event that arrived while no
	// documentation was pending. The state machine ignores it; callers may
	// forward the text to other handling.
	ErrNotForSession = errors.New("text not part of the checklist flow")

	// ErrEvidenceStorage wraps an evidence persistence failure. The session
	// stays in its photo-collection state so the operator can retry or skip.
	ErrEvidenceStorage = errors.New("evidence storage failed")

	// ErrResultSink wraps a result persistence failure during finalization.
	// The computed summary is still returned alongside this error.
	ErrResultSink = errors.New("result persistence failed")
)
