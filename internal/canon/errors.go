package canon

import "errors"

var (
	// ErrWriteDenied means the caller's capability does not grant the
	// attempted write operation.
	ErrWriteDenied = errors.New("canon write denied")

	// ErrCausesCycle means a CAUSES edge would close a cycle.
	ErrCausesCycle = errors.New("causes edge would form a cycle")

	// ErrMissingEvidence means a fact arrived at the store with no
	// evidence references. Evaluation should have rejected it earlier;
	// the store refuses it regardless.
	ErrMissingEvidence = errors.New("fact has no evidence")

	// ErrNotFound means the requested canonical node does not exist.
	ErrNotFound = errors.New("canonical node not found")

	// ErrStoreUnavailable wraps transient infrastructure failures so
	// the canonization engine can distinguish them from data errors.
	ErrStoreUnavailable = errors.New("canonical store unavailable")

	// ErrAlreadyRetconned means the fact was superseded earlier; retcon
	// is a one-way relabel and is not repeated.
	ErrAlreadyRetconned = errors.New("fact already retconned")
)
