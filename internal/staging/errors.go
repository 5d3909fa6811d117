package staging

import "errors"

var (
	// ErrSceneCompleted means a staging write targeted a scene that has
	// already been canonized.
	ErrSceneCompleted = errors.New("scene is completed")

	// ErrSceneNotFound means the scene does not exist.
	ErrSceneNotFound = errors.New("scene not found")

	// ErrProposalNotFound means the proposal does not exist.
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrAlreadyResolved means the proposal already reached a terminal
	// status; resolution happens exactly once.
	ErrAlreadyResolved = errors.New("proposal already resolved")

	// ErrInvalidTransition means the requested scene transition is not
	// permitted from the scene's current status.
	ErrInvalidTransition = errors.New("invalid scene transition")

	// ErrCanonizationInFlight means another holder owns the scene's
	// canonization lease. Callers wait or retry; it is not a data error.
	ErrCanonizationInFlight = errors.New("canonization already in flight for scene")

	// ErrStoreUnavailable wraps transient staging-store failures.
	ErrStoreUnavailable = errors.New("staging store unavailable")
)
