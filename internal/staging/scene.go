package staging

import "time"

// SceneStatus is the scene lifecycle: active scenes accumulate
// proposals, finalizing scenes are being canonized, completed scenes are
// terminal and refuse further staging writes.
type SceneStatus string

const (
	SceneActive     SceneStatus = "active"
	SceneFinalizing SceneStatus = "finalizing"
	SceneCompleted  SceneStatus = "completed"
)

// CanTransitionTo encodes the only legal moves: active to finalizing,
// finalizing to completed. A finalizing scene may also stay finalizing
// across retries; completed never regresses.
func (s SceneStatus) CanTransitionTo(next SceneStatus) bool {
	switch s {
	case SceneActive:
		return next == SceneFinalizing
	case SceneFinalizing:
		return next == SceneCompleted || next == SceneFinalizing
	}
	return false
}

type Scene struct {
	ID         string
	UniverseID string
	Name       string
	Status     SceneStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
