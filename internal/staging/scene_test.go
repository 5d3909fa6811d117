package staging

import "testing"

func TestSceneTransitions(t *testing.T) {
	cases := []struct {
		from, to SceneStatus
		want     bool
	}{
		{SceneActive, SceneFinalizing, true},
		{SceneActive, SceneCompleted, false},
		{SceneActive, SceneActive, false},
		{SceneFinalizing, SceneCompleted, true},
		{SceneFinalizing, SceneFinalizing, true},
		{SceneFinalizing, SceneActive, false},
		{SceneCompleted, SceneActive, false},
		{SceneCompleted, SceneFinalizing, false},
		{SceneCompleted, SceneCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
