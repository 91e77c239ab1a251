package gripper

import (
	"math"
)

// ResolveEffort applies the default and maximum effort sentinels to a goal effort.
func ResolveEffort(maxEffort float64) float64 {
	if math.Abs(maxEffort) < effortEpsilon {
		return DefaultEffort
	}
	if maxEffort == MaxEffortSentinel {
		return MaxEffort
	}
	return maxEffort
}

// ComputeFeedback derives a feedback snapshot from one actuator reading. It reads
// nothing else, so equal inputs always produce equal snapshots.
func ComputeFeedback(state ActuatorState, target, deadBand float64, t EffectorType) FeedbackSnapshot {
	fb := FeedbackSnapshot{
		Position: state.Position,
		Effort:   state.Force,
	}

	// a suction cup has no moving force, so it never stalls
	switch t {
	case Suction:
		fb.ReachedGoal = state.Gripping
	default:
		fb.Stalled = state.Force > state.MovingForce
		fb.ReachedGoal = math.Abs(state.Position-target) < deadBand
	}

	return fb
}
