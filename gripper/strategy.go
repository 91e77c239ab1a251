package gripper

// effectorStrategy holds the behaviour that differs between effector types.
type effectorStrategy interface {
	// apply pushes the actuation subset of params to the actuator.
	apply(a Actuator, params ControlParameters) error
	setEffort(a Actuator, effort float64) error
	converged(state ActuatorState, params ControlParameters, target float64) bool
}

func strategyFor(t EffectorType) effectorStrategy {
	if t == Suction {
		return suctionStrategy{}
	}
	return electricStrategy{}
}

type electricStrategy struct{}

func (electricStrategy) apply(a Actuator, params ControlParameters) error {
	return a.SetParameters(Parameters{
		ParamDeadZone:     params.DeadBand,
		ParamVelocity:     params.Velocity,
		ParamMovingForce:  params.MovingForce,
		ParamHoldingForce: params.HoldingForce,
	})
}

func (electricStrategy) setEffort(a Actuator, effort float64) error {
	return a.SetMovingForce(effort)
}

// converged is true once the gripper pushes past the moving force or is inside
// the dead band around the target.
func (electricStrategy) converged(state ActuatorState, params ControlParameters, target float64) bool {
	fb := ComputeFeedback(state, target, params.DeadBand, Electric)
	return fb.Stalled || fb.ReachedGoal
}

// suctionStrategy defers convergence to the actuator's vacuum sensor.
type suctionStrategy struct{}

func (suctionStrategy) apply(a Actuator, params ControlParameters) error {
	return a.SetParameters(Parameters{
		ParamSuctionThreshold: params.Suction.Threshold,
		ParamBlowOff:          params.Suction.BlowOff,
	})
}

func (suctionStrategy) setEffort(Actuator, float64) error {
	return nil
}

func (suctionStrategy) converged(state ActuatorState, _ ControlParameters, _ float64) bool {
	return state.Gripping
}
