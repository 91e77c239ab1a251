package gripper

// Actuator is the driver surface of a single gripper. Reads are expected to be
// bounded latency and return the most recent known state.
type Actuator interface {
	Position() float64
	Force() float64
	Error() bool
	Calibrated() bool
	Reboot() error
	Calibrate() error
	Type() EffectorType
	Parameters() Parameters
	SetParameters(p Parameters) error
	SetMovingForce(force float64) error
	CommandPosition(position float64, block bool) error
	Stop() error
	// Gripping is only meaningful for suction effectors.
	Gripping() bool
}

// ResultSink receives feedback and the terminal result of one goal. Exactly one of
// the terminal setters is called per goal.
type ResultSink interface {
	PublishFeedback(fb FeedbackSnapshot)
	SetSucceeded(result FeedbackSnapshot)
	SetAborted(result FeedbackSnapshot, reason string)
	SetPreempted(result FeedbackSnapshot)
}

// GoalHandle is the surface the executor drives for one goal.
type GoalHandle interface {
	ResultSink
	IsPreemptRequested() bool
}

// PreemptNotifier is optionally implemented by a GoalHandle that can signal a
// preempt request without waiting for the next poll.
type PreemptNotifier interface {
	PreemptRequested() <-chan struct{}
}

// readState takes one reading of the actuator. The moving force is the one the
// actuator reports as in effect, or movingForce when it reports none.
func readState(a Actuator, movingForce float64) ActuatorState {
	state := ActuatorState{
		Position:    a.Position(),
		Force:       a.Force(),
		MovingForce: movingForce,
	}
	if mf, ok := a.Parameters()[ParamMovingForce]; ok {
		state.MovingForce = mf
	}
	if a.Type() == Suction {
		state.Gripping = a.Gripping()
	}
	return state
}
