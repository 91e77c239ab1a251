// Package gripper implements the supervised goal execution loop for a single
// end-effector: effort policy, per-goal parameter resolution, fixed-rate actuation,
// convergence detection and exactly-once terminal reporting.
package gripper

import (
	"fmt"
	"strings"

	"github.com/CodedInternet/gripperd/onboard/errors"
)

const (
	// ControlRate is the frequency of the control loop in Hz.
	ControlRate = 20.0

	// DefaultEffort is applied when a goal does not specify an effort.
	DefaultEffort = 40.0
	// MaxEffort is applied when a goal requests MaxEffortSentinel.
	MaxEffort         = 100.0
	MaxEffortSentinel = -1.0
	effortEpsilon     = 0.0001

	// DefaultTimeout is held until the first goal resolves parameters from storage.
	DefaultTimeout = 5.0
)

type EffectorType int

const (
	Electric EffectorType = iota
	Suction
)

func (t EffectorType) String() string {
	switch t {
	case Electric:
		return "electric"
	case Suction:
		return "suction"
	}
	return "unknown"
}

func ParseEffectorType(s string) (EffectorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "electric":
		return Electric, nil
	case "suction":
		return Suction, nil
	}
	return Electric, errors.EffectorTypeError{Type: s}
}

// Goal is a single motion request. Position is in percent open (0-100).
type Goal struct {
	Position  float64
	MaxEffort float64
}

type SuctionParameters struct {
	Threshold float64 `json:"threshold"`
	BlowOff   float64 `json:"blow_off"`
}

// ControlParameters are the values that shape one goal's actuation. A negative
// Timeout means the loop never times out.
type ControlParameters struct {
	Timeout      float64           `json:"timeout"`
	DeadBand     float64           `json:"dead_band"`
	Velocity     float64           `json:"velocity"`
	MovingForce  float64           `json:"moving_force"`
	HoldingForce float64           `json:"holding_force"`
	Suction      SuctionParameters `json:"suction"`
}

// Parameters is the raw key/value parameter set exchanged with an actuator.
type Parameters map[string]float64

// Actuator parameter keys.
const (
	ParamDeadZone         = "dead_zone"
	ParamVelocity         = "velocity"
	ParamMovingForce      = "moving_force"
	ParamHoldingForce     = "holding_force"
	ParamSuctionThreshold = "vacuum_sensor_threshold"
	ParamBlowOff          = "blow_off_seconds"
)

// ActuatorState is a point-in-time reading of the actuator used for one tick.
type ActuatorState struct {
	Position    float64
	Force       float64
	MovingForce float64
	Gripping    bool
}

// FeedbackSnapshot is published every tick and the final one doubles as the result.
type FeedbackSnapshot struct {
	Position    float64 `json:"position"`
	Effort      float64 `json:"effort"`
	Stalled     bool    `json:"stalled"`
	ReachedGoal bool    `json:"reached_goal"`
}

type Status int

const (
	Succeeded Status = iota
	Aborted
	Preempted
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Aborted:
		return "aborted"
	case Preempted:
		return "preempted"
	}
	return "unknown"
}

// Outcome is the single terminal state produced for a goal.
type Outcome struct {
	Status Status
	Result FeedbackSnapshot
	Reason string
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Status.String()
	}
	return fmt.Sprintf("%s (%s)", o.Status, o.Reason)
}

// PreemptPolicy decides what a preempt request does to a running goal.
type PreemptPolicy int

const (
	// PreemptStopOnly stops motion and keeps looping until convergence or timeout.
	// A preempted goal may therefore still report success.
	PreemptStopOnly PreemptPolicy = iota
	// PreemptTerminate stops motion and ends the goal as Preempted.
	PreemptTerminate
)

func ParsePreemptPolicy(s string) (PreemptPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stop":
		return PreemptStopOnly, nil
	case "terminate":
		return PreemptTerminate, nil
	}
	return PreemptStopOnly, fmt.Errorf("unknown preempt policy %q", s)
}

func (p PreemptPolicy) String() string {
	if p == PreemptTerminate {
		return "terminate"
	}
	return "stop"
}
