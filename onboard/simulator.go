package onboard

import (
	"sync"
	"time"

	"github.com/CodedInternet/gripperd/gripper"
	"github.com/CodedInternet/gripperd/onboard/errors"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	SIM_DEFAULT_VELOCITY  = 50.0 // units per second
	SIM_DEFAULT_STIFFNESS = 10.0
	SIM_SUCTION_DELAY     = 100 * time.Millisecond
	SIM_MAX_POSITION      = 100.0
)

var simParams = map[string]bool{
	gripper.ParamDeadZone:         true,
	gripper.ParamVelocity:         true,
	gripper.ParamMovingForce:      true,
	gripper.ParamHoldingForce:     true,
	gripper.ParamSuctionThreshold: true,
	gripper.ParamBlowOff:          true,
}

// SimulatedGripper is a software actuator. The fingers travel toward the target at
// the configured velocity; past the object they stop and the force builds up with
// the remaining travel. State is advanced lazily whenever it is read.
type SimulatedGripper struct {
	mu  sync.Mutex
	now func() time.Time

	typ        gripper.EffectorType
	sim        SimConfig
	params     gripper.Parameters
	position   float64
	target     float64
	force      float64
	fault      bool
	calibrated bool
	suckSince  time.Time // zero when the vacuum is off
	last       time.Time
}

func NewSimulatedGripper(t gripper.EffectorType, sim SimConfig) *SimulatedGripper {
	if sim.Stiffness <= 0 {
		sim.Stiffness = SIM_DEFAULT_STIFFNESS
	}

	s := &SimulatedGripper{
		now: time.Now,
		typ: t,
		sim: sim,
	}
	if t == gripper.Suction {
		s.params = gripper.Parameters{
			gripper.ParamSuctionThreshold: 20,
			gripper.ParamBlowOff:          0.5,
		}
	} else {
		s.params = gripper.Parameters{
			gripper.ParamDeadZone:     0.005,
			gripper.ParamVelocity:     SIM_DEFAULT_VELOCITY,
			gripper.ParamMovingForce:  gripper.DefaultEffort,
			gripper.ParamHoldingForce: gripper.DefaultEffort,
		}
	}
	s.last = s.now()
	return s
}

// step advances the simulation to the current time. Callers hold mu.
func (s *SimulatedGripper) step() {
	now := s.now()
	dt := now.Sub(s.last).Seconds()
	s.last = now
	if s.typ == gripper.Suction || dt <= 0 {
		return
	}

	velocity := s.params[gripper.ParamVelocity]
	if velocity <= 0 {
		velocity = SIM_DEFAULT_VELOCITY
	}

	target := s.target
	limit := target
	if s.sim.Object > 0 && target > s.sim.Object {
		limit = s.sim.Object
	}

	delta := mgl64.Clamp(limit-s.position, -velocity*dt, velocity*dt)
	s.position = mgl64.Clamp(s.position+delta, 0, SIM_MAX_POSITION)

	s.force = 0
	if s.sim.Object > 0 && target > s.sim.Object && mgl64.FloatEqual(s.position, s.sim.Object) {
		s.force = mgl64.Clamp(s.sim.Stiffness*(target-s.sim.Object), 0, gripper.MaxEffort*2)
	}
}

func (s *SimulatedGripper) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	return s.position
}

func (s *SimulatedGripper) Force() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	return s.force
}

func (s *SimulatedGripper) Error() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// InjectFault makes the gripper report an error until it is rebooted.
func (s *SimulatedGripper) InjectFault() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = true
}

func (s *SimulatedGripper) Calibrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrated
}

func (s *SimulatedGripper) Reboot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = false
	s.calibrated = false
	s.suckSince = time.Time{}
	return nil
}

func (s *SimulatedGripper) Calibrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position, s.target, s.force = 0, 0, 0
	s.last = s.now()
	s.calibrated = true
	return nil
}

func (s *SimulatedGripper) Type() gripper.EffectorType {
	return s.typ
}

func (s *SimulatedGripper) Parameters() gripper.Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(gripper.Parameters, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

func (s *SimulatedGripper) SetParameters(p gripper.Parameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range p {
		if !simParams[k] {
			return errors.UnknownParameterError{Name: k}
		}
	}
	s.step()
	for k, v := range p {
		s.params[k] = v
	}
	return nil
}

func (s *SimulatedGripper) SetMovingForce(force float64) error {
	if s.typ != gripper.Electric {
		return errors.ErrNotImplemented
	}
	return s.SetParameters(gripper.Parameters{
		gripper.ParamMovingForce: mgl64.Clamp(force, 0, gripper.MaxEffort),
	})
}

// CommandPosition moves toward position. For suction effectors any command turns
// the vacuum on. A blocking command waits until the fingers stop.
func (s *SimulatedGripper) CommandPosition(position float64, block bool) error {
	s.mu.Lock()
	s.step()
	s.target = mgl64.Clamp(position, 0, SIM_MAX_POSITION)
	if s.typ == gripper.Suction && s.suckSince.IsZero() {
		s.suckSince = s.now()
	}
	s.mu.Unlock()

	if !block {
		return nil
	}

	deadline := s.now().Add(time.Duration(SIM_MAX_POSITION/SIM_DEFAULT_VELOCITY*2) * time.Second)
	for s.now().Before(deadline) {
		if s.settled() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.ErrGoalTimeout
}

func (s *SimulatedGripper) settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()

	if s.typ == gripper.Suction {
		return s.gripping()
	}
	return mgl64.FloatEqualThreshold(s.position, s.target, 1e-9) || s.force > 0
}

func (s *SimulatedGripper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	s.target = s.position
	s.suckSince = time.Time{}
	return nil
}

func (s *SimulatedGripper) Gripping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gripping()
}

func (s *SimulatedGripper) gripping() bool {
	if s.typ != gripper.Suction || s.suckSince.IsZero() || s.sim.Object <= 0 {
		return false
	}
	return s.now().Sub(s.suckSince) >= SIM_SUCTION_DELAY
}
