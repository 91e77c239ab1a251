package hardware

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CodedInternet/gripperd/gripper"
	"github.com/CodedInternet/gripperd/onboard/canbus"
	deviceErrors "github.com/CodedInternet/gripperd/onboard/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	UPDATE_INTERVAL  = 20 * time.Millisecond
	SETTLE_TIMEOUT   = 10 * time.Second
	MOVE_TIMEOUT     = 10 * time.Second
	ERR_SETTLE_TIMED = errors.New("timed out waiting for the node to report the expected state")
)

// parameter registers on the node
var paramRegisters = map[string]byte{
	gripper.ParamDeadZone:         0x01,
	gripper.ParamVelocity:         0x02,
	gripper.ParamMovingForce:      0x03,
	gripper.ParamHoldingForce:     0x04,
	gripper.ParamSuctionThreshold: 0x05,
	gripper.ParamBlowOff:          0x06,
}

func registersFor(t gripper.EffectorType) []string {
	if t == gripper.Suction {
		return []string{gripper.ParamSuctionThreshold, gripper.ParamBlowOff}
	}
	return []string{gripper.ParamDeadZone, gripper.ParamVelocity, gripper.ParamMovingForce, gripper.ParamHoldingForce}
}

// Gripper drives a gripper node over CAN. It implements gripper.Actuator.
type Gripper struct {
	name string
	node *ControlNode
	typ  gripper.EffectorType

	mu      sync.RWMutex
	state   GripperState
	updated chan struct{} // closed and replaced on every state update
	params  gripper.Parameters
}

// NewGripper attaches to the node at addr, reads its effector type and parameter
// registers and starts its periodic state updates.
func NewGripper(name string, bus canbus.Bus, addr uint32) (*Gripper, error) {
	g := &Gripper{
		name:    name,
		updated: make(chan struct{}),
		params:  make(gripper.Parameters),
	}

	node, err := NewControlNode(bus, addr, g.handleUpdate)
	if err != nil {
		return nil, err
	}
	g.node = node

	if err := g.init(); err != nil {
		node.Close()
		return nil, errors.Wrapf(err, "initialising gripper %s", name)
	}
	return g, nil
}

func (g *Gripper) init() error {
	resp, err := g.node.Query(CMD_TYPE, nil)
	if err != nil {
		return errors.Wrap(err, "reading effector type")
	}
	if len(resp.Data) < 1 {
		return deviceErrors.EffectorTypeError{Type: "<empty>"}
	}
	switch resp.Data[0] {
	case TYPE_ELECTRIC:
		g.typ = gripper.Electric
	case TYPE_SUCTION:
		g.typ = gripper.Suction
	default:
		return deviceErrors.EffectorTypeError{Type: fmt.Sprintf("0x%02x", resp.Data[0])}
	}

	interval := make([]byte, 2)
	binary.LittleEndian.PutUint16(interval, uint16(UPDATE_INTERVAL/time.Millisecond))
	if err := g.node.Command(CMD_UPDATE_INTERVAL, interval); err != nil {
		return errors.Wrap(err, "setting update interval")
	}

	for _, name := range registersFor(g.typ) {
		reg := paramRegisters[name]
		resp, err := g.node.Query(CMD_GET_PARAM, []byte{reg})
		if err != nil {
			return errors.Wrapf(err, "reading parameter %s", name)
		}
		if len(resp.Data) < 5 {
			return errors.Errorf("short reply reading parameter %s", name)
		}
		g.params[name] = fixed(resp.Data[1:5])
	}
	return nil
}

func (g *Gripper) Name() string {
	return g.name
}

func (g *Gripper) Node() *ControlNode {
	return g.node
}

func (g *Gripper) handleUpdate(msg canbus.CANMsg) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch msg.Cmd {
	case CMD_POS_UPDATE:
		if len(msg.Data) < 5 {
			return
		}
		g.state.Position = fixed(msg.Data[0:4])
		g.state.Flags = msg.Data[4]
	case CMD_FORCE_UPDATE:
		if len(msg.Data) < 4 {
			return
		}
		g.state.Force = fixed(msg.Data[0:4])
	default:
		return
	}

	close(g.updated)
	g.updated = make(chan struct{})
}

// State returns the last state pushed by the node.
func (g *Gripper) State() GripperState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// waitFor blocks until cond holds for the latest state or timeout passes.
func (g *Gripper) waitFor(cond func(s GripperState) bool, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		g.mu.RLock()
		ok := cond(g.state)
		updated := g.updated
		g.mu.RUnlock()

		if ok {
			return nil
		}

		select {
		case <-updated:
		case <-deadline.C:
			return ERR_SETTLE_TIMED
		}
	}
}

func (g *Gripper) Position() float64 {
	return g.State().Position
}

func (g *Gripper) Force() float64 {
	return g.State().Force
}

func (g *Gripper) Error() bool {
	return g.State().Error()
}

func (g *Gripper) Calibrated() bool {
	return g.State().Calibrated()
}

func (g *Gripper) Gripping() bool {
	return g.State().Gripping()
}

func (g *Gripper) Type() gripper.EffectorType {
	return g.typ
}

func (g *Gripper) Reboot() error {
	if err := g.node.Command(CMD_REBOOT, nil); err != nil {
		return errors.Wrap(err, "rebooting")
	}
	return g.waitFor(func(s GripperState) bool { return !s.Error() }, SETTLE_TIMEOUT)
}

func (g *Gripper) Calibrate() error {
	if err := g.node.Command(CMD_CALIBRATE, nil); err != nil {
		return errors.Wrap(err, "calibrating")
	}
	return g.waitFor(GripperState.Calibrated, SETTLE_TIMEOUT)
}

func (g *Gripper) Parameters() gripper.Parameters {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(gripper.Parameters, len(g.params))
	for k, v := range g.params {
		out[k] = v
	}
	return out
}

// SetParameters writes each parameter register in name order. Registers written
// before a failure keep their new value.
func (g *Gripper) SetParameters(p gripper.Parameters) error {
	names := make([]string, 0, len(p))
	for name := range p {
		if _, ok := paramRegisters[name]; !ok {
			return deviceErrors.UnknownParameterError{Name: name}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data := make([]byte, 5)
		data[0] = paramRegisters[name]
		putFixed(data[1:], p[name])

		if err := g.node.Command(CMD_SET_PARAM, data); err != nil {
			return errors.Wrapf(err, "writing parameter %s", name)
		}

		g.mu.Lock()
		g.params[name] = p[name]
		g.mu.Unlock()
	}
	return nil
}

func (g *Gripper) SetMovingForce(force float64) error {
	if g.typ != gripper.Electric {
		return deviceErrors.ErrNotImplemented
	}
	return g.SetParameters(gripper.Parameters{
		gripper.ParamMovingForce: mgl64.Clamp(force, 0, gripper.MaxEffort),
	})
}

// CommandPosition sets the target position. A non-blocking command is not
// acknowledged, the caller is expected to repeat it. A blocking command waits for
// the gripper to come to rest.
func (g *Gripper) CommandPosition(position float64, block bool) error {
	data := encodeFixed(position)
	if !block {
		return g.node.Send(CMD_SET_POS, data)
	}

	if err := g.node.Command(CMD_SET_POS, data); err != nil {
		return errors.Wrap(err, "commanding position")
	}

	params := g.Parameters()
	deadBand := params[gripper.ParamDeadZone]
	movingForce := params[gripper.ParamMovingForce]

	err := g.waitFor(func(s GripperState) bool {
		if g.typ == gripper.Suction {
			return s.Gripping()
		}
		return !s.Moving() && (mgl64.Abs(s.Position-position) < deadBand || s.Force > movingForce)
	}, MOVE_TIMEOUT)
	if err != nil {
		log.WithField("effector", g.name).WithError(err).Warn("blocking move did not settle")
		return deviceErrors.ErrGoalTimeout
	}
	return nil
}

// Stop is not acknowledged so it never blocks the control loop.
func (g *Gripper) Stop() error {
	return g.node.Send(CMD_STOP, nil)
}

func (g *Gripper) Close() {
	g.node.Close()
}
