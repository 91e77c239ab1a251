package gripper

import (
	"errors"
	"io/ioutil"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

func init() {
	log.SetOutput(ioutil.Discard)
}

// testActuator is a scripted actuator. Each position command moves it to the next
// entry of script, once the script is exhausted it stays where it is.
type testActuator struct {
	mu sync.Mutex

	typ        EffectorType
	position   float64
	force      float64
	err        bool
	calibrated bool
	gripping   bool
	params     Parameters

	script      []float64
	forceScript []float64
	gripAfter   int // gripping turns true after this many commands, 0 disables

	commands     []float64
	stops        int
	reboots      int
	calibrations int
	pushed       []Parameters
	movingForces []float64
}

func newTestActuator() *testActuator {
	return &testActuator{
		typ:        Electric,
		calibrated: true,
		params: Parameters{
			ParamDeadZone:     0.005,
			ParamVelocity:     50,
			ParamMovingForce:  40,
			ParamHoldingForce: 30,
		},
	}
}

func (a *testActuator) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

func (a *testActuator) Force() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.force
}

func (a *testActuator) Error() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *testActuator) Calibrated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calibrated
}

func (a *testActuator) Reboot() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reboots++
	a.err = false
	return nil
}

func (a *testActuator) Calibrate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calibrations++
	a.calibrated = true
	return nil
}

func (a *testActuator) Type() EffectorType {
	return a.typ
}

func (a *testActuator) Parameters() Parameters {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(Parameters, len(a.params))
	for k, v := range a.params {
		out[k] = v
	}
	return out
}

func (a *testActuator) SetParameters(p Parameters) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushed = append(a.pushed, p)
	for k, v := range p {
		a.params[k] = v
	}
	return nil
}

func (a *testActuator) SetMovingForce(force float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.movingForces = append(a.movingForces, force)
	a.params[ParamMovingForce] = force
	return nil
}

func (a *testActuator) CommandPosition(position float64, block bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands = append(a.commands, position)
	if len(a.script) > 0 {
		a.position = a.script[0]
		a.script = a.script[1:]
	}
	if len(a.forceScript) > 0 {
		a.force = a.forceScript[0]
		a.forceScript = a.forceScript[1:]
	}
	if a.gripAfter > 0 && len(a.commands) >= a.gripAfter {
		a.gripping = true
	}
	return nil
}

func (a *testActuator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return nil
}

func (a *testActuator) Gripping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gripping
}

func (a *testActuator) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

func (a *testActuator) commandCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.commands)
}

// testHandle records everything the executor reports.
type testHandle struct {
	mu sync.Mutex

	preempt      bool
	preemptAfter int // request preemption once this many feedbacks were published, 0 disables
	preemptPolls int

	feedback  []FeedbackSnapshot
	terminals []Outcome
}

func (h *testHandle) IsPreemptRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.preemptAfter > 0 && len(h.feedback) >= h.preemptAfter {
		h.preempt = true
	}
	if h.preempt {
		h.preemptPolls++
	}
	return h.preempt
}

func (h *testHandle) PublishFeedback(fb FeedbackSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feedback = append(h.feedback, fb)
}

func (h *testHandle) SetSucceeded(result FeedbackSnapshot) {
	h.terminal(Outcome{Status: Succeeded, Result: result})
}

func (h *testHandle) SetAborted(result FeedbackSnapshot, reason string) {
	h.terminal(Outcome{Status: Aborted, Result: result, Reason: reason})
}

func (h *testHandle) SetPreempted(result FeedbackSnapshot) {
	h.terminal(Outcome{Status: Preempted, Result: result})
}

func (h *testHandle) terminal(out Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminals = append(h.terminals, out)
}

func (h *testHandle) terminalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.terminals)
}

// mapReader is an in-memory ParamReader.
type mapReader struct {
	values map[string]float64
	err    error
}

func (m mapReader) Float(key string) (float64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func electricConfig(timeout float64) mapReader {
	return mapReader{values: map[string]float64{
		"left_gripper_timeout":       timeout,
		"left_gripper_goal":          0.005,
		"left_gripper_velocity":      50,
		"left_gripper_moving_force":  40,
		"left_gripper_holding_force": 30,
	}}
}

var errStorage = errors.New("storage unavailable")

func counterValue(scope tally.TestScope, name string) int64 {
	var total int64
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() == name {
			total += c.Value()
		}
	}
	return total
}
