package onboard

import (
	"context"
	"testing"
	"time"

	"github.com/CodedInternet/gripperd/gripper"
	"github.com/CodedInternet/gripperd/onboard/errors"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newClockedGripper(t gripper.EffectorType, sim SimConfig) (*SimulatedGripper, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewSimulatedGripper(t, sim)
	s.now = clock.now
	s.last = clock.now()
	return s, clock
}

func TestSimulatedGripper(t *testing.T) {
	Convey("Given a simulated electric gripper", t, func() {
		s, clock := newClockedGripper(gripper.Electric, SimConfig{Object: 60, Stiffness: 2})

		So(s.Type(), ShouldEqual, gripper.Electric)
		So(s.Calibrated(), ShouldBeFalse)
		So(s.Calibrate(), ShouldBeNil)
		So(s.Calibrated(), ShouldBeTrue)

		Convey("it travels at the configured velocity", func() {
			So(s.CommandPosition(40, false), ShouldBeNil)
			clock.advance(500 * time.Millisecond)
			So(s.Position(), ShouldAlmostEqual, 25, 1e-9)
			clock.advance(time.Second)
			So(s.Position(), ShouldAlmostEqual, 40, 1e-9)
			So(s.Force(), ShouldEqual, 0)
		})

		Convey("it stops at the object and the force builds", func() {
			So(s.CommandPosition(90, false), ShouldBeNil)
			clock.advance(3 * time.Second)
			So(s.Position(), ShouldAlmostEqual, 60, 1e-9)
			So(s.Force(), ShouldAlmostEqual, 60, 1e-9)
		})

		Convey("stop holds the current position", func() {
			So(s.CommandPosition(40, false), ShouldBeNil)
			clock.advance(200 * time.Millisecond)
			So(s.Stop(), ShouldBeNil)
			clock.advance(time.Second)
			So(s.Position(), ShouldAlmostEqual, 10, 1e-9)
		})

		Convey("targets are clamped to the travel", func() {
			So(s.CommandPosition(-20, false), ShouldBeNil)
			clock.advance(time.Second)
			So(s.Position(), ShouldEqual, 0)
		})

		Convey("parameters", func() {
			So(s.SetMovingForce(500), ShouldBeNil)
			So(s.Parameters()[gripper.ParamMovingForce], ShouldEqual, gripper.MaxEffort)

			So(s.SetParameters(gripper.Parameters{gripper.ParamVelocity: 10}), ShouldBeNil)
			So(s.CommandPosition(40, false), ShouldBeNil)
			clock.advance(time.Second)
			So(s.Position(), ShouldAlmostEqual, 10, 1e-9)

			err := s.SetParameters(gripper.Parameters{"torque": 1})
			So(err, ShouldResemble, errors.UnknownParameterError{Name: "torque"})
		})

		Convey("faults persist until a reboot", func() {
			s.InjectFault()
			So(s.Error(), ShouldBeTrue)
			So(s.Reboot(), ShouldBeNil)
			So(s.Error(), ShouldBeFalse)
			So(s.Calibrated(), ShouldBeFalse)
		})
	})

	Convey("Given a simulated suction gripper", t, func() {
		s, clock := newClockedGripper(gripper.Suction, SimConfig{Object: 1})

		So(s.SetMovingForce(10), ShouldEqual, errors.ErrNotImplemented)
		So(s.Gripping(), ShouldBeFalse)

		Convey("it grips once the vacuum has built up", func() {
			So(s.CommandPosition(0, false), ShouldBeNil)
			So(s.Gripping(), ShouldBeFalse)
			clock.advance(SIM_SUCTION_DELAY)
			So(s.Gripping(), ShouldBeTrue)

			Convey("and releases on stop", func() {
				So(s.Stop(), ShouldBeNil)
				So(s.Gripping(), ShouldBeFalse)
			})
		})

		Convey("without an object it never grips", func() {
			s.sim.Object = 0
			So(s.CommandPosition(0, false), ShouldBeNil)
			clock.advance(time.Second)
			So(s.Gripping(), ShouldBeFalse)
		})
	})

	Convey("A blocking command waits for the fingers to settle", t, func() {
		s := NewSimulatedGripper(gripper.Electric, SimConfig{})
		So(s.SetParameters(gripper.Parameters{gripper.ParamVelocity: 400}), ShouldBeNil)

		start := time.Now()
		So(s.CommandPosition(20, true), ShouldBeNil)
		So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 40*time.Millisecond)
		So(s.Position(), ShouldAlmostEqual, 20, 1e-9)
	})

	Convey("The simulator satisfies the action server end to end", t, func() {
		s := NewSimulatedGripper(gripper.Electric, SimConfig{Object: 30})
		reader := mapReader{
			"left_gripper_timeout":       3,
			"left_gripper_goal":          0.01,
			"left_gripper_velocity":      200,
			"left_gripper_moving_force":  40,
			"left_gripper_holding_force": 30,
		}
		server := gripper.NewServer(gripper.NewExecutor("left_gripper", s, gripper.NewStoreResolver(reader)))
		So(server.Start(context.Background()), ShouldBeNil)
		defer server.Stop()

		Convey("an unobstructed goal is reached", func() {
			g, err := server.Submit(gripper.Goal{Position: 20}, discardSink{})
			So(err, ShouldBeNil)
			out := g.Outcome()
			So(out.Status, ShouldEqual, gripper.Succeeded)
			So(out.Result.ReachedGoal, ShouldBeTrue)
		})

		Convey("an obstructed goal stalls on the object", func() {
			g, err := server.Submit(gripper.Goal{Position: 80, MaxEffort: 20}, discardSink{})
			So(err, ShouldBeNil)
			out := g.Outcome()
			So(out.Status, ShouldEqual, gripper.Succeeded)
			So(out.Result.Stalled, ShouldBeTrue)
			So(out.Result.Position, ShouldAlmostEqual, 30, 1e-9)
		})
	})
}

type mapReader map[string]float64

func (m mapReader) Float(key string) (float64, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

type discardSink struct{}

func (discardSink) PublishFeedback(gripper.FeedbackSnapshot)    {}
func (discardSink) SetSucceeded(gripper.FeedbackSnapshot)       {}
func (discardSink) SetAborted(gripper.FeedbackSnapshot, string) {}
func (discardSink) SetPreempted(gripper.FeedbackSnapshot)       {}

var _ gripper.Actuator = (*SimulatedGripper)(nil)
