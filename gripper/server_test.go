package gripper

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func waitActive(s *Server, g *ServerGoal) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if active, ok := s.Active(); ok && active == g {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func waitDone(g *ServerGoal) bool {
	select {
	case <-g.Done():
		return true
	case <-time.After(5 * time.Second):
		return false
	}
}

func TestServer(t *testing.T) {
	Convey("Given a started server", t, func() {
		act := newTestActuator()
		reader := electricConfig(5)
		s := NewServer(newTestExecutor(act, reader, WithPreemptPolicy(PreemptTerminate)))
		So(s.Start(context.Background()), ShouldBeNil)
		Reset(s.Stop)

		So(s.Running(), ShouldBeTrue)
		So(s.Start(context.Background()), ShouldEqual, ErrServerStarted)

		Convey("a goal runs to its outcome", func() {
			act.script = []float64{30, 60}
			sink := new(testHandle)

			g, err := s.Submit(Goal{Position: 60}, sink)
			So(err, ShouldBeNil)
			So(waitDone(g), ShouldBeTrue)
			So(g.Outcome().Status, ShouldEqual, Succeeded)
			So(sink.terminals, ShouldResemble, []Outcome{g.Outcome()})
			So(sink.feedback, ShouldHaveLength, 2)
		})

		Convey("a newer goal preempts the active one", func() {
			first, second := new(testHandle), new(testHandle)

			g1, err := s.Submit(Goal{Position: 80}, first)
			So(err, ShouldBeNil)
			So(waitActive(s, g1), ShouldBeTrue)

			g2, err := s.Submit(Goal{Position: 0}, second)
			So(err, ShouldBeNil)

			So(waitDone(g1), ShouldBeTrue)
			So(g1.Outcome().Status, ShouldEqual, Preempted)
			So(act.stopCount(), ShouldEqual, 1)

			So(waitDone(g2), ShouldBeTrue)
			So(g2.Outcome().Status, ShouldEqual, Succeeded)
			So(first.terminalCount(), ShouldEqual, 1)
			So(second.terminalCount(), ShouldEqual, 1)
		})

		Convey("a cancelled goal is preempted", func() {
			g, err := s.Submit(Goal{Position: 80}, new(testHandle))
			So(err, ShouldBeNil)
			So(waitActive(s, g), ShouldBeTrue)

			g.Cancel()
			g.Cancel()
			So(waitDone(g), ShouldBeTrue)
			So(g.Outcome().Status, ShouldEqual, Preempted)
		})

		Convey("stopping aborts the active goal", func() {
			reader.values["left_gripper_timeout"] = -1
			sink := new(testHandle)

			g, err := s.Submit(Goal{Position: 80}, sink)
			So(err, ShouldBeNil)
			So(waitActive(s, g), ShouldBeTrue)

			s.Stop()
			So(s.Running(), ShouldBeFalse)
			So(g.Outcome().Status, ShouldEqual, Aborted)
			So(g.Outcome().Reason, ShouldEqual, "shutdown")
			So(sink.terminalCount(), ShouldEqual, 1)

			Convey("and further goals are refused", func() {
				_, err := s.Submit(Goal{Position: 10}, new(testHandle))
				So(err, ShouldEqual, ErrServerStopped)
			})
		})
	})

	Convey("Given a server with the stop-only policy", t, func() {
		act := newTestActuator()
		s := NewServer(newTestExecutor(act, electricConfig(0.5)))
		So(s.Start(context.Background()), ShouldBeNil)
		Reset(s.Stop)

		g1, err := s.Submit(Goal{Position: 80}, new(testHandle))
		So(err, ShouldBeNil)
		So(waitActive(s, g1), ShouldBeTrue)

		Convey("a waiting goal replaced by a newer one is aborted", func() {
			replacedSink := new(testHandle)
			g2, err := s.Submit(Goal{Position: 40}, replacedSink)
			So(err, ShouldBeNil)
			g3, err := s.Submit(Goal{Position: 0}, new(testHandle))
			So(err, ShouldBeNil)

			So(waitDone(g2), ShouldBeTrue)
			So(g2.Outcome().Status, ShouldEqual, Aborted)
			So(g2.Outcome().Reason, ShouldEqual, "replaced by a newer goal")
			So(replacedSink.feedback, ShouldBeEmpty)

			Convey("the active goal still runs until it times out", func() {
				So(waitDone(g1), ShouldBeTrue)
				So(g1.Outcome().Status, ShouldEqual, Aborted)
				So(g1.Outcome().Reason, ShouldEqual, "timeout")
				So(act.stopCount(), ShouldBeGreaterThan, 0)

				So(waitDone(g3), ShouldBeTrue)
				So(g3.Outcome().Status, ShouldEqual, Succeeded)
			})
		})

		Convey("stopping aborts a waiting goal", func() {
			g2, err := s.Submit(Goal{Position: 40}, new(testHandle))
			So(err, ShouldBeNil)

			s.Stop()
			So(g1.Outcome().Reason, ShouldEqual, "shutdown")
			So(g2.Outcome().Status, ShouldEqual, Aborted)
			So(g2.Outcome().Reason, ShouldEqual, "shutdown")
		})
	})

	Convey("Cancelling the start context refuses further goals", t, func() {
		act := newTestActuator()
		s := NewServer(newTestExecutor(act, electricConfig(5)))
		ctx, cancel := context.WithCancel(context.Background())
		So(s.Start(ctx), ShouldBeNil)

		cancel()
		deadline := time.Now().Add(2 * time.Second)
		for s.Running() && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		So(s.Running(), ShouldBeFalse)

		_, err := s.Submit(Goal{Position: 10}, new(testHandle))
		So(err, ShouldEqual, ErrServerStopped)
		s.Stop()

		Convey("and the server can be started again", func() {
			So(s.Start(context.Background()), ShouldBeNil)
			Reset(s.Stop)

			act.script = []float64{10}
			g, err := s.Submit(Goal{Position: 10}, new(testHandle))
			So(err, ShouldBeNil)
			So(waitDone(g), ShouldBeTrue)
			So(g.Outcome().Status, ShouldEqual, Succeeded)
		})
	})

	Convey("A server that was never started refuses goals", t, func() {
		s := NewServer(newTestExecutor(newTestActuator(), electricConfig(5)))
		_, err := s.Submit(Goal{Position: 10}, new(testHandle))
		So(err, ShouldEqual, ErrServerStopped)
		s.Stop()
	})
}
