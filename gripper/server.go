package gripper

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

var (
	ErrServerStopped = errors.New("gripper: action server is not running")
	ErrServerStarted = errors.New("gripper: action server already started")
)

// ServerGoal is a goal accepted by a Server. It forwards feedback and the
// terminal result to the transport's sink and guards the result to be set once.
type ServerGoal struct {
	sink      ResultSink
	goal      Goal
	preempt   *atomic.Bool
	preemptCh chan struct{}

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newServerGoal(goal Goal, sink ResultSink) *ServerGoal {
	return &ServerGoal{
		sink:      sink,
		goal:      goal,
		preempt:   atomic.NewBool(false),
		preemptCh: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (g *ServerGoal) Goal() Goal {
	return g.goal
}

// Cancel requests preemption. It is safe to call more than once.
func (g *ServerGoal) Cancel() {
	if g.preempt.CAS(false, true) {
		close(g.preemptCh)
	}
}

func (g *ServerGoal) IsPreemptRequested() bool {
	return g.preempt.Load()
}

func (g *ServerGoal) PreemptRequested() <-chan struct{} {
	return g.preemptCh
}

// Done is closed once the terminal result has been set.
func (g *ServerGoal) Done() <-chan struct{} {
	return g.done
}

// Outcome is only valid after Done is closed.
func (g *ServerGoal) Outcome() Outcome {
	<-g.done
	return g.outcome
}

func (g *ServerGoal) PublishFeedback(fb FeedbackSnapshot) {
	select {
	case <-g.done:
		return
	default:
	}
	g.sink.PublishFeedback(fb)
}

func (g *ServerGoal) SetSucceeded(result FeedbackSnapshot) {
	g.terminate(Outcome{Status: Succeeded, Result: result}, func() {
		g.sink.SetSucceeded(result)
	})
}

func (g *ServerGoal) SetAborted(result FeedbackSnapshot, reason string) {
	g.terminate(Outcome{Status: Aborted, Result: result, Reason: reason}, func() {
		g.sink.SetAborted(result, reason)
	})
}

func (g *ServerGoal) SetPreempted(result FeedbackSnapshot) {
	g.terminate(Outcome{Status: Preempted, Result: result}, func() {
		g.sink.SetPreempted(result)
	})
}

func (g *ServerGoal) terminate(out Outcome, report func()) {
	g.once.Do(func() {
		g.outcome = out
		report()
		close(g.done)
	})
}

// Server accepts goals for one executor and runs them one at a time on a single
// worker. A goal submitted while another is active requests preemption of the
// active goal and waits in a single pending slot; a waiting goal that is replaced
// by a newer one is aborted.
type Server struct {
	exec    *Executor
	running *atomic.Bool
	wake    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	mu      sync.Mutex
	active  *ServerGoal
	pending *ServerGoal
}

func NewServer(exec *Executor) *Server {
	return &Server{
		exec:    exec,
		running: atomic.NewBool(false),
		wake:    make(chan struct{}, 1),
	}
}

func (s *Server) Executor() *Executor {
	return s.exec
}

// Start prepares the actuator and starts the worker. The worker stops when ctx
// is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CAS(false, true) {
		return ErrServerStarted
	}

	if err := s.exec.Prepare(); err != nil {
		s.running.Store(false)
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)

	log.WithField("effector", s.exec.Name()).Info("action server started")
	return nil
}

// Stop aborts the active goal and any pending goal and waits for the worker.
func (s *Server) Stop() {
	if !s.running.CAS(true, false) {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Server) Running() bool {
	return s.running.Load()
}

// Submit queues a goal. The returned ServerGoal can be used to cancel it and to
// wait for its outcome.
func (s *Server) Submit(goal Goal, sink ResultSink) (*ServerGoal, error) {
	g := newServerGoal(goal, sink)

	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return nil, ErrServerStopped
	}
	replaced := s.pending
	s.pending = g
	if s.active != nil {
		s.active.Cancel()
	}
	s.mu.Unlock()

	if replaced != nil {
		replaced.SetAborted(FeedbackSnapshot{}, "replaced by a newer goal")
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return g, nil
}

// Active returns the goal currently executing, if any.
func (s *Server) Active() (*ServerGoal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != nil
}

func (s *Server) run(ctx context.Context) {
	defer close(s.done)
	defer s.drain()

	for {
		s.mu.Lock()
		g := s.pending
		s.pending = nil
		s.active = g
		s.mu.Unlock()

		if g == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		switch {
		case ctx.Err() != nil:
			g.SetAborted(FeedbackSnapshot{}, "shutdown")
		case g.IsPreemptRequested():
			g.SetPreempted(s.exec.Snapshot(g.goal))
		default:
			s.exec.Execute(ctx, g.goal, g)
		}

		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
	}
}

// drain marks the server stopped and aborts the waiting goal. Submit checks
// running under the same lock, so nothing is queued after the worker exits.
func (s *Server) drain() {
	s.mu.Lock()
	s.running.Store(false)
	g := s.pending
	s.pending = nil
	s.mu.Unlock()

	if g != nil {
		g.SetAborted(FeedbackSnapshot{}, "shutdown")
	}
}
