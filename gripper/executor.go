package gripper

import (
	"context"
	"sync"
	"time"

	"github.com/CodedInternet/gripperd/onboard/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// Executor runs goals for one effector. It is not reentrant: callers must not
// start a goal until the previous Execute has returned.
type Executor struct {
	name     string
	act      Actuator
	resolver ParameterResolver
	effType  EffectorType
	strategy effectorStrategy
	policy   PreemptPolicy
	period   time.Duration
	metrics  *metrics
	logger   *log.Entry

	mu     sync.Mutex
	params ControlParameters // held between goals
}

type ExecutorOption func(e *Executor)

func WithPreemptPolicy(p PreemptPolicy) ExecutorOption {
	return func(e *Executor) {
		e.policy = p
	}
}

func WithScope(scope tally.Scope) ExecutorOption {
	return func(e *Executor) {
		e.metrics = newMetrics(scope, e.name)
	}
}

// NewExecutor builds an executor for the effector with id name (e.g. "left_gripper").
// The effector type and the initially held parameters are read from the actuator.
func NewExecutor(name string, act Actuator, resolver ParameterResolver, opts ...ExecutorOption) *Executor {
	e := &Executor{
		name:     name,
		act:      act,
		resolver: resolver,
		effType:  act.Type(),
		period:   periodFor(ControlRate),
		logger:   log.WithField("effector", name),
	}
	e.strategy = strategyFor(e.effType)
	e.metrics = newMetrics(tally.NoopScope, name)

	for _, opt := range opts {
		opt(e)
	}

	e.params = InitialParameters(act.Parameters())
	return e
}

func (e *Executor) Name() string {
	return e.name
}

func (e *Executor) Type() EffectorType {
	return e.effType
}

func (e *Executor) Actuator() Actuator {
	return e.act
}

func (e *Executor) Policy() PreemptPolicy {
	return e.policy
}

// Parameters returns the parameters held from the last goal.
func (e *Executor) Parameters() ControlParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Prepare recovers the actuator at startup: a faulted actuator is rebooted and an
// uncalibrated one is calibrated.
func (e *Executor) Prepare() error {
	if e.act.Error() {
		e.logger.Warn("actuator reports an error, rebooting")
		if err := e.act.Reboot(); err != nil {
			return err
		}
	}
	if !e.act.Calibrated() {
		e.logger.Info("actuator not calibrated, calibrating")
		if err := e.act.Calibrate(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.params = InitialParameters(e.act.Parameters())
	e.mu.Unlock()
	return nil
}

// Execute drives the actuator toward goal until it converges, times out or ctx is
// done. The outcome is reported to h exactly once and also returned.
func (e *Executor) Execute(ctx context.Context, goal Goal, h GoalHandle) Outcome {
	start := time.Now()
	logger := e.logger.WithFields(log.Fields{
		"position":   goal.Position,
		"max_effort": goal.MaxEffort,
	})

	if e.act.Error() {
		held := e.Parameters()
		err := errors.ActuatorFaultError{Name: e.name, Action: "execute goal"}
		logger.WithError(err).Error("gripper error - please restart action server")
		e.metrics.ActuatorFault.Inc(1)
		return e.finish(h, start, logger, Outcome{
			Status: Aborted,
			Result: e.feedback(goal, held),
			Reason: "actuator fault",
		})
	}

	effort := ResolveEffort(goal.MaxEffort)
	params := e.resolveParameters(logger)
	fb := e.feedback(goal, params)

	if err := e.strategy.setEffort(e.act, effort); err != nil {
		logger.WithError(err).Warn("unable to set moving force")
	}

	var wake <-chan struct{}
	if e.policy == PreemptTerminate {
		if n, ok := h.(PreemptNotifier); ok {
			wake = n.PreemptRequested()
		}
	}

	timeout := time.Duration(params.Timeout * float64(time.Second))
	loopStart := time.Now()
	r := newRate(e.period)

	for params.Timeout < 0 || time.Since(loopStart) < timeout {
		if h.IsPreemptRequested() {
			e.stop(logger)
			e.metrics.PreemptRequested.Inc(1)
			logger.Info("gripper action preempted")
			if e.policy == PreemptTerminate {
				return e.finish(h, start, logger, Outcome{
					Status: Preempted,
					Result: e.feedback(goal, params),
				})
			}
		}

		state := readState(e.act, params.MovingForce)
		fb = ComputeFeedback(state, goal.Position, params.DeadBand, e.effType)
		if e.strategy.converged(state, params, goal.Position) {
			return e.finish(h, start, logger, Outcome{Status: Succeeded, Result: fb})
		}

		if err := e.act.CommandPosition(goal.Position, false); err != nil {
			logger.WithError(err).Warn("position command failed")
		}
		h.PublishFeedback(fb)

		if !r.sleep(ctx, wake) && ctx.Err() != nil {
			e.stop(logger)
			return e.finish(h, start, logger, Outcome{
				Status: Aborted,
				Result: fb,
				Reason: "shutdown",
			})
		}
	}

	logger.WithField("timeout", params.Timeout).Error(errors.ErrGoalTimeout)
	return e.finish(h, start, logger, Outcome{
		Status: Aborted,
		Result: e.feedback(goal, params),
		Reason: "timeout",
	})
}

func (e *Executor) resolveParameters(logger *log.Entry) ControlParameters {
	params, err := e.resolver.Resolve(e.name, e.effType, e.Parameters())
	if err != nil {
		e.metrics.ConfigMissing.Inc(1)
		logger.WithError(err).Error("using previously held parameters")
	}

	if err := e.strategy.apply(e.act, params); err != nil {
		logger.WithError(err).Warn("unable to push parameters to actuator")
	}

	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
	return params
}

// Snapshot computes feedback for goal from the current actuator state and the
// held parameters.
func (e *Executor) Snapshot(goal Goal) FeedbackSnapshot {
	return e.feedback(goal, e.Parameters())
}

func (e *Executor) feedback(goal Goal, params ControlParameters) FeedbackSnapshot {
	return ComputeFeedback(readState(e.act, params.MovingForce), goal.Position, params.DeadBand, e.effType)
}

func (e *Executor) stop(logger *log.Entry) {
	if err := e.act.Stop(); err != nil {
		logger.WithError(err).Warn("unable to stop actuator")
	}
}

func (e *Executor) finish(h GoalHandle, start time.Time, logger *log.Entry, out Outcome) Outcome {
	switch out.Status {
	case Succeeded:
		e.metrics.Succeeded.Inc(1)
		h.SetSucceeded(out.Result)
	case Preempted:
		e.metrics.Preempted.Inc(1)
		h.SetPreempted(out.Result)
	default:
		e.metrics.Aborted.Inc(1)
		h.SetAborted(out.Result, out.Reason)
	}

	e.metrics.GoalDuration.Record(time.Since(start))
	logger.WithField("outcome", out.String()).Info("goal finished")
	return out
}
