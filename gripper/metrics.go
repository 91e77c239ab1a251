package gripper

import (
	"github.com/uber-go/tally"
)

type metrics struct {
	Succeeded        tally.Counter
	Aborted          tally.Counter
	Preempted        tally.Counter
	PreemptRequested tally.Counter
	ConfigMissing    tally.Counter
	ActuatorFault    tally.Counter
	GoalDuration     tally.Timer
}

func newMetrics(scope tally.Scope, effector string) *metrics {
	s := scope.Tagged(map[string]string{"effector": effector})

	return &metrics{
		Succeeded:        s.Counter("goals_succeeded"),
		Aborted:          s.Counter("goals_aborted"),
		Preempted:        s.Counter("goals_preempted"),
		PreemptRequested: s.Counter("preempt_requested"),
		ConfigMissing:    s.Counter("config_missing"),
		ActuatorFault:    s.Counter("actuator_fault"),
		GoalDuration:     s.Timer("goal_duration"),
	}
}
