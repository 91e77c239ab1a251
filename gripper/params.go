package gripper

import (
	"github.com/CodedInternet/gripperd/onboard/errors"
)

// Configuration key suffixes, prefixed by the effector id (e.g. "left_gripper").
const (
	KeyTimeout          = "_timeout"
	KeyDeadBand         = "_goal"
	KeyVelocity         = "_velocity"
	KeyMovingForce      = "_moving_force"
	KeyHoldingForce     = "_holding_force"
	KeySuctionThreshold = "_suction_threshold"
	KeyBlowOff          = "_blow_off"
)

// ParamReader is a keyed read of configuration storage. ok is false when the key
// is absent.
type ParamReader interface {
	Float(key string) (value float64, ok bool, err error)
}

// ParameterResolver produces the control parameters for the next goal. Fields
// whose keys cannot be read keep their value from prior and are reported in the
// returned error.
type ParameterResolver interface {
	Resolve(effector string, t EffectorType, prior ControlParameters) (ControlParameters, error)
}

type StoreResolver struct {
	Store ParamReader
}

func NewStoreResolver(store ParamReader) *StoreResolver {
	return &StoreResolver{Store: store}
}

func (r *StoreResolver) Resolve(effector string, t EffectorType, prior ControlParameters) (ControlParameters, error) {
	params := prior
	missing := new(errors.ConfigurationMissingError)

	read := func(suffix string, dst *float64) {
		key := effector + suffix
		v, ok, err := r.Store.Float(key)
		if err != nil || !ok {
			missing.Add(key)
			return
		}
		*dst = v
	}

	read(KeyTimeout, &params.Timeout)
	switch t {
	case Electric:
		read(KeyDeadBand, &params.DeadBand)
		read(KeyVelocity, &params.Velocity)
		read(KeyMovingForce, &params.MovingForce)
		read(KeyHoldingForce, &params.HoldingForce)
	case Suction:
		read(KeySuctionThreshold, &params.Suction.Threshold)
		read(KeyBlowOff, &params.Suction.BlowOff)
	}

	return params, missing.Err()
}

// ParamKeys lists every key the resolver reads for an effector type.
func ParamKeys(effector string, t EffectorType) []string {
	suffixes := []string{KeyTimeout}
	if t == Suction {
		suffixes = append(suffixes, KeySuctionThreshold, KeyBlowOff)
	} else {
		suffixes = append(suffixes, KeyDeadBand, KeyVelocity, KeyMovingForce, KeyHoldingForce)
	}

	keys := make([]string, len(suffixes))
	for i, s := range suffixes {
		keys[i] = effector + s
	}
	return keys
}

// InitialParameters builds the held parameter set from what the actuator reports
// at startup.
func InitialParameters(p Parameters) ControlParameters {
	return ControlParameters{
		Timeout:      DefaultTimeout,
		DeadBand:     p[ParamDeadZone],
		Velocity:     p[ParamVelocity],
		MovingForce:  p[ParamMovingForce],
		HoldingForce: p[ParamHoldingForce],
		Suction: SuctionParameters{
			Threshold: p[ParamSuctionThreshold],
			BlowOff:   p[ParamBlowOff],
		},
	}
}
