package onboard

import (
	"io/ioutil"
	"sort"

	"github.com/CodedInternet/gripperd/gripper"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const ConfigVersion = 1

// GripperConfig is the device description read from bbb_config.yaml.
type GripperConfig struct {
	Version   int
	Effectors map[string]EffectorConfig // keyed by side, e.g. "left"
	Params    map[string]float64        // seed values for the parameter store
}

type EffectorConfig struct {
	Bus       string
	StdAddr   uint32
	Type      string // electric or suction
	Preempt   string // stop or terminate
	Simulated bool
	Sim       SimConfig
}

// SimConfig shapes a simulated effector.
type SimConfig struct {
	Object    float64 // position at which the fingers meet an object, 0 for none
	Stiffness float64 // force per unit of travel past the object
}

// EffectorID names the effector on the given side, e.g. "left_gripper".
func EffectorID(side string) string {
	return side + "_gripper"
}

func ParseConfig(data []byte) (config GripperConfig, err error) {
	if err = yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrap(err, "unable to unmarshal yaml")
	}
	return config, config.Validate()
}

func LoadConfig(filename string) (GripperConfig, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return GripperConfig{}, errors.Wrap(err, "unable to read yaml file")
	}
	return ParseConfig(data)
}

func (c GripperConfig) Validate() error {
	if c.Version != ConfigVersion {
		return errors.Errorf("unable to work with version %d", c.Version)
	}
	if len(c.Effectors) == 0 {
		return errors.New("no effectors configured")
	}

	for side, ec := range c.Effectors {
		if _, err := gripper.ParseEffectorType(ec.Type); err != nil {
			return errors.Wrapf(err, "effector %s", side)
		}
		if _, err := gripper.ParsePreemptPolicy(ec.Preempt); err != nil {
			return errors.Wrapf(err, "effector %s", side)
		}
		if !ec.Simulated && ec.Bus == "" {
			return errors.Errorf("effector %s has no bus", side)
		}
	}
	return nil
}

// Sides lists the configured sides in a stable order.
func (c GripperConfig) Sides() []string {
	sides := make([]string, 0, len(c.Effectors))
	for side := range c.Effectors {
		sides = append(sides, side)
	}
	sort.Strings(sides)
	return sides
}
