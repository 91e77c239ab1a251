package params

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ParseSeed reads a flat yaml map of parameter names to values:
//
//	left_gripper_timeout: 5.0
//	left_gripper_goal: 0.005
func ParseSeed(data []byte) (map[string]float64, error) {
	values := make(map[string]float64)
	if err := yaml.UnmarshalStrict(data, &values); err != nil {
		return nil, errors.Wrap(err, "parsing parameter seed")
	}
	return values, nil
}

func LoadSeed(filename string) (map[string]float64, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading parameter seed %s", filename)
	}
	return ParseSeed(data)
}

// MarshalSeed is the inverse of ParseSeed, used to dump the stored values.
func MarshalSeed(values map[string]float64) ([]byte, error) {
	return yaml.Marshal(values)
}
