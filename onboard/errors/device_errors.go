package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotImplemented = errors.New("not implemented for this effector type")
	ErrGoalTimeout    = errors.New("gripper command not achieved in allotted time")
)

type UnknownEffectorError struct {
	Name string
}

func (err UnknownEffectorError) Error() string {
	return fmt.Sprintf("no such effector %s", err.Name)
}

type EffectorTypeError struct {
	Type string
}

func (err EffectorTypeError) Error() string {
	return fmt.Sprintf("unsupported effector type %q", err.Type)
}

// ActuatorFaultError is reported when the actuator flags an error before a goal starts.
type ActuatorFaultError struct {
	Name   string
	Action string
}

func (err ActuatorFaultError) Error() string {
	if len(err.Action) == 0 {
		err.Action = "UNKNOWN"
	}
	if len(err.Name) == 0 {
		err.Name = "UNKNOWN"
	}

	return fmt.Sprintf("actuator fault; effector %s is unable to perform action %s", err.Name, err.Action)
}

// ConfigurationMissingError lists parameter keys that were absent from storage.
type ConfigurationMissingError struct {
	Keys []string
}

func (err *ConfigurationMissingError) Error() string {
	return fmt.Sprintf("missing configuration keys: %s", strings.Join(err.Keys, ", "))
}

func (err *ConfigurationMissingError) Add(key string) {
	err.Keys = append(err.Keys, key)
}

// Err returns nil when no keys were recorded.
func (err *ConfigurationMissingError) Err() error {
	if err == nil || len(err.Keys) == 0 {
		return nil
	}
	return err
}

// UnknownParameterError is returned when an actuator is asked to apply a
// parameter it has no register for.
type UnknownParameterError struct {
	Name string
}

func (err UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown actuator parameter %q", err.Name)
}
