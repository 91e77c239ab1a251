//go:build !linux
// +build !linux

package canbus

import "errors"

var ErrUnsupported = errors.New("socketcan is only available on linux")

// CANBus is unavailable off linux, use a LoopbackBus or run with -sim.
type CANBus struct {
	*listeners
}

func NewCANBus(ifname string) (*CANBus, error) {
	return nil, ErrUnsupported
}

func (c *CANBus) SendMsg(msg CANMsg) error {
	return ErrUnsupported
}

func (c *CANBus) Close() error {
	return nil
}
