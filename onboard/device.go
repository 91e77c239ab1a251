package onboard

import (
	"sync"

	"github.com/CodedInternet/gripperd/gripper"
	"github.com/CodedInternet/gripperd/onboard/canbus"
	"github.com/CodedInternet/gripperd/onboard/errors"
	"github.com/CodedInternet/gripperd/onboard/hardware"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// BusOpener opens the named CAN interface.
type BusOpener func(name string) (canbus.Bus, error)

func OpenCANBus(name string) (canbus.Bus, error) {
	bus, err := canbus.NewCANBus(name)
	if err != nil {
		return nil, err
	}
	return bus, nil
}

// Device holds one actuator per configured effector. Effectors on the same bus
// share a single connection to it.
type Device struct {
	Config GripperConfig

	mu        sync.Mutex
	effectors map[string]gripper.Actuator // keyed by effector id
	policies  map[string]gripper.PreemptPolicy
	buses     map[string]canbus.Bus
	open      BusOpener
}

// NewDevice builds the actuators described by config. With simulated set every
// effector is simulated, otherwise only those flagged in the config. open may be
// nil to use SocketCAN.
func NewDevice(config GripperConfig, simulated bool, open BusOpener) (d *Device, err error) {
	if err = config.Validate(); err != nil {
		return nil, err
	}
	if open == nil {
		open = OpenCANBus
	}

	d = &Device{
		Config:    config,
		effectors: make(map[string]gripper.Actuator, len(config.Effectors)),
		policies:  make(map[string]gripper.PreemptPolicy, len(config.Effectors)),
		buses:     make(map[string]canbus.Bus),
		open:      open,
	}

	for _, side := range config.Sides() {
		ec := config.Effectors[side]
		id := EffectorID(side)

		// both were checked by Validate
		typ, _ := gripper.ParseEffectorType(ec.Type)
		d.policies[id], _ = gripper.ParsePreemptPolicy(ec.Preempt)

		logger := log.WithFields(log.Fields{"effector": id, "type": typ})
		if simulated || ec.Simulated {
			logger.Info("creating simulated effector")
			d.effectors[id] = NewSimulatedGripper(typ, ec.Sim)
			continue
		}

		bus, err := d.getBus(ec.Bus)
		if err != nil {
			d.Close()
			return nil, err
		}

		g, err := hardware.NewGripper(id, bus, ec.StdAddr)
		if err != nil {
			d.Close()
			return nil, pkgerrors.Wrapf(err, "unable to initialize %s", id)
		}
		if g.Type() != typ {
			d.Close()
			g.Close()
			return nil, pkgerrors.Wrapf(errors.EffectorTypeError{Type: g.Type().String()},
				"%s is configured as %s", id, typ)
		}

		logger.WithFields(log.Fields{"bus": ec.Bus, "addr": ec.StdAddr}).Info("attached effector")
		d.effectors[id] = g
	}

	return d, nil
}

func (d *Device) getBus(name string) (bus canbus.Bus, err error) {
	bus, ok := d.buses[name]
	if !ok {
		// need to create bus
		bus, err = d.open(name)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "unable to open bus %s", name)
		}
		d.buses[name] = bus
	}

	return bus, nil
}

// Names lists the effector ids in a stable order.
func (d *Device) Names() []string {
	names := make([]string, 0, len(d.effectors))
	for _, side := range d.Config.Sides() {
		if _, ok := d.effectors[EffectorID(side)]; ok {
			names = append(names, EffectorID(side))
		}
	}
	return names
}

func (d *Device) Actuator(name string) (gripper.Actuator, error) {
	a, ok := d.effectors[name]
	if !ok {
		return nil, errors.UnknownEffectorError{Name: name}
	}
	return a, nil
}

func (d *Device) Policy(name string) gripper.PreemptPolicy {
	return d.policies[name]
}

// Servers builds an action server for every effector, reading parameters through
// resolver and reporting metrics under scope. The servers are not started.
func (d *Device) Servers(resolver gripper.ParameterResolver, scope tally.Scope) map[string]*gripper.Server {
	servers := make(map[string]*gripper.Server, len(d.effectors))
	for name, act := range d.effectors {
		exec := gripper.NewExecutor(name, act, resolver,
			gripper.WithPreemptPolicy(d.policies[name]),
			gripper.WithScope(scope),
		)
		servers[name] = gripper.NewServer(exec)
	}
	return servers
}

// Close releases the hardware effectors and the buses they share.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, act := range d.effectors {
		if g, ok := act.(*hardware.Gripper); ok {
			g.Close()
		}
	}
	for name, bus := range d.buses {
		if err := bus.Close(); err != nil {
			log.WithError(err).WithField("bus", name).Warn("unable to close bus")
		}
	}
	d.buses = make(map[string]canbus.Bus)
}
