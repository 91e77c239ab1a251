package hardware

import (
	"strings"
	"sync"

	"github.com/CodedInternet/gripperd/onboard/canbus"
	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	NODE_VERSION = "~0.1.0"
)

// ControlNode is a firmware node on a CAN bus. Commands to the node are issued one
// at a time; state the node pushes unprompted is handed to the update callback.
type ControlNode struct {
	id  uint32
	bus canbus.Bus

	lock       sync.Mutex // serialises bus writes
	cmdLock    sync.Mutex // one command in flight
	pendLock   sync.Mutex
	pendingCmd map[uint16]*BaseCommand

	rx       chan canbus.CANMsg
	onUpdate func(msg canbus.CANMsg)
	done     chan struct{}
	once     sync.Once

	Version *semver.Version // nil for DEV builds
}

// NewControlNode attaches to node id on bus and checks its firmware satisfies
// NODE_VERSION. onUpdate may be nil.
func NewControlNode(bus canbus.Bus, id uint32, onUpdate func(msg canbus.CANMsg)) (n *ControlNode, err error) {
	n = newControlNode(bus, id, onUpdate)

	if err = n.checkVersion(); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func newControlNode(bus canbus.Bus, id uint32, onUpdate func(msg canbus.CANMsg)) *ControlNode {
	n := &ControlNode{
		id:         id,
		bus:        bus,
		pendingCmd: make(map[uint16]*BaseCommand),
		rx:         make(chan canbus.CANMsg, 32),
		onUpdate:   onUpdate,
		done:       make(chan struct{}),
	}

	bus.AddListener(id, n.rx)
	go n.listen()
	return n
}

func (n *ControlNode) ID() uint32 {
	return n.id
}

func (n *ControlNode) checkVersion() error {
	resp, err := newQuery(n, CMD_VERSION, nil).Process()
	if err != nil {
		return errors.Wrapf(err, "unable to read version of node 0x%x", n.id)
	}

	versionString := strings.TrimRight(string(resp.Data), "\x00")
	semVer, err := semver.NewVersion(versionString)
	if err != nil {
		// not a semver, but we might be able to recover
		if versionString == "DEV" {
			log.WithField("node", n.id).Warn("node is running a development build")
			return nil
		}
		return errors.Errorf("unable to use node 0x%x: unrecognised version %q", n.id, versionString)
	}

	semVerConstraint, err := semver.NewConstraint(NODE_VERSION)
	if err != nil {
		return err
	}

	if !semVerConstraint.Check(semVer) {
		return errors.Errorf("unable to use node 0x%x: recieved version %s - require %s", n.id, versionString, NODE_VERSION)
	}

	n.Version = semVer
	return nil
}

func (n *ControlNode) SendMsg(msg canbus.CANMsg) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	return n.bus.SendMsg(msg)
}

// Send issues a command without waiting for it to be acknowledged.
func (n *ControlNode) Send(cmd uint16, data []byte) error {
	return n.SendMsg(canbus.CANMsg{ID: n.id, Cmd: cmd, Data: data})
}

// Command issues a command and waits for the node to echo it.
func (n *ControlNode) Command(cmd uint16, data []byte) error {
	_, err := newCommand(n, cmd, data).Process()
	return err
}

// Query issues a command and returns the reply, matched on the leading key bytes.
func (n *ControlNode) Query(cmd uint16, key []byte) (canbus.CANMsg, error) {
	return newQuery(n, cmd, key).Process()
}

// Close detaches from the bus and aborts any command waiting on an acknowledgement.
func (n *ControlNode) Close() {
	n.once.Do(func() {
		n.bus.RemoveListener(n.id)
		close(n.done)
		n.abortPending()
	})
}

func (n *ControlNode) register(c *BaseCommand) {
	n.cmdLock.Lock()

	n.pendLock.Lock()
	n.pendingCmd[c.ID()] = c
	n.pendLock.Unlock()
}

func (n *ControlNode) unregister(c *BaseCommand) {
	n.pendLock.Lock()
	delete(n.pendingCmd, c.ID())
	n.pendLock.Unlock()

	n.cmdLock.Unlock()
}

func (n *ControlNode) listen() {
	for {
		select {
		case msg := <-n.rx:
			switch msg.Cmd {
			case CMD_POS_UPDATE, CMD_FORCE_UPDATE:
				if n.onUpdate != nil {
					n.onUpdate(msg)
				}

			default:
				n.routeACK(msg)
			}

		case <-n.done:
			return
		}
	}
}

func (n *ControlNode) abortPending() {
	n.pendLock.Lock()
	defer n.pendLock.Unlock()

	for _, cmd := range n.pendingCmd {
		cmd.Abort()
	}
}

func (n *ControlNode) routeACK(msg canbus.CANMsg) {
	n.pendLock.Lock()
	cmd, ok := n.pendingCmd[msg.Cmd]
	n.pendLock.Unlock()

	if ok {
		cmd.Ack(msg)
	}
}
