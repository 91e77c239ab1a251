package canbus

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

var ErrBusClosed = errors.New("can bus is closed")

// Bus is a CAN interface shared by the nodes attached to it.
type Bus interface {
	SendMsg(msg CANMsg) error
	// AddListener routes every frame sent by node nodeID to rxchan.
	AddListener(nodeID uint32, rxchan chan<- CANMsg)
	RemoveListener(nodeID uint32)
	Close() error
}

// listeners fans received frames out to the node that sent them.
type listeners struct {
	name string
	mu   sync.RWMutex
	rx   map[uint32]chan<- CANMsg
}

func newListeners(name string) *listeners {
	return &listeners{
		name: name,
		rx:   make(map[uint32]chan<- CANMsg),
	}
}

func (l *listeners) AddListener(nodeID uint32, rxchan chan<- CANMsg) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rx[nodeID] = rxchan
}

func (l *listeners) RemoveListener(nodeID uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rx, nodeID)
}

// dispatch never blocks the bus: a listener that is not keeping up loses the frame.
func (l *listeners) dispatch(msg CANMsg) {
	if !msg.FromNode() {
		return
	}

	l.mu.RLock()
	c, ok := l.rx[msg.Node()]
	l.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c <- msg:
	default:
		log.WithFields(log.Fields{
			"bus": l.name,
			"msg": msg.String(),
		}).Warn("listener busy, dropping frame")
	}
}
