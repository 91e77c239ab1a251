package canbus

import (
	"sync"
)

// Responder plays the part of the nodes on a LoopbackBus. It receives every frame
// the host sends and returns the frames the nodes send back.
type Responder func(msg CANMsg) []CANMsg

// LoopbackBus is an in-process bus for simulation and tests.
type LoopbackBus struct {
	*listeners

	mu        sync.Mutex
	responder Responder
	sent      []CANMsg
	closed    bool
}

func NewLoopbackBus(name string, responder Responder) *LoopbackBus {
	return &LoopbackBus{
		listeners: newListeners(name),
		responder: responder,
	}
}

func (b *LoopbackBus) SendMsg(msg CANMsg) error {
	if len(msg.Data) > MaxDataLength {
		return ErrDataTooLong
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.sent = append(b.sent, msg)
	responder := b.responder
	b.mu.Unlock()

	if responder == nil {
		return nil
	}
	for _, resp := range responder(msg) {
		b.dispatch(resp)
	}
	return nil
}

// Inject delivers a frame as if a node had sent it unprompted.
func (b *LoopbackBus) Inject(msg CANMsg) {
	b.dispatch(msg)
}

// Sent returns a copy of every frame sent by the host so far.
func (b *LoopbackBus) Sent() []CANMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CANMsg, len(b.sent))
	copy(out, b.sent)
	return out
}

func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
