package hardware

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/CodedInternet/gripperd/onboard/canbus"
)

const (
	CMD_STOP            = 0x0000
	CMD_REBOOT          = 0x0010
	CMD_CALIBRATE       = 0x0020
	CMD_UPDATE_INTERVAL = 0x0030
	CMD_GET_PARAM       = 0x0040
	CMD_SET_POS         = 0x0050
	CMD_SET_PARAM       = 0x0060
	CMD_POS_UPDATE      = 0x0100
	CMD_FORCE_UPDATE    = 0x0110
	CMD_VERSION         = 0x03E0
	CMD_TYPE            = 0x03F0

	CMD_MAX_RETRIES = 5
)

var (
	CMD_TIMEOUT = 20 * time.Millisecond
)

var (
	ERR_MAX_RETRIES = errors.New("CMD_MAX_RETRIES reached while attempting to send")
	ERR_SEND_ABORT  = errors.New("send has been aborted")
)

type NodeCommand interface {
	ID() uint16
	Process() (resp canbus.CANMsg, err error)
	Ack(msg canbus.CANMsg)
	Msg() canbus.CANMsg
	Abort() error
}

// BaseCommand is a command that the node acknowledges by echoing it back.
type BaseCommand struct {
	node  *ControlNode
	msg   canbus.CANMsg
	ack   chan canbus.CANMsg
	abort chan struct{}
	once  sync.Once

	// verify decides if a reply acknowledges the command. Defaults to an exact
	// echo of the data.
	verify func(req, resp canbus.CANMsg) bool
}

func newCommand(node *ControlNode, cmd uint16, data []byte) *BaseCommand {
	return &BaseCommand{
		node: node,
		msg: canbus.CANMsg{
			ID:   node.id,
			Cmd:  cmd,
			Data: data,
		},
	}
}

// newQuery builds a command whose reply carries data of its own. Replies are
// matched on the leading key bytes only.
func newQuery(node *ControlNode, cmd uint16, key []byte) *BaseCommand {
	c := newCommand(node, cmd, key)
	c.verify = func(req, resp canbus.CANMsg) bool {
		return len(resp.Data) >= len(req.Data) && bytes.Equal(req.Data, resp.Data[:len(req.Data)])
	}
	return c
}

// Sends the current command and waits for a response/acknowledgment from the node.
// Will retry commands that are not acknowledged within CMD_TIMEOUT up to CMD_MAX_RETRIES.
// Can be canceled with Abort.
// Returns the response to the message for upstream processing should it be necessary
// Returns an error if the maximum retries are reached without an acknowledgement.
func (c *BaseCommand) Process() (resp canbus.CANMsg, err error) {
	if c.ack == nil {
		c.ack = make(chan canbus.CANMsg, 1)
	}
	if c.abort == nil {
		c.abort = make(chan struct{})
	}

	// register the callback with the node
	c.node.register(c)
	defer c.node.unregister(c)

	msg := c.Msg()
	for i := 0; i < CMD_MAX_RETRIES; i++ {
		if err = c.node.SendMsg(msg); err != nil {
			return resp, err
		}

		timeout := time.NewTimer(CMD_TIMEOUT)
		for waiting := true; waiting; {
			select {
			case resp = <-c.ack:
				// anything else is a stale reply to an earlier attempt
				if c.accept(resp) {
					timeout.Stop()
					return resp, nil
				}

			case <-c.abort:
				timeout.Stop()
				return resp, ERR_SEND_ABORT

			case <-timeout.C:
				waiting = false
			}
		}
	}

	// we have exhausted MAX_RETRIES
	return resp, ERR_MAX_RETRIES
}

func (c *BaseCommand) accept(resp canbus.CANMsg) bool {
	if c.verify != nil {
		return c.verify(c.msg, resp)
	}
	return bytes.Equal(c.msg.Data, resp.Data)
}

func (c *BaseCommand) ID() uint16 {
	return c.msg.Cmd
}

func (c *BaseCommand) Msg() canbus.CANMsg {
	return c.msg
}

func (c *BaseCommand) Abort() error {
	if c.abort == nil {
		return errors.New("send not yet attempted")
	}

	c.once.Do(func() {
		close(c.abort)
	})
	return nil
}

// Ack hands a reply to the waiting sender. Replies that arrive while an earlier
// one is still unread are dropped.
func (c *BaseCommand) Ack(msg canbus.CANMsg) {
	select {
	case c.ack <- msg:
	default:
	}
}
