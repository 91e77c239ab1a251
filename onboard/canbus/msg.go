package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// NodeFlag is set on the ID of every frame sent by a node, so replies can be
	// told apart from the host's own frames on a looped back bus.
	NodeFlag = 0x0400

	MaxDataLength = 6
	FrameSize     = 16

	sffMask = 0x000007FF
	effMask = 0x1FFFFFFF
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
)

var (
	ErrDataTooLong = errors.New("data length exceeds 6 bytes")
	ErrShortFrame  = errors.New("frame shorter than 16 bytes")
)

// CANMsg is a command frame. The first two data bytes of the frame carry Cmd, so a
// message has room for six bytes of its own data.
type CANMsg struct {
	ID   uint32 // node ID this is being issued for
	Cmd  uint16 // command being issued in this message
	Data []byte // raw data up to six bytes. DLC is taken from len(Data).
}

// FromNode reports whether the frame was sent by a node rather than the host.
func (msg CANMsg) FromNode() bool {
	return msg.ID&NodeFlag != 0
}

// Node returns the node address with the direction flag removed.
func (msg CANMsg) Node() uint32 {
	return msg.ID &^ NodeFlag
}

func (msg CANMsg) String() string {
	return fmt.Sprintf("0x%03x cmd=0x%04x [% x]", msg.ID, msg.Cmd, msg.Data)
}

// Encode lays the message out as a linux can_frame.
func (msg CANMsg) Encode() ([]byte, error) {
	if len(msg.Data) > MaxDataLength {
		return nil, ErrDataTooLong
	}

	raw := make([]byte, FrameSize)

	oid := msg.ID
	if oid != oid&sffMask {
		oid = (oid & effMask) | effFlag
	}
	binary.LittleEndian.PutUint32(raw[0:4], oid)

	raw[4] = byte(2 + len(msg.Data))
	binary.LittleEndian.PutUint16(raw[8:10], msg.Cmd)
	copy(raw[10:], msg.Data)

	return raw, nil
}

// Decode parses a linux can_frame. ok is false for error and remote frames and for
// frames too short to carry a command.
func Decode(raw []byte) (msg CANMsg, ok bool, err error) {
	if len(raw) < FrameSize {
		return msg, false, ErrShortFrame
	}

	oid := binary.LittleEndian.Uint32(raw[0:4])
	if oid&(errFlag|rtrFlag) != 0 {
		return msg, false, nil
	}

	if oid&effFlag != 0 {
		msg.ID = oid & effMask
	} else {
		msg.ID = oid & sffMask
	}

	dlc := int(raw[4])
	if dlc < 2 || dlc > 2+MaxDataLength {
		return msg, false, nil
	}

	msg.Cmd = binary.LittleEndian.Uint16(raw[8:10])
	msg.Data = make([]byte, dlc-2)
	copy(msg.Data, raw[10:8+dlc])

	return msg, true, nil
}
