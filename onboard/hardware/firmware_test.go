package hardware

import (
	"io/ioutil"
	"sync"

	"github.com/CodedInternet/gripperd/onboard/canbus"
	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetOutput(ioutil.Discard)
}

const testAddr = 0x20

// testFirmware answers frames the way a gripper node does. Position commands are
// reached instantly.
type testFirmware struct {
	mu sync.Mutex

	version  string
	typ      byte
	params   map[byte]float64
	position float64
	force    float64
	flags    byte

	silent    bool // never reply
	dropFirst int  // ignore this many frames before replying
	received  []canbus.CANMsg
}

func newTestFirmware() *testFirmware {
	return &testFirmware{
		version: "0.1.4",
		typ:     TYPE_ELECTRIC,
		params: map[byte]float64{
			0x01: 0.005,
			0x02: 50,
			0x03: 40,
			0x04: 30,
		},
		flags: FLAG_CALIBRATED,
	}
}

func (f *testFirmware) bus() *canbus.LoopbackBus {
	return canbus.NewLoopbackBus("test", f.respond)
}

func (f *testFirmware) respond(msg canbus.CANMsg) []canbus.CANMsg {
	f.mu.Lock()
	defer f.mu.Unlock()

	if msg.ID != testAddr {
		return nil
	}
	f.received = append(f.received, msg)
	if f.silent {
		return nil
	}
	if f.dropFirst > 0 {
		f.dropFirst--
		return nil
	}

	reply := canbus.CANMsg{ID: testAddr | canbus.NodeFlag, Cmd: msg.Cmd, Data: msg.Data}
	switch msg.Cmd {
	case CMD_VERSION:
		reply.Data = []byte(f.version)
	case CMD_TYPE:
		reply.Data = []byte{f.typ}
	case CMD_GET_PARAM:
		data := make([]byte, 5)
		data[0] = msg.Data[0]
		putFixed(data[1:], f.params[msg.Data[0]])
		reply.Data = data
	case CMD_SET_PARAM:
		f.params[msg.Data[0]] = fixed(msg.Data[1:5])
	case CMD_SET_POS:
		f.position = fixed(msg.Data)
		return []canbus.CANMsg{reply, f.posUpdate()}
	case CMD_REBOOT:
		f.flags &^= FLAG_ERROR
		return []canbus.CANMsg{reply, f.posUpdate()}
	case CMD_CALIBRATE:
		f.flags |= FLAG_CALIBRATED
		return []canbus.CANMsg{reply, f.posUpdate()}
	case CMD_STOP:
		return nil
	}
	return []canbus.CANMsg{reply}
}

func (f *testFirmware) posUpdate() canbus.CANMsg {
	data := make([]byte, 5)
	putFixed(data, f.position)
	data[4] = f.flags
	return canbus.CANMsg{ID: testAddr | canbus.NodeFlag, Cmd: CMD_POS_UPDATE, Data: data}
}

func (f *testFirmware) forceUpdate() canbus.CANMsg {
	return canbus.CANMsg{ID: testAddr | canbus.NodeFlag, Cmd: CMD_FORCE_UPDATE, Data: encodeFixed(f.force)}
}

func (f *testFirmware) receivedCount(cmd uint16) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, msg := range f.received {
		if msg.Cmd == cmd {
			n++
		}
	}
	return n
}

func (f *testFirmware) param(reg byte) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[reg]
}
