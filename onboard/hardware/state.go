package hardware

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// state flags reported in CMD_POS_UPDATE
const (
	FLAG_ERROR      = 1 << 0
	FLAG_CALIBRATED = 1 << 1
	FLAG_GRIPPING   = 1 << 2
	FLAG_MOVING     = 1 << 3
)

// effector types reported by CMD_TYPE
const (
	TYPE_ELECTRIC = 0x00
	TYPE_SUCTION  = 0x01
)

// values cross the bus as int32 in units of 1/fixedScale
const fixedScale = 10000

// GripperState is the last state pushed by the node.
type GripperState struct {
	Position float64
	Force    float64
	Flags    byte
}

func (s GripperState) Error() bool {
	return s.Flags&FLAG_ERROR != 0
}

func (s GripperState) Calibrated() bool {
	return s.Flags&FLAG_CALIBRATED != 0
}

func (s GripperState) Gripping() bool {
	return s.Flags&FLAG_GRIPPING != 0
}

func (s GripperState) Moving() bool {
	return s.Flags&FLAG_MOVING != 0
}

func putFixed(buf []byte, v float64) {
	scaled := mgl64.Clamp(math.Round(v*fixedScale), math.MinInt32, math.MaxInt32)
	binary.LittleEndian.PutUint32(buf, uint32(int32(scaled)))
}

func fixed(buf []byte) float64 {
	return float64(int32(binary.LittleEndian.Uint32(buf))) / fixedScale
}

func encodeFixed(v float64) []byte {
	buf := make([]byte, 4)
	putFixed(buf, v)
	return buf
}
