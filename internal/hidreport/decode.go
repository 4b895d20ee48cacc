// Package hidreport decodes fixed-layout HID input reports into canonical
// controller state, driven by a declarative per-axis field table. The table
// describes where each field lives in the packet (byte/bit offset, width) and
// how its raw value is normalized; Decode itself is a pure function over
// (previous state, packet).
package hidreport

import (
	"math"

	"github.com/openpad/dsense/controller"
)

// AxisMode selects how a field's raw bits are interpreted.
type AxisMode int

const (
	ModeNone AxisMode = iota
	// ModeAxis is a linear axis: raw integer normalized via
	// scale/offset/clamp/deadzone.
	ModeAxis
	// ModeHatswitch is a directional bit group producing a derived pad
	// position plus a pressed button.
	ModeHatswitch
	// ModeAccel and ModeGyro address 16-bit signed orientation fields that
	// are stored raw.
	ModeAccel
	ModeGyro
	// ModeTouchpad is a bit-aligned unsigned coordinate, possibly with a
	// sub-byte bit offset, scaled into the symmetric axis range.
	ModeTouchpad
)

// AxisID names a target field of controller.State.
type AxisID int

const (
	AxisStickX AxisID = iota
	AxisStickY
	AxisRPadX
	AxisRPadY
	AxisLPadX
	AxisLTrig
	AxisRTrig
	AxisGPitch
	AxisGYaw
	AxisGRoll
	AxisQ1
	AxisQ2
	AxisQ3
	AxisCPadX
	AxisCPadY

	AxisIDCount
)

// AxisData declares the physical encoding and normalization of one axis.
type AxisData struct {
	Mode       AxisMode
	ByteOffset int
	BitOffset  int
	SizeBits   int

	// ModeAxis: value = raw*Scale + Offset, zeroed inside Deadzone,
	// then mapped onto the target range against ClampMax raw units.
	// ModeTouchpad: ClampMax is the raw full-scale; negative Scale inverts.
	Scale    float64
	Offset   float64
	ClampMax int
	Deadzone int

	// Button is set while the axis is deflected outside its deadzone
	// (ModeAxis) or while the hat is not neutral (ModeHatswitch).
	Button controller.Buttons
}

const (
	// MaxButtons is the fixed size of the physical button table.
	MaxButtons = 32
	// ButtonNone is the sentinel logical bit index for unused slots. It is
	// beyond any representable bit of the 32-bit button set, so a slot
	// mapped to it can never read as pressed.
	ButtonNone = 64
)

// ButtonData declares the packed button bitfield and its physical-bit to
// logical-bit mapping. Every entry of Map must be filled; unused slots map
// to ButtonNone.
type ButtonData struct {
	Enabled    bool
	ByteOffset int
	BitOffset  int
	Count      int
	Map        [MaxButtons]uint8
}

// Decoder is an immutable field-layout table for one hardware revision.
type Decoder struct {
	Axes       [AxisIDCount]AxisData
	Buttons    ButtonData
	PacketSize int
}

// Decode normalizes one raw packet into a new state snapshot based on prev.
// It returns ok=false for short or malformed packets, in which case the
// returned state is meaningless and the frame must be dropped.
func (d *Decoder) Decode(prev controller.State, packet []byte) (controller.State, bool) {
	if len(packet) < d.PacketSize {
		return controller.State{}, false
	}

	next := prev

	// Gate buttons reflect only the current packet.
	for id := AxisID(0); id < AxisIDCount; id++ {
		if a := &d.Axes[id]; a.Mode != ModeNone && a.Button != 0 {
			next.Buttons &^= a.Button
		}
	}

	for id := AxisID(0); id < AxisIDCount; id++ {
		a := &d.Axes[id]
		if a.Mode == ModeNone {
			continue
		}
		raw, ok := readBits(packet, a.ByteOffset, a.BitOffset, a.SizeBits)
		if !ok {
			return controller.State{}, false
		}
		switch a.Mode {
		case ModeAxis:
			d.decodeAxis(&next, id, a, raw)
		case ModeHatswitch:
			decodeHatswitch(&next, a, raw)
		case ModeAccel, ModeGyro:
			setAxisValue(&next, id, int(int16(raw)))
		case ModeTouchpad:
			decodeTouch(&next, id, a, raw)
		}
	}

	if d.Buttons.Enabled {
		raw, ok := readBits(packet, d.Buttons.ByteOffset, d.Buttons.BitOffset, d.Buttons.Count)
		if !ok {
			return controller.State{}, false
		}
		var pressed controller.Buttons
		for i := 0; i < d.Buttons.Count && i < MaxButtons; i++ {
			if raw&(1<<i) == 0 {
				continue
			}
			if idx := d.Buttons.Map[i]; idx < 32 {
				pressed |= 1 << idx
			}
		}
		next.Buttons = next.Buttons&gateMask(d) | pressed
	}

	return next, true
}

// gateMask returns the button bits owned by axis gates and hatswitches, which
// the packed bitfield must not overwrite.
func gateMask(d *Decoder) controller.Buttons {
	var m controller.Buttons
	for id := AxisID(0); id < AxisIDCount; id++ {
		m |= d.Axes[id].Button
	}
	return m
}

func (d *Decoder) decodeAxis(s *controller.State, id AxisID, a *AxisData, raw uint32) {
	centered := float64(raw)*a.Scale + a.Offset
	if math.Abs(centered) <= float64(a.Deadzone) {
		centered = 0
	} else if a.Button != 0 {
		s.Buttons |= a.Button
	}

	span := axisSpan(id)
	value := centered * span / float64(a.ClampMax)
	setAxisValue(s, id, int(value))
}

func decodeHatswitch(s *controller.State, a *AxisData, raw uint32) {
	// 0 = north, clockwise through 7 = north-west; anything above is neutral.
	var x, y int
	switch raw {
	case 0:
		y = controller.AxisMax
	case 1:
		x, y = controller.AxisMax, controller.AxisMax
	case 2:
		x = controller.AxisMax
	case 3:
		x, y = controller.AxisMax, controller.AxisMin
	case 4:
		y = controller.AxisMin
	case 5:
		x, y = controller.AxisMin, controller.AxisMin
	case 6:
		x = controller.AxisMin
	case 7:
		x, y = controller.AxisMin, controller.AxisMax
	}
	s.LPadX = int16(x)
	s.LPadY = int16(y)
	if raw <= 7 {
		s.Buttons |= a.Button
	}
}

func decodeTouch(s *controller.State, id AxisID, a *AxisData, raw uint32) {
	if a.ClampMax <= 0 {
		return
	}
	norm := float64(raw) / float64(a.ClampMax)
	value := float64(controller.AxisMin) + norm*2*float64(controller.AxisMax)
	if a.Scale < 0 {
		value = -value
	}
	setAxisValue(s, id, int(value))
}

func setAxisValue(s *controller.State, id AxisID, v int) {
	switch id {
	case AxisStickX:
		s.StickX = clampAxis(v)
	case AxisStickY:
		s.StickY = clampAxis(v)
	case AxisRPadX:
		s.RPadX = clampAxis(v)
	case AxisRPadY:
		s.RPadY = clampAxis(v)
	case AxisLPadX:
		s.LPadX = clampAxis(v)
	case AxisLTrig:
		s.LTrig = clampTrigger(v)
	case AxisRTrig:
		s.RTrig = clampTrigger(v)
	case AxisGPitch:
		s.GPitch = clampAxis(v)
	case AxisGYaw:
		s.GYaw = clampAxis(v)
	case AxisGRoll:
		s.GRoll = clampAxis(v)
	case AxisQ1:
		s.Q1 = clampAxis(v)
	case AxisQ2:
		s.Q2 = clampAxis(v)
	case AxisQ3:
		s.Q3 = clampAxis(v)
	case AxisCPadX:
		s.CPadX = clampAxis(v)
	case AxisCPadY:
		s.CPadY = clampAxis(v)
	}
}

// axisSpan returns the target range in normalized units per ClampMax raw
// units: symmetric sticks span the full axis range, triggers their 8-bit one.
func axisSpan(id AxisID) float64 {
	switch id {
	case AxisLTrig, AxisRTrig:
		return float64(controller.TriggerMax)
	default:
		return 2 * float64(controller.AxisMax)
	}
}

func clampAxis(v int) int16 {
	if v > controller.AxisMax {
		return controller.AxisMax
	}
	if v < controller.AxisMin {
		return controller.AxisMin
	}
	return int16(v)
}

func clampTrigger(v int) uint8 {
	if v > controller.TriggerMax {
		return controller.TriggerMax
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}

// readBits extracts size bits starting at byteOff/bitOff, little-endian.
func readBits(p []byte, byteOff, bitOff, size int) (uint32, bool) {
	if size <= 0 || size > 32 || bitOff < 0 || bitOff > 7 {
		return 0, false
	}
	need := (bitOff + size + 7) / 8
	if byteOff < 0 || byteOff+need > len(p) {
		return 0, false
	}
	var v uint64
	for i := 0; i < need; i++ {
		v |= uint64(p[byteOff+i]) << (8 * i)
	}
	v >>= uint(bitOff)
	return uint32(v & (1<<uint(size) - 1)), true
}
