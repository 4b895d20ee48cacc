package controller

// Canonical axis range shared by every input path. Sticks, pads and touch
// coordinates are normalized into [AxisMin, AxisMax]; triggers into
// [0, TriggerMax].
const (
	AxisMax    = 0x7FFF
	AxisMin    = -AxisMax
	TriggerMax = 0xFF
)

// Buttons is a bitset of logical controller buttons.
type Buttons uint32

const (
	ButtonA Buttons = 1 << iota
	ButtonB
	ButtonX
	ButtonY
	ButtonLB
	ButtonRB
	ButtonBack
	ButtonStart
	ButtonC
	ButtonStickPress
	ButtonRPad
	ButtonLPad
	ButtonLPadTouch
	ButtonRPadTouch
	ButtonCPadPress
	ButtonCPadTouch
)

// State is one immutable snapshot of controller input. It is a plain value:
// every update produces a new State, and consumers always receive
// (previous, current) pairs. A State is never mutated after it has been
// published to a handler.
type State struct {
	Buttons Buttons

	StickX, StickY int16
	RPadX, RPadY   int16
	LPadX, LPadY   int16

	LTrig, RTrig uint8

	GPitch, GYaw, GRoll int16
	Q1, Q2, Q3          int16

	CPadX, CPadY int16
}

// WithButtons returns a copy of s with the button bitset replaced.
func (s State) WithButtons(b Buttons) State {
	s.Buttons = b
	return s
}

// Pressed reports whether all bits in b are set.
func (s State) Pressed(b Buttons) bool {
	return s.Buttons&b == b
}
