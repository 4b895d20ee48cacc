package dualsense

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/openpad/dsense/controller"
	"github.com/openpad/dsense/internal/evdev"
	"github.com/openpad/dsense/internal/loop"
)

// InputDevice is the slice of an evdev device the fusion adapter needs.
type InputDevice interface {
	ReadEvents() ([]evdev.Event, error)
	Grab() error
	Ungrab() error
	Close() error
	Fd() int
	Path() string
}

// DeviceTriple is the set of sibling kernel devices one controller exposes:
// the main gamepad node, the motion sensor node and the touchpad node.
type DeviceTriple struct {
	Main     InputDevice
	Motion   InputDevice
	Touchpad InputDevice
}

// EvdevController fuses the event streams of the three kernel devices into
// one canonical state. Used for wireless controllers, where the raw USB
// report is not reachable and the kernel driver splits the unit into
// separate input devices.
type EvdevController struct {
	id      string
	logger  *slog.Logger
	loop    *loop.Loop
	devs    DeviceTriple
	state   controller.State
	handler controller.InputHandler
	pending map[string]*Output
	haptics *feedbackScheduler

	onRemove func()
	removed  bool
}

var _ controller.Controller = (*EvdevController)(nil)

// NewEvdevController grabs all three devices exclusively and, when a loop is
// given, registers their descriptors for readiness callbacks. On failure
// every already-acquired grab is released.
func NewEvdevController(id string, devs DeviceTriple, lp *loop.Loop, logger *slog.Logger) (*EvdevController, error) {
	if devs.Main == nil || devs.Motion == nil || devs.Touchpad == nil {
		return nil, fmt.Errorf("incomplete device triple")
	}

	c := &EvdevController{
		id:      id,
		logger:  logger,
		loop:    lp,
		devs:    devs,
		pending: make(map[string]*Output),
	}
	c.haptics = newFeedbackScheduler(lp, c.scheduleOutput)

	var grabbed []InputDevice
	for _, d := range []InputDevice{devs.Main, devs.Motion, devs.Touchpad} {
		if err := d.Grab(); err != nil {
			for _, g := range grabbed {
				_ = g.Ungrab()
			}
			return nil, fmt.Errorf("grab %s: %w", d.Path(), err)
		}
		grabbed = append(grabbed, d)
	}

	if lp != nil {
		registrations := []struct {
			fd int
			cb func()
		}{
			{devs.Main.Fd(), c.mainInput},
			{devs.Motion.Fd(), c.motionInput},
			{devs.Touchpad.Fd(), c.touchInput},
		}
		for _, r := range registrations {
			if err := lp.Register(r.fd, r.cb); err != nil {
				c.Close()
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *EvdevController) ID() string   { return c.id }
func (c *EvdevController) Type() string { return "ds5evdev" }

func (c *EvdevController) SetInputHandler(h controller.InputHandler) {
	c.handler = h
}

// SetRemoveHandler registers the callback invoked once when the kernel
// devices disappear. Runs on the loop goroutine; the handler is expected to
// close the controller.
func (c *EvdevController) SetRemoveHandler(h func()) {
	c.onRemove = h
}

func (c *EvdevController) Feedback(cmd controller.FeedbackCommand) {
	c.haptics.Feedback(cmd)
}

func (c *EvdevController) Configure(opts controller.Options) {
	// The kernel driver owns the lightbar on this path; nothing to send.
	c.logger.Debug("configure ignored on evdev path", "controller", c.id)
}

// Flush drops pending outputs: there is no raw output transport behind the
// kernel devices.
func (c *EvdevController) Flush() {
	for ch := range c.pending {
		delete(c.pending, ch)
		c.logger.Debug("output dropped, no transport", "controller", c.id, "channel", ch)
	}
}

func (c *EvdevController) Close() error {
	for _, d := range []InputDevice{c.devs.Main, c.devs.Motion, c.devs.Touchpad} {
		if c.loop != nil {
			c.loop.Unregister(d.Fd())
		}
		if err := d.Ungrab(); err != nil {
			c.logger.Debug("ungrab failed", "device", d.Path(), "error", err)
		}
		if err := d.Close(); err != nil {
			c.logger.Debug("close failed", "device", d.Path(), "error", err)
		}
	}
	return nil
}

func (c *EvdevController) scheduleOutput(channel string, out Output) {
	c.pending[channel] = &out
}

// readFailed distinguishes transient read errors (swallowed, no emission)
// from device removal. A removed device ends the whole adapter: leaving its
// fd registered would have level-triggered epoll redeliver the dead fd on
// every poll.
func (c *EvdevController) readFailed(d InputDevice, err error) {
	if !isTerminalReadError(err) {
		c.logger.Warn("read failed", "device", d.Path(), "error", err)
		return
	}
	if c.removed {
		return
	}
	c.removed = true
	c.logger.Info("device removed", "device", d.Path(), "error", err)
	if c.onRemove != nil {
		c.onRemove()
	} else {
		_ = c.Close()
	}
}

func isTerminalReadError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EBADF)
}

// publish folds one batch of events into the state and emits a single
// transition for the whole batch.
func (c *EvdevController) publish(next controller.State) {
	if next == c.state {
		return
	}
	old := c.state
	c.state = next
	if c.handler != nil {
		c.handler(c, old, next)
	}
}

func (c *EvdevController) mainInput() {
	events, err := c.devs.Main.ReadEvents()
	if err != nil {
		c.readFailed(c.devs.Main, err)
		return
	}
	next := c.state
	for _, ev := range events {
		switch ev.Type {
		case evdev.EvAbs:
			if spec, ok := mainAxisMap[ev.Code]; ok {
				spec.set(&next, normalizeAxis(ev.Value, spec))
			}
		case evdev.EvKey:
			if b, ok := mainButtonMap[ev.Code]; ok {
				if ev.Value != 0 {
					next.Buttons |= b
				} else {
					next.Buttons &^= b
				}
			}
		}
	}
	c.publish(next)
}

func (c *EvdevController) motionInput() {
	events, err := c.devs.Motion.ReadEvents()
	if err != nil {
		c.readFailed(c.devs.Motion, err)
		return
	}
	next := c.state
	for _, ev := range events {
		if ev.Type != evdev.EvAbs {
			continue
		}
		switch ev.Code {
		case evdev.AbsRX:
			next.GPitch = gyroValue(ev.Value)
		case evdev.AbsRY:
			next.GYaw = gyroValue(ev.Value)
		case evdev.AbsRZ:
			next.GRoll = gyroValue(ev.Value)
		}
		// AbsX/Y/Z carry accelerometer data with kernel-specific scaling;
		// not mapped.
	}
	c.publish(next)
}

func (c *EvdevController) touchInput() {
	events, err := c.devs.Touchpad.ReadEvents()
	if err != nil {
		c.readFailed(c.devs.Touchpad, err)
		return
	}
	next := c.state
	for _, ev := range events {
		switch ev.Type {
		case evdev.EvAbs:
			switch ev.Code {
			case evdev.AbsMtPositionX:
				next.CPadX = clampAxis(controller.AxisMin + float64(ev.Value)*touchFactorX)
			case evdev.AbsMtPositionY:
				next.CPadY = clampAxis(controller.AxisMax - float64(ev.Value)*touchFactorY)
			}
		case evdev.EvKey:
			switch ev.Code {
			case evdev.BtnLeft:
				if ev.Value != 0 {
					next.Buttons |= controller.ButtonCPadPress
				} else {
					next.Buttons &^= controller.ButtonCPadPress
				}
			case evdev.BtnTouch:
				if ev.Value != 0 {
					next.Buttons |= controller.ButtonCPadTouch
				} else {
					next.Buttons &^= controller.ButtonCPadTouch
					next.CPadX = 0
					next.CPadY = 0
				}
			}
		}
	}
	c.publish(next)
}

// Touch coordinate scaling from the kernel's raw touchpad resolution to the
// canonical axis range.
const (
	touchFactorX = float64(controller.AxisMax) / 940
	touchFactorY = float64(controller.AxisMax) / 470
)

func gyroValue(v int32) int16 {
	return int16(float64(v) * 0.01)
}

func clampAxis(v float64) int16 {
	if v > controller.AxisMax {
		v = controller.AxisMax
	}
	if v < controller.AxisMin {
		v = controller.AxisMin
	}
	return int16(v)
}

// axisSpec describes one main-device axis: where it lands in the state, the
// raw range the kernel reports, and the deadzone around its center.
type axisSpec struct {
	set      func(*controller.State, int16)
	min, max int32
	deadzone int32
	trigger  bool
}

var mainAxisMap = map[uint16]axisSpec{
	evdev.AbsX:     {set: func(s *controller.State, v int16) { s.StickX = v }, min: 0, max: 255, deadzone: 4},
	evdev.AbsY:     {set: func(s *controller.State, v int16) { s.StickY = v }, min: 255, max: 0, deadzone: 4},
	evdev.AbsRX:    {set: func(s *controller.State, v int16) { s.RPadX = v }, min: 0, max: 255, deadzone: 4},
	evdev.AbsRY:    {set: func(s *controller.State, v int16) { s.RPadY = v }, min: 255, max: 0, deadzone: 8},
	evdev.AbsZ:     {set: func(s *controller.State, v int16) { s.LTrig = uint8(v) }, min: 0, max: 255, trigger: true},
	evdev.AbsRZ:    {set: func(s *controller.State, v int16) { s.RTrig = uint8(v) }, min: 0, max: 255, trigger: true},
	evdev.AbsHat0X: {set: func(s *controller.State, v int16) { s.LPadX = v }, min: -1, max: 1},
	evdev.AbsHat0Y: {set: func(s *controller.State, v int16) { s.LPadY = v }, min: 1, max: -1},
}

var mainButtonMap = map[uint16]controller.Buttons{
	evdev.BtnSouth:  controller.ButtonA,
	evdev.BtnEast:   controller.ButtonB,
	evdev.BtnNorth:  controller.ButtonY,
	evdev.BtnWest:   controller.ButtonX,
	evdev.BtnTL:     controller.ButtonLB,
	evdev.BtnTR:     controller.ButtonRB,
	evdev.BtnSelect: controller.ButtonBack,
	evdev.BtnStart:  controller.ButtonStart,
	evdev.BtnMode:   controller.ButtonC,
	evdev.BtnThumbL: controller.ButtonStickPress,
	evdev.BtnThumbR: controller.ButtonRPad,
}

// normalizeAxis maps a raw kernel value to the canonical range described by
// the spec, zeroing values inside the deadzone around the raw center.
func normalizeAxis(v int32, spec axisSpec) int16 {
	if spec.trigger {
		if v < 0 {
			v = 0
		}
		if v > spec.max {
			v = spec.max
		}
		return int16(v)
	}
	if spec.deadzone > 0 {
		center := (spec.min + spec.max) / 2
		d := v - center
		if d < 0 {
			d = -d
		}
		if d <= spec.deadzone {
			return 0
		}
	}
	pos := float64(v-spec.min) / float64(spec.max-spec.min)
	scaled := float64(controller.AxisMin) + pos*2*float64(controller.AxisMax)
	if scaled > controller.AxisMax {
		scaled = controller.AxisMax
	}
	if scaled < controller.AxisMin {
		scaled = controller.AxisMin
	}
	return int16(scaled)
}
