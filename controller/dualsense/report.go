// Package dualsense implements the DualSense (DS5) controller: decoding the
// USB HID input report, fusing the three kernel evdev devices the controller
// exposes, haptic feedback scheduling and device acquisition.
package dualsense

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/openpad/dsense/controller"
	"github.com/openpad/dsense/internal/hidreport"
	"github.com/openpad/dsense/internal/log"
	"github.com/openpad/dsense/internal/loop"
)

// Transport is the write side of the acquired USB device. Writes block until
// the transfer completes.
type Transport interface {
	InterruptWrite(data []byte) error
	Close() error
}

// HIDController translates raw USB input reports into canonical state
// snapshots and writes pending output reports back through the transport.
type HIDController struct {
	id        string
	logger    *slog.Logger
	raw       log.RawLogger
	dec       *hidreport.Decoder
	state     controller.State
	handler   controller.InputHandler
	transport Transport
	pending   map[string]*Output
	haptics   *feedbackScheduler
}

var _ controller.Controller = (*HIDController)(nil)

func NewHIDController(id string, transport Transport, lp *loop.Loop, logger *slog.Logger, raw log.RawLogger) *HIDController {
	c := &HIDController{
		id:        id,
		logger:    logger,
		raw:       raw,
		dec:       newDecoder(),
		transport: transport,
		pending:   make(map[string]*Output),
	}
	c.haptics = newFeedbackScheduler(lp, c.scheduleOutput)
	return c
}

func (c *HIDController) ID() string   { return c.id }
func (c *HIDController) Type() string { return "ds5" }

func (c *HIDController) SetInputHandler(h controller.InputHandler) {
	c.handler = h
}

// Input processes one raw input report. Malformed or short frames are
// dropped without touching the current state.
func (c *HIDController) Input(packet []byte) {
	c.raw.Log(true, packet)

	next, ok := c.dec.Decode(c.state, packet)
	if !ok {
		return
	}

	// The declarative layout cannot express "gate on the sign bit of an
	// otherwise unrelated byte": bit 7 of the touch status byte set means
	// the pad is NOT touched.
	if packet[TouchStatusByte]>>7 != 0 {
		next.Buttons &^= controller.ButtonCPadTouch
	} else {
		next.Buttons |= controller.ButtonCPadTouch
	}

	if next == c.state {
		return
	}
	old := c.state
	c.state = next
	if c.handler != nil {
		c.handler(c, old, next)
	}
}

// Feedback runs a haptic effect through the scheduler.
func (c *HIDController) Feedback(cmd controller.FeedbackCommand) {
	c.haptics.Feedback(cmd)
}

// Configure selects the lightbar color from the icon's numeric suffix,
// scaled by the LED brightness level, and enqueues it.
func (c *HIDController) Configure(opts controller.Options) {
	color := lightbarColor(opts.Icon)
	level := float64(opts.LEDLevel) / 100

	out := Output{
		OperatingMode: OpModeDS5,
		LightEffects:  LightLightbarEnable,
		LightbarRed:   colorByte(color[0], level),
		LightbarGreen: colorByte(color[1], level),
		LightbarBlue:  colorByte(color[2], level),
	}
	c.scheduleOutput("lightbar", out)
}

// Flush writes every pending output once. Within one flush only the latest
// value per channel survives; channels address independent hardware
// subsystems, so no ordering between them is needed.
func (c *HIDController) Flush() {
	for ch, out := range c.pending {
		delete(c.pending, ch)
		data := out.MarshalReport()
		c.raw.Log(false, data)
		if err := c.transport.InterruptWrite(data); err != nil {
			c.logger.Warn("output write failed", "channel", ch, "error", err)
		}
	}
}

// Close releases the transport. Release failures are non-fatal.
func (c *HIDController) Close() error {
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("transport release failed", "error", err)
	}
	return nil
}

func (c *HIDController) scheduleOutput(channel string, out Output) {
	c.pending[channel] = &out
}

// lightbarColor resolves an icon reference like "controller-3.svg" to a
// palette entry, falling back to the default color when the reference is
// absent, unparseable or out of range.
func lightbarColor(icon string) [3]float64 {
	if icon == "" {
		return defaultLightbarColor
	}
	base := icon
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if i := strings.LastIndexByte(base, '-'); i >= 0 {
		base = base[i+1:]
	}
	idx, err := strconv.Atoi(base)
	if err != nil || idx < 0 || idx >= len(iconPalette) {
		return defaultLightbarColor
	}
	return iconPalette[idx]
}

func colorByte(channel, level float64) uint8 {
	v := int(channel * level * 255)
	if v > 255 {
		v = 255
	}
	if v < 0 {
		v = 0
	}
	return uint8(v)
}
