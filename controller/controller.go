// Package controller defines the canonical controller-state model and the
// contract between input adapters and the downstream mapping engine. Both the
// HID report path and the evdev fusion path produce the same State snapshots
// and expose the same Controller surface.
package controller

// HapticPosition selects which motor(s) a feedback command drives.
type HapticPosition int

const (
	HapticLeft HapticPosition = iota
	HapticRight
	HapticBoth
)

// FeedbackCommand is an abstract haptic request. Amplitude is in
// [0, 0x8000); Period and Count together determine the effect duration.
type FeedbackCommand struct {
	Position  HapticPosition
	Amplitude uint16
	Period    uint16
	Count     uint16
}

// Options carries the recognized per-controller configuration.
// Icon optionally names a controller icon whose numeric suffix selects the
// lightbar color; LEDLevel is a brightness percentage (0-100).
type Options struct {
	Icon     string
	LEDLevel int
}

// DefaultOptions returns the configuration applied when none is given.
func DefaultOptions() Options {
	return Options{LEDLevel: 100}
}

// InputHandler receives state-change pairs. old is the snapshot before the
// processed batch, new the snapshot after; the two are never the same value.
// Handlers run on the controller's event loop and must not block.
type InputHandler func(c Controller, old, new State)

// Controller is the consumer-facing surface shared by all input adapters.
type Controller interface {
	// ID returns the stable per-instance identifier (e.g. "ds5", "ds5:1").
	ID() string
	// Type names the input path, e.g. "ds5" or "ds5evdev".
	Type() string
	// SetInputHandler registers the state-change consumer.
	SetInputHandler(h InputHandler)
	// Feedback runs a haptic effect.
	Feedback(cmd FeedbackCommand)
	// Configure applies per-controller options such as the lightbar color.
	Configure(opts Options)
	// Flush writes all pending outputs to the device.
	Flush()
	// Close releases the underlying device handles.
	Close() error
}
