package dualsense

import (
	"time"

	"github.com/openpad/dsense/controller"
	"github.com/openpad/dsense/internal/loop"
)

// minEffectDuration is the floor applied to every haptic effect so that very
// short commands still produce a perceptible rumble.
const minEffectDuration = 20 * time.Millisecond

// feedbackScheduler turns feedback commands into motor output reports and
// schedules the matching clear. At most one clear timer is live at a time;
// a new effect cancels the previous clear so overlapping effects merge into
// one longer rumble.
type feedbackScheduler struct {
	loop     *loop.Loop
	schedule func(channel string, out Output)
	output   Output
	clear    *loop.Timer
}

func newFeedbackScheduler(lp *loop.Loop, schedule func(string, Output)) *feedbackScheduler {
	return &feedbackScheduler{
		loop:     lp,
		schedule: schedule,
		output: Output{
			OperatingMode:   OpModeDS5,
			PhysicalEffects: EffectEnableHaptics,
		},
	}
}

func (s *feedbackScheduler) Feedback(cmd controller.FeedbackCommand) {
	norm := float64(cmd.Amplitude) / 0x8000

	// The right motor is the lighter one and takes the full-scale value; the
	// left motor is heavier and runs at half amplitude to feel comparable.
	full := int(norm * 0x100)
	if full > 0xFF {
		full = 0xFF
	}
	half := uint8(norm * 0x80)

	switch cmd.Position {
	case controller.HapticLeft:
		s.output.MotorLeft = half
	case controller.HapticRight:
		s.output.MotorRight = uint8(full)
	case controller.HapticBoth:
		s.output.MotorLeft = half
		s.output.MotorRight = uint8(full)
	}
	s.schedule("feedback", s.output)

	duration := time.Duration(float64(cmd.Period)*float64(cmd.Count)/0x10000*float64(time.Second))
	if duration < minEffectDuration {
		duration = minEffectDuration
	}

	if s.clear != nil {
		s.clear.Cancel()
	}
	s.clear = s.loop.Schedule(duration, s.clearEffect)
}

func (s *feedbackScheduler) clearEffect() {
	s.output.MotorLeft = 0
	s.output.MotorRight = 0
	s.schedule("feedback", s.output)
	s.clear = nil
}
