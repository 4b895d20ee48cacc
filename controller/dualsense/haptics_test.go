package dualsense

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpad/dsense/controller"
	"github.com/openpad/dsense/internal/loop"
)

type outputRecorder struct {
	outputs []Output
}

func (r *outputRecorder) schedule(channel string, out Output) {
	r.outputs = append(r.outputs, out)
}

func newTestScheduler(t *testing.T) (*feedbackScheduler, *outputRecorder, *loop.Loop) {
	t.Helper()
	lp, err := loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = lp.Close() })

	rec := &outputRecorder{}
	return newFeedbackScheduler(lp, rec.schedule), rec, lp
}

// pollFor runs the loop for roughly d so scheduled timers get a chance to
// fire.
func pollFor(t *testing.T, lp *loop.Loop, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		require.NoError(t, lp.Poll(5*time.Millisecond))
	}
}

func TestFeedbackMotorScaling(t *testing.T) {
	tests := []struct {
		name        string
		cmd         controller.FeedbackCommand
		left, right uint8
	}{
		{
			"both at half amplitude",
			controller.FeedbackCommand{Position: controller.HapticBoth, Amplitude: 0x4000},
			0x40, 0x80,
		},
		{
			"left only at full amplitude",
			controller.FeedbackCommand{Position: controller.HapticLeft, Amplitude: 0x8000},
			0x80, 0,
		},
		{
			"right saturates at full scale",
			controller.FeedbackCommand{Position: controller.HapticRight, Amplitude: 0x8000},
			0, 0xFF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rec, _ := newTestScheduler(t)
			s.Feedback(tt.cmd)

			require.Len(t, rec.outputs, 1)
			out := rec.outputs[0]
			assert.Equal(t, tt.left, out.MotorLeft)
			assert.Equal(t, tt.right, out.MotorRight)
			assert.EqualValues(t, OpModeDS5, out.OperatingMode)
			assert.EqualValues(t, EffectEnableHaptics, out.PhysicalEffects)
		})
	}
}

func TestFeedbackMinimumDurationClear(t *testing.T) {
	s, rec, lp := newTestScheduler(t)

	// Period and count so short the 20ms floor applies.
	s.Feedback(controller.FeedbackCommand{Position: controller.HapticBoth, Amplitude: 0x4000, Period: 1, Count: 1})
	require.Len(t, rec.outputs, 1)

	pollFor(t, lp, 50*time.Millisecond)
	require.Len(t, rec.outputs, 2)
	assert.Zero(t, rec.outputs[1].MotorLeft)
	assert.Zero(t, rec.outputs[1].MotorRight)
}

func TestFeedbackOverlapCancelsEarlierClear(t *testing.T) {
	s, rec, lp := newTestScheduler(t)

	// First effect would clear after 20ms; the second extends to ~80ms.
	s.Feedback(controller.FeedbackCommand{Position: controller.HapticBoth, Amplitude: 0x4000, Period: 1, Count: 1})
	s.Feedback(controller.FeedbackCommand{Position: controller.HapticBoth, Amplitude: 0x4000, Period: 1311, Count: 4})
	require.Len(t, rec.outputs, 2)

	// Past the first deadline the motors are still running.
	pollFor(t, lp, 40*time.Millisecond)
	require.Len(t, rec.outputs, 2)
	assert.NotZero(t, rec.outputs[1].MotorRight)

	// Past the second deadline exactly one clear arrives.
	pollFor(t, lp, 80*time.Millisecond)
	require.Len(t, rec.outputs, 3)
	assert.Zero(t, rec.outputs[2].MotorLeft)
	assert.Zero(t, rec.outputs[2].MotorRight)
}
