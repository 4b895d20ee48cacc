package dualsense

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/openpad/dsense/controller"
	"github.com/openpad/dsense/internal/evdev"
)

type fakeDevice struct {
	path    string
	fd      int
	queue   [][]evdev.Event
	readErr error
	grabbed bool
	closed  bool
	grabErr error
}

func (d *fakeDevice) ReadEvents() ([]evdev.Event, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	if len(d.queue) == 0 {
		return nil, nil
	}
	batch := d.queue[0]
	d.queue = d.queue[1:]
	return batch, nil
}

func (d *fakeDevice) Grab() error {
	if d.grabErr != nil {
		return d.grabErr
	}
	d.grabbed = true
	return nil
}

func (d *fakeDevice) Ungrab() error {
	d.grabbed = false
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDevice) Fd() int      { return d.fd }
func (d *fakeDevice) Path() string { return d.path }

func (d *fakeDevice) push(events ...evdev.Event) {
	d.queue = append(d.queue, events)
}

func newTestTriple() (DeviceTriple, *fakeDevice, *fakeDevice, *fakeDevice) {
	main := &fakeDevice{path: "/dev/input/event4", fd: 4}
	motion := &fakeDevice{path: "/dev/input/event5", fd: 5}
	touch := &fakeDevice{path: "/dev/input/event6", fd: 6}
	return DeviceTriple{Main: main, Motion: motion, Touchpad: touch}, main, motion, touch
}

func newFusionController(t *testing.T) (*EvdevController, *fakeDevice, *fakeDevice, *fakeDevice) {
	t.Helper()
	triple, main, motion, touch := newTestTriple()
	c, err := NewEvdevController("ds5", triple, nil, testLogger())
	require.NoError(t, err)
	return c, main, motion, touch
}

func TestNewEvdevControllerRequiresAllDevices(t *testing.T) {
	triple, _, _, _ := newTestTriple()
	triple.Motion = nil
	_, err := NewEvdevController("ds5", triple, nil, testLogger())
	assert.Error(t, err)
}

func TestNewEvdevControllerReleasesGrabsOnFailure(t *testing.T) {
	triple, main, motion, touch := newTestTriple()
	touch.grabErr = errors.New("busy")

	_, err := NewEvdevController("ds5", triple, nil, testLogger())
	require.Error(t, err)
	assert.False(t, main.grabbed)
	assert.False(t, motion.grabbed)
	assert.False(t, touch.grabbed)
}

func TestMainInputBatchEmitsOnce(t *testing.T) {
	c, main, _, _ := newFusionController(t)

	calls := 0
	var last controller.State
	c.SetInputHandler(func(_ controller.Controller, _, next controller.State) {
		calls++
		last = next
	})

	main.push(
		evdev.Event{Type: evdev.EvKey, Code: evdev.BtnSouth, Value: 1},
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsX, Value: 255},
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsHat0Y, Value: -1},
	)
	c.mainInput()

	require.Equal(t, 1, calls)
	assert.True(t, last.Pressed(controller.ButtonA))
	assert.EqualValues(t, controller.AxisMax, last.StickX)
	assert.EqualValues(t, controller.AxisMax, last.LPadY)
}

func TestMainInputStickInversionAndDeadzone(t *testing.T) {
	c, main, _, _ := newFusionController(t)

	var last controller.State
	c.SetInputHandler(func(_ controller.Controller, _, next controller.State) { last = next })

	// Y is inverted: raw 0 is all the way up.
	main.push(evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsY, Value: 0})
	c.mainInput()
	assert.EqualValues(t, controller.AxisMax, last.StickY)

	// Values inside the deadzone around center read as zero.
	main.push(evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsY, Value: 129})
	c.mainInput()
	assert.Zero(t, last.StickY)
}

func TestMainInputTransientReadErrorKeepsState(t *testing.T) {
	c, main, motion, touch := newFusionController(t)

	calls := 0
	c.SetInputHandler(func(_ controller.Controller, _, _ controller.State) { calls++ })

	main.readErr = errors.New("interrupted")
	c.mainInput()
	assert.Zero(t, calls)

	// A transient error must not tear anything down.
	for _, d := range []*fakeDevice{main, motion, touch} {
		assert.True(t, d.grabbed)
		assert.False(t, d.closed)
	}
}

func TestDeviceRemovalClosesAdapter(t *testing.T) {
	c, main, motion, touch := newFusionController(t)

	removals := 0
	c.SetRemoveHandler(func() {
		removals++
		require.NoError(t, c.Close())
	})

	main.readErr = unix.ENODEV
	c.mainInput()

	require.Equal(t, 1, removals)
	for _, d := range []*fakeDevice{main, motion, touch} {
		assert.False(t, d.grabbed)
		assert.True(t, d.closed)
	}

	// The dead fd keeps being readable under level-triggered polling; the
	// removal must still fire only once.
	c.mainInput()
	c.touchInput()
	assert.Equal(t, 1, removals)
}

func TestDeviceRemovalWithoutHandlerStillCloses(t *testing.T) {
	c, _, motion, _ := newFusionController(t)

	motion.readErr = io.EOF
	c.motionInput()

	assert.False(t, motion.grabbed)
	assert.True(t, motion.closed)
}

func TestMotionInputMapsGyro(t *testing.T) {
	c, _, motion, _ := newFusionController(t)

	var last controller.State
	c.SetInputHandler(func(_ controller.Controller, _, next controller.State) { last = next })

	motion.push(
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsRX, Value: 1000},
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsRY, Value: -2000},
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsRZ, Value: 3000},
	)
	c.motionInput()

	assert.EqualValues(t, 10, last.GPitch)
	assert.EqualValues(t, -20, last.GYaw)
	assert.EqualValues(t, 30, last.GRoll)
}

func TestMotionInputIgnoresAccelerometerCodes(t *testing.T) {
	c, _, motion, _ := newFusionController(t)

	calls := 0
	c.SetInputHandler(func(_ controller.Controller, _, _ controller.State) { calls++ })

	motion.push(
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsX, Value: 5000},
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsY, Value: 5000},
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsZ, Value: 5000},
	)
	c.motionInput()
	assert.Zero(t, calls)
}

func TestTouchInputReleaseResetsPosition(t *testing.T) {
	c, _, _, touch := newFusionController(t)

	var last controller.State
	c.SetInputHandler(func(_ controller.Controller, _, next controller.State) { last = next })

	touch.push(
		evdev.Event{Type: evdev.EvKey, Code: evdev.BtnTouch, Value: 1},
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsMtPositionX, Value: 940},
		evdev.Event{Type: evdev.EvAbs, Code: evdev.AbsMtPositionY, Value: 0},
	)
	c.touchInput()

	assert.True(t, last.Pressed(controller.ButtonCPadTouch))
	assert.InDelta(t, 0, last.CPadX, 1)
	assert.EqualValues(t, controller.AxisMax, last.CPadY)

	touch.push(evdev.Event{Type: evdev.EvKey, Code: evdev.BtnTouch, Value: 0})
	c.touchInput()

	assert.False(t, last.Pressed(controller.ButtonCPadTouch))
	assert.Zero(t, last.CPadX)
	assert.Zero(t, last.CPadY)
}

func TestTouchInputClickButton(t *testing.T) {
	c, _, _, touch := newFusionController(t)

	var last controller.State
	c.SetInputHandler(func(_ controller.Controller, _, next controller.State) { last = next })

	touch.push(evdev.Event{Type: evdev.EvKey, Code: evdev.BtnLeft, Value: 1})
	c.touchInput()
	assert.True(t, last.Pressed(controller.ButtonCPadPress))

	touch.push(evdev.Event{Type: evdev.EvKey, Code: evdev.BtnLeft, Value: 0})
	c.touchInput()
	assert.False(t, last.Pressed(controller.ButtonCPadPress))
}

// The three devices deliver independently; the final state must not depend
// on the order their batches arrive in.
func TestFusionOrderIndependence(t *testing.T) {
	mainBatch := []evdev.Event{
		{Type: evdev.EvKey, Code: evdev.BtnEast, Value: 1},
		{Type: evdev.EvAbs, Code: evdev.AbsZ, Value: 200},
	}
	motionBatch := []evdev.Event{
		{Type: evdev.EvAbs, Code: evdev.AbsRX, Value: 1500},
	}
	touchBatch := []evdev.Event{
		{Type: evdev.EvKey, Code: evdev.BtnTouch, Value: 1},
		{Type: evdev.EvAbs, Code: evdev.AbsMtPositionX, Value: 470},
	}

	run := func(order []int) controller.State {
		c, main, motion, touch := newFusionController(t)
		var last controller.State
		c.SetInputHandler(func(_ controller.Controller, _, next controller.State) { last = next })

		for _, step := range order {
			switch step {
			case 0:
				main.push(mainBatch...)
				c.mainInput()
			case 1:
				motion.push(motionBatch...)
				c.motionInput()
			case 2:
				touch.push(touchBatch...)
				c.touchInput()
			}
		}
		return last
	}

	first := run([]int{0, 1, 2})
	for _, order := range [][]int{{2, 1, 0}, {1, 0, 2}, {2, 0, 1}} {
		assert.Equal(t, first, run(order))
	}
}

func TestCloseReleasesDevices(t *testing.T) {
	c, main, motion, touch := newFusionController(t)
	require.NoError(t, c.Close())

	for _, d := range []*fakeDevice{main, motion, touch} {
		assert.False(t, d.grabbed)
		assert.True(t, d.closed)
	}
}
