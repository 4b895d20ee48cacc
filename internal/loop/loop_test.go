package loop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/openpad/dsense/internal/loop"
)

func newLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l, err := loop.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// pollUntil steps the loop until cond holds or the deadline passes.
func pollUntil(t *testing.T, l *loop.Loop, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		require.False(t, time.Now().After(deadline), "condition not met within %v", d)
		require.NoError(t, l.Poll(5*time.Millisecond))
	}
}

func TestScheduleFires(t *testing.T) {
	l := newLoop(t)

	fired := false
	l.Schedule(10*time.Millisecond, func() { fired = true })

	require.NoError(t, l.Poll(time.Millisecond))
	assert.False(t, fired, "timer fired before its deadline")

	pollUntil(t, l, time.Second, func() bool { return fired })
}

func TestCancelPreventsFire(t *testing.T) {
	l := newLoop(t)

	fired := false
	timer := l.Schedule(5*time.Millisecond, func() { fired = true })
	timer.Cancel()

	deadline := time.Now().Add(30 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, l.Poll(5*time.Millisecond))
	}
	assert.False(t, fired, "cancelled timer fired")
}

func TestCancelAfterFireIsNoop(t *testing.T) {
	l := newLoop(t)

	fired := false
	timer := l.Schedule(time.Millisecond, func() { fired = true })
	pollUntil(t, l, time.Second, func() bool { return fired })

	// The handle is inert once the callback ran.
	timer.Cancel()
	timer.Cancel()
}

func TestCancelRemovesTimerFromSchedule(t *testing.T) {
	l := newLoop(t)

	fired := false
	cancelled := l.Schedule(5*time.Millisecond, func() { t.Fatal("cancelled timer fired") })
	l.Schedule(10*time.Millisecond, func() { fired = true })
	cancelled.Cancel()

	pollUntil(t, l, time.Second, func() bool { return fired })
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	l := newLoop(t)

	var order []int
	l.Schedule(20*time.Millisecond, func() { order = append(order, 2) })
	l.Schedule(5*time.Millisecond, func() { order = append(order, 1) })
	l.Schedule(40*time.Millisecond, func() { order = append(order, 3) })

	pollUntil(t, l, time.Second, func() bool { return len(order) == 3 })
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSubmitRunsOnLoop(t *testing.T) {
	l := newLoop(t)

	done := make(chan struct{})
	go l.Submit(func() { close(done) })

	pollUntil(t, l, time.Second, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})
}

func TestRegisterDispatchesReadable(t *testing.T) {
	l := newLoop(t)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	var got []byte
	require.NoError(t, l.Register(fds[0], func() {
		buf := make([]byte, 16)
		n, err := unix.Read(fds[0], buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}))

	_, err := unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	pollUntil(t, l, time.Second, func() bool { return len(got) > 0 })
	assert.Equal(t, "ping", string(got))

	l.Unregister(fds[0])
}
