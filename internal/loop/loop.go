// Package loop implements the single-threaded cooperative event loop that
// drives one controller instance. Device read callbacks, scheduled timers and
// submitted tasks all execute on the goroutine that calls Run (or Poll), so
// controller code never needs locking. Handlers must not block; the only
// suspension point is the epoll wait inside Poll.
package loop

import (
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// maxPollWait bounds a single epoll wait so Run can notice context
// cancellation even when no fd or timer is active.
const maxPollWait = 200 * time.Millisecond

type Loop struct {
	epollFd int
	wakeFd  int
	fds     map[int]func()
	timers  timerHeap

	// pending holds tasks handed over from other goroutines via Submit.
	pendingMu sync.Mutex
	pending   []func()
}

func New() (*Loop, error) {
	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epollFd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	l := &Loop{
		epollFd: epollFd,
		wakeFd:  wakeFd,
		fds:     make(map[int]func()),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epollFd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epollFd)
		return nil, fmt.Errorf("epoll_ctl add wakeup: %w", err)
	}
	return l, nil
}

// Register adds a file descriptor to the loop. cb runs on the loop goroutine
// whenever fd becomes readable.
func (l *Loop) Register(fd int, cb func()) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(l.epollFd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	l.fds[fd] = cb
	return nil
}

// Unregister removes a file descriptor from the loop. Errors from the kernel
// are ignored; the fd may already be closed during teardown.
func (l *Loop) Unregister(fd int) {
	_ = unix.EpollCtl(l.epollFd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(l.fds, fd)
}

// Submit queues fn to run on the loop goroutine. Safe to call from any
// goroutine; this is the only entry point that is.
func (l *Loop) Submit(fn func()) {
	l.pendingMu.Lock()
	l.pending = append(l.pending, fn)
	l.pendingMu.Unlock()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(l.wakeFd, buf[:])
}

// Schedule arranges for fn to run on the loop goroutine after d has elapsed.
// Must be called on the loop goroutine (or before the loop starts).
func (l *Loop) Schedule(d time.Duration, fn func()) *Timer {
	t := &Timer{when: time.Now().Add(d), fn: fn, loop: l}
	heap.Push(&l.timers, t)
	return t
}

// Poll performs one loop iteration: waits up to timeout for fd readiness,
// dispatches read callbacks and submitted tasks, then fires due timers.
func (l *Loop) Poll(timeout time.Duration) error {
	wait := timeout
	if next, ok := l.timers.nextDeadline(); ok {
		if until := time.Until(next); until < wait {
			wait = until
		}
	}
	ms := int(wait / time.Millisecond)
	if ms < 0 {
		ms = 0
	}

	var events [16]unix.EpollEvent
	n, err := unix.EpollWait(l.epollFd, events[:], ms)
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == l.wakeFd {
			l.drainSubmitted()
			continue
		}
		if cb, ok := l.fds[fd]; ok {
			cb()
		}
	}

	l.fireDue()
	return nil
}

// Run polls until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := l.Poll(maxPollWait); err != nil {
			return err
		}
	}
}

func (l *Loop) Close() error {
	err := unix.Close(l.wakeFd)
	if cerr := unix.Close(l.epollFd); err == nil {
		err = cerr
	}
	return err
}

func (l *Loop) drainSubmitted() {
	var buf [8]byte
	_, _ = unix.Read(l.wakeFd, buf[:])

	l.pendingMu.Lock()
	tasks := l.pending
	l.pending = nil
	l.pendingMu.Unlock()

	for _, fn := range tasks {
		fn()
	}
}

func (l *Loop) fireDue() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*Timer)
		t.fn()
	}
}

// Timer is a cancellation handle for a scheduled callback. Must be used on
// the loop goroutine.
type Timer struct {
	when  time.Time
	fn    func()
	loop  *Loop
	index int
}

// Cancel removes an unfired timer from the schedule. Cancelling a timer
// that already fired is a no-op; index is -1 once the timer left the heap.
func (t *Timer) Cancel() {
	if t.index >= 0 {
		heap.Remove(&t.loop.timers, t.index)
	}
}

type timerHeap []*Timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

func (h timerHeap) nextDeadline() (time.Time, bool) {
	if len(h) == 0 {
		return time.Time{}, false
	}
	return h[0].when, true
}
