// Package evdev wraps Linux kernel input devices (/dev/input/event*): open,
// exclusive grab, nonblocking batch reads and the capability/identity queries
// needed to correlate sibling devices of one physical unit.
package evdev

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event is one kernel input event.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// InputID identifies a device by bus type and vendor/product/version.
type InputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// Device is an open kernel input device. Reads are nonblocking; readiness is
// expected to come from an external poll loop watching Fd().
type Device struct {
	f    *os.File
	path string
	name string
	phys string
	id   InputID
}

// Open opens an event device nonblocking and queries its identity. The
// physical address may be absent (virtual devices); that is not an error.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	d := &Device{f: f, path: path}

	var name [256]byte
	if err := d.ioctl(evioc(eviocgnameNr, len(name)), unsafe.Pointer(&name[0])); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("query device name: %w", err)
	}
	d.name = cstring(name[:])

	var phys [256]byte
	if err := d.ioctl(evioc(eviocgphysNr, len(phys)), unsafe.Pointer(&phys[0])); err == nil {
		d.phys = cstring(phys[:])
	}

	if err := d.ioctl(eviocgid, unsafe.Pointer(&d.id)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("query device id: %w", err)
	}

	return d, nil
}

func (d *Device) Path() string { return d.path }
func (d *Device) Name() string { return d.name }
func (d *Device) Phys() string { return d.phys }
func (d *Device) ID() InputID  { return d.id }
func (d *Device) Fd() int      { return int(d.f.Fd()) }

// Grab acquires exclusive ownership; no other reader sees events until
// Ungrab or close.
func (d *Device) Grab() error {
	return unix.IoctlSetInt(d.Fd(), eviocgrab, 1)
}

func (d *Device) Ungrab() error {
	return unix.IoctlSetInt(d.Fd(), eviocgrab, 0)
}

func (d *Device) Close() error {
	return d.f.Close()
}

const eventSize = 24 // struct input_event on 64-bit

// ReadEvents drains every event currently readable and returns the batch.
// An empty batch with nil error means nothing was pending.
func (d *Device) ReadEvents() ([]Event, error) {
	var events []Event
	buf := make([]byte, 64*eventSize)
	for {
		n, err := d.f.Read(buf)
		if err != nil {
			if pe, ok := err.(*os.PathError); ok && pe.Err == unix.EAGAIN {
				return events, nil
			}
			return events, err
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			events = append(events, Event{
				Type:  binary.LittleEndian.Uint16(buf[off+16 : off+18]),
				Code:  binary.LittleEndian.Uint16(buf[off+18 : off+20]),
				Value: int32(binary.LittleEndian.Uint32(buf[off+20 : off+24])),
			})
		}
		if n < len(buf) {
			return events, nil
		}
	}
}

// AbsAxes returns the absolute axis codes the device advertises, in
// ascending order.
func (d *Device) AbsAxes() ([]uint16, error) {
	var bits [(absCnt + 7) / 8]byte
	if err := d.ioctl(evioc(eviocgbitNr+int(EvAbs), len(bits)), unsafe.Pointer(&bits[0])); err != nil {
		return nil, fmt.Errorf("query abs axes: %w", err)
	}
	var axes []uint16
	for code := 0; code < absCnt; code++ {
		if bits[code/8]&(1<<(code%8)) != 0 {
			axes = append(axes, uint16(code))
		}
	}
	return axes, nil
}

// HasAbsAxis reports whether the device advertises the given absolute axis.
func (d *Device) HasAbsAxis(code uint16) (bool, error) {
	axes, err := d.AbsAxes()
	if err != nil {
		return false, err
	}
	for _, a := range axes {
		if a == code {
			return true, nil
		}
	}
	return false, nil
}

// ListDevicePaths enumerates the event device nodes currently present.
func ListDevicePaths() ([]string, error) {
	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

const (
	eviocgrab = 0x40044590 // _IOW('E', 0x90, int)
	eviocgid  = 0x80084502 // _IOR('E', 0x02, struct input_id)

	eviocgnameNr = 0x06
	eviocgphysNr = 0x07
	eviocgbitNr  = 0x20 // + event type
)

// evioc builds a read-direction ioctl request in the 'E' group.
func evioc(nr, size int) uintptr {
	return uintptr(2)<<30 | uintptr(size)<<16 | 0x45<<8 | uintptr(nr)
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
