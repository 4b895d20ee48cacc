package dualsense

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/gousb"

	"github.com/openpad/dsense/controller"
	"github.com/openpad/dsense/internal/evdev"
	"github.com/openpad/dsense/internal/log"
	"github.com/openpad/dsense/internal/loop"
)

// DriverConfig selects which acquisition paths the driver may use and the
// options applied to every controller it brings up.
type DriverConfig struct {
	HID     bool
	Evdev   bool
	Options controller.Options
}

// Driver discovers DualSense controllers and hands them to the registered
// input handler. Wired controllers are claimed over USB for raw report
// access; wireless ones are picked up through their kernel evdev devices,
// including devices that appear after startup.
type Driver struct {
	cfg     DriverConfig
	loop    *loop.Loop
	logger  *slog.Logger
	raw     log.RawLogger
	handler controller.InputHandler

	usbCtx  *gousb.Context
	watcher *fsnotify.Watcher

	active map[string]controller.Controller
	opened map[string]bool     // evdev paths already claimed
	paths  map[string][]string // evdev paths per controller id

	// Acquisition steps, replaceable in tests.
	claimUSB   func() error
	scanInputs func()
}

func NewDriver(cfg DriverConfig, lp *loop.Loop, logger *slog.Logger, raw log.RawLogger) *Driver {
	d := &Driver{
		cfg:    cfg,
		loop:   lp,
		logger: logger,
		raw:    raw,
		active: make(map[string]controller.Controller),
		opened: make(map[string]bool),
		paths:  make(map[string][]string),
	}
	d.claimUSB = d.startUSB
	d.scanInputs = d.scanEvdev
	return d
}

// SetInputHandler registers the handler attached to every discovered
// controller. Must be called before Start.
func (d *Driver) SetInputHandler(h controller.InputHandler) {
	d.handler = h
}

// Start brings up all controllers reachable right now and begins watching
// for late arrivals. The kernel-device path is the fallback: an initial
// scan runs only when no wired unit could be claimed, so the wired
// controller's own kernel nodes are never double-acquired in the window
// before auto-detach removes them. Runs on the loop goroutine.
func (d *Driver) Start() error {
	if !d.cfg.HID && !d.cfg.Evdev {
		d.logger.Warn("both acquisition paths disabled, no controllers will be found")
		return nil
	}

	wired := false
	if d.cfg.HID {
		if err := d.claimUSB(); err != nil {
			d.logger.Warn("usb acquisition unavailable, falling back to kernel devices", "error", err)
		} else {
			wired = true
		}
	}

	if d.cfg.Evdev {
		if !wired {
			d.scanInputs()
		}
		if err := d.watchInputDir(); err != nil {
			d.logger.Warn("input directory watch unavailable", "error", err)
		}
	}
	return nil
}

// Close tears down the watcher and every active controller.
func (d *Driver) Close() error {
	if d.watcher != nil {
		_ = d.watcher.Close()
		d.watcher = nil
	}
	for id, c := range d.active {
		delete(d.active, id)
		if err := c.Close(); err != nil {
			d.logger.Debug("controller close failed", "controller", id, "error", err)
		}
	}
	if d.usbCtx != nil {
		_ = d.usbCtx.Close()
		d.usbCtx = nil
	}
	return nil
}

// newID returns the first identifier not held by an active controller, so a
// detached controller's id is reused on reconnect.
func (d *Driver) newID() string {
	if _, taken := d.active["ds5"]; !taken {
		return "ds5"
	}
	for i := 1; ; i++ {
		id := fmt.Sprintf("ds5:%d", i)
		if _, taken := d.active[id]; !taken {
			return id
		}
	}
}

func (d *Driver) attach(c controller.Controller) {
	c.SetInputHandler(d.handler)
	c.Configure(d.cfg.Options)
	c.Flush()
	d.active[c.ID()] = c
	d.logger.Info("controller attached", "controller", c.ID(), "type", c.Type())
}

// startUSB claims the first wired controller on the bus and starts its
// report reader.
func (d *Driver) startUSB() error {
	if d.usbCtx == nil {
		d.usbCtx = gousb.NewContext()
	}

	dev, err := d.usbCtx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
	if err != nil {
		return fmt.Errorf("open usb device: %w", err)
	}
	if dev == nil {
		return fmt.Errorf("no wired controller present")
	}

	if err := dev.SetAutoDetach(true); err != nil {
		_ = dev.Close()
		return fmt.Errorf("detach kernel driver: %w", err)
	}
	cfg, err := dev.Config(1)
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("claim configuration: %w", err)
	}
	intf, err := cfg.Interface(InterfaceNumber, 0)
	if err != nil {
		_ = cfg.Close()
		_ = dev.Close()
		return fmt.Errorf("claim interface: %w", err)
	}
	epOut, err := intf.OutEndpoint(EndpointOut)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		_ = dev.Close()
		return fmt.Errorf("open out endpoint: %w", err)
	}
	epIn, err := intf.InEndpoint(EndpointIn)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		_ = dev.Close()
		return fmt.Errorf("open in endpoint: %w", err)
	}

	transport := &usbTransport{dev: dev, cfg: cfg, intf: intf, epOut: epOut}
	hid := NewHIDController(d.newID(), transport, d.loop, d.logger, d.raw)
	d.attach(hid)

	go d.readReports(hid, epIn)
	return nil
}

// readReports blocks on the interrupt IN endpoint and hands each report to
// the loop goroutine. Runs on its own goroutine; Submit is the only loop
// interaction.
func (d *Driver) readReports(hid *HIDController, epIn *gousb.InEndpoint) {
	buf := make([]byte, ReportSize)
	for {
		n, err := epIn.Read(buf)
		if err != nil {
			d.loop.Submit(func() { d.detach(hid.ID()) })
			return
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		d.loop.Submit(func() {
			hid.Input(packet)
			hid.Flush()
		})
	}
}

// detach closes a controller and frees everything it held, including its
// kernel device paths so a reconnected controller reusing the same event
// nodes can be re-acquired.
func (d *Driver) detach(id string) {
	c, ok := d.active[id]
	if !ok {
		return
	}
	delete(d.active, id)
	for _, p := range d.paths[id] {
		delete(d.opened, p)
	}
	delete(d.paths, id)
	_ = c.Close()
	d.logger.Info("controller detached", "controller", id)
}

// scanEvdev looks for complete device triples among the present kernel input
// devices and brings up a controller for each.
func (d *Driver) scanEvdev() {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		d.logger.Warn("input device enumeration failed", "error", err)
		return
	}

	var cands []candidate
	var devs []*evdev.Device
	for _, p := range paths {
		if d.opened[p] {
			continue
		}
		dev, err := evdev.Open(p)
		if err != nil {
			continue
		}
		id := dev.ID()
		if id.Vendor != VendorID || id.Product != ProductID {
			_ = dev.Close()
			continue
		}
		axes, err := dev.AbsAxes()
		if err != nil {
			_ = dev.Close()
			continue
		}
		hasMT := false
		for _, a := range axes {
			if a == evdev.AbsMtPositionX {
				hasMT = true
			}
		}
		cands = append(cands, candidate{Phys: dev.Phys(), AxisCount: len(axes), HasMT: hasMT})
		devs = append(devs, dev)
	}

	for {
		main, motion, touch, err := correlateTriple(cands)
		if err != nil {
			break
		}
		triple := DeviceTriple{Main: devs[main], Motion: devs[motion], Touchpad: devs[touch]}
		c, err := NewEvdevController(d.newID(), triple, d.loop, d.logger)
		if err != nil {
			d.logger.Warn("evdev controller setup failed", "error", err)
			for _, i := range []int{main, motion, touch} {
				_ = devs[i].Close()
			}
		} else {
			var owned []string
			for _, i := range []int{main, motion, touch} {
				owned = append(owned, devs[i].Path())
				d.opened[devs[i].Path()] = true
			}
			d.paths[c.ID()] = owned
			c.SetRemoveHandler(func() { d.detach(c.ID()) })
			d.attach(c)
		}
		cands, devs = removeIndices(cands, devs, main, motion, touch)
	}

	// Devices not consumed by a triple are released.
	for _, dev := range devs {
		_ = dev.Close()
	}
}

func removeIndices(cands []candidate, devs []*evdev.Device, drop ...int) ([]candidate, []*evdev.Device) {
	dropped := make(map[int]bool, len(drop))
	for _, i := range drop {
		dropped[i] = true
	}
	var nc []candidate
	var nd []*evdev.Device
	for i := range cands {
		if dropped[i] {
			continue
		}
		nc = append(nc, cands[i])
		nd = append(nd, devs[i])
	}
	return nc, nd
}

// watchInputDir reacts to device nodes appearing after startup: wireless
// controllers register their kernel devices one by one with a delay, so the
// rescan is debounced.
func (d *Driver) watchInputDir() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add("/dev/input"); err != nil {
		_ = w.Close()
		return err
	}
	d.watcher = w

	go func() {
		var pending *time.Timer
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) || !strings.Contains(ev.Name, "event") {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(500*time.Millisecond, func() {
					d.loop.Submit(d.scanEvdev)
				})
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// candidate is the correlation-relevant shape of one kernel input device.
type candidate struct {
	Phys      string
	AxisCount int
	HasMT     bool
}

// physPrefix strips the per-function suffix from a physical address, leaving
// the part shared by all devices of one physical unit.
func physPrefix(phys string) string {
	if i := strings.IndexByte(phys, '/'); i >= 0 {
		return phys[:i]
	}
	return phys
}

// correlateTriple finds one complete controller among the candidates: the
// 8-axis main device, plus the motion (6 axes) and touchpad (6 axes with
// multitouch, or 4 axes on older kernels) devices sharing its physical
// address prefix.
func correlateTriple(cands []candidate) (main, motion, touch int, err error) {
	main, motion, touch = -1, -1, -1
	for i, c := range cands {
		if c.AxisCount == 8 {
			main = i
			break
		}
	}
	if main < 0 {
		return 0, 0, 0, fmt.Errorf("no main gamepad device found")
	}
	prefix := physPrefix(cands[main].Phys)
	for i, c := range cands {
		if i == main || physPrefix(c.Phys) != prefix {
			continue
		}
		switch {
		case c.AxisCount == 6 && c.HasMT:
			touch = i
		case c.AxisCount == 6:
			motion = i
		case c.AxisCount == 4:
			touch = i
		}
	}
	if motion < 0 || touch < 0 {
		return 0, 0, 0, fmt.Errorf("incomplete device set for %q", prefix)
	}
	return main, motion, touch, nil
}

// usbTransport adapts a claimed gousb interface to the controller transport.
type usbTransport struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epOut *gousb.OutEndpoint
}

func (t *usbTransport) InterruptWrite(data []byte) error {
	_, err := t.epOut.Write(data)
	return err
}

func (t *usbTransport) Close() error {
	t.intf.Close()
	err := t.cfg.Close()
	if cerr := t.dev.Close(); err == nil {
		err = cerr
	}
	return err
}
