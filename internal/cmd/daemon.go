package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openpad/dsense/controller"
	"github.com/openpad/dsense/controller/dualsense"
	"github.com/openpad/dsense/internal/log"
	"github.com/openpad/dsense/internal/loop"
)

// Daemon runs the controller driver until interrupted.
type Daemon struct {
	HID      bool   `help:"Claim wired controllers over raw USB" default:"true" negatable:"" env:"DSENSE_HID"`
	Evdev    bool   `help:"Pick up wireless controllers via kernel input devices" default:"true" negatable:"" env:"DSENSE_EVDEV"`
	Icon     string `help:"Controller icon whose numeric suffix selects the lightbar color" env:"DSENSE_ICON"`
	LEDLevel int    `name:"led-level" help:"Lightbar brightness percentage" default:"100" env:"DSENSE_LED_LEVEL"`
}

// Run is called by Kong when the daemon command is executed.
func (d *Daemon) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.run(ctx, logger, rawLogger)
}

func (d *Daemon) run(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	if d.LEDLevel < 0 || d.LEDLevel > 100 {
		return fmt.Errorf("led-level must be between 0 and 100, got %d", d.LEDLevel)
	}

	logger.Info("Starting dsense controller daemon", "hid", d.HID, "evdev", d.Evdev)

	lp, err := loop.New()
	if err != nil {
		return fmt.Errorf("create event loop: %w", err)
	}
	defer func() { _ = lp.Close() }()

	driver := dualsense.NewDriver(dualsense.DriverConfig{
		HID:   d.HID,
		Evdev: d.Evdev,
		Options: controller.Options{
			Icon:     d.Icon,
			LEDLevel: d.LEDLevel,
		},
	}, lp, logger, rawLogger)
	defer func() { _ = driver.Close() }()

	driver.SetInputHandler(func(c controller.Controller, old, next controller.State) {
		logger.Log(context.Background(), log.LevelTrace, "state change",
			"controller", c.ID(),
			"buttons", fmt.Sprintf("%016b", next.Buttons),
			"stick", fmt.Sprintf("%d,%d", next.StickX, next.StickY),
			"rpad", fmt.Sprintf("%d,%d", next.RPadX, next.RPadY),
			"triggers", fmt.Sprintf("%d,%d", next.LTrig, next.RTrig),
		)
	})

	if err := driver.Start(); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}

	return lp.Run(ctx)
}
