// Package config defines the top-level CLI grammar. Values come from flags,
// environment variables and configuration files, in that priority order.
package config

import (
	"github.com/openpad/dsense/internal/cmd"
)

// LogConfig groups the logging flags shared by all commands.
type LogConfig struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"DSENSE_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"DSENSE_LOG_FILE"`
	RawFile string `help:"Write raw report hex dumps to this file" env:"DSENSE_RAW_LOG_FILE"`
}

// CLI is the root command structure parsed by kong.
type CLI struct {
	Log    LogConfig `embed:"" prefix:"log."`
	Config string    `help:"Path to a configuration file" env:"DSENSE_CONFIG"`

	Daemon     cmd.Daemon        `cmd:"" default:"withargs" help:"Run the controller daemon"`
	ConfigInit cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration utilities"`
}
