/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/allbin/boardrun"
	"github.com/allbin/boardrun/internal/logging"
	"github.com/spf13/viper"
)

// appConfig mirrors the config file layout
type appConfig struct {
	Log    logging.Config `mapstructure:"log"`
	Serial serialConfig   `mapstructure:"serial"`
	Run    runConfig      `mapstructure:"run"`

	// Devices, when set, replaces USB discovery
	Devices []deviceConfig `mapstructure:"devices"`
}

type serialConfig struct {
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type runConfig struct {
	Platforms []string      `mapstructure:"platforms"`
	Delay     time.Duration `mapstructure:"delay"`
	EndMarker string        `mapstructure:"end_marker"`
	Parallel  int           `mapstructure:"parallel"`
}

type deviceConfig struct {
	Platform   string `mapstructure:"platform"`
	MountPoint string `mapstructure:"mount_point"`
	SerialPort string `mapstructure:"serial_port"`
	VendorID   string `mapstructure:"vendor_id"`
	ProductID  string `mapstructure:"product_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("run.platforms", []string{"K64F"})
	v.SetDefault("run.delay", 30*time.Second)
	v.SetDefault("run.end_marker", "***END OF TESTS**")
	v.SetDefault("run.parallel", 4)
}

// loadConfig decodes v into an appConfig, filling in defaults
func loadConfig(v *viper.Viper) (appConfig, error) {
	setDefaults(v)

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	for i, d := range cfg.Devices {
		if d.Platform == "" || d.MountPoint == "" || d.SerialPort == "" {
			return appConfig{}, fmt.Errorf("%w: devices[%d] needs platform, mount_point and serial_port", boardrun.ErrInvalidConfig, i)
		}
	}
	return cfg, nil
}

// options turns the serial section into library options
func (c serialConfig) options() []boardrun.Option {
	opts := []boardrun.Option{boardrun.WithBaudRate(c.Baud)}
	if c.ReadTimeout > 0 {
		opts = append(opts, boardrun.WithReadTimeout(c.ReadTimeout))
	}
	return opts
}

// discoverer picks static or USB discovery
func (c appConfig) discoverer() boardrun.Discoverer {
	if len(c.Devices) == 0 {
		return boardrun.NewMbedDiscoverer(logging.GetLogger())
	}

	records := make(boardrun.StaticDiscoverer, 0, len(c.Devices))
	for _, d := range c.Devices {
		records = append(records, boardrun.DeviceRecord{
			Platform:   d.Platform,
			MountPoint: d.MountPoint,
			SerialPort: d.SerialPort,
			VendorID:   d.VendorID,
			ProductID:  d.ProductID,
		})
	}
	return records
}

// setup loads configuration and builds the board inventory every command starts from
func setup(ctx context.Context) (appConfig, *boardrun.Manager, boardrun.Config, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return appConfig{}, nil, boardrun.Config{}, err
	}

	runCfg, err := boardrun.NewConfig(cfg.Serial.options()...)
	if err != nil {
		return appConfig{}, nil, boardrun.Config{}, err
	}

	m, err := boardrun.NewManager(ctx, cfg.discoverer(), boardrun.WithManagerLogger(logging.GetLogger()))
	if err != nil {
		return appConfig{}, nil, boardrun.Config{}, err
	}
	return cfg, m, runCfg, nil
}
