// Package config loads htcontrol settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roffe/htcontrol"
	"github.com/roffe/htcontrol/pkg/protocol"
	"github.com/roffe/htcontrol/pkg/session"
	"gopkg.in/yaml.v3"
)

const envPrefix = "HTCONTROL_"

type Config struct {
	Adapter      string  `yaml:"adapter"`
	Port         string  `yaml:"port"`
	PortBaudrate int     `yaml:"port_baudrate"`
	Bitrate      float64 `yaml:"bitrate"` // kbit/s

	// Address is the device to talk to, decimal or 0x hex. Empty means scan first.
	Address   string `yaml:"address"`
	Broadcast bool   `yaml:"broadcast"`
	Debug     bool   `yaml:"debug"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	ScanStepDelay  time.Duration `yaml:"scan_step_delay"`
	ScanSteps      int           `yaml:"scan_steps"`
	WriteStepDelay time.Duration `yaml:"write_step_delay"`

	// Listen is the address the live stream serves on, empty disables it
	Listen string `yaml:"listen"`

	path string
}

func DefaultConfig() *Config {
	return &Config{
		Adapter:        "SLCan",
		PortBaudrate:   115200,
		Bitrate:        500,
		PollInterval:   session.DefaultPollInterval,
		ScanStepDelay:  session.DefaultScanStepDelay,
		ScanSteps:      session.DefaultScanSteps,
		WriteStepDelay: session.DefaultWriteStepDelay,
	}
}

// LoadConfig reads path over the defaults and applies HTCONTROL_* environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Printf("no config at %s, using defaults", path)
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Path() string {
	return c.path
}

// applyEnvOverrides reads HTCONTROL_ADAPTER, _PORT, _BAUDRATE, _BITRATE,
// _ADDRESS and _DEBUG.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(envPrefix + "ADAPTER"); v != "" {
		c.Adapter = v
	}
	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv(envPrefix + "BAUDRATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBAUDRATE: %w", envPrefix, err)
		}
		c.PortBaudrate = n
	}
	if v := os.Getenv(envPrefix + "BITRATE"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sBITRATE: %w", envPrefix, err)
		}
		c.Bitrate = n
	}
	if v := os.Getenv(envPrefix + "ADDRESS"); v != "" {
		c.Address = v
	}
	if v := os.Getenv(envPrefix + "DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", envPrefix, err)
		}
		c.Debug = b
	}
	return nil
}

// DeviceAddress parses Address, NoAddress when unset. "broadcast" sets the
// broadcast flag instead of an address.
func (c *Config) DeviceAddress() (protocol.Address, error) {
	if c.Address == "" {
		return protocol.NoAddress, nil
	}
	a, err := protocol.ParseAddress(c.Address)
	if err != nil {
		return protocol.NoAddress, err
	}
	if a == protocol.Broadcast {
		c.Broadcast = true
		return protocol.NoAddress, nil
	}
	return a, nil
}

func (c *Config) TransportConfig() *htcontrol.TransportConfig {
	return &htcontrol.TransportConfig{
		Debug:        c.Debug,
		Port:         c.Port,
		PortBaudrate: c.PortBaudrate,
		Bitrate:      c.Bitrate,
	}
}

// SessionOpts turns the settings into session options
func (c *Config) SessionOpts() ([]session.Opt, error) {
	a, err := c.DeviceAddress()
	if err != nil {
		return nil, err
	}
	return []session.Opt{
		session.OptPollInterval(c.PollInterval),
		session.OptScan(c.ScanStepDelay, c.ScanSteps),
		session.OptWriteStepDelay(c.WriteStepDelay),
		session.OptAddress(a),
		session.OptBroadcast(c.Broadcast),
		session.OptDebug(c.Debug),
	}, nil
}

func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return strings.TrimSpace(string(out))
}
