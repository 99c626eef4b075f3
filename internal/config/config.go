// Package config loads harvester settings from defaults, a TOML file,
// HARVEST_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const (
	DefaultLogDir           = "/var/lib/harvester"
	DefaultAuthenticatorMAC = "00:01:02:03:04:05"
	maxChannel              = 14
)

// Config holds runtime configuration.
type Config struct {
	RadioIface string
	WiredIface string
	LogDir     string

	HopInterval  time.Duration
	TickInterval time.Duration
	ChannelMin   int
	ChannelMax   int
	MonitorSetup bool

	LLMNRAddr  string
	LLMNRGroup string
	LLMNRIface string

	AuthenticatorMAC string
	WiredDump        string

	EnableProbe bool
	EnableLLMNR bool
	EnableEAP   bool

	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		RadioIface:       "wlan0mon",
		WiredIface:       "usb0",
		LogDir:           DefaultLogDir,
		HopInterval:      500 * time.Millisecond,
		TickInterval:     100 * time.Millisecond,
		ChannelMin:       1,
		ChannelMax:       13,
		LLMNRAddr:        ":5355",
		LLMNRGroup:       "224.0.0.252",
		AuthenticatorMAC: DefaultAuthenticatorMAC,
		EnableProbe:      true,
		EnableLLMNR:      true,
		EnableEAP:        true,
		LogLevel:         "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.LogDir == "" {
		return fmt.Errorf("%w: log-dir is required", ErrInvalid)
	}
	if c.HopInterval <= 0 {
		return fmt.Errorf("%w: hop interval must be positive", ErrInvalid)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalid)
	}
	if c.ChannelMin < 1 || c.ChannelMax > maxChannel || c.ChannelMin > c.ChannelMax {
		return fmt.Errorf("%w: channel range %d-%d", ErrInvalid, c.ChannelMin, c.ChannelMax)
	}
	if _, err := c.AuthenticatorHardwareAddr(); err != nil {
		return err
	}
	if c.EnableLLMNR && net.ParseIP(c.LLMNRGroup).To4() == nil {
		return fmt.Errorf("%w: llmnr group %q", ErrInvalid, c.LLMNRGroup)
	}
	return nil
}

// AuthenticatorHardwareAddr parses AuthenticatorMAC.
func (c *Config) AuthenticatorHardwareAddr() ([6]byte, error) {
	var out [6]byte
	hw, err := net.ParseMAC(c.AuthenticatorMAC)
	if err != nil || len(hw) != len(out) {
		return out, fmt.Errorf("%w: authenticator mac %q", ErrInvalid, c.AuthenticatorMAC)
	}
	copy(out[:], hw)
	return out, nil
}

// configSetter applies values only where the corresponding flag was not
// set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString is setInt for environment values.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setInt(flag, i, dst)
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
