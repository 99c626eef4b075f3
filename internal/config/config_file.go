package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly types.
type FileConfig struct {
	RadioIface       string        `toml:"radio_iface"`
	WiredIface       string        `toml:"wired_iface"`
	LogDir           string        `toml:"log_dir"`
	HopInterval      string        `toml:"hop_interval"`
	TickInterval     string        `toml:"tick_interval"`
	ChannelMin       int           `toml:"channel_min"`
	ChannelMax       int           `toml:"channel_max"`
	MonitorSetup     *bool         `toml:"monitor_setup"`
	LLMNRAddr        string        `toml:"llmnr_addr"`
	LLMNRGroup       string        `toml:"llmnr_group"`
	LLMNRIface       string        `toml:"llmnr_iface"`
	AuthenticatorMAC string        `toml:"authenticator_mac"`
	WiredDump        string        `toml:"wired_dump"`
	LogLevel         string        `toml:"log_level"`
	Engines          EnginesConfig `toml:"engines"`
}

// EnginesConfig is the [engines] table.
type EnginesConfig struct {
	Probe *bool `toml:"probe"`
	LLMNR *bool `toml:"llmnr"`
	EAP   *bool `toml:"eap"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.harvester/config.toml, or "" if the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".harvester", "config.toml")
	}
	return ""
}

// ApplyFileConfig copies file values into cfg, skipping flags in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("radio-iface", fc.RadioIface, &cfg.RadioIface)
	s.setString("wired-iface", fc.WiredIface, &cfg.WiredIface)
	s.setString("log-dir", fc.LogDir, &cfg.LogDir)
	s.setString("llmnr-addr", fc.LLMNRAddr, &cfg.LLMNRAddr)
	s.setString("llmnr-group", fc.LLMNRGroup, &cfg.LLMNRGroup)
	s.setString("llmnr-iface", fc.LLMNRIface, &cfg.LLMNRIface)
	s.setString("auth-mac", fc.AuthenticatorMAC, &cfg.AuthenticatorMAC)
	s.setString("wired-dump", fc.WiredDump, &cfg.WiredDump)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("hop-interval", fc.HopInterval, &cfg.HopInterval); err != nil {
		return err
	}
	if err := s.setDuration("tick-interval", fc.TickInterval, &cfg.TickInterval); err != nil {
		return err
	}

	s.setInt("channel-min", fc.ChannelMin, &cfg.ChannelMin)
	s.setInt("channel-max", fc.ChannelMax, &cfg.ChannelMax)

	s.setBool("monitor-setup", fc.MonitorSetup, &cfg.MonitorSetup)
	s.setBool("probe", fc.Engines.Probe, &cfg.EnableProbe)
	s.setBool("llmnr", fc.Engines.LLMNR, &cfg.EnableLLMNR)
	s.setBool("eap", fc.Engines.EAP, &cfg.EnableEAP)

	return nil
}

// FileExists reports whether p exists.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
