package config

import "os"

// ApplyEnvConfig applies HARVEST_* environment variables, skipping flags in
// changed. It fails on values that do not parse.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("radio-iface", os.Getenv("HARVEST_RADIO_IFACE"), &cfg.RadioIface)
	s.setString("wired-iface", os.Getenv("HARVEST_WIRED_IFACE"), &cfg.WiredIface)
	s.setString("log-dir", os.Getenv("HARVEST_LOG_DIR"), &cfg.LogDir)
	s.setString("llmnr-addr", os.Getenv("HARVEST_LLMNR_ADDR"), &cfg.LLMNRAddr)
	s.setString("llmnr-group", os.Getenv("HARVEST_LLMNR_GROUP"), &cfg.LLMNRGroup)
	s.setString("llmnr-iface", os.Getenv("HARVEST_LLMNR_IFACE"), &cfg.LLMNRIface)
	s.setString("auth-mac", os.Getenv("HARVEST_AUTHENTICATOR_MAC"), &cfg.AuthenticatorMAC)
	s.setString("wired-dump", os.Getenv("HARVEST_WIRED_DUMP"), &cfg.WiredDump)
	s.setString("log-level", os.Getenv("HARVEST_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("hop-interval", os.Getenv("HARVEST_HOP_INTERVAL"), &cfg.HopInterval); err != nil {
		return err
	}
	if err := s.setDuration("tick-interval", os.Getenv("HARVEST_TICK_INTERVAL"), &cfg.TickInterval); err != nil {
		return err
	}

	if err := s.setIntFromString("channel-min", os.Getenv("HARVEST_CHANNEL_MIN"), &cfg.ChannelMin); err != nil {
		return err
	}
	if err := s.setIntFromString("channel-max", os.Getenv("HARVEST_CHANNEL_MAX"), &cfg.ChannelMax); err != nil {
		return err
	}

	s.setBoolFromString("monitor-setup", os.Getenv("HARVEST_MONITOR_SETUP"), &cfg.MonitorSetup)
	s.setBoolFromString("probe", os.Getenv("HARVEST_PROBE"), &cfg.EnableProbe)
	s.setBoolFromString("llmnr", os.Getenv("HARVEST_LLMNR"), &cfg.EnableLLMNR)
	s.setBoolFromString("eap", os.Getenv("HARVEST_EAP"), &cfg.EnableEAP)

	return nil
}
