package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"harvester/internal/analysis"
	"harvester/internal/config"
	"harvester/internal/discovery"
	"harvester/internal/harvestlog"
	"harvester/internal/logging"
	"harvester/internal/radio"
	"harvester/internal/registry"
	"harvester/internal/reporting"
	"harvester/internal/tui"
	"harvester/internal/wired"
)

var exampleUsage = strings.TrimSpace(`
  harvester --radio-iface wlan0mon --wired-iface usb0
  harvester --headless --config /etc/harvester/config.toml
  harvester report --log-dir /var/lib/harvester
`)

func main() {
	cfg := config.DefaultConfig()
	var (
		cfgPath  string
		headless bool
	)

	log := logging.New(os.Stderr, "info")

	root := &cobra.Command{
		Use:          "harvester",
		Short:        "Harvest probe requests, name queries and EAP-MD5 responses",
		Example:      exampleUsage,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := changedFlags(cmd)
			flagCfg := cfg
			cfgFile := resolveConfigPath(cfgPath)

			load := func() (config.Config, error) {
				c := flagCfg
				return c, applySources(&c, cfgFile, changed)
			}
			loaded, err := load()
			if err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			return run(loaded, cfgFile, load, headless)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.harvester/config.toml)")
	flags.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for harvest logs")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	rf := root.Flags()
	rf.BoolVar(&headless, "headless", false, "run without the dashboard until SIGINT/SIGTERM")
	rf.StringVar(&cfg.RadioIface, "radio-iface", cfg.RadioIface, "monitor-mode WiFi interface")
	rf.StringVar(&cfg.WiredIface, "wired-iface", cfg.WiredIface, "USB Ethernet gadget interface")
	rf.DurationVar(&cfg.HopInterval, "hop-interval", cfg.HopInterval, "channel hop interval")
	rf.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "periodic tick interval")
	rf.IntVar(&cfg.ChannelMin, "channel-min", cfg.ChannelMin, "first channel to hop")
	rf.IntVar(&cfg.ChannelMax, "channel-max", cfg.ChannelMax, "last channel to hop")
	rf.BoolVar(&cfg.MonitorSetup, "monitor-setup", cfg.MonitorSetup, "switch the radio interface to monitor mode")
	rf.StringVar(&cfg.LLMNRAddr, "llmnr-addr", cfg.LLMNRAddr, "UDP address for the query listener")
	rf.StringVar(&cfg.LLMNRGroup, "llmnr-group", cfg.LLMNRGroup, "multicast group to join")
	rf.StringVar(&cfg.LLMNRIface, "llmnr-iface", cfg.LLMNRIface, "interface for the multicast join")
	rf.StringVar(&cfg.AuthenticatorMAC, "auth-mac", cfg.AuthenticatorMAC, "source address of injected EAP frames")
	rf.StringVar(&cfg.WiredDump, "wired-dump", cfg.WiredDump, "write EAPOL traffic to this pcap file")
	rf.BoolVar(&cfg.EnableProbe, "probe", cfg.EnableProbe, "start the probe sentinel")
	rf.BoolVar(&cfg.EnableLLMNR, "llmnr", cfg.EnableLLMNR, "start the query listener")
	rf.BoolVar(&cfg.EnableEAP, "eap", cfg.EnableEAP, "start the rogue authenticator")

	root.AddCommand(newReportCmd(&cfg, &cfgPath), newInterfacesCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("harvester")
		os.Exit(1)
	}
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

func resolveConfigPath(p string) string {
	if p == "" {
		p = config.DefaultConfigPath()
	}
	return p
}

// applySources layers the config file and HARVEST_* variables over cfg.
// Flags in changed keep their values.
func applySources(cfg *config.Config, cfgFile string, changed map[string]bool) error {
	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}
	return config.ApplyEnvConfig(cfg, changed)
}

func run(cfg config.Config, cfgFile string, load config.Loader, headless bool) error {
	var out io.Writer = os.Stderr
	ring := logging.NewRing(200)
	if !headless {
		out = ring
	}
	log := logging.New(out, cfg.LogLevel)
	log.Info().Interface("config", cfg).Msg("configuration")

	store, err := harvestlog.Open(cfg.LogDir)
	if err != nil {
		return err
	}
	stats := analysis.NewHarvestStats()
	collector := analysis.NewCollector(stats, 512)
	store.Observe(collector.Observe)

	mon := radio.NewMonitor(cfg.RadioIface, cfg.MonitorSetup, logging.Component(log, "radio"))
	link := wired.NewLink(cfg.WiredIface, cfg.WiredDump, logging.Component(log, "wired"))
	if cfg.EnableEAP {
		if err := link.Open(); err != nil {
			log.Warn().Err(err).Msg("wired link unavailable, injected frames will be dropped")
		}
	}
	defer link.Close()

	cfgStore := config.NewStore(cfg)
	reg := registry.New(registry.Deps{
		Radio:  mon,
		Link:   link,
		Store:  store,
		Config: cfgStore,
		Logger: log,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfgFile != "" && config.FileExists(cfgFile) {
		w := config.NewWatcher(cfgFile, cfgStore, load, logging.Component(log, "config"))
		w.OnReload = func(config.Config) {
			log.Info().Msg("new settings apply when an engine is restarted")
		}
		go w.Run(ctx)
	}
	go collector.Run(ctx)
	go reg.Run(ctx)

	if err := reg.StartEnabled(); err != nil {
		log.Warn().Err(err).Msg("some engines did not start")
	}
	defer reg.StopAll()

	if headless {
		<-ctx.Done()
		log.Info().Msg("received signal, stopping...")
		return nil
	}

	model := tui.NewHarvestModel(reg, stats, ring, cfg.LogDir, cfg.RadioIface, cfg.WiredIface)
	p := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func newReportCmd(cfg *config.Config, cfgPath *string) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build an HTML report from the harvest logs on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if err := applySources(&c, resolveConfigPath(*cfgPath), changedFlags(cmd)); err != nil {
				return err
			}
			log := logging.New(os.Stderr, c.LogLevel)

			store, err := harvestlog.Open(c.LogDir)
			if err != nil {
				return err
			}
			stats, err := loadStats(store)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = c.LogDir
			}
			path, err := reporting.GenerateSessionReport(stats, outDir, "html")
			if err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			log.Info().Str("path", path).Int64("entries", stats.Total()).Msg("report written")
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "directory for the report (default: log dir)")
	return cmd
}

// loadStats replays every harvest log into a fresh aggregate.
func loadStats(store *harvestlog.Store) (*analysis.HarvestStats, error) {
	stats := analysis.NewHarvestStats()
	for _, name := range []string{harvestlog.ProbeLog, harvestlog.QueryLog, harvestlog.CredentialLog} {
		lines, err := store.ReadLines(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		for _, line := range lines {
			stats.Record(name, line)
		}
	}
	return stats, nil
}

func newInterfacesCmd() *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List capture interfaces and their likely role",
		RunE: func(cmd *cobra.Command, args []string) error {
			ifcs, err := discovery.Scan(&discovery.ScanConfig{OpenHandles: open})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, ifc := range ifcs {
				fmt.Fprintf(w, "%-12s %-9s %-17s %s\n", ifc.Name, ifc.Role, ifc.MAC, joinIPs(ifc))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "open each device to detect monitor mode (needs root)")
	return cmd
}

func joinIPs(ifc discovery.Interface) string {
	parts := make([]string, len(ifc.IPv4))
	for i, ip := range ifc.IPv4 {
		parts[i] = ip.String()
	}
	return strings.Join(parts, ",")
}
