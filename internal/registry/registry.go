// Package registry owns the harvesting engines and the transports they
// share. Engines are started and stopped by name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"harvester/internal/config"
	"harvester/internal/dispatch"
	"harvester/internal/eap"
	"harvester/internal/harvestlog"
	"harvester/internal/llmnr"
	"harvester/internal/logging"
	"harvester/internal/ports"
	"harvester/internal/probe"
)

// ErrUnknownEngine is returned for names the registry does not hold.
var ErrUnknownEngine = errors.New("unknown engine")

// Engine names.
const (
	Probe = "probe"
	LLMNR = "llmnr"
	EAP   = "eap"
)

// Names lists the engines in display order.
var Names = []string{Probe, LLMNR, EAP}

// Deps are the collaborators shared by the engines.
type Deps struct {
	Radio  ports.Radio
	Link   ports.WiredLink
	Store  *harvestlog.Store
	Config *config.Store
	Logger zerolog.Logger
}

// Status is a point-in-time view of one engine.
type Status struct {
	Name     string
	Enabled  bool
	Running  bool
	Captured uint64
	Dropped  uint64
	Detail   string
}

// Registry holds exactly one instance of each engine.
type Registry struct {
	classifier *dispatch.Classifier
	probe      *probe.Engine
	llmnr      *llmnr.Listener
	eap        *eap.Engine
	cfg        *config.Store
	log        zerolog.Logger

	mu sync.Mutex
}

// New builds the engines. Nothing is started.
func New(d Deps) *Registry {
	classifier := dispatch.New()
	cfg := d.Config
	if cfg == nil {
		cfg = config.NewStore(config.DefaultConfig())
	}
	return &Registry{
		classifier: classifier,
		probe: probe.New(d.Radio, classifier, harvestlog.NonBlocking{Store: d.Store},
			logging.Component(d.Logger, Probe), probe.DefaultConfig()),
		llmnr: llmnr.New(d.Store, logging.Component(d.Logger, LLMNR), llmnr.DefaultConfig()),
		eap: eap.New(d.Link, classifier, d.Store,
			logging.Component(d.Logger, EAP), eap.DefaultConfig()),
		cfg: cfg,
		log: logging.Component(d.Logger, "registry"),
	}
}

// Classifier returns the shared frame classifier.
func (r *Registry) Classifier() *dispatch.Classifier { return r.classifier }

// Probe returns the probe engine.
func (r *Registry) Probe() *probe.Engine { return r.probe }

// Listener returns the query listener.
func (r *Registry) Listener() *llmnr.Listener { return r.llmnr }

// Authenticator returns the EAP engine.
func (r *Registry) Authenticator() *eap.Engine { return r.eap }

// Start applies the current configuration to the named engine and starts it.
func (r *Registry) Start(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.cfg.Snapshot()
	var err error
	switch name {
	case Probe:
		r.probe.Configure(probe.Config{
			HopInterval: cfg.HopInterval,
			MinChannel:  cfg.ChannelMin,
			MaxChannel:  cfg.ChannelMax,
		})
		err = r.probe.Start()
	case LLMNR:
		r.llmnr.Configure(llmnr.Config{
			Addr:      cfg.LLMNRAddr,
			Group:     cfg.LLMNRGroup,
			Interface: cfg.LLMNRIface,
		})
		err = r.llmnr.Start()
	case EAP:
		src, perr := cfg.AuthenticatorHardwareAddr()
		if perr != nil {
			return fmt.Errorf("start %s: %w", name, perr)
		}
		ecfg := eap.DefaultConfig()
		ecfg.SourceMAC = src
		r.eap.Configure(ecfg)
		err = r.eap.Start()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	if err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	return nil
}

// Stop stops the named engine.
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch name {
	case Probe:
		r.probe.Stop()
	case LLMNR:
		r.llmnr.Stop()
	case EAP:
		r.eap.Stop()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return nil
}

// Toggle starts a stopped engine or stops a running one.
func (r *Registry) Toggle(name string) error {
	running, err := r.running(name)
	if err != nil {
		return err
	}
	if running {
		return r.Stop(name)
	}
	return r.Start(name)
}

func (r *Registry) running(name string) (bool, error) {
	switch name {
	case Probe:
		return r.probe.IsRunning(), nil
	case LLMNR:
		return r.llmnr.IsRunning(), nil
	case EAP:
		return r.eap.IsRunning(), nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
}

func enabled(cfg config.Config, name string) bool {
	switch name {
	case Probe:
		return cfg.EnableProbe
	case LLMNR:
		return cfg.EnableLLMNR
	case EAP:
		return cfg.EnableEAP
	}
	return false
}

// StartEnabled starts every engine the configuration enables. A failing
// engine is logged and skipped; the joined errors are returned.
func (r *Registry) StartEnabled() error {
	cfg := r.cfg.Snapshot()
	var errs []error
	for _, name := range Names {
		if !enabled(cfg, name) {
			continue
		}
		if err := r.Start(name); err != nil {
			r.log.Error().Err(err).Str("engine", name).Msg("engine failed to start")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every engine.
func (r *Registry) StopAll() {
	for _, name := range Names {
		_ = r.Stop(name)
	}
	r.llmnr.Wait()
}

// Status returns a snapshot of every engine in display order.
func (r *Registry) Status() []Status {
	cfg := r.cfg.Snapshot()
	out := make([]Status, 0, len(Names))

	st := Status{Name: Probe, Enabled: cfg.EnableProbe, Running: r.probe.IsRunning(),
		Captured: r.probe.CapturedCount(), Dropped: r.probe.Dropped()}
	if st.Running {
		st.Detail = fmt.Sprintf("channel %d", r.probe.Channel())
	}
	out = append(out, st)

	st = Status{Name: LLMNR, Enabled: cfg.EnableLLMNR, Running: r.llmnr.IsRunning(),
		Captured: r.llmnr.PoisonedCount(), Dropped: r.llmnr.Dropped()}
	if addr := r.llmnr.LocalAddr(); addr != nil {
		st.Detail = addr.String()
	}
	out = append(out, st)

	st = Status{Name: EAP, Enabled: cfg.EnableEAP, Running: r.eap.IsRunning(),
		Captured: uint64(r.eap.CapturedCount()), Dropped: r.eap.Dropped()}
	if st.Running {
		st.Detail = r.eap.Phase().String()
	}
	out = append(out, st)

	return out
}

// Run drives the periodic work until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.Snapshot().TickInterval
	if interval <= 0 {
		interval = config.DefaultConfig().TickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.probe.Tick(now)
		}
	}
}
