// Package probe harvests directed probe requests from a monitor-mode radio.
package probe

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"harvester/internal/dispatch"
	"harvester/internal/harvestlog"
	"harvester/internal/ports"
	"harvester/internal/wire"
)

const (
	mgmtHeaderLen = 24
	saOffset      = 10
	maxSSIDLen    = 32
	tagSSID       = 0

	// MAC (17) + escaped SSID (32*4) + RSSI (4) + separators
	lineCap = 160
)

// Config controls channel hopping.
type Config struct {
	HopInterval time.Duration
	MinChannel  int
	MaxChannel  int
	LogName     string
}

// DefaultConfig hops channels 1-13 every 500ms.
func DefaultConfig() Config {
	return Config{
		HopInterval: 500 * time.Millisecond,
		MinChannel:  1,
		MaxChannel:  13,
		LogName:     harvestlog.ProbeLog,
	}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.HopInterval <= 0 {
		cfg.HopInterval = def.HopInterval
	}
	if cfg.MinChannel <= 0 {
		cfg.MinChannel = def.MinChannel
	}
	if cfg.MaxChannel < cfg.MinChannel {
		cfg.MaxChannel = def.MaxChannel
	}
	if cfg.LogName == "" {
		cfg.LogName = def.LogName
	}
	return cfg
}

// cursor is only touched by Start and Tick, both under Engine.mu.
type cursor struct {
	channel int
	lastHop time.Time
}

// Engine walks radio channels and logs every directed probe request.
type Engine struct {
	radio      ports.Radio
	classifier *dispatch.Classifier
	sink       ports.Sink
	log        zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	cfg    Config
	cursor cursor

	running  atomic.Bool
	captured atomic.Uint64
	dropped  atomic.Uint64

	// scratch is reused by OnManagementFrame, which the radio calls from a
	// single capture goroutine.
	scratch [lineCap]byte
}

// New wires an engine to its radio, classifier and sink. The sink should not
// block; see harvestlog.NonBlocking.
func New(radio ports.Radio, classifier *dispatch.Classifier, sink ports.Sink, logger zerolog.Logger, cfg Config) *Engine {
	cfg = applyDefaults(cfg)
	return &Engine{
		radio:      radio,
		classifier: classifier,
		sink:       sink,
		log:        logger,
		now:        time.Now,
		cfg:        cfg,
		cursor:     cursor{channel: cfg.MinChannel},
	}
}

// Name identifies the engine in the registry.
func (e *Engine) Name() string { return "probe" }

// Configure replaces the hop settings. It has no effect while running.
func (e *Engine) Configure(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		return
	}
	e.cfg = applyDefaults(cfg)
}

// Start enables management-frame capture and tunes to the first channel.
// A radio failure is logged and leaves the engine stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		return nil
	}

	e.log.Info().Msg("starting probe sentinel")
	e.classifier.SetManagementHandler(e)
	e.radio.InstallCallback(e.classifier.Handle)

	if err := e.radio.EnablePromiscuous(ports.FilterManagement); err != nil {
		e.log.Error().Err(err).Msg("radio init failed")
		e.detach()
		return err
	}
	if err := e.radio.SetChannel(e.cfg.MinChannel); err != nil {
		e.log.Error().Err(err).Int("channel", e.cfg.MinChannel).Msg("radio init failed")
		_ = e.radio.DisablePromiscuous()
		e.detach()
		return err
	}

	e.cursor = cursor{channel: e.cfg.MinChannel, lastHop: e.now()}
	e.captured.Store(0)
	e.running.Store(true)
	return nil
}

// Stop disables capture. It is safe to call when stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Load() {
		return
	}
	e.running.Store(false)
	if err := e.radio.DisablePromiscuous(); err != nil {
		e.log.Warn().Err(err).Msg("disable promiscuous")
	}
	e.detach()
	e.log.Info().Uint64("captured", e.captured.Load()).Msg("probe sentinel stopped")
}

func (e *Engine) detach() {
	e.radio.InstallCallback(nil)
	e.classifier.SetManagementHandler(nil)
}

// IsRunning reports whether capture is enabled.
func (e *Engine) IsRunning() bool { return e.running.Load() }

// CapturedCount returns how many probe records were emitted since Start.
func (e *Engine) CapturedCount() uint64 { return e.captured.Load() }

// Dropped returns how many frames were discarded as malformed or unlogged.
func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

// Channel returns the channel the radio is tuned to.
func (e *Engine) Channel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor.channel
}

// Tick advances the channel once the hop interval has elapsed.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Load() {
		return
	}
	if now.Sub(e.cursor.lastHop) < e.cfg.HopInterval {
		return
	}
	e.cursor.lastHop = now
	e.cursor.channel++
	if e.cursor.channel > e.cfg.MaxChannel {
		e.cursor.channel = e.cfg.MinChannel
	}
	if err := e.radio.SetChannel(e.cursor.channel); err != nil {
		e.log.Debug().Err(err).Int("channel", e.cursor.channel).Msg("retune failed")
	}
}

// OnManagementFrame parses a probe request and logs a directed SSID.
// It never blocks and never panics on malformed input.
func (e *Engine) OnManagementFrame(payload []byte, rssi int) {
	ssid, ok := directedSSID(payload)
	if !ok {
		e.dropped.Add(1)
		return
	}
	sa, _ := wire.Slice(payload, saOffset, 6)

	line := wire.AppendMAC(e.scratch[:0], sa)
	line = append(line, ',')
	line = wire.AppendField(line, ssid)
	line = append(line, ',')
	line = strconv.AppendInt(line, int64(rssi), 10)

	e.captured.Add(1)
	if !e.sink.Append(e.cfg.LogName, line) {
		e.dropped.Add(1)
	}
}

// directedSSID walks the information elements after the management header
// and returns the SSID element's value if it is non-empty and well formed.
func directedSSID(payload []byte) ([]byte, bool) {
	if len(payload) < mgmtHeaderLen {
		return nil, false
	}
	off := mgmtHeaderLen
	for {
		tag, ok := wire.Uint8(payload, off)
		if !ok {
			return nil, false
		}
		n, ok := wire.Uint8(payload, off+1)
		if !ok {
			return nil, false
		}
		value, ok := wire.Slice(payload, off+2, int(n))
		if !ok {
			return nil, false
		}
		if tag == tagSSID {
			if n == 0 || n > maxSSIDLen {
				return nil, false
			}
			return value, true
		}
		off += 2 + int(n)
	}
}
