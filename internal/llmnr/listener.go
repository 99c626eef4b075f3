// Package llmnr passively records link-local name resolution queries.
//
// The listener joins the LLMNR multicast group and logs every standard
// query it sees. It never answers.
package llmnr

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"harvester/internal/harvestlog"
	"harvester/internal/ports"
	"harvester/internal/wire"
)

// Config controls where the listener binds.
type Config struct {
	// Addr is the UDP address to bind. Defaults to ":5355".
	Addr string
	// Group is the multicast group to join. Defaults to 224.0.0.252.
	Group string
	// Interface names the interface used for the group join; empty lets
	// the kernel choose.
	Interface string
	LogName   string
}

// DefaultConfig binds the wildcard address on the LLMNR port.
func DefaultConfig() Config {
	return Config{
		Addr:    ":5355",
		Group:   "224.0.0.252",
		LogName: harvestlog.QueryLog,
	}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Group == "" {
		cfg.Group = def.Group
	}
	if cfg.LogName == "" {
		cfg.LogName = def.LogName
	}
	return cfg
}

// Listener runs a blocking receive loop on its own goroutine.
type Listener struct {
	sink ports.Sink
	log  zerolog.Logger

	mu   sync.Mutex
	cfg  Config
	conn *net.UDPConn
	done chan struct{}

	running  atomic.Bool
	poisoned atomic.Uint64
	dropped  atomic.Uint64
}

// New returns a stopped listener.
func New(sink ports.Sink, logger zerolog.Logger, cfg Config) *Listener {
	return &Listener{
		sink: sink,
		log:  logger,
		cfg:  applyDefaults(cfg),
	}
}

func (l *Listener) Name() string { return "llmnr" }

// Configure replaces the bind settings. Ignored while running.
func (l *Listener) Configure(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running.Load() {
		return
	}
	l.cfg = applyDefaults(cfg)
}

// Start launches serve on a new goroutine. Bind failures surface in the log
// and leave the listener stopped.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running.Load() {
		return nil
	}
	l.log.Info().Str("addr", l.cfg.Addr).Msg("starting query listener")
	l.running.Store(true)
	l.poisoned.Store(0)
	l.done = make(chan struct{})
	go l.serve(l.cfg, l.done)
	return nil
}

// Stop clears the running flag and closes the socket, which unblocks the
// pending receive.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running.Load() {
		return
	}
	l.log.Info().Msg("stopping query listener")
	l.running.Store(false)
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
}

// Wait blocks until the current serve loop has exited.
func (l *Listener) Wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (l *Listener) IsRunning() bool { return l.running.Load() }

// PoisonedCount returns how many queries were recorded since Start.
func (l *Listener) PoisonedCount() uint64 { return l.poisoned.Load() }

// Dropped returns how many datagrams were ignored.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

// LocalAddr returns the bound address, or nil if not bound.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *Listener) bind(cfg Config) (*net.UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", cfg.Addr, err)
	}
	return conn, nil
}

func (l *Listener) join(conn *net.UDPConn, cfg Config) error {
	group := net.ParseIP(cfg.Group)
	if group == nil {
		return fmt.Errorf("invalid group %q", cfg.Group)
	}
	var ifi *net.Interface
	if cfg.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(cfg.Interface); err != nil {
			return err
		}
	}
	return ipv4.NewPacketConn(conn).JoinGroup(ifi, &net.UDPAddr{IP: group})
}

// serve owns one run of the listener. done identifies the run: a Stop and
// Start in quick succession leaves a stale run that must not touch the
// listener's state.
func (l *Listener) serve(cfg Config, done chan struct{}) {
	defer close(done)

	conn, err := l.bind(cfg)
	if err != nil {
		l.log.Error().Err(err).Msg("unable to bind listener")
		l.finish(done, nil)
		return
	}

	l.mu.Lock()
	if l.done != done || !l.running.Load() {
		l.mu.Unlock()
		conn.Close()
		return
	}
	l.conn = conn
	l.mu.Unlock()

	if err := l.join(conn, cfg); err != nil {
		l.log.Warn().Err(err).Str("group", cfg.Group).Msg("failed to join multicast group, continuing")
	}
	l.log.Info().Str("addr", conn.LocalAddr().String()).Msg("listening for LLMNR queries")

	var (
		rx   [maxDatagram]byte
		name [maxNameLen]byte
	)
	for l.running.Load() {
		n, src, err := conn.ReadFromUDP(rx[:])
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Error().Err(err).Msg("receive failed, listener stopped")
			}
			break
		}
		l.handle(cfg, rx[:n], src, name[:0])
	}
	l.finish(done, conn)
}

// finish marks the run stopped if it is still the current one.
func (l *Listener) finish(done chan struct{}, conn *net.UDPConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if l.done != done {
		return
	}
	l.running.Store(false)
	if l.conn == conn {
		l.conn = nil
	}
}

func (l *Listener) handle(cfg Config, datagram []byte, src *net.UDPAddr, scratch []byte) {
	name, ok := parseQuery(scratch, datagram)
	if !ok {
		l.dropped.Add(1)
		return
	}
	sender := src.IP.String()

	l.log.Info().Str("name", string(name)).Str("from", sender).Msg("LLMNR query")
	line := make([]byte, 0, len(name)+1+len(sender))
	line = wire.AppendField(line, name)
	line = append(append(line, ','), sender...)
	if !l.sink.Append(cfg.LogName, line) {
		l.log.Warn().Str("log", cfg.LogName).Msg("query not persisted")
	}
	l.poisoned.Add(1)
}
