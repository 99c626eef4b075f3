// Package wired drives the Ethernet link the host sees over USB.
package wired

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"

	"harvester/internal/models"
	"harvester/internal/ports"
)

const (
	snaplen   = 1600
	eapolBPF  = "ether proto 0x888e"
	dumpFlags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
)

// ErrNotReady is returned when the link has not been opened.
var ErrNotReady = errors.New("wired link not ready")

// Handle is the subset of *pcap.Handle the link uses.
type Handle interface {
	ZeroCopyReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	WritePacketData([]byte) error
	Close()
}

type handler struct{ fn ports.FrameFunc }

// Link implements ports.WiredLink over a pcap handle.
type Link struct {
	iface    string
	dumpPath string
	log      zerolog.Logger

	mu     sync.Mutex
	handle Handle
	done   chan struct{}
	dump   *pcapgo.Writer
	dumpF  io.Closer
	dumpMu sync.Mutex

	h       atomic.Pointer[handler]
	txFails atomic.Uint64
}

// NewLink returns a closed link for iface. A non-empty dumpPath records
// every EAPOL frame seen or sent to a pcap file.
func NewLink(iface, dumpPath string, logger zerolog.Logger) *Link {
	return &Link{iface: iface, dumpPath: dumpPath, log: logger}
}

// Open starts capturing EAPOL frames on the interface.
func (l *Link) Open() error {
	if l.iface == "" {
		return fmt.Errorf("open: %w", ErrNotReady)
	}
	handle, err := pcap.OpenLive(l.iface, snaplen, true, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.iface, err)
	}
	if err := configure(handle); err != nil {
		handle.Close()
		return err
	}
	return l.attach(handle)
}

// filterer is the part of *pcap.Handle configure needs.
type filterer interface {
	SetBPFFilter(expr string) error
	SetDirection(dir pcap.Direction) error
}

// configure limits capture to inbound EAPOL. Frames we inject are recorded
// by Transmit and must not come back through the capture loop.
func configure(h filterer) error {
	if err := h.SetBPFFilter(eapolBPF); err != nil {
		return fmt.Errorf("set filter: %w", err)
	}
	if err := h.SetDirection(pcap.DirectionIn); err != nil {
		return fmt.Errorf("set direction: %w", err)
	}
	return nil
}

// attach takes ownership of an open handle.
func (l *Link) attach(handle Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil {
		handle.Close()
		return nil
	}
	if l.dumpPath != "" {
		if err := l.openDump(); err != nil {
			l.log.Warn().Err(err).Str("path", l.dumpPath).Msg("frame dump disabled")
		}
	}
	l.handle = handle
	l.done = make(chan struct{})
	go l.capture(handle, l.done)
	l.log.Info().Str("iface", l.iface).Msg("wired link open")
	return nil
}

func (l *Link) openDump() error {
	f, err := os.OpenFile(l.dumpPath, dumpFlags, 0o600)
	if err != nil {
		return err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return err
	}
	l.dumpMu.Lock()
	l.dump, l.dumpF = w, f
	l.dumpMu.Unlock()
	return nil
}

// Close stops the capture goroutine and releases the handle.
func (l *Link) Close() {
	l.mu.Lock()
	handle, done := l.handle, l.done
	l.handle, l.done = nil, nil
	l.mu.Unlock()
	if handle == nil {
		return
	}
	handle.Close()
	<-done

	l.dumpMu.Lock()
	if l.dumpF != nil {
		l.dumpF.Close()
	}
	l.dump, l.dumpF = nil, nil
	l.dumpMu.Unlock()
}

// SetFrameHandler replaces the receive handler; nil removes it.
func (l *Link) SetFrameHandler(fn ports.FrameFunc) {
	if fn == nil {
		l.h.Store(nil)
		return
	}
	l.h.Store(&handler{fn: fn})
}

// Transmit writes one raw frame to the wire.
func (l *Link) Transmit(frame []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle == nil {
		l.txFails.Add(1)
		return false
	}
	if err := l.handle.WritePacketData(frame); err != nil {
		l.txFails.Add(1)
		l.log.Debug().Err(err).Msg("transmit failed")
		return false
	}
	l.record(frame)
	return true
}

// TransmitFailures returns how many Transmit calls reported false.
func (l *Link) TransmitFailures() uint64 { return l.txFails.Load() }

func (l *Link) capture(handle Handle, done chan struct{}) {
	defer close(done)
	for {
		data, _, err := handle.ZeroCopyReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			l.log.Debug().Err(err).Msg("capture loop ended")
			return
		}
		l.record(data)
		if h := l.h.Load(); h != nil {
			h.fn(models.CapturedFrame{Medium: models.MediumWired, Data: data})
		}
	}
}

func (l *Link) record(frame []byte) {
	l.dumpMu.Lock()
	defer l.dumpMu.Unlock()
	if l.dump == nil {
		return
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := l.dump.WritePacket(ci, frame); err != nil {
		l.log.Debug().Err(err).Msg("dump write failed")
	}
}
