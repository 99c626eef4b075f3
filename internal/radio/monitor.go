// Package radio drives a monitor-mode WiFi interface through libpcap.
package radio

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/rs/zerolog"

	"harvester/internal/models"
	"harvester/internal/ports"
)

const (
	snaplen        = 2048
	radiotapMinLen = 8
)

var filters = map[ports.CaptureFilter]string{
	ports.FilterAll:        "",
	ports.FilterManagement: "type mgt",
}

// Commander runs an external command. Tests replace it.
type Commander func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w (%s)", name, args, err, out)
	}
	return nil
}

type callback struct{ fn ports.FrameFunc }

// Monitor implements ports.Radio on a Linux interface.
type Monitor struct {
	iface        string
	prepareIface bool
	log          zerolog.Logger
	run          Commander

	mu     sync.Mutex
	handle *pcap.Handle
	done   chan struct{}

	cb atomic.Pointer[callback]
}

// NewMonitor returns a radio bound to iface. If prepare is set the
// interface is switched to monitor mode when capture is enabled.
func NewMonitor(iface string, prepare bool, logger zerolog.Logger) *Monitor {
	return &Monitor{
		iface:        iface,
		prepareIface: prepare,
		log:          logger,
		run:          runCommand,
	}
}

// SetChannel retunes the interface.
func (m *Monitor) SetChannel(ch int) error {
	return m.run("iw", "dev", m.iface, "set", "channel", strconv.Itoa(ch))
}

// EnableMonitorMode puts the interface in monitor mode.
func (m *Monitor) EnableMonitorMode() error {
	steps := [][]string{
		{"ip", "link", "set", m.iface, "down"},
		{"iw", "dev", m.iface, "set", "type", "monitor"},
		{"ip", "link", "set", m.iface, "up"},
	}
	for _, s := range steps {
		if err := m.run(s[0], s[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// EnablePromiscuous opens the capture handle and starts delivering frames
// to the installed callback.
func (m *Monitor) EnablePromiscuous(filter ports.CaptureFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		return nil
	}
	if m.iface == "" {
		return errors.New("radio: no interface configured")
	}
	if m.prepareIface {
		if err := m.EnableMonitorMode(); err != nil {
			return fmt.Errorf("monitor mode: %w", err)
		}
	}

	handle, err := pcap.OpenLive(m.iface, snaplen, true, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("open %s: %w", m.iface, err)
	}
	if handle.LinkType() != layers.LinkTypeIEEE80211Radio {
		handle.Close()
		return fmt.Errorf("%s is not in monitor mode (link type %v)", m.iface, handle.LinkType())
	}
	if bpf := filters[filter]; bpf != "" {
		if err := handle.SetBPFFilter(bpf); err != nil {
			handle.Close()
			return fmt.Errorf("set filter %q: %w", bpf, err)
		}
	}

	m.handle = handle
	m.done = make(chan struct{})
	go m.capture(handle, m.done)
	m.log.Info().Str("iface", m.iface).Msg("promiscuous capture enabled")
	return nil
}

// DisablePromiscuous closes the capture handle and waits for the capture
// goroutine to exit.
func (m *Monitor) DisablePromiscuous() error {
	m.mu.Lock()
	handle, done := m.handle, m.done
	m.handle, m.done = nil, nil
	m.mu.Unlock()
	if handle == nil {
		return nil
	}
	handle.Close()
	<-done
	return nil
}

// InstallCallback sets the function frames are delivered to.
func (m *Monitor) InstallCallback(fn ports.FrameFunc) {
	if fn == nil {
		m.cb.Store(nil)
		return
	}
	m.cb.Store(&callback{fn: fn})
}

func (m *Monitor) capture(handle *pcap.Handle, done chan struct{}) {
	defer close(done)
	var rt layers.RadioTap
	for {
		data, _, err := handle.ZeroCopyReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			m.log.Debug().Err(err).Msg("capture loop ended")
			return
		}
		frame, ok := decodeFrame(&rt, data)
		if !ok {
			continue
		}
		if cb := m.cb.Load(); cb != nil {
			cb.fn(frame)
		}
	}
}

// decodeFrame strips the radiotap header and classifies the 802.11 frame.
func decodeFrame(rt *layers.RadioTap, data []byte) (models.CapturedFrame, bool) {
	if len(data) < radiotapMinLen {
		return models.CapturedFrame{}, false
	}
	if hdrLen := int(data[2]) | int(data[3])<<8; hdrLen < radiotapMinLen || hdrLen > len(data) {
		return models.CapturedFrame{}, false
	}
	if err := decodeRadiotap(rt, data); err != nil {
		return models.CapturedFrame{}, false
	}
	dot11 := rt.Payload
	if rt.Flags.FCS() && len(dot11) >= 4 {
		dot11 = dot11[:len(dot11)-4]
	}
	if len(dot11) == 0 {
		return models.CapturedFrame{}, false
	}
	return models.CapturedFrame{
		Medium: models.MediumWiFi,
		Class:  models.FrameClass((dot11[0] >> 2) & 0x3),
		Data:   dot11,
		RSSI:   int(rt.DBMAntennaSignal),
	}, true
}

// decodeRadiotap turns a panic on a malformed present bitmap into an error.
// The decoder reads present fields without checking them against the
// header length.
func decodeRadiotap(rt *layers.RadioTap, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("radiotap: %v", r)
		}
	}()
	return rt.DecodeFromBytes(data, gopacket.NilDecodeFeedback)
}
