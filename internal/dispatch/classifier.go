// Package dispatch routes captured frames to the engine that owns them.
package dispatch

import (
	"sync/atomic"

	"github.com/google/gopacket/layers"

	"harvester/internal/models"
	"harvester/internal/wire"
)

// ProbeRequestSubtype is the first frame-control byte of an 802.11 probe
// request (type 0, subtype 4).
const ProbeRequestSubtype = 0x40

const etherTypeOffset = 12

// ManagementHandler consumes probe-request payloads from the radio.
type ManagementHandler interface {
	OnManagementFrame(payload []byte, rssi int)
}

// WiredHandler consumes 802.1X frames from the wired link.
type WiredHandler interface {
	OnFrame(buf []byte)
}

type mgmtSlot struct{ h ManagementHandler }
type wiredSlot struct{ h WiredHandler }

// Classifier hands each frame to at most one handler. Each medium has a
// single handler slot; installing a handler replaces the previous one.
// Classify takes no locks so it can run on the radio capture path.
type Classifier struct {
	mgmt  atomic.Pointer[mgmtSlot]
	wired atomic.Pointer[wiredSlot]

	rejected atomic.Uint64
}

// New returns a classifier with no handlers installed.
func New() *Classifier {
	return &Classifier{}
}

// SetManagementHandler installs h for WiFi probe requests. nil removes it.
func (c *Classifier) SetManagementHandler(h ManagementHandler) {
	if h == nil {
		c.mgmt.Store(nil)
		return
	}
	c.mgmt.Store(&mgmtSlot{h: h})
}

// SetWiredHandler installs h for 802.1X frames. nil removes it.
func (c *Classifier) SetWiredHandler(h WiredHandler) {
	if h == nil {
		c.wired.Store(nil)
		return
	}
	c.wired.Store(&wiredSlot{h: h})
}

// Classify inspects f and dispatches it. It reports whether a handler
// received the frame.
func (c *Classifier) Classify(f models.CapturedFrame) bool {
	switch f.Medium {
	case models.MediumWiFi:
		if f.Class != models.ClassManagement {
			return c.reject()
		}
		if len(f.Data) == 0 || f.Data[0] != ProbeRequestSubtype {
			return c.reject()
		}
		slot := c.mgmt.Load()
		if slot == nil {
			return false
		}
		slot.h.OnManagementFrame(f.Data, f.RSSI)
		return true

	case models.MediumWired:
		et, ok := wire.Uint16(f.Data, etherTypeOffset)
		if !ok || layers.EthernetType(et) != layers.EthernetTypeEAPOL {
			return c.reject()
		}
		slot := c.wired.Load()
		if slot == nil {
			return false
		}
		slot.h.OnFrame(f.Data)
		return true
	}
	return c.reject()
}

// Handle adapts Classify to a ports.FrameFunc.
func (c *Classifier) Handle(f models.CapturedFrame) {
	c.Classify(f)
}

// Rejected returns how many frames were discarded by classification.
func (c *Classifier) Rejected() uint64 {
	return c.rejected.Load()
}

func (c *Classifier) reject() bool {
	c.rejected.Add(1)
	return false
}
