// Package ports defines the collaborator interfaces the harvesting engines
// consume. Concrete adapters live in radio, wired, harvestlog and config.
package ports

import "harvester/internal/models"

// FrameFunc receives one captured frame. The frame's Data must not be
// retained after the call returns.
type FrameFunc func(models.CapturedFrame)

// CaptureFilter narrows what a radio delivers in promiscuous mode.
type CaptureFilter uint8

const (
	FilterAll CaptureFilter = iota
	FilterManagement
)

// Radio controls a WiFi interface in monitor mode.
type Radio interface {
	SetChannel(ch int) error
	EnablePromiscuous(filter CaptureFilter) error
	DisablePromiscuous() error
	// InstallCallback replaces the frame callback; nil removes it.
	InstallCallback(fn FrameFunc)
}

// WiredLink is the USB-presented Ethernet link.
type WiredLink interface {
	// SetFrameHandler replaces the receive handler; nil removes it.
	SetFrameHandler(fn FrameFunc)
	// Transmit sends one raw Ethernet frame. It reports false if the link is
	// not ready or the write failed.
	Transmit(frame []byte) bool
}

// Sink is the append-only harvest log. Append is fire-and-forget and
// reports whether the line was written.
type Sink interface {
	Append(logName string, line []byte) bool
}
