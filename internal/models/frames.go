package models

import (
	"time"

	"harvester/internal/wire"
)

// Medium identifies the physical medium a frame was captured on.
type Medium uint8

const (
	MediumWiFi Medium = iota + 1
	MediumWired
)

func (m Medium) String() string {
	switch m {
	case MediumWiFi:
		return "wifi"
	case MediumWired:
		return "wired"
	default:
		return "unknown"
	}
}

// FrameClass is the 802.11 frame type as declared by the radio driver.
// It is meaningless for wired frames.
type FrameClass uint8

const (
	ClassManagement FrameClass = 0
	ClassControl    FrameClass = 1
	ClassData       FrameClass = 2
	ClassExtension  FrameClass = 3
)

// CapturedFrame is a view of one frame as delivered by a transport.
// Data is owned by the transport and is only valid for the duration of the
// callback that delivers it.
type CapturedFrame struct {
	Medium Medium
	Class  FrameClass
	Data   []byte
	RSSI   int
}

// CapturedCredential is a completed EAP-MD5 challenge/response exchange.
type CapturedCredential struct {
	HardwareAddr string
	Identity     string
	Challenge    string // uppercase hex of the challenge we issued
	Response     string // uppercase hex of the peer's response
	CapturedAt   time.Time
}

// Line renders the credential in the exfil log format. The identity is
// peer-supplied and is escaped.
func (c CapturedCredential) Line() string {
	return c.HardwareAddr + "," + wire.Field(c.Identity) + "," + c.Challenge + "," + c.Response
}
