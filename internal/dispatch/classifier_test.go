package dispatch

import (
	"testing"

	"harvester/internal/models"
)

type mgmtRecorder struct {
	payloads [][]byte
	rssi     []int
}

func (m *mgmtRecorder) OnManagementFrame(payload []byte, rssi int) {
	m.payloads = append(m.payloads, payload)
	m.rssi = append(m.rssi, rssi)
}

type wiredRecorder struct{ frames [][]byte }

func (w *wiredRecorder) OnFrame(buf []byte) { w.frames = append(w.frames, buf) }

func TestClassifyWiFi(t *testing.T) {
	c := New()
	rec := &mgmtRecorder{}
	c.SetManagementHandler(rec)

	tests := []struct {
		name  string
		frame models.CapturedFrame
		want  bool
	}{
		{"probe request", models.CapturedFrame{Medium: models.MediumWiFi, Class: models.ClassManagement, Data: []byte{0x40, 0x00}, RSSI: -40}, true},
		{"beacon", models.CapturedFrame{Medium: models.MediumWiFi, Class: models.ClassManagement, Data: []byte{0x80, 0x00}}, false},
		{"probe response", models.CapturedFrame{Medium: models.MediumWiFi, Class: models.ClassManagement, Data: []byte{0x50}}, false},
		{"data frame", models.CapturedFrame{Medium: models.MediumWiFi, Class: models.ClassData, Data: []byte{0x40}}, false},
		{"empty", models.CapturedFrame{Medium: models.MediumWiFi, Class: models.ClassManagement}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.frame); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}

	if len(rec.payloads) != 1 || rec.rssi[0] != -40 {
		t.Fatalf("handler got %d payloads (rssi %v), want 1 at -40", len(rec.payloads), rec.rssi)
	}
	if c.Rejected() != 4 {
		t.Errorf("Rejected() = %d, want 4", c.Rejected())
	}
}

func TestClassifyWired(t *testing.T) {
	c := New()
	rec := &wiredRecorder{}
	c.SetWiredHandler(rec)

	eapol := make([]byte, 18)
	eapol[12], eapol[13] = 0x88, 0x8e
	ipv4 := make([]byte, 60)
	ipv4[12], ipv4[13] = 0x08, 0x00

	if !c.Classify(models.CapturedFrame{Medium: models.MediumWired, Data: eapol}) {
		t.Error("EAPOL frame was not dispatched")
	}
	if c.Classify(models.CapturedFrame{Medium: models.MediumWired, Data: ipv4}) {
		t.Error("IPv4 frame was dispatched")
	}
	if c.Classify(models.CapturedFrame{Medium: models.MediumWired, Data: eapol[:13]}) {
		t.Error("truncated frame was dispatched")
	}
	if len(rec.frames) != 1 {
		t.Errorf("handler got %d frames, want 1", len(rec.frames))
	}
}

func TestHandlerReplacement(t *testing.T) {
	c := New()
	first, second := &wiredRecorder{}, &wiredRecorder{}
	frame := make([]byte, 18)
	frame[12], frame[13] = 0x88, 0x8e

	c.SetWiredHandler(first)
	c.SetWiredHandler(second)
	c.Classify(models.CapturedFrame{Medium: models.MediumWired, Data: frame})
	if len(first.frames) != 0 || len(second.frames) != 1 {
		t.Fatalf("first=%d second=%d, want 0 and 1", len(first.frames), len(second.frames))
	}

	c.SetWiredHandler(nil)
	if c.Classify(models.CapturedFrame{Medium: models.MediumWired, Data: frame}) {
		t.Error("frame dispatched after handler removal")
	}
}
