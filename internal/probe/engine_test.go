package probe

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"harvester/internal/dispatch"
	"harvester/internal/models"
	"harvester/internal/ports"
)

type fakeRadio struct {
	channels    []int
	promiscuous bool
	enables     int
	callback    ports.FrameFunc
	installs    int
	enableErr   error
}

func (r *fakeRadio) SetChannel(ch int) error {
	r.channels = append(r.channels, ch)
	return nil
}

func (r *fakeRadio) EnablePromiscuous(ports.CaptureFilter) error {
	if r.enableErr != nil {
		return r.enableErr
	}
	r.enables++
	r.promiscuous = true
	return nil
}

func (r *fakeRadio) DisablePromiscuous() error {
	r.promiscuous = false
	return nil
}

func (r *fakeRadio) InstallCallback(fn ports.FrameFunc) {
	r.callback = fn
	if fn != nil {
		r.installs++
	}
}

type fakeSink struct {
	lines map[string][]string
}

func (s *fakeSink) Append(name string, line []byte) bool {
	if s.lines == nil {
		s.lines = map[string][]string{}
	}
	s.lines[name] = append(s.lines[name], string(line))
	return true
}

func newTestEngine(t *testing.T) (*Engine, *fakeRadio, *fakeSink) {
	t.Helper()
	radio := &fakeRadio{}
	sink := &fakeSink{}
	e := New(radio, dispatch.New(), sink, zerolog.Nop(), DefaultConfig())
	return e, radio, sink
}

// probeRequest builds a management frame with the given source address and
// information elements appended after the 24-byte header.
func probeRequest(sa []byte, elements ...[]byte) []byte {
	frame := make([]byte, mgmtHeaderLen)
	frame[0] = dispatch.ProbeRequestSubtype
	copy(frame[saOffset:], sa)
	for _, el := range elements {
		frame = append(frame, el...)
	}
	return frame
}

func ssidElement(name string) []byte {
	return append([]byte{tagSSID, byte(len(name))}, name...)
}

var clientMAC = []byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}

func TestProbeRecordForEveryNameLength(t *testing.T) {
	for l := 0; l <= 33; l++ {
		e, _, sink := newTestEngine(t)
		name := strings.Repeat("n", l)
		e.OnManagementFrame(probeRequest(clientMAC, ssidElement(name)), -50)

		got := len(sink.lines[DefaultConfig().LogName])
		want := 0
		if l >= 1 && l <= 32 {
			want = 1
		}
		if got != want {
			t.Errorf("name length %d: %d records, want %d", l, got, want)
		}
		if want == 1 {
			line := sink.lines[DefaultConfig().LogName][0]
			if line != "02:11:22:33:44:55,"+name+",-50" {
				t.Errorf("name length %d: line %q", l, line)
			}
		}
	}
}

func TestSSIDCannotForgeRecords(t *testing.T) {
	tests := []struct {
		name string
		ssid string
		want string
	}{
		{"newline", "x\nDE:AD:BE:EF:00:01,CorpVPN,-1", `02:11:22:33:44:55,x\x0ADE:AD:BE:EF:00:01\x2CCorpVPN\x2C-1,-40`},
		{"carriage return", "lab\r", `02:11:22:33:44:55,lab\x0D,-40`},
		{"comma", "guest,free", `02:11:22:33:44:55,guest\x2Cfree,-40`},
		{"all escaped", strings.Repeat("\n", 32), "02:11:22:33:44:55," + strings.Repeat(`\x0A`, 32) + ",-40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, sink := newTestEngine(t)
			e.OnManagementFrame(probeRequest(clientMAC, ssidElement(tt.ssid)), -40)

			lines := sink.lines[DefaultConfig().LogName]
			if len(lines) != 1 || lines[0] != tt.want {
				t.Fatalf("lines = %q, want [%q]", lines, tt.want)
			}
			if strings.ContainsAny(lines[0], "\r\n") || strings.Count(lines[0], ",") != 2 {
				t.Errorf("record %q has extra separators", lines[0])
			}
		})
	}
}

func TestTruncatedFramesAreDropped(t *testing.T) {
	e, _, sink := newTestEngine(t)
	full := probeRequest(clientMAC, ssidElement("corp-wifi"))

	for cut := 0; cut < len(full); cut++ {
		e.OnManagementFrame(full[:cut], -60)
	}
	if n := len(sink.lines); n != 0 {
		t.Fatalf("truncated frames produced %d logs", n)
	}
	if e.Dropped() != uint64(len(full)) {
		t.Errorf("Dropped() = %d, want %d", e.Dropped(), len(full))
	}
	if e.CapturedCount() != 0 {
		t.Errorf("CapturedCount() = %d, want 0", e.CapturedCount())
	}
}

func TestSSIDAfterOtherElements(t *testing.T) {
	e, _, sink := newTestEngine(t)
	rates := []byte{0x01, 0x04, 0x02, 0x04, 0x0b, 0x16}
	e.OnManagementFrame(probeRequest(clientMAC, rates, ssidElement("lab")), -33)

	lines := sink.lines[DefaultConfig().LogName]
	if len(lines) != 1 || !strings.HasSuffix(lines[0], ",lab,-33") {
		t.Fatalf("lines = %v", lines)
	}
	if e.CapturedCount() != 1 {
		t.Errorf("CapturedCount() = %d, want 1", e.CapturedCount())
	}
}

func TestStartIsIdempotent(t *testing.T) {
	e, radio, _ := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.OnManagementFrame(probeRequest(clientMAC, ssidElement("a")), -1)
	if err := e.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if radio.installs != 1 || radio.enables != 1 {
		t.Errorf("installs=%d enables=%d, want 1 and 1", radio.installs, radio.enables)
	}
	if e.CapturedCount() != 1 {
		t.Errorf("counter reset by second Start: %d", e.CapturedCount())
	}
	if len(radio.channels) != 1 || radio.channels[0] != 1 {
		t.Errorf("channels = %v, want [1]", radio.channels)
	}
}

func TestStartFailureLeavesEngineStopped(t *testing.T) {
	e, radio, _ := newTestEngine(t)
	radio.enableErr = errors.New("no monitor interface")

	if err := e.Start(); err == nil {
		t.Fatal("Start succeeded with a broken radio")
	}
	if e.IsRunning() {
		t.Error("engine running after failed start")
	}
	if radio.callback != nil {
		t.Error("callback left installed after failed start")
	}
}

func TestRadioCallbackReachesEngine(t *testing.T) {
	e, radio, sink := newTestEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	radio.callback(models.CapturedFrame{
		Medium: models.MediumWiFi,
		Class:  models.ClassManagement,
		Data:   probeRequest(clientMAC, ssidElement("guest")),
		RSSI:   -70,
	})
	if len(sink.lines[DefaultConfig().LogName]) != 1 {
		t.Fatalf("callback did not produce a record: %v", sink.lines)
	}

	e.Stop()
	if radio.callback != nil || radio.promiscuous {
		t.Error("Stop left capture enabled")
	}
	e.Stop()
}

func TestTickWrapsAndRespectsInterval(t *testing.T) {
	e, radio, _ := newTestEngine(t)
	base := time.Unix(1000, 0)
	e.now = func() time.Time { return base }
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.Tick(base.Add(499 * time.Millisecond))
	if e.Channel() != 1 {
		t.Fatalf("channel hopped before interval: %d", e.Channel())
	}

	e.Tick(base.Add(500 * time.Millisecond))
	if e.Channel() != 2 {
		t.Fatalf("channel = %d after qualifying tick, want 2", e.Channel())
	}

	e.mu.Lock()
	e.cursor.channel = 13
	e.mu.Unlock()
	e.Tick(base.Add(time.Second))
	if e.Channel() != 1 {
		t.Errorf("channel = %d after wrap, want 1", e.Channel())
	}
	if last := radio.channels[len(radio.channels)-1]; last != 1 {
		t.Errorf("radio retuned to %d, want 1", last)
	}

	e.Tick(base.Add(time.Second + 100*time.Millisecond))
	if e.Channel() != 1 {
		t.Errorf("tick within interval changed channel to %d", e.Channel())
	}
}

func TestTickIgnoredWhenStopped(t *testing.T) {
	e, radio, _ := newTestEngine(t)
	e.Tick(time.Now().Add(time.Hour))
	if len(radio.channels) != 0 {
		t.Errorf("stopped engine retuned radio: %v", radio.channels)
	}
}
