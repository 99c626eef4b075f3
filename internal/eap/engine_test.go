package eap

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog"

	"harvester/internal/dispatch"
	"harvester/internal/models"
	"harvester/internal/ports"
)

type fakeLink struct {
	handler ports.FrameFunc
	sent    [][]byte
	down    bool
}

func (l *fakeLink) SetFrameHandler(fn ports.FrameFunc) { l.handler = fn }

func (l *fakeLink) Transmit(frame []byte) bool {
	if l.down {
		return false
	}
	l.sent = append(l.sent, append([]byte(nil), frame...))
	return true
}

// deliver pushes a frame through the installed handler as the link would.
func (l *fakeLink) deliver(frame []byte) {
	if l.handler != nil {
		l.handler(models.CapturedFrame{Medium: models.MediumWired, Data: frame})
	}
}

type fakeSink struct{ lines []string }

func (s *fakeSink) Append(_ string, line []byte) bool {
	s.lines = append(s.lines, string(line))
	return true
}

var victim = [6]byte{0x3c, 0x22, 0xfb, 0x01, 0x02, 0x03}

func newStartedEngine(t *testing.T) (*Engine, *fakeLink, *fakeSink) {
	t.Helper()
	link := &fakeLink{}
	sink := &fakeSink{}
	e := New(link, dispatch.New(), sink, zerolog.Nop(), DefaultConfig())
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return e, link, sink
}

func eapolFrame(src [6]byte, typ layers.EAPOLType, body []byte) []byte {
	f := make([]byte, 18, 18+len(body))
	copy(f[0:6], DefaultAuthenticatorMAC[:])
	copy(f[6:12], src[:])
	f[12], f[13] = 0x88, 0x8e
	f[14] = 1
	f[15] = byte(typ)
	f[16], f[17] = byte(len(body)>>8), byte(len(body))
	return append(f, body...)
}

func identityResponse(src [6]byte, id uint8, identity string) []byte {
	n := 5 + len(identity)
	body := []byte{byte(layers.EAPCodeResponse), id, byte(n >> 8), byte(n), byte(layers.EAPTypeIdentity)}
	return eapolFrame(src, layers.EAPOLTypeEAP, append(body, identity...))
}

func md5Response(src [6]byte, id uint8, size byte, value []byte) []byte {
	n := 6 + len(value)
	body := []byte{byte(layers.EAPCodeResponse), id, byte(n >> 8), byte(n), byte(typeMD5Challenge), size}
	return eapolFrame(src, layers.EAPOLTypeEAP, append(body, value...))
}

func decodeEAP(t *testing.T, frame []byte) *layers.EAP {
	t.Helper()
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	l := pkt.Layer(layers.LayerTypeEAP)
	if l == nil {
		t.Fatalf("no EAP layer in % x", frame)
	}
	return l.(*layers.EAP)
}

func TestRoundTripCapturesCredential(t *testing.T) {
	e, link, sink := newStartedEngine(t)
	response := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}

	link.deliver(eapolFrame(victim, layers.EAPOLTypeStart, nil))
	if e.Phase() != PhaseAwaitingIdentity {
		t.Fatalf("phase after Start = %v", e.Phase())
	}
	link.deliver(identityResponse(victim, 1, "alice"))
	if e.Phase() != PhaseAwaitingChallengeResponse {
		t.Fatalf("phase after identity = %v", e.Phase())
	}
	link.deliver(md5Response(victim, 2, 16, response))

	creds := e.Credentials()
	if len(creds) != 1 {
		t.Fatalf("captured %d credentials, want 1", len(creds))
	}
	c := creds[0]
	if c.Response != "DEADBEEF00112233445566778899AABB" {
		t.Errorf("Response = %q", c.Response)
	}
	if c.Identity != "alice" || c.HardwareAddr != "3C:22:FB:01:02:03" {
		t.Errorf("credential = %+v", c)
	}
	if c.Challenge != "000102030405060708090A0B0C0D0E0F" {
		t.Errorf("Challenge = %q", c.Challenge)
	}
	want := "3C:22:FB:01:02:03,alice,000102030405060708090A0B0C0D0E0F,DEADBEEF00112233445566778899AABB"
	if len(sink.lines) != 1 || sink.lines[0] != want {
		t.Errorf("sink lines = %v", sink.lines)
	}
	if e.Phase() != PhaseIdle {
		t.Errorf("phase after capture = %v, want idle", e.Phase())
	}
	if len(link.sent) != 2 {
		t.Fatalf("sent %d frames, want 2", len(link.sent))
	}
}

func TestInjectedFrames(t *testing.T) {
	_, link, _ := newStartedEngine(t)

	link.deliver(eapolFrame(victim, layers.EAPOLTypeStart, nil))
	link.deliver(identityResponse(victim, 7, "bob"))
	if len(link.sent) != 2 {
		t.Fatalf("sent %d frames, want 2", len(link.sent))
	}

	for _, f := range link.sent {
		if len(f) < 60 {
			t.Errorf("frame shorter than Ethernet minimum: %d", len(f))
		}
		if !bytes.Equal(f[0:6], victim[:]) || !bytes.Equal(f[6:12], DefaultAuthenticatorMAC[:]) {
			t.Errorf("addresses = % x -> % x", f[6:12], f[0:6])
		}
	}

	idReq := decodeEAP(t, link.sent[0])
	if idReq.Code != layers.EAPCodeRequest || idReq.Id != 1 || idReq.Type != layers.EAPTypeIdentity {
		t.Errorf("identity request = code %v id %d type %v", idReq.Code, idReq.Id, idReq.Type)
	}

	challenge := decodeEAP(t, link.sent[1])
	if challenge.Code != layers.EAPCodeRequest || challenge.Id != 8 || challenge.Type != typeMD5Challenge {
		t.Errorf("challenge = code %v id %d type %v", challenge.Code, challenge.Id, challenge.Type)
	}
	if challenge.Length != 22 || len(challenge.TypeData) < 17 || challenge.TypeData[0] != 16 {
		t.Fatalf("challenge length %d data % x", challenge.Length, challenge.TypeData)
	}
	if !bytes.Equal(challenge.TypeData[1:17], DefaultChallenge[:]) {
		t.Errorf("challenge value = % x", challenge.TypeData[1:17])
	}
}

func TestNonEAPOLFramesAreIgnored(t *testing.T) {
	e, link, sink := newStartedEngine(t)

	for _, et := range [][2]byte{{0x08, 0x00}, {0x86, 0xdd}, {0x08, 0x06}, {0x88, 0x8f}} {
		f := eapolFrame(victim, layers.EAPOLTypeStart, nil)
		f[12], f[13] = et[0], et[1]
		e.OnFrame(f)
	}
	if len(link.sent) != 0 || len(sink.lines) != 0 {
		t.Errorf("non-EAPOL frames caused %d sends and %d logs", len(link.sent), len(sink.lines))
	}
	if e.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle", e.Phase())
	}
}

func TestMinimumLengthBoundaries(t *testing.T) {
	e, link, _ := newStartedEngine(t)

	start := eapolFrame(victim, layers.EAPOLTypeStart, nil)
	e.OnFrame(start[:17])
	if len(link.sent) != 0 {
		t.Fatal("17-byte frame was accepted")
	}
	e.OnFrame(start[:18])
	if len(link.sent) != 1 {
		t.Fatal("18-byte Start was rejected")
	}

	id := identityResponse(victim, 1, "")
	if len(id) != 23 {
		t.Fatalf("identity frame is %d bytes", len(id))
	}
	e.OnFrame(id[:22])
	if len(link.sent) != 1 {
		t.Fatal("22-byte EAP frame was accepted")
	}
	e.OnFrame(id)
	if len(link.sent) != 2 {
		t.Fatal("23-byte identity response was rejected")
	}
}

func TestMD5ResponseValidation(t *testing.T) {
	e, link, sink := newStartedEngine(t)
	value := bytes.Repeat([]byte{0xab}, 16)

	link.deliver(md5Response(victim, 2, 15, value))
	link.deliver(md5Response(victim, 2, 16, value[:15]))
	if len(sink.lines) != 0 {
		t.Fatalf("invalid responses logged: %v", sink.lines)
	}

	link.deliver(md5Response(victim, 2, 16, value))
	if len(sink.lines) != 1 {
		t.Fatalf("valid response not logged")
	}
	if got := e.Credentials()[0].Identity; got != UnknownIdentity {
		t.Errorf("identity without exchange = %q", got)
	}
}

func TestNewExchangeOverwritesIncomplete(t *testing.T) {
	e, link, sink := newStartedEngine(t)
	other := [6]byte{0x02, 0, 0, 0, 0, 0x09}

	link.deliver(identityResponse(victim, 1, "alice"))
	link.deliver(eapolFrame(other, layers.EAPOLTypeStart, nil))
	link.deliver(identityResponse(other, 1, "mallory"))
	link.deliver(md5Response(other, 2, 16, bytes.Repeat([]byte{1}, 16)))

	creds := e.Credentials()
	if len(creds) != 1 || creds[0].Identity != "mallory" {
		t.Fatalf("credentials = %+v", creds)
	}
	if len(sink.lines) != 1 {
		t.Errorf("lines = %v", sink.lines)
	}
}

func TestPaddedIdentityIsTrimmed(t *testing.T) {
	e, link, _ := newStartedEngine(t)
	f := identityResponse(victim, 3, "carol")
	f = append(f, make([]byte, 60-len(f))...)

	link.deliver(f)
	link.deliver(md5Response(victim, 4, 16, make([]byte, 16)))
	if got := e.Credentials()[0].Identity; got != "carol" {
		t.Errorf("identity = %q, want carol", got)
	}
}

func TestTransmitFailureIsCounted(t *testing.T) {
	e, link, _ := newStartedEngine(t)
	link.down = true

	link.deliver(eapolFrame(victim, layers.EAPOLTypeStart, nil))
	if e.TransmitFailures() != 1 {
		t.Errorf("TransmitFailures() = %d, want 1", e.TransmitFailures())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	e, link, _ := newStartedEngine(t)
	if err := e.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !e.IsRunning() {
		t.Fatal("engine not running")
	}

	link.deliver(eapolFrame(victim, layers.EAPOLTypeStart, nil))
	link.deliver(identityResponse(victim, 1, "alice"))
	link.deliver(md5Response(victim, 2, 16, make([]byte, 16)))
	if e.CapturedCount() != 1 {
		t.Fatalf("CapturedCount() = %d", e.CapturedCount())
	}
	if err := e.Start(); err != nil || e.CapturedCount() != 1 {
		t.Fatalf("repeated Start changed state: %v, count %d", err, e.CapturedCount())
	}

	e.Stop()
	if e.IsRunning() || link.handler != nil {
		t.Error("Stop left the handler installed")
	}
	if e.CapturedCount() != 0 {
		t.Errorf("Stop kept %d credentials", e.CapturedCount())
	}
	e.Stop()
}

func TestIdentityCannotForgeRecords(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		want     string
	}{
		{"newline", "bob\nDE:AD:BE:EF:00:01,admin,00,FF", `bob\x0ADE:AD:BE:EF:00:01\x2Cadmin\x2C00\x2CFF`},
		{"carriage return", "bob\r", `bob\x0D`},
		{"comma", "corp,bob", `corp\x2Cbob`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, link, sink := newStartedEngine(t)
			link.deliver(eapolFrame(victim, layers.EAPOLTypeStart, nil))
			link.deliver(identityResponse(victim, 1, tt.identity))
			link.deliver(md5Response(victim, 2, 16, make([]byte, 16)))

			want := "3C:22:FB:01:02:03," + tt.want + ",000102030405060708090A0B0C0D0E0F,00000000000000000000000000000000"
			if len(sink.lines) != 1 || sink.lines[0] != want {
				t.Fatalf("lines = %q, want [%q]", sink.lines, want)
			}
			if got := e.Credentials()[0].Identity; got != tt.identity {
				t.Errorf("Identity = %q, want the raw value %q", got, tt.identity)
			}
		})
	}
}
