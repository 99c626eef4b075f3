package eap

import (
	"github.com/google/gopacket/layers"

	"harvester/internal/wire"
)

// Offsets into an Ethernet frame carrying EAPOL.
const (
	offDst        = 0
	offSrc        = 6
	offEtherType  = 12
	offEAPOLVer   = 14
	offEAPOLType  = 15
	offEAPOLLen   = 16
	offEAPCode    = 18
	offEAPID      = 19
	offEAPLen     = 20
	offEAPType    = 22
	offEAPData    = 23
	offMD5Size    = 23
	offMD5Value   = 24
	minEAPOLFrame = 18
	minEAPFrame   = 23
)

const (
	eapolVersion = 1
	// gopacket labels type 4 as OTP; RFC 3748 assigns it to MD5-Challenge.
	typeMD5Challenge layers.EAPType = 4
	md5ValueLen                     = 16

	// minFrameLen is the padded size of every frame we inject.
	minFrameLen = 64

	identityRequestLen = 5
	md5RequestLen      = 6 + md5ValueLen
)

// DefaultAuthenticatorMAC is the sender address of injected frames. It is
// deliberately not a vendor OUI so the emulated switch stands out in a capture.
var DefaultAuthenticatorMAC = [6]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

// DefaultChallenge is the fixed MD5 challenge 00 01 .. 0F.
var DefaultChallenge = func() (c [md5ValueLen]byte) {
	for i := range c {
		c[i] = byte(i)
	}
	return c
}()

// putHeader writes the Ethernet and EAPOL headers plus the fixed EAP
// header fields shared by every request we send.
func putHeader(buf []byte, dst, src [6]byte, id uint8, eapLen uint16, typ layers.EAPType) {
	copy(buf[offDst:], dst[:])
	copy(buf[offSrc:], src[:])
	wire.PutUint16(buf, offEtherType, uint16(layers.EthernetTypeEAPOL))
	buf[offEAPOLVer] = eapolVersion
	buf[offEAPOLType] = byte(layers.EAPOLTypeEAP)
	wire.PutUint16(buf, offEAPOLLen, eapLen)
	buf[offEAPCode] = byte(layers.EAPCodeRequest)
	buf[offEAPID] = id
	wire.PutUint16(buf, offEAPLen, eapLen)
	buf[offEAPType] = byte(typ)
}

// buildIdentityRequest fills buf with an EAP Request/Identity frame.
func buildIdentityRequest(buf *[minFrameLen]byte, dst, src [6]byte, id uint8) []byte {
	*buf = [minFrameLen]byte{}
	putHeader(buf[:], dst, src, id, identityRequestLen, layers.EAPTypeIdentity)
	return buf[:]
}

// buildMD5Challenge fills buf with an EAP Request/MD5-Challenge frame.
func buildMD5Challenge(buf *[minFrameLen]byte, dst, src [6]byte, id uint8, challenge [md5ValueLen]byte) []byte {
	*buf = [minFrameLen]byte{}
	putHeader(buf[:], dst, src, id, md5RequestLen, typeMD5Challenge)
	buf[offMD5Size] = md5ValueLen
	copy(buf[offMD5Value:], challenge[:])
	return buf[:]
}
