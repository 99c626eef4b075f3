package llmnr

import "harvester/internal/wire"

const (
	headerLen     = 12
	offFlags      = 2
	offQDCount    = 4
	maxDatagram   = 512
	flagsQROpcode = 0xF800
	maxNameLen    = 255
)

// parseQuery extracts the first question name from a standard query.
// The name is appended to dst; ok is false if the datagram is not a query
// worth recording. A label that would run past the datagram ends decoding
// with whatever was read so far.
func parseQuery(dst, b []byte) (name []byte, ok bool) {
	if len(b) <= headerLen {
		return dst, false
	}
	flags, _ := wire.Uint16(b, offFlags)
	qd, _ := wire.Uint16(b, offQDCount)
	if flags&flagsQROpcode != 0 || qd == 0 {
		return dst, false
	}

	name = dst
	idx := headerLen
	for idx < len(b) {
		n := int(b[idx])
		idx++
		if n == 0 {
			break
		}
		label, fits := wire.Slice(b, idx, n)
		if !fits {
			break
		}
		if len(name)+1+n > maxNameLen {
			break
		}
		if len(name) > len(dst) {
			name = append(name, '.')
		}
		name = append(name, label...)
		idx += n
	}
	return name, true
}
