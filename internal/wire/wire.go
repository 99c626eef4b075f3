// Package wire provides bounds-checked field access over raw frame bytes.
//
// Every reader validates the offset against the slice length before touching
// it and reports failure through an ok result, so callers on a capture path
// never panic on truncated input.
package wire

import "encoding/binary"

const hexDigits = "0123456789ABCDEF"

// Uint8 reads the byte at off.
func Uint8(b []byte, off int) (uint8, bool) {
	if off < 0 || off >= len(b) {
		return 0, false
	}
	return b[off], true
}

// Uint16 reads a big-endian uint16 at off.
func Uint16(b []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[off:]), true
}

// Slice returns b[off:off+n] if it lies within b.
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off+n > len(b) {
		return nil, false
	}
	return b[off : off+n], true
}

// PutUint16 writes v big-endian at off. It reports false if b is too short.
func PutUint16(b []byte, off int, v uint16) bool {
	if off < 0 || off+2 > len(b) {
		return false
	}
	binary.BigEndian.PutUint16(b[off:], v)
	return true
}

// AppendMAC appends mac as colon-separated uppercase hex octets.
func AppendMAC(dst, mac []byte) []byte {
	for i, octet := range mac {
		if i > 0 {
			dst = append(dst, ':')
		}
		dst = append(dst, hexDigits[octet>>4], hexDigits[octet&0x0f])
	}
	return dst
}

// AppendHex appends src as uppercase hex without separators.
func AppendHex(dst, src []byte) []byte {
	for _, v := range src {
		dst = append(dst, hexDigits[v>>4], hexDigits[v&0x0f])
	}
	return dst
}

// AppendField appends src as one harvest log field. Control bytes, DEL,
// commas and backslashes are written as \xNN so a field can never end the
// record or split into extra columns.
func AppendField(dst, src []byte) []byte {
	for _, v := range src {
		if v < 0x20 || v == 0x7f || v == ',' || v == '\\' {
			dst = append(dst, '\\', 'x', hexDigits[v>>4], hexDigits[v&0x0f])
			continue
		}
		dst = append(dst, v)
	}
	return dst
}

// Field is AppendField for strings.
func Field(s string) string {
	return string(AppendField(make([]byte, 0, len(s)), []byte(s)))
}

// MAC formats a hardware address the way the harvest logs expect.
func MAC(mac []byte) string {
	var buf [17]byte
	return string(AppendMAC(buf[:0], mac))
}

// Hex formats src as uppercase hex.
func Hex(src []byte) string {
	return string(AppendHex(make([]byte, 0, len(src)*2), src))
}
