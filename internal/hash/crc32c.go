// Package hash provides the CRC32-Castagnoli checksums that guard serialized filters
// and indexes, and the checksums sent with S3 uploads.
//
// Persisted objects carry the checksum as a 4-byte little-endian trailer over every
// preceding byte:
//
//	out := hash.AppendChecksum(body)
//	body, ok := hash.VerifyChecksum(out)
package hash

import (
	"encoding/binary"
	"hash/crc32"
)

// ChecksumSize is the size of a checksum trailer.
const ChecksumSize = 4

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
// Go's crc32 package uses SSE4.2 or the ARM CRC extension when available.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// AppendChecksum appends the checksum of b to b.
func AppendChecksum(b []byte) []byte {
	return binary.LittleEndian.AppendUint32(b, CRC32C(b))
}

// VerifyChecksum splits data into body and checksum trailer. ok is false if data is
// too short or the trailer does not match the body.
func VerifyChecksum(data []byte) (body []byte, ok bool) {
	if len(data) < ChecksumSize {
		return nil, false
	}
	n := len(data) - ChecksumSize
	body = data[:n]
	return body, binary.LittleEndian.Uint32(data[n:]) == CRC32C(body)
}
