package log

import "encoding/binary"

var enc = binary.BigEndian

const (
	offWidth    = 8
	lenWidth    = 4
	headerWidth = offWidth + lenWidth

	posWidth = 8
	entWidth = offWidth + posWidth

	// indexInterval is the sparse-index stride: one index entry per
	// indexInterval offsets.
	indexInterval = 100
)

// encodeRecord lays a record out as the 12-byte header followed by the
// payload, so the whole record lands in the log file in one write.
func encodeRecord(offset uint64, payload []byte) []byte {
	buf := make([]byte, headerWidth+len(payload))
	enc.PutUint64(buf[0:offWidth], offset)
	enc.PutUint32(buf[offWidth:headerWidth], uint32(len(payload)))
	copy(buf[headerWidth:], payload)
	return buf
}

// decodeHeader splits a record header into the record's offset and its
// payload length.
func decodeHeader(buf []byte) (offset uint64, length uint32) {
	return enc.Uint64(buf[0:offWidth]), enc.Uint32(buf[offWidth:headerWidth])
}

// encodeIndexEntry lays an index entry out as the record's offset followed
// by its byte position in the log file.
func encodeIndexEntry(offset, pos uint64) []byte {
	buf := make([]byte, entWidth)
	enc.PutUint64(buf[0:offWidth], offset)
	enc.PutUint64(buf[offWidth:entWidth], pos)
	return buf
}

// decodeIndexEntry splits an index entry into the record's offset and its
// byte position in the log file.
func decodeIndexEntry(buf []byte) (offset, pos uint64) {
	return enc.Uint64(buf[0:offWidth]), enc.Uint64(buf[offWidth:entWidth])
}
