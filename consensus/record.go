package consensus

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"

	"github.com/juju/errors"
)

// castagnoliTable is the CRC32C polynomial table used to checksum every
// persisted record under the "length, payload bytes, CRC32C" framing.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// encodeRecord serializes v as a length-prefixed, CRC32C-checksummed frame:
// 4-byte big-endian payload length, the payload itself, 4-byte big-endian
// checksum of the payload.
func encodeRecord(v PersistedMetadata) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Annotate(err, "marshal persisted metadata")
	}
	sum := crc32.Checksum(payload, castagnoliTable)

	buf := make([]byte, 4+len(payload)+4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:4+len(payload)], payload)
	binary.BigEndian.PutUint32(buf[4+len(payload):], sum)
	return buf, nil
}

// decodeRecord parses and validates the frame written by encodeRecord,
// rejecting any record whose checksum does not match its payload.
func decodeRecord(raw []byte) (PersistedMetadata, error) {
	var out PersistedMetadata
	if len(raw) < 8 {
		return out, errors.Trace(ErrCorrupt)
	}
	length := binary.BigEndian.Uint32(raw[0:4])
	if uint64(4+length+4) != uint64(len(raw)) {
		return out, errors.Trace(ErrCorrupt)
	}
	payload := raw[4 : 4+length]
	wantSum := binary.BigEndian.Uint32(raw[4+length:])
	gotSum := crc32.Checksum(payload, castagnoliTable)
	if gotSum != wantSum {
		return out, errors.Trace(ErrCorrupt)
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, errors.Annotate(ErrCorrupt, err.Error())
	}
	return out, nil
}
