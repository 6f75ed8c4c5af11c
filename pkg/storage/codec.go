package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Payload layout: version byte, flag byte, uint32 little-endian raw length,
// then the body. flagLZ4 marks an LZ4 block; flagRaw is used when the JSON
// does not compress.
const (
	codecVersion = 1
	flagRaw      = 0
	flagLZ4      = 1
	headerSize   = 6

	// maxRawSize guards against allocating on a corrupt length field.
	maxRawSize = 64 << 20
)

func encodeSnapshot(s Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	out := make([]byte, headerSize+lz4.CompressBlockBound(len(raw)))
	out[0] = codecVersion
	binary.LittleEndian.PutUint32(out[2:headerSize], uint32(len(raw)))

	n, err := lz4.CompressBlock(raw, out[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if n == 0 {
		out[1] = flagRaw
		return append(out[:headerSize], raw...), nil
	}
	out[1] = flagLZ4
	return out[:headerSize+n], nil
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	if len(data) < headerSize {
		return Snapshot{}, fmt.Errorf("%w: short payload (%d bytes)", ErrCorrupt, len(data))
	}
	if data[0] != codecVersion {
		return Snapshot{}, fmt.Errorf("%w: unknown codec version %d", ErrCorrupt, data[0])
	}
	rawLen := int(binary.LittleEndian.Uint32(data[2:headerSize]))
	if rawLen > maxRawSize {
		return Snapshot{}, fmt.Errorf("%w: declared size %d too large", ErrCorrupt, rawLen)
	}
	body := data[headerSize:]

	var raw []byte
	switch data[1] {
	case flagRaw:
		if len(body) != rawLen {
			return Snapshot{}, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		raw = body
	case flagLZ4:
		raw = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
		}
		if n != rawLen {
			return Snapshot{}, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown flag %d", ErrCorrupt, data[1])
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: unmarshal: %v", ErrCorrupt, err)
	}
	return s, nil
}
