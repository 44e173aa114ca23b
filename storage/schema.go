package storage

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes
const (
	prefixMeta = "/meta/"
)

// Metadata keys
const (
	keyCheckpoint = prefixMeta + "checkpoint"
)

// CheckpointKey returns the key storing the last processed block
func CheckpointKey() []byte {
	return []byte(keyCheckpoint)
}

// EncodeUint64 encodes uint64 to bytes in big-endian format
func EncodeUint64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// DecodeUint64 decodes bytes to uint64 in big-endian format
func DecodeUint64(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: uint64 length %d", ErrInvalidData, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
