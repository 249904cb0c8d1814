package bloom

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

const headerSize = 24

// MarshalCompressed encodes f as a 24-byte little-endian header (bits,
// hash functions, count) followed by the snappy-compressed bit array.
func (f *Filter) MarshalCompressed() []byte {
	raw := make([]byte, len(f.bits)*8)
	for i, w := range f.bits {
		binary.LittleEndian.PutUint64(raw[i*8:], w)
	}
	body := snappy.Encode(nil, raw)

	buf := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint64(buf[0:8], f.numBits)
	binary.LittleEndian.PutUint64(buf[8:16], f.numHashes)
	binary.LittleEndian.PutUint64(buf[16:24], f.count)
	copy(buf[headerSize:], body)
	return buf
}

// UnmarshalCompressed decodes the output of MarshalCompressed.
func UnmarshalCompressed(data []byte) (*Filter, error) {
	if len(data) < headerSize {
		return nil, errors.New("bloom: compressed data too short")
	}

	numBits := binary.LittleEndian.Uint64(data[0:8])
	numHashes := binary.LittleEndian.Uint64(data[8:16])
	count := binary.LittleEndian.Uint64(data[16:24])
	if numBits == 0 || numBits%64 != 0 || numHashes == 0 {
		return nil, fmt.Errorf("bloom: invalid parameters bits=%d hashes=%d", numBits, numHashes)
	}

	raw, err := snappy.Decode(nil, data[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("bloom: snappy decompress failed: %w", err)
	}
	words := numBits / 64
	if uint64(len(raw)) != words*8 {
		return nil, fmt.Errorf("bloom: expected %d bytes of bits, got %d", words*8, len(raw))
	}

	bits := make([]uint64, words)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return &Filter{bits: bits, numBits: numBits, numHashes: numHashes, count: count}, nil
}

// EncodeBase64 returns the compressed form of f as standard base64.
func (f *Filter) EncodeBase64() string {
	return base64.StdEncoding.EncodeToString(f.MarshalCompressed())
}

// DecodeBase64 reverses EncodeBase64.
func DecodeBase64(s string) (*Filter, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bloom: invalid base64 data: %w", err)
	}
	return UnmarshalCompressed(data)
}
