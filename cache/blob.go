package cache

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"

	"github.com/ulikunitz/xz"

	"github.com/gridtrading/gridbot/market"
)

// A blob payload is the compact pair array serialized little-endian
// (int32 secondOfDay + float64 close per point) and xz-compressed. Older
// rows may carry hex- or base64-wrapped payloads, or uncompressed pair
// arrays; decoding handles all of them transparently.

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

const pointSize = 4 + 8

func encodePayload(points []market.PricePoint) ([]byte, error) {
	raw := make([]byte, 0, len(points)*pointSize)
	var scratch [pointSize]byte
	for _, p := range points {
		binary.LittleEndian.PutUint32(scratch[0:4], uint32(p.SecondOfDay))
		binary.LittleEndian.PutUint64(scratch[4:12], math.Float64bits(p.Close))
		raw = append(raw, scratch[:]...)
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("xz writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayload(payload []byte) ([]market.PricePoint, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	raw := unwrapPayload(payload)

	if bytes.HasPrefix(raw, xzMagic) {
		r, err := xz.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		if raw, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("decompress payload: %w", err)
		}
	}

	if len(raw)%pointSize != 0 {
		return nil, fmt.Errorf("malformed payload: %d bytes", len(raw))
	}

	points := make([]market.PricePoint, 0, len(raw)/pointSize)
	for off := 0; off < len(raw); off += pointSize {
		points = append(points, market.PricePoint{
			SecondOfDay: int32(binary.LittleEndian.Uint32(raw[off : off+4])),
			Close:       math.Float64frombits(binary.LittleEndian.Uint64(raw[off+4 : off+12])),
		})
	}
	return points, nil
}

// unwrapPayload strips legacy text encodings. Hex is tried before base64
// because every hex string is also valid base64; a decode only wins when it
// reveals the xz container.
func unwrapPayload(payload []byte) []byte {
	if bytes.HasPrefix(payload, xzMagic) {
		return payload
	}
	if dec, err := hex.DecodeString(string(payload)); err == nil && bytes.HasPrefix(dec, xzMagic) {
		return dec
	}
	if dec, err := base64.StdEncoding.DecodeString(string(payload)); err == nil && bytes.HasPrefix(dec, xzMagic) {
		return dec
	}
	return payload
}
