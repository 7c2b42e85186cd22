package attendance

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Template is a face encoding stored as little-endian float64 values.
type Template []float64

// ErrTemplateLength is returned for byte slices that are not a whole number of float64s.
var ErrTemplateLength = errors.New("face template length is not a multiple of 8")

// MarshalBinary encodes the template.
func (t Template) MarshalBinary() ([]byte, error) {
	out := make([]byte, 8*len(t))
	for i, v := range t {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out, nil
}

// UnmarshalBinary decodes a template. An empty slice yields a nil template.
func (t *Template) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		*t = nil
		return nil
	}
	if len(data)%8 != 0 {
		return ErrTemplateLength
	}
	values := make(Template, len(data)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	*t = values
	return nil
}

// Hex returns the template as a hex string.
func (t Template) Hex() string {
	data, _ := t.MarshalBinary()
	return hex.EncodeToString(data)
}

// ParseTemplateHex decodes a hex encoded template. A leading "\x" as printed by
// PostgreSQL bytea output is accepted.
func ParseTemplateHex(value string) (Template, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, `\x`)
	data, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode face template: %w", err)
	}
	var t Template
	if err := t.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	for _, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("face template contains non-finite values")
		}
	}
	return t, nil
}
