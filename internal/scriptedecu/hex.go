package scriptedecu

import (
	"fmt"
	"strconv"
	"strings"
)

// normalizeHexKey strips the accepted separator characters and upper-cases
// the result, giving a canonical lookup key for DID and PGN table entries
// regardless of how the config author spaced the hex digits.
func normalizeHexKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '_', '.', ',', ';', '\t', '#':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

// decodeHexString turns a whitespace-insensitive hex string into bytes.
func decodeHexString(s string) ([]byte, error) {
	clean := normalizeHexKey(s)
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string %q", s)
	}
	if clean == "" {
		return nil, nil
	}
	out := make([]byte, len(clean)/2)
	for i := range out {
		v, err := strconv.ParseUint(clean[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", clean[i*2:i*2+2], err)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// encodeHexString renders data as space-separated upper-case hex bytes, the
// form scripted callables receive as their request argument.
func encodeHexString(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
