// Package codec turns indexed field values into strings that can be embedded
// in a single `/`-delimited key segment and back.
//
// The escaping matches what independently written readers of the same index
// layout produce: the UTF-8 bytes of the value are percent-encoded, leaving
// only ASCII letters, digits and `_.-` untouched. Upper-case hex is used.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const upperHex = "0123456789ABCDEF"

var (
	// unreserved marks bytes that pass through Escape untouched
	unreserved [256]bool

	// ErrInvalidEscape indicates a truncated or non-hex percent escape
	ErrInvalidEscape = errors.New("invalid percent escape")

	// ErrUnsupportedValue indicates a value with no canonical text form
	ErrUnsupportedValue = errors.New("unsupported value type")
)

func init() {
	for c := 'a'; c <= 'z'; c++ {
		unreserved[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		unreserved[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		unreserved[c] = true
	}
	unreserved['_'] = true
	unreserved['.'] = true
	unreserved['-'] = true
}

// Escape percent-encodes every byte of s outside [A-Za-z0-9_.-].
// `/` and `=` are always escaped.
func Escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved[s[i]] {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved[c] {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

// Unescape reverses Escape. Any `%XX` sequence is decoded, so input produced
// by other percent-encoders (lower-case hex, more escaped bytes) is accepted.
func Unescape(s string) (string, error) {
	if strings.IndexByte(s, '%') < 0 {
		return s, nil
	}

	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			out = append(out, c)
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("%w: %q at offset %d", ErrInvalidEscape, s, i)
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("%w: %q at offset %d", ErrInvalidEscape, s, i)
		}
		out = append(out, hi<<4|lo)
		i += 2
	}
	return string(out), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Format renders a field value in its canonical text form.
// Booleans become "0" or "1"; integers are decimal; floats are written as
// encoding/json writes them (plain decimal between 1e-6 and 1e21, exponent
// form outside) with no `+` in the exponent; strings are returned as-is.
func Format(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32, float64:
		// Same text the JSON body carries, so a value read back as a
		// json.Number formats identically
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return trimExponentSign(string(b)), nil
	case json.Number:
		return trimExponentSign(val.String()), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// trimExponentSign drops the `+` of a positive exponent ("1e+21" becomes
// "1e21"). An escaped `+` would not survive the store's url-decoding key
// filter intact, and strconv parses both forms.
func trimExponentSign(s string) string {
	if i := strings.IndexAny(s, "eE"); i >= 0 && i+1 < len(s) && s[i+1] == '+' {
		return s[:i+1] + s[i+2:]
	}
	return s
}

// Encode formats v and escapes the result.
func Encode(v any) (string, error) {
	s, err := Format(v)
	if err != nil {
		return "", err
	}
	return Escape(s), nil
}

// Decode returns the text an Encode call started from. Converting it back to
// a number or boolean is up to the caller, which knows the declared type.
func Decode(s string) (string, error) {
	return Unescape(s)
}
