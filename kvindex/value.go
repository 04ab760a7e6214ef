package kvindex

import (
	"fmt"
	"strconv"
)

// CoerceValue converts the canonical text of an indexed value back to the
// Go type of its declared field type: int64, float64, bool or string.
// Booleans are only accepted in their stored "0"/"1" form.
func CoerceValue(ft FieldType, text string) (any, error) {
	switch ft {
	case TypeInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an int", ErrMalformedIndexEntry, text)
		}
		return i, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", ErrMalformedIndexEntry, text)
		}
		return f, nil
	case TypeBool:
		switch text {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		return nil, fmt.Errorf("%w: %q is not a bool, want 0 or 1", ErrMalformedIndexEntry, text)
	case TypeStr, TypeUnicode:
		return text, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrIllegalDatatype, ft)
	}
}
