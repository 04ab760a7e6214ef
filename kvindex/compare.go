package kvindex

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CompareValues compares two filter operands and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// The second result is false when the operands are not comparable (a number
// against a string, say). Integers and floats compare numerically with each
// other; json.Number is treated as whichever of the two it parses as.
func CompareValues(left, right any) (int, bool) {
	left = normalize(left)
	right = normalize(right)

	switch l := left.(type) {
	case int64:
		switch r := right.(type) {
		case int64:
			return compareInt64s(l, r), true
		case float64:
			return compareFloats(float64(l), r), true
		}
	case float64:
		switch r := right.(type) {
		case int64:
			return compareFloats(l, float64(r)), true
		case float64:
			return compareFloats(l, r), true
		}
	case string:
		if r, ok := right.(string); ok {
			return strings.Compare(l, r), true
		}
	case bool:
		if r, ok := right.(bool); ok {
			if l == r {
				return 0, true
			}
			if !l {
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

// ValuesEqual reports whether two operands compare equal
func ValuesEqual(a, b any) bool {
	cmp, ok := CompareValues(a, b)
	return ok && cmp == 0
}

// normalize folds the numeric types into int64 or float64
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint:
		return float64OrInt(uint64(n))
	case uint64:
		return float64OrInt(n)
	case float32:
		return float64(n)
	case json.Number:
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(n), 64); err == nil {
			return f
		}
		return string(n)
	}
	return v
}

func float64OrInt(u uint64) any {
	if u <= 1<<63-1 {
		return int64(u)
	}
	return float64(u)
}

// compareInt64s compares two int64 values
func compareInt64s(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// compareFloats compares two float64 values
func compareFloats(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
