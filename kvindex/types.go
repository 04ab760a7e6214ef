// Package kvindex holds the naming rules and value types shared by the index
// maintenance and query layers: field types, primary key parsing, index
// bucket and index key layout, and value comparison.
package kvindex

import (
	"errors"
	"fmt"
	"strings"
)

// FieldType is the declared type of an indexed field
type FieldType string

const (
	TypeInt     FieldType = "int"
	TypeFloat   FieldType = "float"
	TypeBool    FieldType = "bool"
	TypeStr     FieldType = "str"
	TypeUnicode FieldType = "unicode"
)

var (
	// ErrIllegalDatatype is returned for field types outside the supported set
	ErrIllegalDatatype = errors.New("illegal index datatype")

	// ErrNoKeyPrefix is returned by ParseKey for keys without a `<prefix>_` head
	ErrNoKeyPrefix = errors.New("key has no prefix separator")

	// ErrMalformedIndexEntry is returned when an index bucket, key or value
	// read back from the store does not follow the index layout
	ErrMalformedIndexEntry = errors.New("malformed index entry")
)

// FieldTypes lists the supported field types in declaration order
var FieldTypes = []FieldType{TypeInt, TypeFloat, TypeBool, TypeStr, TypeUnicode}

// ParseFieldType validates a field type name. Matching is case-insensitive.
func ParseFieldType(name string) (FieldType, error) {
	ft := FieldType(strings.ToLower(name))
	if ft.Valid() {
		return ft, nil
	}
	return "", fmt.Errorf("%w: datatype %s not allowed in index definitions, only: str, int, float, bool, unicode",
		ErrIllegalDatatype, name)
}

// Valid reports whether ft is one of the supported field types
func (ft FieldType) Valid() bool {
	switch ft {
	case TypeInt, TypeFloat, TypeBool, TypeStr, TypeUnicode:
		return true
	}
	return false
}

// Numeric reports whether values of this type are compared as numbers by
// the store's key filters. Booleans are stored as 0/1 and count as numeric.
func (ft FieldType) Numeric() bool {
	return ft == TypeInt || ft == TypeFloat || ft == TypeBool
}

func (ft FieldType) String() string {
	return string(ft)
}
