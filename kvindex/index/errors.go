package index

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition is returned when registering something that was
	// not built by NewDefinition, or a definition bound to another client
	ErrInvalidDefinition = errors.New("invalid index definition")

	// ErrNotBound is returned when querying a definition that was never
	// registered with a client
	ErrNotBound = errors.New("index definition is not registered with a client")

	// ErrUnindexableKey is returned when a key matches registered indexes
	// but its local name contains the value separator `/`
	ErrUnindexableKey = errors.New("key cannot be indexed")

	// ErrIndexDrift is returned alongside a successful primary write or
	// delete when some index records could not be maintained
	ErrIndexDrift = errors.New("index records may be out of date")

	// ErrQuery matches every *QueryError
	ErrQuery = errors.New("index query failed")
)

// QueryError reports a failed index query. The translation and store
// failures it wraps are not retried by this package.
type QueryError struct {
	Index string
	Op    string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s on %s: %v", e.Op, e.Index, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrQuery) match any query failure
func (e *QueryError) Is(target error) bool {
	return target == ErrQuery
}
