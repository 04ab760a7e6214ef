// Package index keeps secondary index records in step with the primary
// objects of a key/value store and answers typed queries against them.
//
// A Client wraps a plain storage.Store. Objects written or deleted through
// the client's buckets get their index records maintained as part of the
// same call; everything else about the store is untouched. The primary
// object is the source of truth: index maintenance runs after the primary
// write and is not transactional with it, so a failure part way through is
// reported as ErrIndexDrift and can be repaired later with Client.Repair.
package index

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wbrown/janus-kvindex/kvindex/annotations"
	"github.com/wbrown/janus-kvindex/kvindex/storage"
)

// DefaultQueryTimeout is the scan timeout used by QueryDefault
const DefaultQueryTimeout = 300000 * time.Millisecond

// Options configures a Client
type Options struct {
	// ClientID identifies the client in annotations. Defaults to a random UUID.
	ClientID string

	// QueryTimeout is the scan timeout used by QueryDefault and Repair
	QueryTimeout time.Duration

	// Handler receives annotation events; nil disables them
	Handler annotations.Handler
}

// DefaultOptions returns the default client options
func DefaultOptions() Options {
	return Options{
		ClientID:     uuid.NewString(),
		QueryTimeout: DefaultQueryTimeout,
	}
}

// Client is an index-aware view of a store. It owns the registry of index
// definitions used by its buckets.
type Client struct {
	store    storage.Store
	registry *Registry
	options  Options
}

// NewClient creates a client with default options
func NewClient(store storage.Store) *Client {
	return NewClientWithOptions(store, DefaultOptions())
}

// NewClientWithOptions creates a client. Zero-valued options fall back to
// their defaults.
func NewClientWithOptions(store storage.Store, opts Options) *Client {
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	return &Client{
		store:    store,
		registry: NewRegistry(),
		options:  opts,
	}
}

// AddIndex registers def and binds it to this client. Registering a field
// that already has a definition replaces it.
func (c *Client) AddIndex(def *Definition) error {
	if !def.valid() {
		return fmt.Errorf("%w: not built by NewDefinition", ErrInvalidDefinition)
	}
	if !def.client.CompareAndSwap(nil, c) && def.client.Load() != c {
		return fmt.Errorf("%w: %s is registered with another client", ErrInvalidDefinition, def.IndexBucket())
	}
	c.registry.put(def)
	return nil
}

// AddIndexes registers each definition in turn, stopping at the first error
func (c *Client) AddIndexes(defs []*Definition) error {
	for _, def := range defs {
		if err := c.AddIndex(def); err != nil {
			return err
		}
	}
	return nil
}

// Index returns the definition registered for one field
func (c *Client) Index(bucket, prefix, field string) (*Definition, bool) {
	return c.registry.Get(bucket, prefix, field)
}

// Registry returns the client's definition registry
func (c *Client) Registry() *Registry {
	return c.registry
}

// Store returns the underlying store
func (c *Client) Store() storage.Store {
	return c.store
}

// ID returns the client identifier
func (c *Client) ID() string {
	return c.options.ClientID
}

// Options returns the client options
func (c *Client) Options() Options {
	return c.options
}

// Bucket returns a handle on a data bucket
func (c *Client) Bucket(name string) *Bucket {
	return &Bucket{client: c, name: name}
}

// collector creates the annotation collector for one operation
func (c *Client) collector() *annotations.Collector {
	return annotations.NewCollector(c.options.Handler)
}
