package index

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry maps "<bucket>=<prefix>" to the definitions of that key space,
// keyed by field. Inner maps are copied on write, so a map returned by
// Lookup is never modified afterwards.
type Registry struct {
	entries *xsync.MapOf[string, map[string]*Definition]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: xsync.NewMapOf[string, map[string]*Definition]()}
}

func registryKey(bucket, prefix string) string {
	return bucket + "=" + prefix
}

// put inserts def, replacing any definition with the same identity
func (r *Registry) put(def *Definition) {
	r.entries.Compute(registryKey(def.bucket, def.prefix),
		func(old map[string]*Definition, loaded bool) (map[string]*Definition, bool) {
			next := make(map[string]*Definition, len(old)+1)
			for field, d := range old {
				next[field] = d
			}
			next[def.field] = def
			return next, false
		})
}

// Lookup returns the definitions registered for bucket and prefix by field,
// or nil when none are. The result must not be modified.
func (r *Registry) Lookup(bucket, prefix string) map[string]*Definition {
	defs, _ := r.entries.Load(registryKey(bucket, prefix))
	return defs
}

// Get returns the definition for one field
func (r *Registry) Get(bucket, prefix, field string) (*Definition, bool) {
	def, ok := r.Lookup(bucket, prefix)[field]
	return def, ok
}

// Definitions returns every registered definition ordered by index bucket
func (r *Registry) Definitions() []*Definition {
	var all []*Definition
	r.entries.Range(func(_ string, defs map[string]*Definition) bool {
		for _, d := range defs {
			all = append(all, d)
		}
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		return all[i].IndexBucket() < all[j].IndexBucket()
	})
	return all
}

// Len returns the number of registered definitions
func (r *Registry) Len() int {
	n := 0
	r.entries.Range(func(_ string, defs map[string]*Definition) bool {
		n += len(defs)
		return true
	})
	return n
}

// sortedFields returns the field names of defs in order
func sortedFields(defs map[string]*Definition) []string {
	fields := make([]string, 0, len(defs))
	for f := range defs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
