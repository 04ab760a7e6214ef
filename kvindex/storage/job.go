package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Identity reduce shipped with the store
const (
	ReduceLanguage = "erlang"
	ReduceModule   = "riak_kv_mapreduce"
	ReduceFunction = "reduce_identity"
)

// KeyFilter is one stage of a key filter pipeline: a filter name followed
// by its arguments, e.g. {"tokenize", "/", 2}.
type KeyFilter []any

// Filter builds a KeyFilter
func Filter(name string, args ...any) KeyFilter {
	return append(KeyFilter{name}, args...)
}

// Name returns the filter name, or "" for an empty or malformed stage
func (f KeyFilter) Name() string {
	if len(f) == 0 {
		return ""
	}
	name, _ := f[0].(string)
	return name
}

// Args returns the filter arguments
func (f KeyFilter) Args() []any {
	if len(f) == 0 {
		return nil
	}
	return f[1:]
}

// Inputs selects the bucket a job scans and the filters applied to its keys
type Inputs struct {
	Bucket     string      `json:"bucket"`
	KeyFilters []KeyFilter `json:"key_filters,omitempty"`
}

// PhaseSpec names the function run by a phase
type PhaseSpec struct {
	Language string `json:"language"`
	Module   string `json:"module"`
	Function string `json:"function"`
	Keep     bool   `json:"keep,omitempty"`
}

// Phase is one map or reduce step of a job
type Phase struct {
	Map    *PhaseSpec `json:"map,omitempty"`
	Reduce *PhaseSpec `json:"reduce,omitempty"`
}

// IdentityReduce returns the reduce phase that passes matches through unchanged
func IdentityReduce() Phase {
	return Phase{Reduce: &PhaseSpec{
		Language: ReduceLanguage,
		Module:   ReduceModule,
		Function: ReduceFunction,
	}}
}

// Job is a map/reduce request. Inputs.Bucket is in wire form.
type Job struct {
	Inputs  Inputs
	Query   []Phase
	Timeout time.Duration
}

// NewJob creates a job over bucket (already escaped) with the given filters
func NewJob(bucket string, filters ...KeyFilter) *Job {
	return &Job{Inputs: Inputs{Bucket: bucket, KeyFilters: filters}}
}

// Reduce appends a reduce phase
func (j *Job) Reduce(p Phase) *Job {
	j.Query = append(j.Query, p)
	return j
}

// MarshalJSON renders the job in the store's HTTP request shape, with the
// timeout in milliseconds
func (j *Job) MarshalJSON() ([]byte, error) {
	type wire struct {
		Inputs  Inputs  `json:"inputs"`
		Query   []Phase `json:"query"`
		Timeout int64   `json:"timeout,omitempty"`
	}
	query := j.Query
	if query == nil {
		query = []Phase{}
	}
	return json.Marshal(wire{
		Inputs:  j.Inputs,
		Query:   query,
		Timeout: j.Timeout.Milliseconds(),
	})
}

// validatePhases accepts only identity reduces; the local stores have no
// map functions to run
func (j *Job) validatePhases() error {
	for i, p := range j.Query {
		if p.Map != nil {
			return fmt.Errorf("%w: phase %d: map %s:%s", ErrUnsupportedPhase, i, p.Map.Module, p.Map.Function)
		}
		if p.Reduce == nil {
			return fmt.Errorf("%w: phase %d is empty", ErrUnsupportedPhase, i)
		}
		r := p.Reduce
		if r.Language != ReduceLanguage || r.Module != ReduceModule || r.Function != ReduceFunction {
			return fmt.Errorf("%w: phase %d: reduce %s:%s", ErrUnsupportedPhase, i, r.Module, r.Function)
		}
	}
	return nil
}
