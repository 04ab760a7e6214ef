package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/wbrown/janus-kvindex/kvindex"
	"github.com/wbrown/janus-kvindex/kvindex/codec"
)

// filterFunc runs one stage against the current key value. Transforms
// return a new value; predicates return the value unchanged and whether the
// key survives.
type filterFunc func(v any) (next any, keep bool, err error)

// keyFilterPipeline is a compiled list of key filters
type keyFilterPipeline []filterFunc

// compileFilters compiles filters into a pipeline, rejecting unknown names
// and malformed arguments before any key is scanned
func compileFilters(filters []KeyFilter) (keyFilterPipeline, error) {
	pipeline := make(keyFilterPipeline, 0, len(filters))
	for _, f := range filters {
		fn, err := compileFilter(f)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, fn)
	}
	return pipeline, nil
}

// accept runs key through the pipeline
func (p keyFilterPipeline) accept(key string) (bool, error) {
	return p.acceptValue(key)
}

func compileFilter(f KeyFilter) (filterFunc, error) {
	name := f.Name()
	switch name {
	// Transforms
	case "int_to_string":
		if err := argCount(f, 0, 0); err != nil {
			return nil, err
		}
		return transform(name, func(v any) (any, error) {
			i, ok := v.(int64)
			if !ok {
				return nil, fmt.Errorf("want int, got %T", v)
			}
			return strconv.FormatInt(i, 10), nil
		}), nil

	case "string_to_int":
		if err := argCount(f, 0, 0); err != nil {
			return nil, err
		}
		return transform(name, func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("want string, got %T", v)
			}
			return strconv.ParseInt(s, 10, 64)
		}), nil

	case "float_to_string":
		if err := argCount(f, 0, 0); err != nil {
			return nil, err
		}
		return transform(name, func(v any) (any, error) {
			x, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("want float, got %T", v)
			}
			return strconv.FormatFloat(x, 'g', -1, 64), nil
		}), nil

	case "string_to_float":
		if err := argCount(f, 0, 0); err != nil {
			return nil, err
		}
		return transform(name, func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("want string, got %T", v)
			}
			return strconv.ParseFloat(s, 64)
		}), nil

	case "to_upper", "to_lower":
		if err := argCount(f, 0, 0); err != nil {
			return nil, err
		}
		conv := strings.ToUpper
		if name == "to_lower" {
			conv = strings.ToLower
		}
		return transform(name, func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("want string, got %T", v)
			}
			return conv(s), nil
		}), nil

	case "tokenize":
		if err := argCount(f, 2, 2); err != nil {
			return nil, err
		}
		sep, err := stringArg(f, 0)
		if err != nil {
			return nil, err
		}
		n, err := intArg(f, 1)
		if err != nil {
			return nil, err
		}
		if sep == "" || n < 1 {
			return nil, fmt.Errorf("%w: tokenize needs a separator and a position >= 1", ErrInvalidFilter)
		}
		return transform(name, func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("want string, got %T", v)
			}
			tokens := strings.FieldsFunc(s, func(r rune) bool {
				return strings.ContainsRune(sep, r)
			})
			if n > len(tokens) {
				return nil, fmt.Errorf("token %d of %q: only %d tokens", n, s, len(tokens))
			}
			return tokens[n-1], nil
		}), nil

	case "urldecode":
		if err := argCount(f, 0, 0); err != nil {
			return nil, err
		}
		return transform(name, func(v any) (any, error) {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("want string, got %T", v)
			}
			return codec.Unescape(s)
		}), nil

	// Predicates
	case "greater_than", "less_than", "greater_than_eq", "less_than_eq":
		if err := argCount(f, 1, 1); err != nil {
			return nil, err
		}
		arg := f.Args()[0]
		test := orderingTest(name)
		return predicate(func(v any) (bool, error) {
			cmp, ok := kvindex.CompareValues(v, arg)
			return ok && test(cmp), nil
		}), nil

	case "between":
		if err := argCount(f, 2, 3); err != nil {
			return nil, err
		}
		args := f.Args()
		lo, hi := args[0], args[1]
		inclusive := true
		if len(args) == 3 {
			b, ok := args[2].(bool)
			if !ok {
				return nil, fmt.Errorf("%w: between: inclusive flag must be a bool", ErrInvalidFilter)
			}
			inclusive = b
		}
		return predicate(func(v any) (bool, error) {
			cmpLo, ok1 := kvindex.CompareValues(v, lo)
			cmpHi, ok2 := kvindex.CompareValues(v, hi)
			if !ok1 || !ok2 {
				return false, nil
			}
			if inclusive {
				return cmpLo >= 0 && cmpHi <= 0, nil
			}
			return cmpLo > 0 && cmpHi < 0, nil
		}), nil

	case "matches":
		if err := argCount(f, 1, 1); err != nil {
			return nil, err
		}
		pattern, err := stringArg(f, 0)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: matches: %v", ErrInvalidFilter, err)
		}
		return stringPredicate(name, re.MatchString), nil

	case "eq", "neq":
		if err := argCount(f, 1, 1); err != nil {
			return nil, err
		}
		arg := f.Args()[0]
		want := name == "eq"
		return predicate(func(v any) (bool, error) {
			return kvindex.ValuesEqual(v, arg) == want, nil
		}), nil

	case "set_member":
		if err := argCount(f, 1, -1); err != nil {
			return nil, err
		}
		members := f.Args()
		return predicate(func(v any) (bool, error) {
			for _, m := range members {
				if kvindex.ValuesEqual(v, m) {
					return true, nil
				}
			}
			return false, nil
		}), nil

	case "similar_to":
		if err := argCount(f, 2, 2); err != nil {
			return nil, err
		}
		target, err := stringArg(f, 0)
		if err != nil {
			return nil, err
		}
		distance, err := intArg(f, 1)
		if err != nil {
			return nil, err
		}
		return stringPredicate(name, func(s string) bool {
			return levenshtein(s, target) <= distance
		}), nil

	case "starts_with", "ends_with":
		if err := argCount(f, 1, 1); err != nil {
			return nil, err
		}
		affix, err := stringArg(f, 0)
		if err != nil {
			return nil, err
		}
		if name == "starts_with" {
			return stringPredicate(name, func(s string) bool { return strings.HasPrefix(s, affix) }), nil
		}
		return stringPredicate(name, func(s string) bool { return strings.HasSuffix(s, affix) }), nil

	case "and", "or":
		if err := argCount(f, 1, -1); err != nil {
			return nil, err
		}
		subs := make([]keyFilterPipeline, 0, len(f.Args()))
		for _, arg := range f.Args() {
			sub, err := compileNested(name, arg)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		all := name == "and"
		return predicate(func(v any) (bool, error) {
			for _, sub := range subs {
				ok, err := sub.acceptValue(v)
				if err != nil {
					return false, err
				}
				if ok != all {
					return ok, nil
				}
			}
			return all, nil
		}), nil

	case "not":
		if err := argCount(f, 1, 1); err != nil {
			return nil, err
		}
		sub, err := compileNested(name, f.Args()[0])
		if err != nil {
			return nil, err
		}
		return predicate(func(v any) (bool, error) {
			ok, err := sub.acceptValue(v)
			return !ok, err
		}), nil

	case "":
		return nil, fmt.Errorf("%w: empty filter %v", ErrInvalidFilter, []any(f))

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
}

// acceptValue runs v through the pipeline. Nested and/or/not pipelines get
// the value as transformed so far.
func (p keyFilterPipeline) acceptValue(v any) (bool, error) {
	for _, f := range p {
		next, keep, err := f(v)
		if err != nil {
			return false, err
		}
		if !keep {
			return false, nil
		}
		v = next
	}
	return true, nil
}

func transform(name string, fn func(v any) (any, error)) filterFunc {
	return func(v any) (any, bool, error) {
		next, err := fn(v)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %v", ErrFilterFailed, name, err)
		}
		return next, true, nil
	}
}

func predicate(fn func(v any) (bool, error)) filterFunc {
	return func(v any) (any, bool, error) {
		keep, err := fn(v)
		return v, keep, err
	}
}

func stringPredicate(name string, fn func(s string) bool) filterFunc {
	return predicate(func(v any) (bool, error) {
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("%w: %s: want string, got %T", ErrFilterFailed, name, v)
		}
		return fn(s), nil
	})
}

func orderingTest(name string) func(cmp int) bool {
	switch name {
	case "greater_than":
		return func(cmp int) bool { return cmp > 0 }
	case "less_than":
		return func(cmp int) bool { return cmp < 0 }
	case "greater_than_eq":
		return func(cmp int) bool { return cmp >= 0 }
	default:
		return func(cmp int) bool { return cmp <= 0 }
	}
}

// compileNested compiles the filter list argument of and/or/not
func compileNested(name string, arg any) (keyFilterPipeline, error) {
	var filters []KeyFilter
	switch list := arg.(type) {
	case []KeyFilter:
		filters = list
	case []any:
		for _, item := range list {
			switch f := item.(type) {
			case KeyFilter:
				filters = append(filters, f)
			case []any:
				filters = append(filters, KeyFilter(f))
			default:
				return nil, fmt.Errorf("%w: %s: argument holds %T, want a filter", ErrInvalidFilter, name, item)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s: argument is %T, want a filter list", ErrInvalidFilter, name, arg)
	}
	return compileFilters(filters)
}

// argCount checks the number of arguments; max < 0 means unbounded
func argCount(f KeyFilter, min, max int) error {
	n := len(f.Args())
	if n < min || (max >= 0 && n > max) {
		return fmt.Errorf("%w: %s takes %s arguments, got %d", ErrInvalidFilter, f.Name(), arity(min, max), n)
	}
	return nil
}

func arity(min, max int) string {
	switch {
	case max < 0:
		return fmt.Sprintf("at least %d", min)
	case min == max:
		return strconv.Itoa(min)
	default:
		return fmt.Sprintf("%d to %d", min, max)
	}
}

func stringArg(f KeyFilter, i int) (string, error) {
	s, ok := f.Args()[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s: argument %d must be a string", ErrInvalidFilter, f.Name(), i+1)
	}
	return s, nil
}

func intArg(f KeyFilter, i int) (int, error) {
	switch n := f.Args()[i].(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	case json.Number:
		if v, err := n.Int64(); err == nil {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: %s: argument %d must be an integer", ErrInvalidFilter, f.Name(), i+1)
}

// levenshtein returns the edit distance between a and b, counted in runes
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
