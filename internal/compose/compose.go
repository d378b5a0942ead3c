// Package compose implements the Multi-pattern Composer (spec.md
// §4.4): given k independent per-pattern result streams for one file,
// it forms the Cartesian product restricted by metavariable
// unification and, optionally, global uniqueness.
package compose

import (
	"sort"

	"github.com/cqlang/cq/internal/types"
)

// Options mirrors matcher.Options; Unique here applies across the
// union of every stream's variable bindings in a surviving tuple,
// rather than one pattern's own bindings.
type Options struct {
	Unique bool
}

// Tuple is one surviving combination, one result per input pattern,
// in the same order the patterns were supplied.
type Tuple struct {
	Results []types.QueryResult
}

// Compose forms the restricted Cartesian product of streams (spec.md
// §4.4). streams[i] holds pattern i's QueryResults for one file, each
// already in source order. A single stream is returned unmodified as
// singleton tuples (no composition needed).
func Compose(streams [][]types.QueryResult, opts Options) []Tuple {
	if len(streams) == 0 {
		return nil
	}
	if len(streams) == 1 {
		out := make([]Tuple, 0, len(streams[0]))
		for _, r := range streams[0] {
			out = append(out, Tuple{Results: []types.QueryResult{r}})
		}
		return out
	}

	tuples := []Tuple{{}}
	for _, stream := range streams {
		var next []Tuple
		for _, t := range tuples {
			for _, r := range stream {
				if !unifies(t, r) {
					continue
				}
				merged := append(append([]types.QueryResult{}, t.Results...), r)
				next = append(next, Tuple{Results: merged})
			}
		}
		tuples = next
	}

	var out []Tuple
	for _, t := range tuples {
		if opts.Unique && !tupleDistinct(t) {
			continue
		}
		out = append(out, t)
	}

	// "Surviving tuples are emitted in the source order of r₁"
	// (spec.md §4.4): stable-sort by the first result's root span.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Results[0].RootSpan.Start.Byte < out[j].Results[0].RootSpan.Start.Byte
	})
	return out
}

// unifies reports whether candidate r can extend tuple t: every
// metavariable name appearing in both r and an existing member of t
// must bind to byte-identical text (spec.md §4.4, "restricted by
// metavariable unification").
func unifies(t Tuple, r types.QueryResult) bool {
	for _, existing := range t.Results {
		for name, text := range r.Variables {
			if other, ok := existing.Variables[name]; ok && other != text {
				return false
			}
		}
	}
	return true
}

// tupleDistinct applies spec.md §4.4's "the uniqueness constraint
// applies across the union of all variable bindings in the tuple".
func tupleDistinct(t Tuple) bool {
	seen := make(map[string]bool)
	for _, r := range t.Results {
		for _, v := range r.Variables {
			if seen[v] {
				return false
			}
			seen[v] = true
		}
	}
	return true
}
