package iniconf

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/sdscompose/pkg/log"
)

// ErrAmbiguousMatch is returned in strict mode when search criteria match
// more than one section, or two logical sections resolve to the same one
var ErrAmbiguousMatch = errors.New("ambiguous section match")

// MatchOptions controls section resolution
type MatchOptions struct {
	// Strict fails on ambiguity instead of logging it and taking the first match
	Strict bool
}

// Resolve relabels updates so that logical identifiers with a matching
// existing section use that section's on-disk name. Search identifiers are
// visited in sorted order and existing sections in file order; the first
// match wins. The returned map holds logical -> resolved names for every
// renamed entry.
//
// A section matches when it has every key in the criteria with the same
// values, compared order-insensitively. Criteria with no keys never match,
// and DefaultSection is never a candidate.
func Resolve(f *File, search, updates Sections, opts MatchOptions) (Sections, map[string]string, error) {
	resolved := updates.Clone()
	renames := make(map[string]string)
	logger := log.WithComponent("iniconf")

	for _, id := range search.Names() {
		criteria := search[id]
		entries, ok := resolved[id]
		if !ok || len(criteria) == 0 {
			continue
		}

		var matches []string
		for _, sec := range f.Sections() {
			if sec.Name == DefaultSection {
				continue
			}
			if contains(sec.Entries, criteria) {
				matches = append(matches, sec.Name)
			}
		}
		if len(matches) == 0 {
			continue
		}

		if len(matches) > 1 {
			if opts.Strict {
				return nil, nil, fmt.Errorf("%s matches sections %v: %w", id, matches, ErrAmbiguousMatch)
			}
			logger.Warn().
				Str("section", id).
				Strs("matches", matches).
				Msg("Search criteria match several sections, using the first")
		}

		target := matches[0]
		if target == id {
			continue
		}
		if _, taken := resolved[target]; taken {
			if opts.Strict {
				return nil, nil, fmt.Errorf("%s resolves to %s which is already updated: %w", id, target, ErrAmbiguousMatch)
			}
			logger.Warn().
				Str("section", id).
				Str("match", target).
				Msg("Matched section already claimed, keeping logical name")
			continue
		}

		delete(resolved, id)
		resolved[target] = entries
		renames[id] = target
	}

	return resolved, renames, nil
}

func contains(cur, criteria Entries) bool {
	for _, want := range criteria {
		have, ok := cur.Get(want.Key)
		if !ok || !sameValues(have, want.Values) {
			return false
		}
	}
	return true
}

func sameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
