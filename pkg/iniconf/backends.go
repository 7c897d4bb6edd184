package iniconf

import (
	"strings"

	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/juju/collections/set"
)

// Options configures ChangeBackends
type Options struct {
	// GroupingKey is the default-section key listing enabled sections.
	// Defaults to DefaultGroupingKey.
	GroupingKey string
	Strict      bool
}

// Change is the outcome of ChangeBackends
type Change struct {
	Output   []byte
	Sections Sections          // Update set relabeled with on-disk names
	Renames  map[string]string // Logical -> on-disk name
	Enabled  []string          // Grouping key value written to the file
}

// ChangeBackends adds, updates or removes backend sections in src.
//
// It parses a snapshot of src, resolves search criteria against it, then
// recomputes the grouping key: existing names keep their order, names
// added in ModeUpdate are appended in sorted order and names removed in
// ModeDelete disappear. The result is applied with Rewrite.
func ChangeBackends(src []byte, search, updates Sections, mode Mode, opts Options) (*Change, error) {
	if len(updates) == 0 {
		return &Change{
			Output:   append([]byte(nil), src...),
			Sections: Sections{},
			Renames:  map[string]string{},
		}, nil
	}

	groupingKey := opts.GroupingKey
	if groupingKey == "" {
		groupingKey = DefaultGroupingKey
	}

	f, err := Parse(src)
	if err != nil {
		return nil, err
	}

	resolved, renames, err := Resolve(f, search, updates, MatchOptions{Strict: opts.Strict})
	if err != nil {
		return nil, err
	}

	current, present := f.Get(DefaultSection, groupingKey)
	enabled := changeEnabled(current, resolved.Names(), mode)

	writes := resolved.Clone()
	if present || len(enabled) > 0 {
		writes[DefaultSection] = writes[DefaultSection].Set(groupingKey, strings.Join(enabled, ","))
	}

	out, err := Rewrite(src, writes, mode)
	if err != nil {
		return nil, err
	}

	return &Change{
		Output:   out,
		Sections: resolved,
		Renames:  renames,
		Enabled:  enabled,
	}, nil
}

func changeEnabled(current, names []string, mode Mode) []string {
	seen := set.NewStrings()
	var enabled []string
	for _, v := range current {
		for _, name := range types.SplitList(v) {
			if !seen.Contains(name) {
				seen.Add(name)
				enabled = append(enabled, name)
			}
		}
	}

	touched := set.NewStrings()
	for _, name := range names {
		if name != DefaultSection {
			touched.Add(name)
		}
	}

	if mode == ModeDelete {
		kept := enabled[:0]
		for _, name := range enabled {
			if !touched.Contains(name) {
				kept = append(kept, name)
			}
		}
		return kept
	}

	// SortedValues keeps additions deterministic
	for _, name := range touched.Difference(seen).SortedValues() {
		enabled = append(enabled, name)
	}
	return enabled
}
