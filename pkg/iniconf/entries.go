package iniconf

import (
	"fmt"
	"sort"
)

const (
	// DefaultSection holds global keys, including the backend grouping key.
	// It exists conceptually even when the file has no [DEFAULT] header.
	DefaultSection = "DEFAULT"

	// DefaultGroupingKey is the default-section key listing enabled backend sections
	DefaultGroupingKey = "enabled_backends"
)

// Mode selects how an update set is applied to a file
type Mode string

const (
	ModeUpdate Mode = "update"
	ModeDelete Mode = "delete"
)

// ParseMode converts a string to a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUpdate, ModeDelete:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Entry is one key with one or more values. Extra values are written as
// continuation lines.
type Entry struct {
	Key    string
	Values []string
}

// Entries is an ordered key/value set; order is kept when written
type Entries []Entry

// Index returns the position of key, or -1
func (e Entries) Index(key string) int {
	for i := range e {
		if e[i].Key == key {
			return i
		}
	}
	return -1
}

// Get returns the values of key
func (e Entries) Get(key string) ([]string, bool) {
	if i := e.Index(key); i >= 0 {
		return e[i].Values, true
	}
	return nil, false
}

// Set replaces the values of key, appending the key if it is new
func (e Entries) Set(key string, values ...string) Entries {
	vals := append([]string(nil), values...)
	if i := e.Index(key); i >= 0 {
		e[i].Values = vals
		return e
	}
	return append(e, Entry{Key: key, Values: vals})
}

// Delete removes key
func (e Entries) Delete(key string) Entries {
	i := e.Index(key)
	if i < 0 {
		return e
	}
	return append(e[:i:i], e[i+1:]...)
}

// Keys returns the keys in order
func (e Entries) Keys() []string {
	keys := make([]string, 0, len(e))
	for _, entry := range e {
		keys = append(keys, entry.Key)
	}
	return keys
}

// Clone returns a deep copy
func (e Entries) Clone() Entries {
	if e == nil {
		return nil
	}
	out := make(Entries, len(e))
	for i, entry := range e {
		out[i] = Entry{Key: entry.Key, Values: append([]string(nil), entry.Values...)}
	}
	return out
}

// EntriesFromMap builds single-valued entries ordered by key
func EntriesFromMap(m map[string]string) Entries {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Entries, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Values: []string{m[k]}})
	}
	return out
}

// Sections maps a section name (or a logical identifier, before matching)
// to its entries
type Sections map[string]Entries

// Clone returns a deep copy
func (s Sections) Clone() Sections {
	out := make(Sections, len(s))
	for name, entries := range s {
		out[name] = entries.Clone()
	}
	return out
}

// Names returns the section names in sorted order
func (s Sections) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge copies every section of other into s, replacing same-named sections
func (s Sections) Merge(other Sections) {
	for name, entries := range other {
		s[name] = entries.Clone()
	}
}
