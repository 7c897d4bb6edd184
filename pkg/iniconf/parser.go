package iniconf

import (
	"fmt"
	"strings"
)

// ParseError reports a line that is neither blank, a comment, a section
// header, a continuation nor a key assignment
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

type lineKind int

const (
	kindBlank lineKind = iota
	kindComment
	kindHeader
	kindAssign
	kindContinuation
)

// line is one classified source line. raw is kept byte-for-byte, without
// the trailing newline.
type line struct {
	kind  lineKind
	raw   string
	name  string // section name for headers
	key   string
	value string // assignment or continuation value
}

func splitLines(src []byte) []string {
	if len(src) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(src), "\n"), "\n")
}

// scan classifies every line of src, failing on the first malformed one
func scan(src []byte) ([]line, error) {
	raws := splitLines(src)
	lines := make([]line, 0, len(raws))
	inAssign := false

	for i, raw := range raws {
		l, reason := classify(raw)
		if reason == "" && l.kind == kindContinuation && !inAssign {
			reason = "unexpected continuation line"
		}
		if reason != "" {
			return nil, &ParseError{Line: i + 1, Text: raw, Reason: reason}
		}

		// Blank lines, comments and headers all end a multi-line value
		switch l.kind {
		case kindAssign:
			inAssign = true
		case kindContinuation:
		default:
			inAssign = false
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func classify(raw string) (line, string) {
	l := line{raw: raw}
	trimmed := strings.TrimRight(raw, " \t\r")

	switch {
	case trimmed == "":
		l.kind = kindBlank
	case raw[0] == ' ' || raw[0] == '\t':
		l.kind = kindContinuation
		l.value = strings.TrimSpace(trimmed)
	case trimmed[0] == '[':
		if trimmed[len(trimmed)-1] != ']' {
			return l, "section header missing closing bracket"
		}
		l.kind = kindHeader
		l.name = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		if l.name == "" {
			return l, "empty section name"
		}
	case trimmed[0] == '#' || trimmed[0] == ';':
		l.kind = kindComment
	default:
		key, value, ok := splitAssignment(trimmed)
		if !ok {
			return l, "expected key=value assignment"
		}
		if key == "" {
			return l, "empty key"
		}
		l.kind = kindAssign
		l.key, l.value = key, value
	}
	return l, ""
}

// splitAssignment splits on the first of '=' or ':'
func splitAssignment(s string) (string, string, bool) {
	idx := strings.IndexByte(s, '=')
	if colon := strings.IndexByte(s, ':'); colon >= 0 && (idx < 0 || colon < idx) {
		idx = colon
	}
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), unquote(strings.TrimSpace(s[idx+1:])), true
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == v[len(v)-1] && (v[0] == '"' || v[0] == '\'') {
		return v[1 : len(v)-1]
	}
	return v
}

// Section is a parsed section. Each occurrence of a key adds one value;
// continuation lines are joined to their value with "\n".
type Section struct {
	Name    string
	Entries Entries
}

// File is a parsed snapshot of a configuration file. It is built fresh for
// every call to Parse and never shared between files.
type File struct {
	sections []*Section
	index    map[string]*Section
}

// Parse parses src. Keys before the first header belong to DefaultSection.
// Repeated headers extend the same section.
func Parse(src []byte) (*File, error) {
	lines, err := scan(src)
	if err != nil {
		return nil, err
	}

	f := &File{index: make(map[string]*Section)}
	cur := DefaultSection
	var key string
	var value []string

	flush := func() {
		if key == "" {
			return
		}
		sec := f.ensure(cur)
		joined := strings.Join(value, "\n")
		if i := sec.Entries.Index(key); i >= 0 {
			sec.Entries[i].Values = append(sec.Entries[i].Values, joined)
		} else {
			sec.Entries = append(sec.Entries, Entry{Key: key, Values: []string{joined}})
		}
		key, value = "", nil
	}

	for _, l := range lines {
		switch l.kind {
		case kindContinuation:
			value = append(value, l.value)
			continue
		case kindAssign:
			flush()
			key, value = l.key, []string{l.value}
		case kindHeader:
			flush()
			cur = l.name
			f.ensure(cur)
		default:
			flush()
		}
	}
	flush()

	return f, nil
}

func (f *File) ensure(name string) *Section {
	if sec, ok := f.index[name]; ok {
		return sec
	}
	sec := &Section{Name: name}
	f.sections = append(f.sections, sec)
	f.index[name] = sec
	return sec
}

// Sections returns the sections in file order
func (f *File) Sections() []*Section {
	return f.sections
}

// Section returns the named section or nil
func (f *File) Section(name string) *Section {
	return f.index[name]
}

// Names returns the section names in file order
func (f *File) Names() []string {
	names := make([]string, 0, len(f.sections))
	for _, sec := range f.sections {
		names = append(names, sec.Name)
	}
	return names
}

// Get returns the values of key in section
func (f *File) Get(section, key string) ([]string, bool) {
	sec := f.index[section]
	if sec == nil {
		return nil, false
	}
	return sec.Entries.Get(key)
}
