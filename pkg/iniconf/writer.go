package iniconf

import (
	"bytes"
	"strings"

	"github.com/juju/collections/set"
)

// Rewrite streams src into a new file that reflects updates.
//
// Lines that are not touched are copied byte-for-byte. A key present in
// both the current section and updates is replaced by the update value.
// Update entries left over when a section closes are written at the end of
// that section, ahead of the blank lines separating it from the next one.
// In ModeDelete every section named in updates (except DefaultSection) is
// dropped whole. In ModeUpdate sections never seen in src are appended in
// name order.
//
// An empty update set returns src unchanged.
func Rewrite(src []byte, updates Sections, mode Mode) ([]byte, error) {
	if len(updates) == 0 {
		return append([]byte(nil), src...), nil
	}

	lines, err := scan(src)
	if err != nil {
		return nil, err
	}

	w := &rewriter{
		mode:    mode,
		pending: updates.Clone(),
		dropped: set.NewStrings(),
	}
	seenHeader := false
	for _, l := range lines {
		switch l.kind {
		case kindHeader:
			seenHeader = true
			if l.name == DefaultSection {
				w.hasDefaultHeader = true
			}
		case kindAssign:
			if !seenHeader {
				w.hasImplicitKeys = true
			}
		}
	}

	w.run(lines)

	out := w.buf.Bytes()
	if len(src) > 0 && src[len(src)-1] != '\n' && !w.generatedLast && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

type rewriter struct {
	mode    Mode
	pending Sections
	dropped set.Strings

	buf           bytes.Buffer
	held          []string // blank lines not yet written
	generatedLast bool

	cur      string
	implicit bool // cur is the region before the first header
	skipping bool

	hasDefaultHeader bool
	hasImplicitKeys  bool

	keyActive bool
	key       string
	keyRaw    []string
}

func (w *rewriter) run(lines []line) {
	w.cur, w.implicit = DefaultSection, true

	for _, l := range lines {
		switch l.kind {
		case kindBlank:
			w.flushKey()
			if !w.skipping {
				w.held = append(w.held, l.raw)
			}
		case kindContinuation:
			w.keyRaw = append(w.keyRaw, l.raw)
		case kindHeader:
			w.flushKey()
			w.closeSection(true)
			w.openSection(l)
		case kindComment:
			w.flushKey()
			if !w.skipping {
				w.emit(l.raw)
			}
		case kindAssign:
			w.flushKey()
			w.keyActive, w.key, w.keyRaw = true, l.key, []string{l.raw}
		}
	}

	w.flushKey()
	w.closeSection(false)
	if w.skipping {
		// Blank lines before a dropped trailing section go with it
		w.held = nil
	}
	w.flushHeld()

	if w.mode != ModeDelete {
		w.appendNew()
	}
}

func (w *rewriter) openSection(l line) {
	w.cur, w.implicit = l.name, false
	w.skipping = false

	if w.mode == ModeDelete && l.name != DefaultSection {
		if _, ok := w.pending[l.name]; ok || w.dropped.Contains(l.name) {
			delete(w.pending, l.name)
			w.dropped.Add(l.name)
			w.skipping = true
			return
		}
	}
	w.emit(l.raw)
}

// closeSection writes the update entries still pending for the current
// section. Held blank lines stay behind them.
func (w *rewriter) closeSection(atHeader bool) {
	entries, ok := w.pending[w.cur]
	if !ok || w.skipping {
		return
	}

	if w.implicit && !w.hasImplicitKeys {
		if w.hasDefaultHeader {
			// The explicit [DEFAULT] header further down takes them
			return
		}
		delete(w.pending, w.cur)
		if len(entries) == 0 {
			return
		}
		w.put("["+DefaultSection+"]", true)
		for _, e := range entries {
			w.writeEntry(e)
		}
		if atHeader && len(w.held) == 0 {
			w.held = append(w.held, "")
		}
		return
	}

	delete(w.pending, w.cur)
	for _, e := range entries {
		w.writeEntry(e)
	}
}

func (w *rewriter) flushKey() {
	if !w.keyActive {
		return
	}
	w.keyActive = false
	if w.skipping {
		return
	}

	if entries, ok := w.pending[w.cur]; ok {
		if values, found := entries.Get(w.key); found {
			w.pending[w.cur] = entries.Delete(w.key)
			w.flushHeld()
			w.writeEntry(Entry{Key: w.key, Values: values})
			return
		}
	}
	for _, raw := range w.keyRaw {
		w.emit(raw)
	}
}

func (w *rewriter) appendNew() {
	for _, name := range w.pending.Names() {
		entries := w.pending[name]
		if len(entries) == 0 {
			continue
		}
		if w.buf.Len() > 0 && !w.lastLineBlank() {
			w.put("", true)
		}
		w.put("["+name+"]", true)
		for _, e := range entries {
			w.writeEntry(e)
		}
	}
	w.pending = nil
}

func (w *rewriter) writeEntry(e Entry) {
	if len(e.Values) == 0 {
		w.put(e.Key+"=", true)
		return
	}
	for i, v := range e.Values {
		if i == 0 {
			w.put(e.Key+"="+v, true)
		} else {
			w.put("\t"+v, true)
		}
	}
}

// emit writes a source line after any held blank lines
func (w *rewriter) emit(raw string) {
	w.flushHeld()
	w.put(raw, false)
}

func (w *rewriter) flushHeld() {
	for _, raw := range w.held {
		w.put(raw, false)
	}
	w.held = nil
}

func (w *rewriter) put(s string, generated bool) {
	w.buf.WriteString(s)
	w.buf.WriteByte('\n')
	w.generatedLast = generated
}

func (w *rewriter) lastLineBlank() bool {
	b := w.buf.Bytes()
	if len(b) == 0 {
		return true
	}
	b = b[:len(b)-1]
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return strings.TrimSpace(string(b)) == ""
}
