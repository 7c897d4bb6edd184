/*
Package iniconf edits INI-style service configuration files (cinder.conf and
friends) without disturbing content it was not asked to touch.

# Grammar

The reader is line oriented and follows the oslo.config dialect:

	# comment            ; comment
	[section]
	key = value          key: value
	multi = first
	    second           continuation, joined with "\n" when parsed

Keys before the first header belong to DefaultSection. A line that fits
none of these forms is reported as a *ParseError with its line number.

# Editing

Changes are described as Sections, a map from section name to ordered
Entries. ChangeBackends is the entry point used by the remote syncer:

	change, err := iniconf.ChangeBackends(src,
		iniconf.Sections{"gold_backend_poolB": {{Key: "rbd_pool", Values: []string{"poolB"}}}},
		iniconf.Sections{"gold_backend_poolB": {
			{Key: "volume_driver", Values: []string{"x"}},
			{Key: "rbd_pool", Values: []string{"poolB"}},
		}},
		iniconf.ModeUpdate, iniconf.Options{})

It runs in two stages. Resolve matches the search criteria against a parsed
snapshot so that an existing section describing the same backend is updated
in place under its on-disk name. Rewrite then streams the original text,
substituting keys, appending new sections and, in ModeDelete, dropping
whole sections. The enabled_backends grouping key is kept equal to the set
of backend sections the change touched.

Rewrite is a pure function of its inputs. Applying the same change twice
yields the same bytes, and an empty change returns the input unchanged.

Verify re-reads a result with gopkg.in/ini.v1 as an independent check
before a file is pushed to a host.
*/
package iniconf
