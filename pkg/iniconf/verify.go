package iniconf

import (
	"errors"
	"fmt"

	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/juju/collections/set"
	"gopkg.in/ini.v1"
)

// ErrVerify marks a rewritten file that does not reflect the requested change
var ErrVerify = errors.New("rewritten file failed verification")

// Verify reloads out with an independent INI reader and checks that every
// section in change is present and enabled (ModeUpdate) or absent from both
// the file and the grouping key (ModeDelete).
func Verify(out []byte, change *Change, mode Mode, groupingKey string) error {
	if groupingKey == "" {
		groupingKey = DefaultGroupingKey
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		AllowShadows:               true,
		IgnoreInlineComment:        true,
	}, out)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerify, err)
	}

	enabled := set.NewStrings()
	if def, err := cfg.GetSection(ini.DefaultSection); err == nil && def.HasKey(groupingKey) {
		enabled = set.NewStrings(types.SplitList(def.Key(groupingKey).String())...)
	}

	for _, name := range change.Sections.Names() {
		if name == DefaultSection {
			continue
		}
		sec, err := cfg.GetSection(name)

		switch mode {
		case ModeDelete:
			if err == nil {
				return fmt.Errorf("%w: section %s still present", ErrVerify, name)
			}
			if enabled.Contains(name) {
				return fmt.Errorf("%w: %s still listed in %s", ErrVerify, name, groupingKey)
			}
		default:
			if err != nil {
				return fmt.Errorf("%w: section %s missing", ErrVerify, name)
			}
			if !enabled.Contains(name) {
				return fmt.Errorf("%w: %s not listed in %s", ErrVerify, name, groupingKey)
			}
			for _, key := range change.Sections[name].Keys() {
				if !sec.HasKey(key) {
					return fmt.Errorf("%w: section %s lacks %s", ErrVerify, name, key)
				}
			}
		}
	}
	return nil
}
