package iniconf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConf = "[DEFAULT]\nenabled_backends=alpha\n\n[alpha]\nvolume_driver=x\nrbd_pool=poolA\n"

func TestChangeBackends_AddSection(t *testing.T) {
	search := Sections{"gold_backend_poolB": entries("rbd_pool", "poolB")}
	updates := Sections{"gold_backend_poolB": entries("volume_driver", "x", "rbd_pool", "poolB")}

	change, err := ChangeBackends([]byte(baseConf), search, updates, ModeUpdate, Options{})
	require.NoError(t, err)

	want := "[DEFAULT]\nenabled_backends=alpha,gold_backend_poolB\n\n" +
		"[alpha]\nvolume_driver=x\nrbd_pool=poolA\n\n" +
		"[gold_backend_poolB]\nvolume_driver=x\nrbd_pool=poolB\n"
	assert.Equal(t, want, string(change.Output))
	assert.Equal(t, []string{"gold_backend_poolB"}, change.Sections.Names())
	assert.Empty(t, change.Renames)
	assert.Equal(t, []string{"alpha", "gold_backend_poolB"}, change.Enabled)

	require.NoError(t, Verify(change.Output, change, ModeUpdate, ""))

	// Applying the same change to the result is a no-op
	again, err := ChangeBackends(change.Output, search, updates, ModeUpdate, Options{})
	require.NoError(t, err)
	assert.Equal(t, string(change.Output), string(again.Output))
	assert.Equal(t, map[string]string{}, again.Renames, "section already carries the logical name")
}

func TestChangeBackends_UpdateMatchedSection(t *testing.T) {
	search := Sections{"gold_backend_poolA": entries("rbd_pool", "poolA")}
	updates := Sections{"gold_backend_poolA": entries(
		"volume_driver", "y",
		"rbd_pool", "poolA",
		"volume_backend_name", "gold_backend",
	)}

	change, err := ChangeBackends([]byte(baseConf), search, updates, ModeUpdate, Options{})
	require.NoError(t, err)

	want := "[DEFAULT]\nenabled_backends=alpha\n\n" +
		"[alpha]\nvolume_driver=y\nrbd_pool=poolA\nvolume_backend_name=gold_backend\n"
	assert.Equal(t, want, string(change.Output))
	assert.Equal(t, map[string]string{"gold_backend_poolA": "alpha"}, change.Renames)
	assert.Equal(t, []string{"alpha"}, change.Sections.Names())

	again, err := ChangeBackends(change.Output, search, updates, ModeUpdate, Options{})
	require.NoError(t, err)
	assert.Equal(t, want, string(again.Output))
}

func TestChangeBackends_Delete(t *testing.T) {
	src := "[DEFAULT]\nenabled_backends=alpha,beta\n\n" +
		"[alpha]\nvolume_driver=x\n\n" +
		"[beta]\nrbd_pool=poolB\n# beta comment\n\n" +
		"[other]\nk=v\n"

	search := Sections{"gold_backend_poolB": entries("rbd_pool", "poolB")}
	updates := Sections{"gold_backend_poolB": entries("rbd_pool", "poolB")}

	change, err := ChangeBackends([]byte(src), search, updates, ModeDelete, Options{})
	require.NoError(t, err)

	want := "[DEFAULT]\nenabled_backends=alpha\n\n" +
		"[alpha]\nvolume_driver=x\n\n" +
		"[other]\nk=v\n"
	assert.Equal(t, want, string(change.Output))
	assert.Equal(t, map[string]string{"gold_backend_poolB": "beta"}, change.Renames)
	require.NoError(t, Verify(change.Output, change, ModeDelete, ""))

	// Deleting again finds nothing and changes nothing
	again, err := ChangeBackends(change.Output, search, updates, ModeDelete, Options{})
	require.NoError(t, err)
	assert.Equal(t, want, string(again.Output))
}

func TestChangeBackends_NoDefaultSection(t *testing.T) {
	updates := Sections{"gold": entries("k", "v")}

	change, err := ChangeBackends([]byte("[alpha]\na=1\n"), nil, updates, ModeUpdate, Options{})
	require.NoError(t, err)
	assert.Equal(t, "[DEFAULT]\nenabled_backends=gold\n\n[alpha]\na=1\n\n[gold]\nk=v\n", string(change.Output))

	// Nothing to remove and no key to rewrite
	change, err = ChangeBackends([]byte("[alpha]\na=1\n"), nil, updates, ModeDelete, Options{})
	require.NoError(t, err)
	assert.Equal(t, "[alpha]\na=1\n", string(change.Output))
}

func TestChangeBackends_CustomGroupingKey(t *testing.T) {
	src := "[DEFAULT]\nenabled_share_backends = a b,a\n"
	change, err := ChangeBackends([]byte(src), nil, Sections{"c": entries("k", "v")}, ModeUpdate,
		Options{GroupingKey: "enabled_share_backends"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, change.Enabled)
	assert.Equal(t, "[DEFAULT]\nenabled_share_backends=a,b,c\n\n[c]\nk=v\n", string(change.Output))
	require.NoError(t, Verify(change.Output, change, ModeUpdate, "enabled_share_backends"))
}

func TestChangeBackends_EmptyUpdates(t *testing.T) {
	change, err := ChangeBackends([]byte(baseConf), Sections{"x": entries("k", "v")}, Sections{}, ModeUpdate, Options{})
	require.NoError(t, err)
	assert.Equal(t, baseConf, string(change.Output))
}

func TestChangeBackends_GroupingKeyMatchesSections(t *testing.T) {
	src := []byte(baseConf)
	var err error
	var change *Change

	// Add three backends one at a time, then remove one
	for _, name := range []string{"b1", "b2", "b3"} {
		change, err = ChangeBackends(src, nil, Sections{name: entries("volume_backend_name", name)}, ModeUpdate, Options{})
		require.NoError(t, err)
		src = change.Output
	}
	f, err := Parse(src)
	require.NoError(t, err)
	enabled, _ := f.Get(DefaultSection, DefaultGroupingKey)
	assert.Equal(t, []string{"alpha,b1,b2,b3"}, enabled)
	assert.Equal(t, []string{"DEFAULT", "alpha", "b1", "b2", "b3"}, f.Names())

	change, err = ChangeBackends(src, nil, Sections{"b2": nil}, ModeDelete, Options{})
	require.NoError(t, err)
	f, err = Parse(change.Output)
	require.NoError(t, err)
	enabled, _ = f.Get(DefaultSection, DefaultGroupingKey)
	assert.Equal(t, []string{"alpha,b1,b3"}, enabled)
	assert.Equal(t, []string{"DEFAULT", "alpha", "b1", "b3"}, f.Names())
}

func TestChangeBackends_ParseError(t *testing.T) {
	_, err := ChangeBackends([]byte("[a]\nbroken\n"), nil, Sections{"a": entries("k", "v")}, ModeUpdate, Options{})
	var perr *ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestVerify_DetectsMissingSection(t *testing.T) {
	change := &Change{Sections: Sections{"gold": entries("k", "v")}}

	err := Verify([]byte(baseConf), change, ModeUpdate, "")
	assert.ErrorIs(t, err, ErrVerify)

	err = Verify([]byte("[DEFAULT]\nenabled_backends=gold\n"), &Change{Sections: Sections{"gold": nil}}, ModeDelete, "")
	assert.ErrorIs(t, err, ErrVerify, "name still listed")
}
