package iniconf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	src := []byte(`# global settings
debug = true

[DEFAULT]
enabled_backends = alpha, beta
state_path: "/var/lib/cinder"

[alpha]
volume_driver=x
opts=first
    second
	third
multi=1
multi=2

[beta]
; nothing but a comment
`)

	f, err := Parse(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"DEFAULT", "alpha", "beta"}, f.Names())

	v, ok := f.Get("DEFAULT", "debug")
	require.True(t, ok)
	assert.Equal(t, []string{"true"}, v)

	v, _ = f.Get("DEFAULT", "enabled_backends")
	assert.Equal(t, []string{"alpha, beta"}, v)

	v, _ = f.Get("DEFAULT", "state_path")
	assert.Equal(t, []string{"/var/lib/cinder"}, v, "quotes are stripped")

	v, _ = f.Get("alpha", "opts")
	assert.Equal(t, []string{"first\nsecond\nthird"}, v)

	v, _ = f.Get("alpha", "multi")
	assert.Equal(t, []string{"1", "2"}, v)

	require.NotNil(t, f.Section("beta"))
	assert.Empty(t, f.Section("beta").Entries)
	assert.Nil(t, f.Section("gamma"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"unterminated header", "[alpha\n", 1},
		{"empty header", "[a]\nk=v\n[ ]\n", 3},
		{"no delimiter", "[a]\njust text\n", 2},
		{"empty key", "[a]\n=value\n", 2},
		{"leading continuation", "  leading\n", 1},
		{"continuation after comment", "[a]\nk=v\n# c\n  cont\n", 4},
		{"continuation after blank", "[a]\nk=v\n\n  cont\n", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.line, perr.Line)
			assert.NotEmpty(t, perr.Reason)

			// The editor rejects the same input
			_, err = Rewrite([]byte(tt.src), Sections{"a": {{Key: "k", Values: []string{"v"}}}}, ModeUpdate)
			assert.True(t, errors.As(err, &perr))
		})
	}
}

func TestEntries(t *testing.T) {
	var e Entries
	e = e.Set("a", "1")
	e = e.Set("b", "2", "3")
	e = e.Set("a", "4")

	assert.Equal(t, []string{"a", "b"}, e.Keys())
	v, ok := e.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []string{"4"}, v)

	clone := e.Clone()
	e = e.Delete("a")
	assert.Equal(t, []string{"b"}, e.Keys())
	assert.Equal(t, []string{"a", "b"}, clone.Keys(), "clone is independent")

	fromMap := EntriesFromMap(map[string]string{"z": "1", "m": "2"})
	assert.Equal(t, []string{"m", "z"}, fromMap.Keys())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("delete")
	require.NoError(t, err)
	assert.Equal(t, ModeDelete, m)

	_, err = ParseMode("replace")
	assert.Error(t, err)
}
