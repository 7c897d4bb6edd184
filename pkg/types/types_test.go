package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeList(t *testing.T) {
	tests := []struct {
		name string
		cur  string
		add  []string
		want string
	}{
		{name: "empty", want: ""},
		{name: "nothing to add", cur: "a,b", want: "a,b"},
		{name: "into empty", add: []string{"a", "b"}, want: "a,b"},
		{name: "keeps order", cur: "b,a", add: []string{"c", "a"}, want: "b,a,c"},
		{name: "duplicates in cur", cur: "a,a,b", add: []string{"b"}, want: "a,b"},
		{name: "joined additions", cur: "h1", add: []string{"h2,h1", "h3"}, want: "h1,h2,h3"},
		{name: "skips blanks", cur: " a , ,b", add: []string{"", " "}, want: "a,b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeList(tt.cur, tt.add...))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList("a, b\tc,,"))
	assert.Empty(t, SplitList(" , "))
}
