package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input string
		want  Version
	}{
		{"3.12a", Version{Major: 3, Minor: 12, Patch: 0, Suffix: "a", Raw: "3.12a"}},
		{"", Version{}},
		{"12.5.1", Version{Major: 12, Minor: 5, Patch: 1, Raw: "12.5.1"}},
		{"9.0a5", Version{Major: 9, Minor: 0, Suffix: "a5", Raw: "9.0a5"}},
		{"13.0.1-alpha", Version{Major: 13, Minor: 0, Patch: 1, Suffix: "-alpha", Raw: "13.0.1-alpha"}},
		{"latest", Version{Suffix: "latest", Raw: "latest"}},
		{" 8.5 ", Version{Major: 8, Minor: 5, Raw: "8.5"}},
		{"99999999999999999999.1", Version{Minor: 1, Raw: "99999999999999999999.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVersion(tt.input))
		})
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.1", -1},
		{"2.0", "1.9.9", 1},
		{"1.0.1", "1.0.0", 1},
		{"9.0", "9.0a5", -1},
		{"9.0b1", "9.0a5", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVersion(tt.a).Compare(ParseVersion(tt.b)))
		})
	}
}

func TestSortDescending(t *testing.T) {
	got := SortDescending([]string{"8.5", "9.0", "9.0a5"})

	var raws []string
	for _, v := range got {
		raws = append(raws, v.Raw)
	}
	assert.Equal(t, []string{"9.0a5", "9.0", "8.5"}, raws)
}

func TestSortDescending_StableForEqualVersions(t *testing.T) {
	got := SortDescending([]string{"10.0", "10", "10.0.0", "11"})

	var raws []string
	for _, v := range got {
		raws = append(raws, v.Raw)
	}
	assert.Equal(t, []string{"11", "10.0", "10", "10.0.0"}, raws)
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "9.0a5", ParseVersion("9.0a5").String())
	assert.Equal(t, "1.2.3rc", Version{Major: 1, Minor: 2, Patch: 3, Suffix: "rc"}.String())
	assert.True(t, ParseVersion("").IsZero())
	assert.False(t, ParseVersion("0").IsZero())
}
