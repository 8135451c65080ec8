package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestShortCommit(t *testing.T) {
	tests := []struct {
		hash, want string
	}{
		{"abcdef1234567890abcdef1234567890abcdef12", "abcdef123456"},
		{"abcdef123456", "abcdef123456"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ShortCommit(tt.hash); got != tt.want {
			t.Errorf("ShortCommit(%q) = %q, want %q", tt.hash, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	oldV, oldC, oldB := Version, Commit, BuildTime
	defer func() { Version, Commit, BuildTime = oldV, oldC, oldB }()

	Version = "1.4.0"
	Commit = "0123456789abcdef"
	BuildTime = "2026-01-02T03:04:05Z"

	got := String()
	want := "torctl 1.4.0 (0123456789ab) built 2026-01-02T03:04:05Z " + runtime.GOOS + "/" + runtime.GOARCH
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestString_Dev(t *testing.T) {
	oldV, oldB := Version, BuildTime
	defer func() { Version, BuildTime = oldV, oldB }()

	Version = "dev"
	BuildTime = ""
	if got := String(); !strings.HasPrefix(got, "torctl dev") {
		t.Errorf("String() = %q", got)
	}
}
