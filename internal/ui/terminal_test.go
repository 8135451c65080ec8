package ui

import (
	"os"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestShouldUseColor_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "1")
	assert.False(t, ShouldUseColor(), "NO_COLOR wins even when empty")
	assert.Equal(t, termenv.Ascii, ColorProfile())
}

func TestShouldUseColor_CliColorZero(t *testing.T) {
	unsetEnv(t, "NO_COLOR")
	t.Setenv("CLICOLOR", "0")
	assert.False(t, ShouldUseColor())
}

func TestShouldUseColor_Force(t *testing.T) {
	unsetEnv(t, "NO_COLOR")
	t.Setenv("CLICOLOR", "1")
	t.Setenv("CLICOLOR_FORCE", "1")
	assert.True(t, ShouldUseColor())
	assert.NotEqual(t, termenv.Ascii, ColorProfile())
}
