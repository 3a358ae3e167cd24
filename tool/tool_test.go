package tool

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/codesync-go/types"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "idleTimeout: 24h0m0s")

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigNormalizesZeroes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nsession:\n  chatHistory: 0\n  idleTimeout: 1m\nterminal:\n  shell: \"\"\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 200, cfg.Session.ChatHistory)
	assert.Equal(t, "/bin/sh", cfg.Terminal.Shell)
}

func TestLoadConfigRejectsDirectory(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}

func TestFlagsOverrideConfig(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := parseFlags(fs, []string{"-p", "9090", "--require-auth", "--db", "state.db", "--no-metrics", "--log", "prod"})
	assert.Equal(t, "prod", flags.Log)

	cfg := DefaultConfig()
	ApplyFlags(&cfg, flags)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Auth.Required)
	assert.Equal(t, "state.db", cfg.Database.Path)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/bin/sh", cfg.Terminal.Shell)
}

func TestErrorStatus(t *testing.T) {
	cases := map[error]int{
		types.ErrUnauthorized:        http.StatusUnauthorized,
		types.ErrNotFound:            http.StatusNotFound,
		types.ErrConflict:            http.StatusConflict,
		types.ErrNotAFile:            http.StatusBadRequest,
		types.ErrNotAFolder:          http.StatusBadRequest,
		types.ErrInvalidOperation:    http.StatusBadRequest,
		types.ErrUnsupportedFileType: http.StatusBadRequest,
		types.ErrProcessSpawn:        http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, ErrorStatus(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestBuildJoinURL(t *testing.T) {
	assert.Equal(t, "https://code.example/?sessionId=abc", BuildJoinURL("https://code.example/", "abc"))
	assert.Equal(t, "http://localhost:5173/?sessionId=abc", BuildJoinURL("", "abc"))
}

func TestIdentifiers(t *testing.T) {
	assert.Len(t, GenerateRandomUUID(), 36)
	assert.NotEqual(t, GenerateULID(), GenerateULID())
	assert.Len(t, ContentHash("x"), 64)
	assert.Equal(t, ContentHash("x"), ContentHash("x"))
}

func TestRandomSessionName(t *testing.T) {
	for range 20 {
		adjective, noun, ok := strings.Cut(RandomSessionName(), " ")
		require.True(t, ok)
		assert.Contains(t, nameAdjectives, adjective)
		assert.Contains(t, nameNouns, noun)
	}
}
