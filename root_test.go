package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidqueue/vidqueue-go/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{
		"login", "register", "logout", "whoami",
		"upload", "videos", "get", "watch", "history",
	} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, flag := range []string{"config", "server", "json", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
}

func TestBuildLoggerLevels(t *testing.T) {
	origCfg, origVerbose, origQuiet := resolvedCfg, flagVerbose, flagQuiet
	defer func() {
		resolvedCfg, flagVerbose, flagQuiet = origCfg, origVerbose, origQuiet
	}()

	resolvedCfg = config.DefaultConfig()
	flagVerbose, flagQuiet = false, false

	logger := buildLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))

	// --verbose wins over the config level.
	flagVerbose = true
	assert.True(t, buildLogger().Enabled(t.Context(), slog.LevelDebug))

	// --quiet drops everything below error.
	flagVerbose, flagQuiet = false, true
	assert.False(t, buildLogger().Enabled(t.Context(), slog.LevelWarn))
	assert.True(t, buildLogger().Enabled(t.Context(), slog.LevelError))
}

func TestLoadConfigAppliesCLIServer(t *testing.T) {
	origCfg, origServer, origConfigPath := resolvedCfg, flagServer, flagConfigPath
	defer func() {
		resolvedCfg, flagServer, flagConfigPath = origCfg, origServer, origConfigPath
	}()

	flagConfigPath = ""
	flagServer = "https://cli.example.com"

	require.NoError(t, loadConfig())
	assert.Equal(t, "https://cli.example.com", resolvedCfg.ServerURL)
}
