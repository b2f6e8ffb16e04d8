package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRootCmd_HasServeSubcommand(t *testing.T) {
	root := buildRootCmd()

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())
}

func TestBuildServeCmd_DefaultFlags(t *testing.T) {
	cmd := buildServeCmd()

	configDir, err := cmd.Flags().GetString("config-dir")
	require.NoError(t, err)
	assert.NotEmpty(t, configDir)

	envFile, err := cmd.Flags().GetString("env-file")
	require.NoError(t, err)
	assert.Empty(t, envFile)

	debug, err := cmd.Flags().GetBool("debug")
	require.NoError(t, err)
	assert.False(t, debug)
}

func TestGetEnv_FallsBackToDefault(t *testing.T) {
	t.Setenv("SQL_INSIGHT_ENGINE_TEST_VAR", "")
	assert.Equal(t, "fallback", getEnv("SQL_INSIGHT_ENGINE_TEST_VAR", "fallback"))

	t.Setenv("SQL_INSIGHT_ENGINE_TEST_VAR", "set")
	assert.Equal(t, "set", getEnv("SQL_INSIGHT_ENGINE_TEST_VAR", "fallback"))
}
