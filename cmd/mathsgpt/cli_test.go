package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&globalFlags{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_InitConfigRoundTrip(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test-key-123456")
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, err = execute(t, "--config", path, "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "--config", path, "config", "set", "agent.maxIterations", "7")
	require.NoError(t, err)

	out, err = execute(t, "--config", path, "config", "get", "agent.maxIterations")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	_, err = execute(t, "--config", path, "config", "set", "agent.maxIterations", "0")
	assert.ErrorContains(t, err, "agent.maxIterations must be between 1 and 200")

	out, err = execute(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, err = execute(t, "--config", path, "config", "show", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "maxIterations: 7")
	assert.NotContains(t, out, "gsk-test-key-123456")
}

func TestCLI_Tools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := execute(t, "--config", path, "init")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "config", "set", "tools.denied", `["Wikipedia"]`)
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "Calculator")
	assert.Contains(t, out, "Reasoning")
	assert.NotContains(t, out, "Wikipedia")
}

func TestCLI_DoctorOffline(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	_, err := execute(t, "--config", path, "init")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "config", "set", "runLog.enabled", "true")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "config", "set", "runLog.dbPath", filepath.Join(dir, "runs.db"))
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "doctor", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Provider: groq")
	assert.Contains(t, out, "Run log")
	assert.Contains(t, out, "0 failed")

	out, err = execute(t, "--config", path, "history", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total")
}

func TestCLI_DoctorMissingKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := execute(t, "--config", path, "init")
	require.NoError(t, err)

	out, err := execute(t, "--config", path, "doctor", "--offline")
	assert.ErrorContains(t, err, "1 check(s) failed")
	assert.Contains(t, out, "API key ${GROQ_API_KEY} is not set")
}

func TestCLI_HistoryDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := execute(t, "--config", path, "init")
	require.NoError(t, err)

	_, err = execute(t, "--config", path, "history", "list")
	assert.ErrorContains(t, err, "run log is disabled")
}

func TestCheckDatabase(t *testing.T) {
	assert.NoError(t, checkDatabase(filepath.Join(t.TempDir(), "nested", "runs.db")))
}
