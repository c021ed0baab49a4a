package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/pkg/version"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootListsSubcommands(t *testing.T) {
	out, err := runCommand(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"serve", "index", "admin", "config", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out, err = runCommand(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
}

func TestConfigInitWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amanrag.yaml")

	out, err := runCommand(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "index_name")

	// Refuses to clobber without --force.
	_, err = runCommand(t, "config", "init", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCommand(t, "config", "init", "--path", path, "--force")
	require.NoError(t, err)
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	t.Setenv("AMANRAG_SEARCH_ADMIN_KEY", "super-secret-admin-key")
	t.Setenv("AMANRAG_SESSION_SECRET", "super-secret-session")

	out, err := runCommand(t, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "super-secret-admin-key")
	assert.NotContains(t, out, "super-secret-session")
	assert.Contains(t, out, "***")
	assert.Contains(t, out, "index_name: code-chunks")
}

func TestServeRejectsUnknownTransport(t *testing.T) {
	_, err := runCommand(t, "serve", "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}
