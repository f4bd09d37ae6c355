package secrets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreFetchDelete(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	require.NoError(t, Store(PluggyWebhookSecret, "whsec-1"))
	require.NoError(t, Store(" Pluggy.Client_Secret ", "cs-1"))

	got, err := Fetch(PluggyWebhookSecret)
	require.NoError(t, err)
	require.Equal(t, "whsec-1", got)
	got, err = Fetch(PluggyClientSecret)
	require.NoError(t, err)
	require.Equal(t, "cs-1", got)

	raw, err := os.ReadFile(filepath.Join(dir, "finsync", fileName))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "whsec-1")

	info, err := os.Stat(filepath.Join(dir, "finsync", fileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, Delete(PluggyWebhookSecret))
	_, err = Fetch(PluggyWebhookSecret)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetchBeforeAnythingStored(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := Fetch(AIPrimaryKey)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, Delete(AIPrimaryKey))
}

func TestUnknownNamesRejected(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	require.ErrorIs(t, Store("openai", "sk"), ErrUnknownName)
	_, err := Fetch("pluggy.client_id")
	require.ErrorIs(t, err, ErrUnknownName)
	require.ErrorIs(t, Delete("whatever"), ErrUnknownName)
}

func TestSealedValueBoundToName(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	require.NoError(t, Store(AIPrimaryKey, "sk-primary"))
	path := filepath.Join(dir, "finsync", fileName)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var sf secretFile
	require.NoError(t, json.Unmarshal(raw, &sf))
	require.Equal(t, version, sf.Version)
	sf.Secrets[AIFallbackKey] = sf.Secrets[AIPrimaryKey]
	moved, err := json.Marshal(sf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, moved, 0o600))

	_, err = Fetch(AIFallbackKey)
	require.Error(t, err)
	got, err := Fetch(AIPrimaryKey)
	require.NoError(t, err)
	require.Equal(t, "sk-primary", got)
}

func TestFetchRequiresName(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := Fetch("  ")
	require.Error(t, err)
	require.Error(t, Store("", "x"))
}

func TestResolveOrder(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FINSYNC_TEST_KEY", "")

	require.Equal(t, "from-config", Resolve("FINSYNC_TEST_KEY", AIPrimaryKey, "from-config"))

	require.NoError(t, Store(AIPrimaryKey, "from-store"))
	require.Equal(t, "from-store", Resolve("FINSYNC_TEST_KEY", AIPrimaryKey, "from-config"))

	t.Setenv("FINSYNC_TEST_KEY", "from-env")
	require.Equal(t, "from-env", Resolve("FINSYNC_TEST_KEY", AIPrimaryKey, "from-config"))

	require.Equal(t, "fallback", Resolve("", "", "fallback"))
}
