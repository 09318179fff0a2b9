package fledge_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[client]
client_id = "brave-turing"
server = "127.0.0.1:9092"
slice = "fixed"
epochs = 3

[mqtt]
address = "tcp://localhost:1883"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := fledge.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "brave-turing", cfg.Client.ClientID)
	assert.Equal(t, "127.0.0.1:9092", cfg.Client.Server)
	assert.Equal(t, "fixed", cfg.Client.Slice)
	assert.Equal(t, 3, cfg.Client.Epochs)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Address)
}

func TestSaveConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := fledge.Config{
		Client: fledge.ClientConfig{ClientID: "c1", Server: "localhost:9092", Epochs: 5},
	}
	require.NoError(t, fledge.SaveConfig(path, cfg))

	got, err := fledge.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *got)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := fledge.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[client\nid ="), 0o600))
	_, err = fledge.LoadConfig(path)
	require.Error(t, err)
}
