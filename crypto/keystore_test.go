package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeystoreRoundTrip(t *testing.T) {
	SetKeystoreScrypt(1<<12, 6)
	t.Cleanup(func() { SetKeystoreScrypt(1<<18, 1) })

	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "nested", "bidder.json")
	require.False(t, KeystoreExists(path))
	require.NoError(t, SaveToKeystore(path, key, "pass"))
	require.True(t, KeystoreExists(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	addr, err := KeystoreAddress(path)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Raw(), addr)

	loaded, err := LoadFromKeystore(path, "pass")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestSaveToKeystoreRejectsMissingInputs(t *testing.T) {
	require.Error(t, SaveToKeystore(filepath.Join(t.TempDir(), "k.json"), nil, "pass"))
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.Error(t, SaveToKeystore("", key, "pass"))
}
