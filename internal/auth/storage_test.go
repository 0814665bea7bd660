package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestEncryptedFileStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewEncryptedFileStore(tmpDir)
	require.NoError(t, err)

	keyJSON := []byte(`{"type":"service_account","client_email":"a@b"}`)
	require.NoError(t, store.Save("test-profile", keyJSON))

	keyFile := filepath.Join(tmpDir, "keys", "test-profile.enc")
	encrypted, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	assert.NotContains(t, string(encrypted), "client_email", "key stored in the clear")

	loaded, err := store.Load("test-profile")
	require.NoError(t, err)
	assert.Equal(t, keyJSON, loaded)

	require.NoError(t, store.Delete("test-profile"))
	assert.NoFileExists(t, keyFile)
	assert.Error(t, store.Delete("test-profile"), "deleting a missing profile")
}

func TestEncryptedFileStore_KeyReused(t *testing.T) {
	tmpDir := t.TempDir()

	first, err := NewEncryptedFileStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, first.Save("p", []byte("secret")))

	second, err := NewEncryptedFileStore(tmpDir)
	require.NoError(t, err)
	data, err := second.Load("p")
	require.NoError(t, err)
	assert.Equal(t, "secret", string(data))
}

func TestEncryptedFileStore_Tampered(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewEncryptedFileStore(tmpDir)
	require.NoError(t, err)

	_, err = store.decrypt([]byte("short"))
	assert.Error(t, err, "short ciphertext")

	require.NoError(t, store.Save("p", []byte("secret")))
	path := filepath.Join(tmpDir, "keys", "p.enc")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = store.Load("p")
	assert.Error(t, err, "tampered ciphertext")
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store := NewKeyringStore(KeyringService)
	assert.Equal(t, "system-keyring", store.Name())

	_, err := store.Load("missing")
	assert.Error(t, err)

	require.NoError(t, store.Save("default", []byte("key-json")))
	data, err := store.Load("default")
	require.NoError(t, err)
	assert.Equal(t, "key-json", string(data))

	require.NoError(t, store.Delete("default"))
	assert.Error(t, store.Delete("default"), "deleting a missing profile")
}

func TestNewKeyStore_PrefersKeyring(t *testing.T) {
	keyring.MockInit()

	store, notice, err := NewKeyStore(t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &KeyringStore{}, store)
	assert.Empty(t, notice)
}

func TestNewKeyStore_FallsBackToEncryptedFile(t *testing.T) {
	keyring.MockInitWithError(errors.New("keyring unavailable"))
	t.Cleanup(keyring.MockInit)

	store, notice, err := NewKeyStore(t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &EncryptedFileStore{}, store)
	assert.NotEmpty(t, notice)
}
