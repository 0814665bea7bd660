package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name under which keys are stored
const KeyringService = "gdrv-gateway"

// KeyStore persists service account keys by profile name
type KeyStore interface {
	Save(profile string, data []byte) error
	Load(profile string) ([]byte, error)
	Delete(profile string) error
	Name() string
}

// KeyringStore uses the system keyring
type KeyringStore struct {
	serviceName string
}

// NewKeyringStore creates a keyring-backed store
func NewKeyringStore(serviceName string) *KeyringStore {
	return &KeyringStore{
		serviceName: serviceName,
	}
}

func (s *KeyringStore) Save(profile string, data []byte) error {
	if err := keyring.Set(s.serviceName, profile, string(data)); err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) Load(profile string) ([]byte, error) {
	data, err := keyring.Get(s.serviceName, profile)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, fmt.Errorf("no key stored for profile '%s'", profile)
		}
		return nil, fmt.Errorf("failed to read key from keyring: %w", err)
	}
	return []byte(data), nil
}

func (s *KeyringStore) Delete(profile string) error {
	if err := keyring.Delete(s.serviceName, profile); err != nil {
		if err == keyring.ErrNotFound {
			return fmt.Errorf("no key stored for profile '%s'", profile)
		}
		return fmt.Errorf("failed to delete key from keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) Name() string {
	return "system-keyring"
}

// EncryptedFileStore stores keys in AES-GCM encrypted files, for hosts
// without a usable keyring
type EncryptedFileStore struct {
	baseDir string
	key     []byte
}

// NewEncryptedFileStore creates an encrypted file store rooted at baseDir
func NewEncryptedFileStore(baseDir string) (*EncryptedFileStore, error) {
	key, err := getOrCreateEncryptionKey(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}

	return &EncryptedFileStore{
		baseDir: baseDir,
		key:     key,
	}, nil
}

func (s *EncryptedFileStore) Save(profile string, data []byte) error {
	encrypted, err := s.encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt key: %w", err)
	}

	keyFile := s.keyFilePath(profile)
	if err := os.MkdirAll(filepath.Dir(keyFile), 0700); err != nil {
		return err
	}

	return os.WriteFile(keyFile, encrypted, 0600)
}

func (s *EncryptedFileStore) Load(profile string) ([]byte, error) {
	encrypted, err := os.ReadFile(s.keyFilePath(profile))
	if err != nil {
		return nil, fmt.Errorf("no key stored for profile '%s'", profile)
	}

	return s.decrypt(encrypted)
}

func (s *EncryptedFileStore) Delete(profile string) error {
	if err := os.Remove(s.keyFilePath(profile)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no key stored for profile '%s'", profile)
		}
		return err
	}
	return nil
}

func (s *EncryptedFileStore) Name() string {
	return "encrypted-file"
}

func (s *EncryptedFileStore) keyFilePath(profile string) string {
	return filepath.Join(s.baseDir, "keys", profile+".enc")
}

func (s *EncryptedFileStore) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *EncryptedFileStore) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("invalid ciphertext")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertext = ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}

	return plaintext, nil
}

func getOrCreateEncryptionKey(baseDir string) ([]byte, error) {
	keyFile := filepath.Join(baseDir, ".keyfile")

	if data, err := os.ReadFile(keyFile); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyFile, []byte(encoded), 0600); err != nil {
		return nil, err
	}

	return key, nil
}

// checkKeyringAvailable tests if the system keyring is usable
func checkKeyringAvailable() bool {
	testKey := KeyringService + "-availability"
	if err := keyring.Set(KeyringService, testKey, "check"); err != nil {
		return false
	}
	_ = keyring.Delete(KeyringService, testKey)
	return true
}

// NewKeyStore returns the system keyring when available and an encrypted
// file store under configDir otherwise. The returned string is a notice
// for the operator, empty when the keyring is used.
func NewKeyStore(configDir string) (KeyStore, string, error) {
	if checkKeyringAvailable() {
		return NewKeyringStore(KeyringService), "", nil
	}

	store, err := NewEncryptedFileStore(configDir)
	if err != nil {
		return nil, "", err
	}
	return store, "System keyring not available. Using encrypted file storage.", nil
}
