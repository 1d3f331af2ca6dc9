package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const keyFileMode = 0o600

var (
	keyringSet = keyring.Set
	keyringGet = keyring.Get
	randRead   = rand.Read
)

// KeyProvider yields the key used to seal cookie values, creating it on first use.
type KeyProvider interface {
	Key() ([]byte, error)
}

// FileKeyStore keeps a hex-encoded key in a 0600 file.
type FileKeyStore struct {
	fs   afero.Fs
	path string
}

func NewFileKeyStore(fs afero.Fs, path string) *FileKeyStore {
	return &FileKeyStore{fs: fs, path: path}
}

// Key returns the stored key, generating and persisting a new one if the file is absent.
func (f *FileKeyStore) Key() ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err == nil {
		return decodeKey(string(data))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err := newKey()
	if err != nil {
		return nil, err
	}
	if err := f.write(hex.EncodeToString(key)); err != nil {
		return nil, err
	}
	return key, nil
}

// write replaces the key file atomically.
func (f *FileKeyStore) write(keyHex string) error {
	dir := filepath.Dir(f.path)
	if err := f.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	tmp, err := afero.TempFile(f.fs, dir, ".key.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(keyHex); err != nil {
		tmp.Close()
		_ = f.fs.Remove(tmpPath)
		return fmt.Errorf("write key: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = f.fs.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := f.fs.Chmod(tmpPath, keyFileMode); err != nil {
		_ = f.fs.Remove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := f.fs.Rename(tmpPath, f.path); err != nil {
		_ = f.fs.Remove(tmpPath)
		return fmt.Errorf("rename key file: %w", err)
	}
	return nil
}

// KeyringProvider keeps the key in the OS keyring and falls back to a key
// file when no keyring service is reachable.
type KeyringProvider struct {
	Service  string
	User     string
	Fallback *FileKeyStore
	logger   *zap.Logger
}

func NewKeyringProvider(service, user string, fallback *FileKeyStore, logger *zap.Logger) *KeyringProvider {
	return &KeyringProvider{
		Service:  service,
		User:     user,
		Fallback: fallback,
		logger:   logger.Named("secrets"),
	}
}

func (k *KeyringProvider) Key() ([]byte, error) {
	stored, err := keyringGet(k.Service, k.User)
	switch {
	case err == nil:
		return decodeKey(stored)
	case errors.Is(err, keyring.ErrNotFound):
		key, genErr := newKey()
		if genErr != nil {
			return nil, genErr
		}
		if setErr := keyringSet(k.Service, k.User, hex.EncodeToString(key)); setErr != nil {
			return k.fallback(setErr)
		}
		k.logger.Info("Generated new session encryption key in the OS keyring.", zap.String("service", k.Service))
		return key, nil
	default:
		return k.fallback(err)
	}
}

func (k *KeyringProvider) fallback(cause error) ([]byte, error) {
	if k.Fallback == nil {
		return nil, fmt.Errorf("keyring unavailable: %w", cause)
	}
	k.logger.Warn("OS keyring unavailable, using key file.", zap.String("path", k.Fallback.path), zap.Error(cause))
	return k.Fallback.Key()
}

func newKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := randRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: expected %d, got %d", KeySize, len(key))
	}
	return key, nil
}

// NewCipher resolves the key from p and builds a GCM cipher with it.
func NewCipher(p KeyProvider) (*GCM, error) {
	key, err := p.Key()
	if err != nil {
		return nil, err
	}
	return NewGCM(key)
}
