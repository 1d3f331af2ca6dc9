// Package cookiestore persists browser cookie sets per (platform, user) so a
// later run can skip the interactive login.
package cookiestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/secrets"
)

const (
	dirMode  = 0o700
	fileMode = 0o600

	exportedSuffix = "_exported.json"
	// ConsumedSuffix is appended to a default export file once it has been folded in.
	ConsumedSuffix = ".imported"
)

// ValueCipher seals cookie values at rest.
type ValueCipher interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

// Store is a file-backed cookie store rooted at one directory.
// Files are not locked; concurrent writers for the same key race and the last rename wins.
type Store struct {
	fs     afero.Fs
	root   string
	cipher ValueCipher
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCipher seals cookie values on Save and opens them on Load.
func WithCipher(c ValueCipher) Option {
	return func(s *Store) { s.cipher = c }
}

// New creates a Store rooted at root. The directory is created on first Save.
func New(fs afero.Fs, root string, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		fs:     fs,
		root:   root,
		logger: logger.Named("cookiestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the directory the store writes to.
func (s *Store) Root() string {
	return s.root
}

// SessionPath returns the file that holds the session record for (platform, userID).
func (s *Store) SessionPath(platform, userID string) (string, error) {
	if err := validateKeyPart("platform", platform); err != nil {
		return "", err
	}
	if err := validateKeyPart("user id", userID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, platform+"_"+userID+".json"), nil
}

// DefaultExportPath returns the conventional location of an exported cookie file.
func (s *Store) DefaultExportPath(platform string) string {
	return filepath.Join(s.root, platform+exportedSuffix)
}

// Save normalizes cookies and replaces the session record atomically.
func (s *Store) Save(platform, userID string, cookies []schemas.Cookie) error {
	path, err := s.SessionPath(platform, userID)
	if err != nil {
		return err
	}

	normalized := Normalize(cookies)
	if normalized == nil {
		normalized = []schemas.Cookie{}
	}
	if s.cipher != nil {
		if normalized, err = s.seal(normalized); err != nil {
			return fmt.Errorf("seal cookie values: %w", err)
		}
	}

	data, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if err := s.writeAtomic(path, data); err != nil {
		return err
	}

	s.logger.Info("Session saved.",
		zap.String("platform", platform),
		zap.String("user_id", userID),
		zap.Int("cookies", len(normalized)),
		zap.Bool("sealed", s.cipher != nil))
	return nil
}

// Load returns the normalized session record. ok is false, with a nil error,
// when no record exists. Unparsable content yields a *CorruptSessionDataError.
func (s *Store) Load(platform, userID string) (cookies []schemas.Cookie, ok bool, err error) {
	path, err := s.SessionPath(platform, userID)
	if err != nil {
		return nil, false, err
	}

	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read session record %s: %w", path, err)
	}

	raw, err := decodeCookieArray(data)
	if err != nil {
		return nil, false, &CorruptSessionDataError{Path: path, Err: err}
	}
	if raw, err = s.open(raw); err != nil {
		return nil, false, &CorruptSessionDataError{Path: path, Err: err}
	}

	s.logger.Debug("Session loaded.", zap.String("path", path), zap.Int("cookies", len(raw)))
	return Normalize(raw), true, nil
}

// LoadExportedFile reads a cookie set written by an external tool, normalizes
// it and saves it as the session record for (platform, userID). Any failure is
// logged as an *ImportError and reported as "none available".
func (s *Store) LoadExportedFile(platform, userID, path string) ([]schemas.Cookie, bool) {
	cookies, err := s.importFile(platform, userID, path)
	if err != nil {
		var ie *ImportError
		if !errors.As(err, &ie) {
			ie = &ImportError{Path: path, Err: err}
		}
		s.logger.Warn("Failed to import exported cookie file.", zap.String("path", path), zap.Error(ie))
		return nil, false
	}
	s.logger.Info("Imported exported cookie file.", zap.String("path", path), zap.Int("cookies", len(cookies)))
	return cookies, true
}

// ImportFromDefaultExportLocation folds <root>/<platform>_exported.json into
// the session record if present. A consumed file is renamed with ConsumedSuffix
// so later runs use the stored session instead.
func (s *Store) ImportFromDefaultExportLocation(platform, userID string) ([]schemas.Cookie, bool) {
	path := s.DefaultExportPath(platform)
	exists, err := afero.Exists(s.fs, path)
	if err != nil || !exists {
		return nil, false
	}

	cookies, ok := s.LoadExportedFile(platform, userID, path)
	if !ok {
		return nil, false
	}
	if err := s.fs.Rename(path, path+ConsumedSuffix); err != nil {
		s.logger.Warn("Could not mark exported cookie file as consumed.", zap.String("path", path), zap.Error(err))
	}
	return cookies, true
}

func (s *Store) importFile(platform, userID, path string) ([]schemas.Cookie, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, &ImportError{Path: path, Err: err}
	}
	raw, err := decodeCookieArray(data)
	if err != nil {
		return nil, &ImportError{Path: path, Err: err}
	}
	cookies := Normalize(raw)
	if err := s.Save(platform, userID, cookies); err != nil {
		return nil, &ImportError{Path: path, Err: err}
	}
	return cookies, nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	if err := s.fs.MkdirAll(s.root, dirMode); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, s.root, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("write session record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmpPath, fileMode); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("replace session record: %w", err)
	}
	return nil
}

func (s *Store) seal(cookies []schemas.Cookie) ([]schemas.Cookie, error) {
	out := make([]schemas.Cookie, len(cookies))
	for i, c := range cookies {
		v, err := s.cipher.Seal(c.Value)
		if err != nil {
			return nil, err
		}
		c.Value = v
		out[i] = c
	}
	return out, nil
}

func (s *Store) open(cookies []schemas.Cookie) ([]schemas.Cookie, error) {
	for i := range cookies {
		if !secrets.IsSealed(cookies[i].Value) {
			continue
		}
		if s.cipher == nil {
			return nil, fmt.Errorf("cookie %q is sealed but no key is configured", cookies[i].Name)
		}
		v, err := s.cipher.Open(cookies[i].Value)
		if err != nil {
			return nil, fmt.Errorf("cookie %q: %w", cookies[i].Name, err)
		}
		cookies[i].Value = v
	}
	return cookies, nil
}

// decodeCookieArray accepts only a JSON array of cookie objects.
func decodeCookieArray(data []byte) ([]schemas.Cookie, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("expected a JSON array of cookies")
	}
	var cookies []schemas.Cookie
	if err := json.Unmarshal(trimmed, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

func validateKeyPart(what, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidKey, what)
	}
	if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidKey, what, v)
	}
	return nil
}
