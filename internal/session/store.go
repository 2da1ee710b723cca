// Package session owns the bearer token for the current login: a
// file-backed store with get/set/clear, and the invalidation guard
// shared by the upload and polling flows.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNotLoggedIn is returned by Token when no credential is stored.
// Callers treat this as a local precondition failure: the session
// guard fires without any network attempt.
var ErrNotLoggedIn = errors.New("session: not logged in")

// File permissions for the token file and its directory.
const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// tokenFile is the on-disk format. The oauth2.Token wrapper keeps the
// file shape conventional even though the service issues opaque bearer
// tokens that never refresh.
type tokenFile struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Store holds the current credential. It is the sole owner: the API
// client reads through it before each call, and the guard clears it on
// invalidation. Safe for concurrent use.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	token string
	meta  map[string]string
}

// NewStore creates a store backed by the token file at path. The file
// is loaded lazily on first Token() call.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{path: path, logger: logger}
}

// Token returns the current bearer token, loading it from disk if the
// in-memory copy is empty. Returns ErrNotLoggedIn when absent.
func (s *Store) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}

	tok, meta, err := load(s.path)
	if err != nil {
		return "", err
	}

	if tok == nil || tok.AccessToken == "" {
		return "", ErrNotLoggedIn
	}

	s.token = tok.AccessToken
	s.meta = meta

	return s.token, nil
}

// Meta returns cached metadata saved alongside the token (username,
// server URL). Returns nil when not logged in.
func (s *Store) Meta() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta == nil {
		_, meta, err := load(s.path)
		if err == nil {
			s.meta = meta
		}
	}

	out := make(map[string]string, len(s.meta))
	for k, v := range s.meta {
		out[k] = v
	}

	return out
}

// Set stores a new token and persists it to disk.
func (s *Store) Set(token string, meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := save(s.path, token, meta); err != nil {
		return err
	}

	s.token = token
	s.meta = meta

	s.logger.Info("session token stored")

	return nil
}

// Clear removes the credential from memory and disk. Clearing an
// already-cleared store is a no-op, not a failure.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.meta = nil

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: removing token file: %w", err)
	}

	s.logger.Info("session token cleared")

	return nil
}

// load reads the token file. Returns (nil, nil, ErrNotLoggedIn
// unwrapped as nil token) when the file does not exist.
func load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("session: reading %s: %w", path, err)
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("session: decoding %s: %w", path, err)
	}

	return tf.Token, tf.Meta, nil
}

// save writes the token file atomically (write-to-temp + rename) with
// 0600 permissions. Never logs token values.
func save(path, token string, meta map[string]string) error {
	tf := tokenFile{
		Token: &oauth2.Token{AccessToken: token, TokenType: "Bearer"},
		Meta:  meta,
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding token: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, dirPerms); mkErr != nil {
		return fmt.Errorf("session: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("session: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing token file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: syncing token file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: closing token file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("session: renaming token file: %w", err)
	}

	success = true

	return nil
}
