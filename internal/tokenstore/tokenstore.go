// Package tokenstore persists the platform OAuth2 token bundle as a single
// encrypted blob under the host user's app-data directory, and refreshes
// expired access tokens against the platform's OAuth endpoint.
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"clipbot/internal/cryptutil"
	"clipbot/internal/models"
)

const (
	appDirName  = "clipbot"
	tokenFile   = "tokens.bin"
	filePerm    = 0o600
	dirPerm     = 0o700
)

// Store loads, caches, persists, and refreshes the token bundle. A single
// Store instance is shared by every component that needs an access token.
type Store struct {
	mu         sync.RWMutex
	cached     *models.TokenBundle
	passphrase string
	path       string
	oauthCfg   oauth2.Config
}

// New constructs a Store. passphrase encrypts the persisted blob; oauthCfg
// supplies the refresh-token endpoint and client credentials.
func New(passphrase string, oauthCfg oauth2.Config) (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("tokenstore: resolve user config dir: %w", err)
	}
	appDir := filepath.Join(dir, appDirName)
	if err := os.MkdirAll(appDir, dirPerm); err != nil {
		return nil, fmt.Errorf("tokenstore: create app dir: %w", err)
	}
	return &Store{
		passphrase: passphrase,
		path:       filepath.Join(appDir, tokenFile),
		oauthCfg:   oauthCfg,
	}, nil
}

// salt is derived from the path itself rather than kept as a separate
// file: stable across runs on the same machine, and not a secret in its
// own right since PBKDF2 salts only need to be unique, not hidden.
func (s *Store) salt() []byte {
	return []byte(s.path)
}

// HasValidTokens reports whether a usable (not expired, or refreshable)
// bundle is present without triggering network I/O.
func (s *Store) HasValidTokens(ctx context.Context) (bool, error) {
	bundle, err := s.load()
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}
	return bundle.Valid(time.Now()), nil
}

// Get returns a usable access token, refreshing first if the cached bundle
// is at or past its refresh skew.
func (s *Store) Get(ctx context.Context) (models.TokenBundle, error) {
	bundle, err := s.load()
	if err != nil {
		return models.TokenBundle{}, err
	}
	if bundle == nil {
		return models.TokenBundle{}, fmt.Errorf("tokenstore: no token bundle persisted")
	}
	if bundle.ExpiresAt.After(time.Now().Add(5 * time.Minute)) {
		return *bundle, nil
	}
	return s.Refresh(ctx, *bundle)
}

// Refresh exchanges the refresh token for a new access token and persists
// the result.
func (s *Store) Refresh(ctx context.Context, bundle models.TokenBundle) (models.TokenBundle, error) {
	if bundle.RefreshToken == "" {
		return models.TokenBundle{}, fmt.Errorf("tokenstore: no refresh token available")
	}
	ts := s.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: bundle.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		return models.TokenBundle{}, fmt.Errorf("tokenstore: refresh token: %w", err)
	}
	next := models.TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: bundle.RefreshToken,
		ExpiresAt:    tok.Expiry,
		UserID:       bundle.UserID,
	}
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if err := s.Save(next); err != nil {
		return models.TokenBundle{}, err
	}
	return next, nil
}

// Save encrypts and persists bundle, replacing the in-memory cache.
func (s *Store) Save(bundle models.TokenBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("tokenstore: marshal bundle: %w", err)
	}
	ciphertext, err := cryptutil.Encrypt(string(raw), s.passphrase, s.salt())
	if err != nil {
		return fmt.Errorf("tokenstore: encrypt bundle: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(ciphertext), filePerm); err != nil {
		return fmt.Errorf("tokenstore: write bundle: %w", err)
	}
	s.mu.Lock()
	cp := bundle
	s.cached = &cp
	s.mu.Unlock()
	return nil
}

// load returns the cached bundle if present, otherwise reads and decrypts
// the on-disk blob. A missing file is not an error: it returns (nil, nil).
func (s *Store) load() (*models.TokenBundle, error) {
	s.mu.RLock()
	if s.cached != nil {
		cp := *s.cached
		s.mu.RUnlock()
		return &cp, nil
	}
	s.mu.RUnlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("tokenstore: read bundle: %w", err)
	}
	plaintext, err := cryptutil.Decrypt(string(raw), s.passphrase, s.salt())
	if err != nil {
		return nil, fmt.Errorf("tokenstore: decrypt bundle: %w", err)
	}
	var bundle models.TokenBundle
	if err := json.Unmarshal([]byte(plaintext), &bundle); err != nil {
		return nil, fmt.Errorf("tokenstore: unmarshal bundle: %w", err)
	}
	s.mu.Lock()
	s.cached = &bundle
	s.mu.Unlock()
	return &bundle, nil
}

// ExpiringSoon reports whether the cached bundle's access token expires
// within lead, for the token-expiry look-ahead cron job.
func (s *Store) ExpiringSoon(lead time.Duration) (bool, error) {
	bundle, err := s.load()
	if err != nil {
		return false, err
	}
	if bundle == nil {
		return false, nil
	}
	return bundle.ExpiresAt.Before(time.Now().Add(lead)), nil
}
