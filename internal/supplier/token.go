package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultTokenTTL = 23 * time.Hour

// TokenStore persists the shared access credential across restarts so that
// redeploys do not each mint a new token against the throttled issuance endpoint.
type TokenStore interface {
	Load() (StoredToken, bool, error)
	Save(token StoredToken) error
}

// AuthClient performs the supplier's unauthenticated credential operations.
type AuthClient interface {
	IssueToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context, oldToken string) (string, error)
}

// TokenCache serves a valid bearer token for the supplier API while minimising
// calls to the issuance endpoint. All access is serialized by a mutex, which
// also closes the duplicate-issuance race between concurrent callers.
type TokenCache struct {
	auth  AuthClient
	store TokenStore
	ttl   time.Duration
	now   func() time.Time
	log   func(ctx context.Context, event string, fields map[string]any)

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// TokenCacheOption customises TokenCache construction.
type TokenCacheOption func(*TokenCache)

// WithTokenTTL overrides the safety TTL recorded at issuance (conservatively
// below the provider's stated token lifetime).
func WithTokenTTL(ttl time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithTokenClock injects a custom clock primarily for tests.
func WithTokenClock(clock func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithTokenLogger sets the structured logging hook.
func WithTokenLogger(log func(ctx context.Context, event string, fields map[string]any)) TokenCacheOption {
	return func(c *TokenCache) {
		if log != nil {
			c.log = log
		}
	}
}

// NewTokenCache builds a TokenCache. A previously persisted token whose expiry
// is still in the future is adopted immediately, avoiding a redundant issuance
// call after a restart.
func NewTokenCache(auth AuthClient, store TokenStore, opts ...TokenCacheOption) (*TokenCache, error) {
	if auth == nil {
		return nil, errors.New("token cache: auth client is required")
	}

	cache := &TokenCache{
		auth:  auth,
		store: store,
		ttl:   defaultTokenTTL,
		now:   time.Now,
		log:   func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}

	if store != nil {
		stored, ok, err := store.Load()
		if err != nil {
			cache.log(context.Background(), "supplier.token.load_failed", map[string]any{"error": err.Error()})
		} else if ok && stored.Token != "" && cache.now().Before(stored.Expiry) {
			cache.token = stored.Token
			cache.expiry = stored.Expiry
		}
	}

	return cache, nil
}

// Token returns a non-expired bearer token, reusing the cached value when
// possible, refreshing an expired one before falling back to full reissuance.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if c == nil {
		return "", errors.New("token cache not initialised")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry) {
		return c.token, nil
	}

	if c.token != "" {
		refreshed, err := c.auth.RefreshToken(ctx, c.token)
		if err == nil && refreshed != "" {
			c.adopt(ctx, refreshed)
			return c.token, nil
		}
		if err != nil {
			c.log(ctx, "supplier.token.refresh_failed", map[string]any{"error": err.Error()})
		}
	}

	issued, err := c.auth.IssueToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if issued == "" {
		return "", fmt.Errorf("%w: issuance returned empty token", ErrAuthFailed)
	}

	c.adopt(ctx, issued)
	return c.token, nil
}

// Invalidate discards the in-memory token so the next call reissues.
func (c *TokenCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// adopt stores the token with a conservative expiry and persists it.
// Callers hold c.mu.
func (c *TokenCache) adopt(ctx context.Context, token string) {
	c.token = token
	c.expiry = c.now().Add(c.ttl)

	if c.store == nil {
		return
	}
	if err := c.store.Save(StoredToken{Token: c.token, Expiry: c.expiry}); err != nil {
		c.log(ctx, "supplier.token.persist_failed", map[string]any{"error": err.Error()})
	}
}

// FileTokenStore persists the token as a small JSON record at a fixed path.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore builds a FileTokenStore for the given path.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if path == "" {
		return nil, errors.New("token store: path is required")
	}
	return &FileTokenStore{path: path}, nil
}

// Load reads the persisted token. A missing file is not an error.
func (s *FileTokenStore) Load() (StoredToken, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return StoredToken{}, false, nil
	}
	if err != nil {
		return StoredToken{}, false, fmt.Errorf("token store: read %s: %w", s.path, err)
	}

	var stored StoredToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return StoredToken{}, false, fmt.Errorf("token store: parse %s: %w", s.path, err)
	}
	return stored, true, nil
}

// Save writes the token record, creating parent directories as needed.
func (s *FileTokenStore) Save(token StoredToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("token store: encode: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("token store: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("token store: write %s: %w", s.path, err)
	}
	return nil
}
