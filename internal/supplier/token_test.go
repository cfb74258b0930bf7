package supplier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stubAuthClient struct {
	issueFn   func(ctx context.Context) (string, error)
	refreshFn func(ctx context.Context, oldToken string) (string, error)

	issueCalls   int
	refreshCalls int
}

func (s *stubAuthClient) IssueToken(ctx context.Context) (string, error) {
	s.issueCalls++
	if s.issueFn != nil {
		return s.issueFn(ctx)
	}
	return "", errors.New("issue not configured")
}

func (s *stubAuthClient) RefreshToken(ctx context.Context, oldToken string) (string, error) {
	s.refreshCalls++
	if s.refreshFn != nil {
		return s.refreshFn(ctx, oldToken)
	}
	return "", errors.New("refresh not configured")
}

type memoryTokenStore struct {
	stored StoredToken
	ok     bool
	saves  int
}

func (m *memoryTokenStore) Load() (StoredToken, bool, error) {
	return m.stored, m.ok, nil
}

func (m *memoryTokenStore) Save(token StoredToken) error {
	m.stored = token
	m.ok = true
	m.saves++
	return nil
}

func TestTokenCacheReusesValidToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	auth := &stubAuthClient{
		issueFn: func(context.Context) (string, error) { return "tok-1", nil },
	}

	cache, err := NewTokenCache(auth, nil,
		WithTokenClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	first, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first != "tok-1" {
		t.Fatalf("expected tok-1, got %q", first)
	}

	second, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token second call: %v", err)
	}
	if second != "tok-1" {
		t.Fatalf("expected cached tok-1, got %q", second)
	}
	if auth.issueCalls != 1 {
		t.Fatalf("expected single issuance, got %d", auth.issueCalls)
	}
	if auth.refreshCalls != 0 {
		t.Fatalf("expected no refresh calls, got %d", auth.refreshCalls)
	}
}

func TestTokenCacheRefreshesExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	auth := &stubAuthClient{
		issueFn: func(context.Context) (string, error) { return "tok-1", nil },
		refreshFn: func(_ context.Context, oldToken string) (string, error) {
			if oldToken != "tok-1" {
				return "", errors.New("unexpected old token " + oldToken)
			}
			return "tok-2", nil
		},
	}

	cache, err := NewTokenCache(auth, nil,
		WithTokenTTL(23*time.Hour),
		WithTokenClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	if _, err := cache.Token(context.Background()); err != nil {
		t.Fatalf("initial Token: %v", err)
	}

	now = now.Add(24 * time.Hour)

	token, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after expiry: %v", err)
	}
	if token != "tok-2" {
		t.Fatalf("expected refreshed tok-2, got %q", token)
	}
	if auth.issueCalls != 1 {
		t.Fatalf("refresh should avoid reissuance, issue calls = %d", auth.issueCalls)
	}
	if auth.refreshCalls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", auth.refreshCalls)
	}
}

func TestTokenCacheFallsBackToIssueWhenRefreshFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issued := []string{"tok-1", "tok-2"}
	auth := &stubAuthClient{
		refreshFn: func(context.Context, string) (string, error) {
			return "", errors.New("refresh rejected")
		},
	}
	auth.issueFn = func(context.Context) (string, error) {
		token := issued[0]
		if len(issued) > 1 {
			issued = issued[1:]
		}
		return token, nil
	}

	cache, err := NewTokenCache(auth, nil,
		WithTokenClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	if _, err := cache.Token(context.Background()); err != nil {
		t.Fatalf("initial Token: %v", err)
	}

	now = now.Add(24 * time.Hour)

	token, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after expiry: %v", err)
	}
	if token != "tok-2" {
		t.Fatalf("expected reissued tok-2, got %q", token)
	}
	if auth.refreshCalls != 1 || auth.issueCalls != 2 {
		t.Fatalf("expected refresh then reissue, got refresh=%d issue=%d", auth.refreshCalls, auth.issueCalls)
	}
}

func TestTokenCacheIssueFailureSurfacesTypedError(t *testing.T) {
	auth := &stubAuthClient{
		issueFn: func(context.Context) (string, error) {
			return "", errors.New("upstream down")
		},
	}

	cache, err := NewTokenCache(auth, nil)
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	_, err = cache.Token(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestTokenCacheAdoptsPersistedToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &memoryTokenStore{
		stored: StoredToken{Token: "persisted", Expiry: now.Add(time.Hour)},
		ok:     true,
	}
	auth := &stubAuthClient{}

	cache, err := NewTokenCache(auth, store,
		WithTokenClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	token, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "persisted" {
		t.Fatalf("expected persisted token, got %q", token)
	}
	if auth.issueCalls != 0 {
		t.Fatalf("persisted token should avoid issuance, got %d calls", auth.issueCalls)
	}
}

func TestTokenCacheIgnoresExpiredPersistedToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &memoryTokenStore{
		stored: StoredToken{Token: "stale", Expiry: now.Add(-time.Minute)},
		ok:     true,
	}
	auth := &stubAuthClient{
		issueFn: func(context.Context) (string, error) { return "fresh", nil },
	}

	cache, err := NewTokenCache(auth, store,
		WithTokenClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	token, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "fresh" {
		t.Fatalf("expected fresh token, got %q", token)
	}
	if store.saves != 1 {
		t.Fatalf("expected issuance to persist token, saves = %d", store.saves)
	}
	if store.stored.Token != "fresh" {
		t.Fatalf("expected persisted fresh token, got %q", store.stored.Token)
	}
}

func TestTokenCacheInvalidateForcesReissue(t *testing.T) {
	tokens := []string{"tok-1", "tok-2"}
	auth := &stubAuthClient{}
	auth.issueFn = func(context.Context) (string, error) {
		token := tokens[0]
		if len(tokens) > 1 {
			tokens = tokens[1:]
		}
		return token, nil
	}

	cache, err := NewTokenCache(auth, nil)
	if err != nil {
		t.Fatalf("NewTokenCache: %v", err)
	}

	if _, err := cache.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	cache.Invalidate()

	token, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after invalidate: %v", err)
	}
	if token != "tok-2" {
		t.Fatalf("expected reissued tok-2, got %q", token)
	}
	if auth.refreshCalls != 0 {
		t.Fatalf("invalidate should discard the old token entirely, refresh calls = %d", auth.refreshCalls)
	}
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileTokenStore(filepath.Join(dir, "nested", "token.json"))
	if err != nil {
		t.Fatalf("NewFileTokenStore: %v", err)
	}

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected empty load, got ok=%v err=%v", ok, err)
	}

	expiry := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	if err := store.Save(StoredToken{Token: "tok-1", Expiry: expiry}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stored, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected stored token")
	}
	if stored.Token != "tok-1" {
		t.Fatalf("unexpected token %q", stored.Token)
	}
	if !stored.Expiry.Equal(expiry) {
		t.Fatalf("unexpected expiry %v", stored.Expiry)
	}
}

func TestFileTokenStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	store, err := NewFileTokenStore(path)
	if err != nil {
		t.Fatalf("NewFileTokenStore: %v", err)
	}
	if _, _, err := store.Load(); err == nil {
		t.Fatal("expected parse error for corrupt token file")
	}
}
