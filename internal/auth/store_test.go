package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

func newTestStore(t *testing.T) *FileTokenStore {
	t.Helper()
	store, err := NewFileTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)
	return store
}

func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tokens, "missing file should read as not authenticated")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	saved := &TokenFile{
		Gemini: &ProviderToken{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    1700000000000,
			Email:        "user@example.com",
		},
		DefaultProvider: constant.Gemini,
	}
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.Gemini, loaded.Gemini)
	assert.Nil(t, loaded.Antigravity)
	assert.Equal(t, constant.Gemini, loaded.DefaultProvider)
}

func TestSavePermissions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(&TokenFile{}))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCorruptFileBackedUp(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tokens, "corrupt file should read as not authenticated")

	backup, errRead := os.ReadFile(store.Path() + ".bak")
	require.NoError(t, errRead, "corrupt file should be preserved as .bak")
	assert.Equal(t, "{not json", string(backup))

	_, errStat := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(errStat), "corrupt file should be moved aside")
}

func TestInvalidSchemaBackedUp(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	// Valid JSON, but the gemini entry is missing its access token.
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"gemini":{"expires_at":123}}`), 0o600))

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, tokens)

	_, errStat := os.Stat(store.Path() + ".bak")
	assert.NoError(t, errStat)
}

func TestUpdateProviderTokensCreatesFile(t *testing.T) {
	store := newTestStore(t)

	token := &ProviderToken{AccessToken: "a", ExpiresAt: 1}
	require.NoError(t, store.UpdateProviderTokens(constant.Antigravity, token))

	got, err := store.GetProviderTokens(constant.Antigravity)
	require.NoError(t, err)
	assert.Equal(t, token, got)

	other, err := store.GetProviderTokens(constant.Gemini)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestUpdatePreservesOtherProvider(t *testing.T) {
	store := newTestStore(t)

	gemini := &ProviderToken{AccessToken: "g", ExpiresAt: 1}
	require.NoError(t, store.UpdateProviderTokens(constant.Gemini, gemini))
	antigravity := &ProviderToken{AccessToken: "a", ExpiresAt: 2}
	require.NoError(t, store.UpdateProviderTokens(constant.Antigravity, antigravity))

	tokens, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, tokens)
	assert.Equal(t, gemini, tokens.Gemini)
	assert.Equal(t, antigravity, tokens.Antigravity)
}

func TestDeleteClearsMatchingDefault(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpdateProviderTokens(constant.Gemini, &ProviderToken{AccessToken: "g", ExpiresAt: 1}))
	require.NoError(t, store.SetDefaultProvider(constant.Gemini))

	require.NoError(t, store.DeleteProviderTokens(constant.Gemini))

	tokens, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, tokens)
	assert.Nil(t, tokens.Gemini)
	assert.Empty(t, tokens.DefaultProvider, "deleting the default provider should clear the preference")
}

func TestDeleteKeepsUnrelatedDefault(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpdateProviderTokens(constant.Gemini, &ProviderToken{AccessToken: "g", ExpiresAt: 1}))
	require.NoError(t, store.UpdateProviderTokens(constant.Antigravity, &ProviderToken{AccessToken: "a", ExpiresAt: 1}))
	require.NoError(t, store.SetDefaultProvider(constant.Antigravity))

	require.NoError(t, store.DeleteProviderTokens(constant.Gemini))

	defaultProvider, err := store.DefaultProvider()
	require.NoError(t, err)
	assert.Equal(t, constant.Antigravity, defaultProvider)
}

func TestConcurrentUpdatesKeepBothProviders(t *testing.T) {
	store := newTestStore(t)

	// Interleaved load-modify-save cycles for different providers must not
	// drop each other's writes.
	const rounds = 25
	errs := make(chan error, 2*rounds)
	var wg sync.WaitGroup
	for _, provider := range constant.Providers {
		wg.Add(1)
		go func(provider string) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				errs <- store.UpdateProviderTokens(provider, &ProviderToken{
					AccessToken: fmt.Sprintf("%s-%d", provider, i),
					ExpiresAt:   1,
				})
			}
		}(provider)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tokens, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, tokens)
	for _, provider := range constant.Providers {
		token := tokens.Provider(provider)
		require.NotNil(t, token, "%s token lost by a concurrent update", provider)
		assert.Equal(t, fmt.Sprintf("%s-%d", provider, rounds-1), token.AccessToken)
	}
}
