package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"spectrail/internal/coreerr"
	"spectrail/internal/dbstore"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := dbstore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestGet_FallsBackToDefault(t *testing.T) {
	s := newStore(t)
	v, err := s.Get(context.Background(), KeyModel)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", v)
}

func TestBulkUpsert_AllOrNothing(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.BulkUpsert(context.Background(), map[string]string{
		KeyModel:   "gpt-4-turbo",
		KeyAPIKey:  "sk-test",
		KeyBaseURL: "https://example.com/v1",
	}))

	v, err := s.Get(context.Background(), KeyModel)
	require.NoError(t, err)
	require.Equal(t, "gpt-4-turbo", v)

	// A batch with one invalid pair must leave every key unchanged.
	err = s.BulkUpsert(context.Background(), map[string]string{
		KeyModel:   "gpt-other",
		KeyBaseURL: "ftp://bad",
	})
	require.ErrorIs(t, err, coreerr.ErrInvalidArgs)
	v, err = s.Get(context.Background(), KeyModel)
	require.NoError(t, err)
	require.Equal(t, "gpt-4-turbo", v)
}

func TestLoadSnapshot_MissingAPIKeyFailsClosed(t *testing.T) {
	s := newStore(t)
	os.Unsetenv(EnvAPIKeyFallback)
	_, err := s.LoadSnapshot(context.Background())
	require.ErrorIs(t, err, coreerr.ErrInvalidCredentials)
}

func TestLoadSnapshot_EnvFallback(t *testing.T) {
	s := newStore(t)
	t.Setenv(EnvAPIKeyFallback, "sk-from-env")
	snap, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-env", snap.APIKey)
	require.Equal(t, 0.2, snap.Temperature)
	require.Equal(t, 4000, snap.MaxTokens)
}

func TestLoadSnapshot_StoredKeyWinsOverEnv(t *testing.T) {
	s := newStore(t)
	t.Setenv(EnvAPIKeyFallback, "sk-from-env")
	require.NoError(t, s.BulkUpsert(context.Background(), map[string]string{KeyAPIKey: "sk-stored"}))
	snap, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-stored", snap.APIKey)
}

func TestBulkUpsert_RejectsBaseURLWithoutHTTPScheme(t *testing.T) {
	s := newStore(t)
	err := s.BulkUpsert(context.Background(), map[string]string{KeyBaseURL: "ftp://evil"})
	require.ErrorIs(t, err, coreerr.ErrInvalidArgs)

	v, err := s.Get(context.Background(), KeyBaseURL)
	require.NoError(t, err)
	require.Equal(t, defaults[KeyBaseURL], v, "a rejected value must not land in the store")
}

func TestBulkUpsert_RejectsTemperatureOutsideRange(t *testing.T) {
	s := newStore(t)
	err := s.BulkUpsert(context.Background(), map[string]string{KeyTemperature: "99"})
	require.ErrorIs(t, err, coreerr.ErrInvalidArgs)
}

func TestBulkUpsert_RejectsNonNumericTemperature(t *testing.T) {
	s := newStore(t)
	err := s.BulkUpsert(context.Background(), map[string]string{KeyTemperature: "hot"})
	require.ErrorIs(t, err, coreerr.ErrInvalidArgs)
}

func TestLoadSnapshot_ExtraHeadersSkipsNonStringValues(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.BulkUpsert(context.Background(), map[string]string{
		KeyAPIKey:           "sk-stored",
		KeyExtraHeadersJSON: `{"X-Org":"abc","X-Count":42}`,
	}))
	snap, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abc", snap.ExtraHeaders["X-Org"])
	_, ok := snap.ExtraHeaders["X-Count"]
	require.False(t, ok)
}
