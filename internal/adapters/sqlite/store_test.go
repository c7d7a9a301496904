package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weeklydigest/sessionauth/internal/cryptoutil"
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	store := NewSessionStore(openTestDB(t), SessionStoreOptions{})
	ctx := context.Background()

	rec := domainauth.SessionRecord{
		ID:      "sess-1",
		Payload: domainauth.Payload{CSRFState: "state", NextURL: "/admin"},
		Expiry:  time.Now().Add(time.Hour).Truncate(time.Millisecond).UTC(),
	}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "state", got.Payload.CSRFState)
	assert.Equal(t, "/admin", got.Payload.NextURL)
	assert.Equal(t, domainauth.PayloadVersion, got.Payload.Version)
	assert.True(t, rec.Expiry.Equal(got.Expiry))
}

func TestSessionStore_SaveOverwrites(t *testing.T) {
	store := NewSessionStore(openTestDB(t), SessionStoreOptions{})
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, store.Save(ctx, domainauth.SessionRecord{ID: "s", Payload: domainauth.Payload{CSRFState: "a"}, Expiry: exp}))
	require.NoError(t, store.Save(ctx, domainauth.SessionRecord{ID: "s", Payload: domainauth.Payload{UserID: "42"}, Expiry: exp}))

	got, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domainauth.StateAuthenticated, got.Payload.State())
	assert.Empty(t, got.Payload.CSRFState)
}

func TestSessionStore_LoadMissingAndEmpty(t *testing.T) {
	store := NewSessionStore(openTestDB(t), SessionStoreOptions{})
	ctx := context.Background()

	got, err := store.Load(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.Load(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_LoadHidesExpiredWithoutSweep(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db, SessionStoreOptions{})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.SessionRecord{ID: "old", Expiry: time.Now().Add(-time.Second)}))

	got, err := store.Load(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, got)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = 'old'`).Scan(&n))
	assert.Equal(t, 1, n, "row stays until swept")
}

func TestSessionStore_DeleteExpiredRemovesExactlyExpired(t *testing.T) {
	store := NewSessionStore(openTestDB(t), SessionStoreOptions{})
	ctx := context.Background()
	now := time.Now()

	for _, rec := range []domainauth.SessionRecord{
		{ID: "e1", Expiry: now.Add(-time.Hour)},
		{ID: "e2", Expiry: now.Add(-time.Minute)},
		{ID: "l1", Expiry: now.Add(time.Minute)},
		{ID: "l2", Expiry: now.Add(time.Hour)},
	} {
		require.NoError(t, store.Save(ctx, rec))
	}

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, id := range []string{"l1", "l2"} {
		got, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, got, id)
	}

	n, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionStore_DeleteIsIdempotent(t *testing.T) {
	store := NewSessionStore(openTestDB(t), SessionStoreOptions{})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.SessionRecord{ID: "d", Expiry: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Delete(ctx, "d"))
	require.NoError(t, store.Delete(ctx, "d"))
	require.NoError(t, store.Delete(ctx, ""))

	got, err := store.Load(ctx, "d")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_CorruptPayloadIsAbsent(t *testing.T) {
	db := openTestDB(t)
	var logs bytes.Buffer
	store := NewSessionStore(db, SessionStoreOptions{Logger: slog.New(slog.NewJSONHandler(&logs, nil))})
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO sessions (id, payload, expiry) VALUES (?, ?, ?)`,
		"bad", []byte{0xff, 0x00, 0x13}, toMillis(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	got, err := store.Load(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Contains(t, logs.String(), "undecodable session payload")
}

func TestSessionStore_SaveRequiresID(t *testing.T) {
	store := NewSessionStore(openTestDB(t), SessionStoreOptions{})
	err := store.Save(context.Background(), domainauth.SessionRecord{Expiry: time.Now().Add(time.Hour)})
	assert.True(t, apperrors.IsValidation(err))
}

func TestSessionStore_ClosedDBIsStorageUnavailable(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db, SessionStoreOptions{})
	require.NoError(t, db.Close())

	_, err := store.Load(context.Background(), "x")
	assert.True(t, apperrors.IsStorageUnavailable(err))

	err = store.Save(context.Background(), domainauth.SessionRecord{ID: "x", Expiry: time.Now().Add(time.Hour)})
	assert.True(t, apperrors.IsStorageUnavailable(err))
}

func TestUserRepo_UpsertReconcilesToOneRow(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepo(db, UserRepoOptions{})
	ctx := context.Background()

	first, err := repo.Upsert(ctx, domainauth.User{ID: "583231", DisplayName: "octocat", AccessToken: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first.AccessToken)

	second, err := repo.Upsert(ctx, domainauth.User{ID: "583231", DisplayName: "octo-renamed", AccessToken: "tok-2"})
	require.NoError(t, err)
	assert.Equal(t, "octo-renamed", second.DisplayName)
	assert.Equal(t, "tok-2", second.AccessToken)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(ctx, "583231")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "octo-renamed", got.DisplayName)
	assert.Equal(t, "tok-2", got.AccessToken)
}

func TestUserRepo_GetByIDMissing(t *testing.T) {
	repo := NewUserRepo(openTestDB(t), UserRepoOptions{})
	got, err := repo.GetByID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepo_UpsertRequiresID(t *testing.T) {
	repo := NewUserRepo(openTestDB(t), UserRepoOptions{})
	_, err := repo.Upsert(context.Background(), domainauth.User{DisplayName: "x"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestUserRepo_AccessTokenSealedAtRest(t *testing.T) {
	db := openTestDB(t)
	key, err := cryptoutil.ParseKey("test-token-key")
	require.NoError(t, err)
	enc, err := cryptoutil.NewAESGCMEncryptor(key)
	require.NoError(t, err)
	repo := NewUserRepo(db, UserRepoOptions{Encryptor: enc})
	ctx := context.Background()

	saved, err := repo.Upsert(ctx, domainauth.User{ID: "583231", DisplayName: "octocat", AccessToken: "gho_secret"})
	require.NoError(t, err)
	assert.Equal(t, "gho_secret", saved.AccessToken)

	var stored string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT access_token FROM users WHERE external_id = ?`, "583231").Scan(&stored))
	assert.NotContains(t, stored, "gho_secret")

	got, err := repo.GetByID(ctx, "583231")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "gho_secret", got.AccessToken)

	// A sealed token copied onto another row does not open.
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (external_id, display_name, access_token, created_at, updated_at) VALUES (?, ?, ?, 0, 0)`,
		"999", "mallory", stored)
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, "999")
	assert.True(t, apperrors.IsInternal(err))

	// Without the key the sealed value is unreadable rather than silently empty.
	_, err = NewUserRepo(db, UserRepoOptions{}).GetByID(ctx, "583231")
	assert.ErrorIs(t, err, cryptoutil.ErrKeyRequired)
}
