package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Soravit-Ice/Random-Call-BE/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSQLiteStore runs the gorm store against a throwaway SQLite file with
// the same schema the MySQL migration creates.
func newSQLiteStore(t *testing.T) (*Gorm, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.UserModel{}, &models.BlockModel{}, &models.CallLogModel{}))
	return NewGorm(db), db
}

var sqliteEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, db *gorm.DB, id string, seq int, online, inCall bool) {
	t.Helper()
	u := models.UserModel{
		Base:     models.Base{ID: id, CreatedAt: sqliteEpoch.Add(time.Duration(seq) * time.Minute)},
		Email:    id + "@example.com",
		IsOnline: online,
		InCall:   inCall,
	}
	require.NoError(t, db.Create(&u).Error)
}

func ids(users []models.UserModel) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestGormFindCandidates(t *testing.T) {
	st, db := newSQLiteStore(t)
	ctx := context.Background()

	seedUser(t, db, "a", 0, true, false)
	seedUser(t, db, "b", 1, true, false)  // blocked by a
	seedUser(t, db, "c", 2, true, false)  // blocks a
	seedUser(t, db, "e", 3, true, true)   // in a call
	seedUser(t, db, "d", 4, true, false)  // eligible
	seedUser(t, db, "f", 5, false, false) // offline
	seedUser(t, db, "g", 6, true, false)  // eligible, created later
	require.NoError(t, db.Create(&models.BlockModel{BlockerID: "a", BlockedID: "b"}).Error)
	require.NoError(t, db.Create(&models.BlockModel{BlockerID: "c", BlockedID: "a"}).Error)

	got, err := st.FindCandidates(ctx, CandidateQuery{ExcludeID: "a", Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "g"}, ids(got))

	got, err = st.FindCandidates(ctx, CandidateQuery{ExcludeID: "a", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(got))

	got, err = st.FindCandidates(ctx, CandidateQuery{ExcludeID: "a", Limit: 100, IncludeInCall: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d", "g"}, ids(got))

	// blocks hold from the other side too
	got, err = st.FindCandidates(ctx, CandidateQuery{ExcludeID: "b", Limit: 100})
	require.NoError(t, err)
	assert.NotContains(t, ids(got), "a")
	got, err = st.FindCandidates(ctx, CandidateQuery{ExcludeID: "c", Limit: 100})
	require.NoError(t, err)
	assert.NotContains(t, ids(got), "a")
}

func TestGormApplyConflictWritesNothing(t *testing.T) {
	st, db := newSQLiteStore(t)
	ctx := context.Background()
	seedUser(t, db, "a", 0, true, false)
	seedUser(t, db, "b", 1, true, false)
	seedUser(t, db, "c", 2, true, false)

	require.NoError(t, st.Apply(ctx, Reserve("a"), Reserve("b")))

	err := st.Apply(ctx, Reserve("c"), Reserve("b"))
	assert.ErrorIs(t, err, ErrConflict)
	c, err := st.FindUser(ctx, "c")
	require.NoError(t, err)
	assert.False(t, c.InCall)

	assert.ErrorIs(t, st.Apply(ctx, Reserve("missing")), ErrConflict)

	require.NoError(t, st.Apply(ctx, Release("a"), Release("b")))
	a, err := st.FindUser(ctx, "a")
	require.NoError(t, err)
	assert.False(t, a.InCall)
}

func TestGormCloseCall(t *testing.T) {
	st, db := newSQLiteStore(t)
	ctx := context.Background()
	seedUser(t, db, "a", 0, true, true)
	seedUser(t, db, "b", 1, true, true)

	old := models.CallLogModel{CallerID: "a", CalleeID: "b", RoomID: "room-1", StartedAt: sqliteEpoch.Add(-time.Hour)}
	fresh := models.CallLogModel{CallerID: "a", CalleeID: "b", RoomID: "room-2", StartedAt: sqliteEpoch}
	require.NoError(t, st.CreateCallLog(ctx, &old))
	require.NoError(t, st.CreateCallLog(ctx, &fresh))

	stale, err := st.FindStaleCallLogs(ctx, sqliteEpoch.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	ended := sqliteEpoch
	require.NoError(t, st.Apply(ctx, CloseCall{CallID: old.ID, EndedAt: ended, RequireOpen: true}, Release("a"), Release("b")))
	got, err := st.FindCallLog(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.EndedAt.Equal(ended))

	// a closed call is never re-stamped, and RequireOpen rolls the batch back
	err = st.Apply(ctx, Reserve("a"), CloseCall{CallID: old.ID, EndedAt: ended.Add(time.Hour), RequireOpen: true})
	assert.ErrorIs(t, err, ErrConflict)
	a, err := st.FindUser(ctx, "a")
	require.NoError(t, err)
	assert.False(t, a.InCall)
	got, err = st.FindCallLog(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, got.EndedAt.Equal(ended))

	_, err = st.FindCallLog(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormUpdateUser(t *testing.T) {
	st, db := newSQLiteStore(t)
	ctx := context.Background()
	seedUser(t, db, "a", 0, true, false)

	lat := 13.75
	require.NoError(t, st.UpdateUser(ctx, "a", UserPatch{Lat: NullFloat{Value: &lat, Set: true}, InCall: Bool(true)}))
	u, err := st.FindUser(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, u.Lat)
	assert.Equal(t, lat, *u.Lat)
	assert.True(t, u.InCall)

	require.NoError(t, st.UpdateUser(ctx, "a", UserPatch{Lat: NullFloat{Set: true}}))
	u, err = st.FindUser(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, u.Lat)

	require.NoError(t, st.UpdateUser(ctx, "a", UserPatch{}))
	assert.ErrorIs(t, st.UpdateUser(ctx, "missing", UserPatch{IsOnline: Bool(true)}), ErrNotFound)
	assert.ErrorIs(t, st.UpdateUser(ctx, "missing", UserPatch{}), ErrNotFound)

	_, err = st.FindUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := st.ResetAllInCall(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
