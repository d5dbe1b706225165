package record

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	in := Record{ID: "83732", Sex: Female, Age: 62, HEITotal: 58.4, Race: "3"}
	in.Components.TotalFruits = 3.25
	in.Intake.Energy = 1790
	in.Body.BMI = 27.8
	in.FoodGroups.Dairy = 1.5

	ok, err := s.Insert(ctx, in)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "83732")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_InsertKeepsFirstUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	ok, err := s.Insert(ctx, Record{ID: "1", HEITotal: 40, Sex: Male})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Insert(ctx, Record{ID: "1", HEITotal: 99, Sex: Male})
	require.NoError(t, err)
	assert.False(t, ok)

	r, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.InDelta(t, 40, r.HEITotal, 1e-9)

	require.NoError(t, s.Upsert(ctx, Record{ID: "1", HEITotal: 75, Sex: Male, FirstName: "Ada"}))
	r, err = s.Get(ctx, "1")
	require.NoError(t, err)
	assert.InDelta(t, 75, r.HEITotal, 1e-9)
	assert.Equal(t, "Ada", r.FirstName)
}

func TestSQLiteStore_ListingAndAverages(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, Record{ID: "3", Sex: Female, HEITotal: 80}))
	require.NoError(t, s.Upsert(ctx, Record{ID: "1", Sex: Male, HEITotal: 40}))
	require.NoError(t, s.Upsert(ctx, Record{ID: "2", Sex: Male, HEITotal: 50}))

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	avg, err := s.AverageScore(ctx, BySex(Male))
	require.NoError(t, err)
	assert.InDelta(t, 45, avg, 1e-9)

	avg, err = s.AverageScore(ctx, BySex(SexUnknown))
	require.NoError(t, err)
	assert.Zero(t, avg)
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresStore_MigrateAndInsert(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS records \(\s+id TEXT PRIMARY KEY`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO records \(id, first_name, .+\) VALUES \(\$1, \$2, .+\) ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO records .+ ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(ctx))

	ok, err := s.Insert(ctx, Record{ID: "1", HEITotal: 50})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Insert(ctx, Record{ID: "1", HEITotal: 60})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO records .+ ON CONFLICT \(id\) DO UPDATE SET first_name = excluded.first_name, .+hei2015_total_score = excluded.hei2015_total_score`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Upsert(context.Background(), Record{ID: "7", HEITotal: 66}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProjectsRow(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "riagendr", "hei2015_total_score", "dr1tkcal"}).
		AddRow("42", "female", 71.5, []byte("2100"))
	mock.ExpectQuery(`SELECT (.+) FROM records WHERE id = \$1`).WithArgs("42").WillReturnRows(rows)

	r, err := s.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", r.ID)
	assert.Equal(t, Female, r.Sex)
	assert.InDelta(t, 71.5, r.HEITotal, 1e-9)
	assert.InDelta(t, 2100, r.Intake.Energy, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM records WHERE id = \$1`).WithArgs("404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Get(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}
