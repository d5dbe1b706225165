package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newImporter(store record.Writer) (*Importer, *settings.Memory) {
	gate := &settings.Memory{}
	return New(store, gate, nil, Options{}), gate
}

func TestImportOnce_HeaderDrivenProjection(t *testing.T) {
	ctx := context.Background()
	// columns deliberately out of catalog order, with a BOM and an unknown column
	csv := "\ufeffHEI2015_TOTAL_SCORE,RIAGENDR,extra,SEQN,DR1TKCAL,HEI2015C1_TOTALVEG\n" +
		"55.5,1,x,100,2000,3.2\n" +
		"61,2,y,101,abc,4\n" +
		"70,2\n"
	path := writeFile(t, "hei.csv", csv)
	store := record.NewMemoryStore()
	im, gate := newImporter(store)

	sum, err := im.ImportOnce(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Rows)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, sum.SkippedRows, "short row lacks the id column")
	assert.Equal(t, 1, sum.DefaultedCells)
	assert.Equal(t, []string{"EXTRA"}, sum.UnknownColumns)

	r, err := store.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, record.Male, r.Sex)
	assert.InDelta(t, 55.5, r.HEITotal, 1e-9)
	assert.InDelta(t, 2000, r.Intake.Energy, 1e-9)
	assert.InDelta(t, 3.2, r.Components.TotalVegetables, 1e-9)

	// the bad cell defaults, the rest of the row survives
	r, err = store.Get(ctx, "101")
	require.NoError(t, err)
	assert.Zero(t, r.Intake.Energy)
	assert.InDelta(t, 61, r.HEITotal, 1e-9)
	assert.Equal(t, record.Female, r.Sex)
	assert.InDelta(t, 4, r.Components.TotalVegetables, 1e-9)

	ok, _ := gate.Imported()
	assert.True(t, ok)
}

func TestImportOnce_ShortRowDefaultsTrailingAttributes(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "short.csv", "SEQN,HEI2015_TOTAL_SCORE,BMXBMI\n7,48\n")
	store := record.NewMemoryStore()
	im, _ := newImporter(store)

	_, err := im.ImportOnce(ctx, path)
	require.NoError(t, err)
	r, err := store.Get(ctx, "7")
	require.NoError(t, err)
	assert.InDelta(t, 48, r.HEITotal, 1e-9)
	assert.Zero(t, r.Body.BMI)
}

func TestImportOnce_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "hei.csv", "SEQN,HEI2015_TOTAL_SCORE\n1,40\n2,50\n")
	store := record.NewMemoryStore()
	im, _ := newImporter(store)

	first, err := im.ImportOnce(ctx, path)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	before, _ := store.All(ctx)

	// changing the file must not matter once the flag is set
	require.NoError(t, os.WriteFile(path, []byte("SEQN,HEI2015_TOTAL_SCORE\n1,99\n3,10\n"), 0o644))
	second, err := im.ImportOnce(ctx, path)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	after, _ := store.All(ctx)
	assert.Equal(t, before, after)
}

func TestImportOnce_DuplicateIDsFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "dups.csv", "SEQN,HEI2015_TOTAL_SCORE\n1,40\n1,90\n")
	store := record.NewMemoryStore()
	im, _ := newImporter(store)

	sum, err := im.ImportOnce(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Duplicates)
	r, _ := store.Get(ctx, "1")
	assert.InDelta(t, 40, r.HEITotal, 1e-9)
}

func TestImportOnce_EmptyFileIsSuccess(t *testing.T) {
	ctx := context.Background()
	for name, content := range map[string]string{
		"empty.csv":  "",
		"header.csv": "SEQN,HEI2015_TOTAL_SCORE\n",
	} {
		t.Run(name, func(t *testing.T) {
			store := record.NewMemoryStore()
			im, gate := newImporter(store)
			sum, err := im.ImportOnce(ctx, writeFile(t, name, content))
			require.NoError(t, err)
			assert.Zero(t, sum.Inserted)
			n, _ := store.Count(ctx)
			assert.Zero(t, n)
			ok, _ := gate.Imported()
			assert.True(t, ok)
		})
	}
}

func TestImportOnce_MalformedLineAbortsWithoutFlag(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "bad.csv", "SEQN,HEI2015_TOTAL_SCORE\n1,50\n2,6\"0\n")
	store := record.NewMemoryStore()
	im, gate := newImporter(store)

	_, err := im.ImportOnce(ctx, path)
	require.Error(t, err)
	ok, _ := gate.Imported()
	assert.False(t, ok)

	// rows before the failure may stay behind
	_, err = store.Get(ctx, "1")
	assert.NoError(t, err)

	// a fixed source can be imported on retry
	require.NoError(t, os.WriteFile(path, []byte("SEQN,HEI2015_TOTAL_SCORE\n1,50\n2,60\n"), 0o644))
	sum, err := im.ImportOnce(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Duplicates)
	ok, _ = gate.Imported()
	assert.True(t, ok)
}

func TestImportOnce_MissingSourceAbortsWithoutFlag(t *testing.T) {
	im, gate := newImporter(record.NewMemoryStore())
	_, err := im.ImportOnce(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	ok, _ := gate.Imported()
	assert.False(t, ok)
}

func TestImportOnce_MissingIDColumn(t *testing.T) {
	im, gate := newImporter(record.NewMemoryStore())
	_, err := im.ImportOnce(context.Background(), writeFile(t, "noid.csv", "HEI2015_TOTAL_SCORE\n50\n"))
	assert.ErrorIs(t, err, ErrNoIDColumn)
	ok, _ := gate.Imported()
	assert.False(t, ok)
}

type failingStore struct{ calls int }

func (f *failingStore) Upsert(context.Context, record.Record) error { return errors.New("disk full") }
func (f *failingStore) Insert(context.Context, record.Record) (bool, error) {
	f.calls++
	return false, errors.New("disk full")
}

func TestImportOnce_StoreFailureAbortsWithoutFlag(t *testing.T) {
	store := &failingStore{}
	im, gate := newImporter(store)
	_, err := im.ImportOnce(context.Background(), writeFile(t, "a.csv", "SEQN\n1\n2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, store.calls)
	ok, _ := gate.Imported()
	assert.False(t, ok)
}

func TestImportOnce_DelimiterDetection(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"data.tsv": "SEQN\tHEI2015_TOTAL_SCORE\n1\t42,5\n",
		"data.txt": "SEQN;HEI2015_TOTAL_SCORE\n1;42,5\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			store := record.NewMemoryStore()
			im, _ := newImporter(store)
			_, err := im.ImportOnce(ctx, writeFile(t, name, content))
			require.NoError(t, err)
			r, err := store.Get(ctx, "1")
			require.NoError(t, err)
			assert.InDelta(t, 42.5, r.HEITotal, 1e-9)
		})
	}
}

func TestImportOnce_Workbook(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hei.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"SEQN", "Gender", "HEI2015_TOTAL_SCORE", "HEI2015C6_TOTALDAIRY"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"500", "F", 72.25, 8}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"501", "M", 44}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	store := record.NewMemoryStore()
	im, _ := newImporter(store)
	sum, err := im.ImportOnce(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Inserted)

	r, err := store.Get(ctx, "500")
	require.NoError(t, err)
	assert.Equal(t, record.Female, r.Sex)
	assert.InDelta(t, 72.25, r.HEITotal, 1e-9)
	assert.InDelta(t, 8, r.Components.Dairy, 1e-9)

	r, err = store.Get(ctx, "501")
	require.NoError(t, err)
	assert.Zero(t, r.Components.Dairy)
}

func TestImportOnce_IntoSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := record.OpenSQLite(ctx, filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer store.Close()

	gate := settings.NewFile(filepath.Join(t.TempDir(), "settings.yaml"), "sqlite:test")
	im := New(store, gate, nil, Options{})
	path := writeFile(t, "hei.csv", "SEQN,RIAGENDR,HEI2015_TOTAL_SCORE\n1,1,40\n2,2,60\n")

	_, err = im.ImportOnce(ctx, path)
	require.NoError(t, err)
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sum, err := New(store, gate, nil, Options{}).ImportOnce(ctx, path)
	require.NoError(t, err)
	assert.True(t, sum.Skipped)
}

func TestImportOnce_DecimalSeparatorOption(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "us.csv", "SEQN,DR1TKCAL,HEI2015_TOTAL_SCORE\n1,\"2,145\",61.5\n2,\"1,234,567\",70\n")
	store := record.NewMemoryStore()
	im := New(store, &settings.Memory{}, nil, Options{Decimal: '.'})

	sum, err := im.ImportOnce(ctx, path)
	require.NoError(t, err)
	assert.Zero(t, sum.DefaultedCells)

	r, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.InDelta(t, 2145, r.Intake.Energy, 1e-9)
	assert.InDelta(t, 61.5, r.HEITotal, 1e-9)
	r, err = store.Get(ctx, "2")
	require.NoError(t, err)
	assert.InDelta(t, 1234567, r.Intake.Energy, 1e-9)
}
