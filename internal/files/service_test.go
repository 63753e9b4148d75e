package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/store"
	"github.com/qbox-labs/qbox/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *engine.Session) {
	t.Helper()
	logger := testutil.NewTestLogger(t)

	st := store.New(logger)
	require.NoError(t, st.Open(":memory:"))
	t.Cleanup(func() { _ = st.Close() })

	session := engine.NewSession(engine.Config{Logger: logger})
	t.Cleanup(func() { _ = session.Close() })

	return New(st, session, t.TempDir(), logger), session
}

func TestUploadCSVRoundTrip(t *testing.T) {
	svc, session := newTestService(t)
	ctx := context.Background()

	content := "id,city\n1,Berlin\n2,Lagos\n"
	rec, err := svc.Upload(ctx, "", "cities.csv", strings.NewReader(content), int64(len(content)), "")
	require.NoError(t, err)
	assert.Equal(t, "cities.csv", rec.Name)
	assert.Equal(t, "cities", rec.ViewName)
	assert.Equal(t, int64(len(content)), rec.SizeBytes)

	res, err := session.Execute(ctx, "SELECT city FROM cities ORDER BY id")
	require.NoError(t, err)
	require.Equal(t, 2, len(res.Rows))
	assert.Equal(t, "Berlin", res.Rows[0]["city"])

	loaded, cols, err := svc.Metadata(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, loaded.ID)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), "", "dump.sql", strings.NewReader("select 1"), 8, "")
	var cfgErr *engine.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Reason, "unsupported file type")
}

func TestUploadRejectsOversize(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), "", "big.csv", strings.NewReader("x"), MaxUploadBytes+1, "")
	var cfgErr *engine.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Reason, "limit")
}

func TestUploadDuplicateNamesGetSuffix(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upload(ctx, "", "report.csv", strings.NewReader("a\n1\n"), 4, "")
	require.NoError(t, err)
	second, err := svc.Upload(ctx, "", "report.csv", strings.NewReader("b\n2\n"), 4, "")
	require.NoError(t, err)

	assert.Equal(t, "report.csv", first.Name)
	assert.Equal(t, "report_1.csv", second.Name)
	assert.NotEqual(t, first.ViewName, second.ViewName)
}

func TestUploadRollsBackOnBadWorkbook(t *testing.T) {
	svc, _ := newTestService(t)

	// A .xlsx that is not a zip archive fails workbook validation.
	_, err := svc.Upload(context.Background(), "", "fake.xlsx", strings.NewReader("not a workbook"), 14, "")
	require.Error(t, err)

	recs, err := svc.List("")
	require.NoError(t, err)
	assert.Empty(t, recs, "failed upload left a record")
}

func TestDeleteRemovesViewRecordAndFile(t *testing.T) {
	svc, session := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Upload(ctx, "", "gone.csv", strings.NewReader("x\n1\n"), 4, "")
	require.NoError(t, err)
	path := rec.Path

	require.NoError(t, svc.Delete(ctx, rec.ID))

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("stored file still on disk: %v", err)
	}
	if _, err := session.Execute(ctx, "SELECT * FROM gone"); err == nil {
		t.Error("view survived delete")
	}
	_, err = svc.Get(rec.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestSheetNames(t *testing.T) {
	_, err := SheetNames(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}

func writeWorkbook(t *testing.T, dir string, sheets ...string) string {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()
	for i, name := range sheets {
		if i == 0 {
			require.NoError(t, wb.SetSheetName("Sheet1", name))
		} else {
			_, err := wb.NewSheet(name)
			require.NoError(t, err)
		}
		require.NoError(t, wb.SetCellValue(name, "A1", "id"))
	}
	path := filepath.Join(dir, "book.xlsx")
	require.NoError(t, wb.SaveAs(path))
	return path
}

func TestChooseSheet(t *testing.T) {
	path := writeWorkbook(t, t.TempDir(), "Orders", "Returns")

	sheet, err := chooseSheet(path, "")
	require.NoError(t, err)
	assert.Equal(t, "Orders", sheet)

	sheet, err = chooseSheet(path, "Returns")
	require.NoError(t, err)
	assert.Equal(t, "Returns", sheet)

	_, err = chooseSheet(path, "Nope")
	var cfgErr *engine.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sheet", cfgErr.Field)
}

func TestUploadRejectsUnknownSheet(t *testing.T) {
	svc, _ := newTestService(t)
	path := writeWorkbook(t, t.TempDir(), "Orders")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), "", "book.xlsx", f, info.Size(), "Nope")
	var cfgErr *engine.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sheet", cfgErr.Field)

	// Nothing was recorded for the rejected upload.
	recs, err := svc.List("")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSheetsListsWorkbookSheets(t *testing.T) {
	svc, _ := newTestService(t)
	path := writeWorkbook(t, t.TempDir(), "Orders", "Returns")

	rec, err := svc.store.CreateFile(&store.File{
		Name:         "book.xlsx",
		OriginalName: "book.xlsx",
		Path:         path,
		FileType:     string(engine.FileTypeExcel),
		SheetName:    "Orders",
	})
	require.NoError(t, err)

	sheets, err := svc.Sheets(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders", "Returns"}, sheets)

	csvRec, err := svc.store.CreateFile(&store.File{
		Name:         "a.csv",
		OriginalName: "a.csv",
		Path:         "a.csv",
		FileType:     string(engine.FileTypeCSV),
	})
	require.NoError(t, err)
	_, err = svc.Sheets(csvRec.ID)
	var cfgErr *engine.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDeleteDropsViewAfterEngineReopen(t *testing.T) {
	logger := testutil.NewTestLogger(t)

	st := store.New(logger)
	require.NoError(t, st.Open(":memory:"))
	t.Cleanup(func() { _ = st.Close() })

	session := engine.NewSession(engine.Config{
		Path:   filepath.Join(t.TempDir(), "engine.db"),
		Logger: logger,
	})
	t.Cleanup(func() { _ = session.Close() })

	svc := New(st, session, t.TempDir(), logger)
	ctx := context.Background()

	rec, err := svc.Upload(ctx, "", "leak.csv", strings.NewReader("a\n1\n"), 4, "")
	require.NoError(t, err)
	require.Equal(t, "leak", rec.ViewName)

	// A restart empties the attachment cache while the engine file keeps
	// the view. Delete must still drop it.
	require.NoError(t, session.Close())
	require.NoError(t, svc.Delete(ctx, rec.ID))

	res, err := session.Execute(ctx, "SELECT view_name FROM duckdb_views() WHERE view_name = 'leak'")
	require.NoError(t, err)
	assert.Equal(t, 0, res.RowCount())

	_, err = svc.Get(rec.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
