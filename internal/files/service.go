// Package files handles uploaded data files: validation, storage on disk,
// and registration as engine views.
package files

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/store"
)

// MaxUploadBytes caps uploaded file size.
const MaxUploadBytes = 100 << 20

var allowedExtensions = map[string]engine.FileType{
	".csv":  engine.FileTypeCSV,
	".xlsx": engine.FileTypeExcel,
	".xls":  engine.FileTypeExcel,
}

// Service stores uploaded files under a data directory and registers views
// over them.
type Service struct {
	store   *store.Store
	session *engine.Session
	dataDir string
	logger  *slog.Logger
}

// New returns a file service rooted at dataDir.
func New(st *store.Store, session *engine.Session, dataDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: st, session: session, dataDir: dataDir, logger: logger}
}

// Upload validates, stores, records, and registers an uploaded file. For
// workbooks, sheet names the sheet to read (empty picks the first sheet);
// it is ignored for other file types. The record and the stored file are
// rolled back if view registration fails, so a failed upload leaves no
// trace.
func (s *Service) Upload(ctx context.Context, queryID, filename string, r io.Reader, size int64, sheet string) (*store.File, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fileType, ok := allowedExtensions[ext]
	if !ok {
		return nil, &engine.ConfigurationError{
			Field:  "file",
			Reason: fmt.Sprintf("unsupported file type %q (allowed: .csv, .xlsx, .xls)", ext),
		}
	}
	if size > MaxUploadBytes {
		return nil, &engine.ConfigurationError{
			Field:  "file",
			Reason: fmt.Sprintf("file exceeds the %d MB limit", MaxUploadBytes>>20),
		}
	}

	name, err := s.uniqueName(filename)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(s.dataDir, name)
	written, err := s.writeFile(path, r)
	if err != nil {
		return nil, err
	}

	if fileType == engine.FileTypeExcel {
		sheet, err = chooseSheet(path, sheet)
		if err != nil {
			_ = os.Remove(path)
			return nil, err
		}
	} else {
		sheet = ""
	}

	rec, err := s.store.CreateFile(&store.File{
		QueryID:      queryID,
		Name:         name,
		OriginalName: filename,
		Path:         path,
		FileType:     string(fileType),
		SizeBytes:    written,
		SheetName:    sheet,
	})
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	logical := strings.TrimSuffix(name, filepath.Ext(name))
	viewName, err := s.session.RegisterFile(ctx, rec.ID, logical, path, fileType, sheet)
	if err != nil {
		// Roll back so the upload can be retried cleanly.
		_ = s.store.DeleteFile(rec.ID)
		_ = os.Remove(path)
		return nil, err
	}
	if err := s.store.SetFileView(rec.ID, viewName); err != nil {
		return nil, err
	}
	rec.ViewName = viewName

	s.logger.Info("file uploaded", "file", rec.ID, "view", viewName, "bytes", written)
	return rec, nil
}

func (s *Service) writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to store file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("failed to store file: %w", err)
	}
	if written > MaxUploadBytes {
		_ = os.Remove(path)
		return 0, &engine.ConfigurationError{
			Field:  "file",
			Reason: fmt.Sprintf("file exceeds the %d MB limit", MaxUploadBytes>>20),
		}
	}
	return written, nil
}

// uniqueName appends a counter until the stored name is unused, keeping
// the extension: report.csv, report_1.csv, report_2.csv.
func (s *Service) uniqueName(filename string) (string, error) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := base
	for i := 1; ; i++ {
		exists, err := s.store.FileNameExists(name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
		name = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}

// chooseSheet opens the workbook to confirm it parses before the engine is
// pointed at it, and resolves the sheet to read: the requested one when it
// exists, the first sheet when none was requested.
func chooseSheet(path, requested string) (string, error) {
	sheets, err := SheetNames(path)
	if err != nil {
		return "", &engine.ConfigurationError{Field: "file", Reason: fmt.Sprintf("invalid workbook: %v", err)}
	}
	if len(sheets) == 0 {
		return "", &engine.ConfigurationError{Field: "file", Reason: "workbook has no sheets"}
	}
	if requested == "" {
		return sheets[0], nil
	}
	for _, name := range sheets {
		if name == requested {
			return name, nil
		}
	}
	return "", &engine.ConfigurationError{Field: "sheet", Reason: fmt.Sprintf("workbook has no sheet %q", requested)}
}

// SheetNames lists the sheets of a stored workbook.
func SheetNames(path string) ([]string, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()
	return wb.GetSheetList(), nil
}

// Sheets lists the sheet names of a stored workbook file.
func (s *Service) Sheets(id string) ([]string, error) {
	rec, err := s.store.GetFile(id)
	if err != nil {
		return nil, err
	}
	if rec.FileType != string(engine.FileTypeExcel) {
		return nil, &engine.ConfigurationError{Field: "file", Reason: fmt.Sprintf("%s is not a workbook", rec.Name)}
	}
	return SheetNames(rec.Path)
}

// Metadata returns column metadata for a file's registered view,
// re-registering the view if the session was recycled since upload.
func (s *Service) Metadata(ctx context.Context, id string) (*store.File, []engine.ColumnInfo, error) {
	rec, err := s.store.GetFile(id)
	if err != nil {
		return nil, nil, err
	}

	logical := strings.TrimSuffix(rec.Name, filepath.Ext(rec.Name))
	viewName, err := s.session.RegisterFile(ctx, rec.ID, logical, rec.Path, engine.FileType(rec.FileType), rec.SheetName)
	if err != nil {
		return nil, nil, err
	}
	if viewName != rec.ViewName {
		if err := s.store.SetFileView(rec.ID, viewName); err != nil {
			return nil, nil, err
		}
		rec.ViewName = viewName
	}

	cols, err := s.session.DescribeView(ctx, viewName)
	if err != nil {
		return nil, nil, err
	}
	return rec, cols, nil
}

// List returns stored file records, optionally scoped to one query.
func (s *Service) List(queryID string) ([]*store.File, error) {
	return s.store.ListFiles(queryID)
}

// Get returns one stored file record.
func (s *Service) Get(id string) (*store.File, error) {
	return s.store.GetFile(id)
}

// Delete unregisters the view, removes the record, and deletes the stored
// file. A missing file on disk is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.store.GetFile(id)
	if err != nil {
		return err
	}
	if err := s.session.UnregisterFile(ctx, id, rec.ViewName); err != nil {
		return err
	}
	if err := s.store.DeleteFile(id); err != nil {
		return err
	}
	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove stored file", "path", rec.Path, "error", err)
	}
	return nil
}

// PurgeAll removes every stored file from disk. Used by reset.
func (s *Service) PurgeAll() error {
	recs, err := s.store.ListFiles("")
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove stored file", "path", rec.Path, "error", err)
		}
	}
	return nil
}
