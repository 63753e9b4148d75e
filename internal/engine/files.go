package engine

import (
	"context"
	"fmt"
	"strings"
)

// FileType identifies the reader used for a registered file view.
type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeExcel   FileType = "excel"
	FileTypeParquet FileType = "parquet"
	FileTypeJSON    FileType = "json"
)

// FileTypeForPath maps a filename extension to a FileType.
func FileTypeForPath(path string) (FileType, bool) {
	switch {
	case strings.HasSuffix(path, ".csv"):
		return FileTypeCSV, true
	case strings.HasSuffix(path, ".xlsx"), strings.HasSuffix(path, ".xls"):
		return FileTypeExcel, true
	case strings.HasSuffix(path, ".parquet"):
		return FileTypeParquet, true
	case strings.HasSuffix(path, ".json"), strings.HasSuffix(path, ".jsonl"):
		return FileTypeJSON, true
	}
	return "", false
}

// readerExpr renders the table function that reads the file. sheet only
// applies to workbooks; empty means the reader's default sheet.
func readerExpr(path string, fileType FileType, sheet string) (string, error) {
	lit := quoteLiteral(path)
	switch fileType {
	case FileTypeCSV:
		return "read_csv(" + lit + ", AUTO_DETECT=TRUE)", nil
	case FileTypeExcel:
		if sheet != "" {
			return "read_xlsx(" + lit + ", sheet = " + quoteLiteral(sheet) + ")", nil
		}
		return "read_xlsx(" + lit + ")", nil
	case FileTypeParquet:
		return "read_parquet(" + lit + ")", nil
	case FileTypeJSON:
		return "read_json_auto(" + lit + ")", nil
	}
	return "", &ConfigurationError{Field: "file_type", Reason: fmt.Sprintf("unsupported file type %q", fileType)}
}

// RegisterFile creates a view over a local file and returns the view name.
// The name is derived from the logical name; when another file already
// holds that name a numeric suffix is appended until the name is free.
// Repeat registrations for the same file ID return the cached name.
func (s *Session) RegisterFile(ctx context.Context, fileID, logicalName, path string, fileType FileType, sheet string) (string, error) {
	if name, ok := s.IsAttached(fileID); ok {
		return name, nil
	}

	v, err, _ := s.attachGroup.Do(fileID, func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if name, ok := s.fileViews.get(fileID); ok {
			return name, nil
		}

		expr, err := readerExpr(path, fileType, sheet)
		if err != nil {
			return nil, err
		}

		name := s.freeViewNameLocked(SanitizeIdentifier(logicalName))
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", QuoteIdent(name), expr)
		s.logger.Debug("registering file view", "view", name, "path", path, "type", fileType)
		if err := s.exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to register file %q: %w", logicalName, err)
		}

		s.fileViews.put(fileID, name)
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// freeViewNameLocked finds the first unused view name for base, trying
// base, base_1, base_2, ... against live attachments. Callers must hold
// s.mu.
func (s *Session) freeViewNameLocked(base string) string {
	name := base
	for i := 1; ; i++ {
		_, inViews := s.fileViews.idFor(name)
		_, inAttach := s.attachments.idFor(name)
		if !inViews && !inAttach {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

// UnregisterFile drops the view backing a registered file. viewName is the
// stored name used when the cache lost its entry across a restart; views in
// a file-backed engine database outlive the cache. Unknown IDs with no
// fallback and already-dropped views are not errors.
func (s *Session) UnregisterFile(ctx context.Context, fileID, viewName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.fileViews.get(fileID); ok {
		viewName = cached
	}
	if viewName == "" {
		return nil
	}
	if err := s.exec(ctx, "DROP VIEW IF EXISTS "+QuoteIdent(viewName)); err != nil {
		return err
	}
	s.fileViews.remove(fileID)
	return nil
}

// ColumnInfo describes a single column of a view or table.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// DescribeView returns column metadata for a registered view by running
// DESCRIBE through the engine.
func (s *Session) DescribeView(ctx context.Context, viewName string) ([]ColumnInfo, error) {
	res, err := s.Execute(ctx, "DESCRIBE "+QuoteIdent(viewName))
	if err != nil {
		return nil, err
	}
	return columnsFromDescribe(res), nil
}

func columnsFromDescribe(res *Result) []ColumnInfo {
	cols := make([]ColumnInfo, 0, len(res.Rows))
	for _, row := range res.Rows {
		ci := ColumnInfo{}
		if v, ok := row["column_name"].(string); ok {
			ci.Name = v
		}
		if v, ok := row["column_type"].(string); ok {
			ci.Type = v
		}
		if v, ok := row["null"].(string); ok {
			ci.Nullable = strings.EqualFold(v, "YES")
		}
		cols = append(cols, ci)
	}
	return cols
}
