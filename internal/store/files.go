package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// File is a persisted record of an uploaded file and the engine view
// registered over it.
type File struct {
	ID           string    `json:"id"`
	QueryID      string    `json:"query_id,omitempty"`
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"path"`
	FileType     string    `json:"file_type"`
	SizeBytes    int64     `json:"size_bytes"`
	ViewName     string    `json:"view_name"`
	SheetName    string    `json:"sheet_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateFile persists a new file record.
func (s *Store) CreateFile(f *File) (*File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	f.ID = generateID()
	f.CreatedAt = time.Now().UTC()

	var queryID any
	if f.QueryID != "" {
		queryID = f.QueryID
	}
	_, err := s.db.Exec(
		`INSERT INTO files (id, query_id, name, original_name, path, file_type, size_bytes, view_name, sheet_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, queryID, f.Name, f.OriginalName, f.Path, f.FileType, f.SizeBytes, f.ViewName, f.SheetName, f.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}
	return f, nil
}

// SetFileView records the engine view name after registration succeeds.
func (s *Store) SetFileView(id, viewName string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE files SET view_name = ? WHERE id = ?`, viewName, id)
	if err != nil {
		return fmt.Errorf("failed to set file view: %w", err)
	}
	return nil
}

// GetFile retrieves a file record by ID.
func (s *Store) GetFile(id string) (*File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return scanFile(s.db.QueryRow(
		`SELECT id, query_id, name, original_name, path, file_type, size_bytes, view_name, sheet_name, created_at
		 FROM files WHERE id = ?`, id))
}

// ListFiles returns all file records, optionally filtered by query.
func (s *Store) ListFiles(queryID string) ([]*File, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := `SELECT id, query_id, name, original_name, path, file_type, size_bytes, view_name, sheet_name, created_at FROM files`
	args := []any{}
	if queryID != "" {
		q += ` WHERE query_id = ?`
		args = append(args, queryID)
	}
	q += ` ORDER BY created_at`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FileNameExists reports whether a stored file already uses name.
func (s *Store) FileNameExists(name string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM files WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check file name: %w", err)
	}
	return n > 0, nil
}

// DeleteFile removes a file record.
func (s *Store) DeleteFile(id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFile(row rowScanner) (*File, error) {
	f := &File{}
	var queryID sql.NullString
	err := row.Scan(&f.ID, &queryID, &f.Name, &f.OriginalName, &f.Path, &f.FileType, &f.SizeBytes, &f.ViewName, &f.SheetName, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}
	f.QueryID = queryID.String
	return f, nil
}
