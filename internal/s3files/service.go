// Package s3files browses objects in a connected bucket and turns
// structured files into queryable engine views.
package s3files

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/source"
)

// structuredExtensions are the object suffixes the engine can read
// directly from s3://.
var structuredExtensions = []string{".csv", ".parquet", ".json", ".jsonl", ".ndjson"}

// Entry is one object or folder in a listing.
type Entry struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	IsFolder     bool   `json:"is_folder"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	// Structured marks files the engine can query (csv, parquet, json).
	Structured bool `json:"structured"`
}

// Listing is one page of bucket contents.
type Listing struct {
	Bucket    string  `json:"bucket"`
	Prefix    string  `json:"prefix"`
	Entries   []Entry `json:"entries"`
	NextToken string  `json:"next_token,omitempty"`
}

// Service browses buckets and manages views over their objects.
type Service struct {
	manager *source.Manager
	session *engine.Session
	logger  *slog.Logger
}

// New returns an S3 browsing service.
func New(manager *source.Manager, session *engine.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{manager: manager, session: session, logger: logger}
}

// bucketClient resolves the connection and builds its S3 client.
func (s *Service) bucketClient(ctx context.Context, connectionID string) (*s3.Client, string, error) {
	conn, err := s.manager.Connection(connectionID)
	if err != nil {
		return nil, "", err
	}
	s3conn, ok := conn.(interface {
		Client(ctx context.Context) (*s3.Client, error)
		Bucket() string
	})
	if !ok {
		return nil, "", &engine.ConfigurationError{
			Field:  "type",
			Reason: fmt.Sprintf("connection %s is not an s3 source", connectionID),
		}
	}
	client, err := s3conn.Client(ctx)
	if err != nil {
		return nil, "", err
	}
	return client, s3conn.Bucket(), nil
}

// List returns one page of objects. With flat unset, common prefixes under
// prefix are returned as folders; with flat set, every object under prefix
// is listed. token continues a previous page.
func (s *Service) List(ctx context.Context, connectionID, prefix string, flat bool, token string) (*Listing, error) {
	client, bucket, err := s.bucketClient(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(500),
	}
	if !flat {
		input.Delimiter = aws.String("/")
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, &engine.ConnectivityError{
			Reason: fmt.Sprintf("failed to list bucket %q: %v", bucket, err),
			Err:    err,
		}
	}

	listing := &Listing{Bucket: bucket, Prefix: prefix}
	for _, cp := range out.CommonPrefixes {
		key := aws.ToString(cp.Prefix)
		listing.Entries = append(listing.Entries, Entry{
			Key:      key,
			Name:     path.Base(strings.TrimSuffix(key, "/")),
			IsFolder: true,
		})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == prefix && strings.HasSuffix(key, "/") {
			continue
		}
		entry := Entry{
			Key:        key,
			Name:       path.Base(key),
			SizeBytes:  aws.ToInt64(obj.Size),
			Structured: IsStructured(key),
		}
		if obj.LastModified != nil {
			entry.LastModified = obj.LastModified.UTC().Format("2006-01-02T15:04:05Z")
		}
		listing.Entries = append(listing.Entries, entry)
	}
	if aws.ToBool(out.IsTruncated) {
		listing.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return listing, nil
}

// IsStructured reports whether the engine can query the object directly.
func IsStructured(key string) bool {
	lower := strings.ToLower(key)
	for _, ext := range structuredExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ReaderExpr renders the engine table function for an s3:// URL, picking
// the reader from the extension.
func ReaderExpr(url string) (string, error) {
	lower := strings.ToLower(url)
	lit := "'" + strings.ReplaceAll(url, "'", "''") + "'"
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return "read_csv(" + lit + ", AUTO_DETECT=TRUE)", nil
	case strings.HasSuffix(lower, ".parquet"):
		return "read_parquet(" + lit + ")", nil
	case strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"):
		return "read_json_auto(" + lit + ")", nil
	}
	return "", &engine.ConfigurationError{
		Field:  "path",
		Reason: fmt.Sprintf("unsupported file type for %q", url),
	}
}

// FileMetadata returns column metadata for one object by running DESCRIBE
// through the engine. The connection's secret is configured first so the
// engine can authenticate the read.
func (s *Service) FileMetadata(ctx context.Context, connectionID, key string) ([]engine.ColumnInfo, error) {
	conn, err := s.manager.Connection(connectionID)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Attach(ctx, s.session); err != nil {
		return nil, err
	}

	_, bucket, err := s.bucketClient(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	expr, err := ReaderExpr(fmt.Sprintf("s3://%s/%s", bucket, key))
	if err != nil {
		return nil, err
	}

	res, err := s.session.Execute(ctx, "DESCRIBE SELECT * FROM "+expr)
	if err != nil {
		return nil, err
	}

	cols := make([]engine.ColumnInfo, 0, len(res.Rows))
	for _, row := range res.Rows {
		col := engine.ColumnInfo{}
		if v, ok := row["column_name"].(string); ok {
			col.Name = v
		}
		if v, ok := row["column_type"].(string); ok {
			col.Type = v
		}
		if v, ok := row["null"].(string); ok {
			col.Nullable = strings.EqualFold(v, "YES")
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// CreateView registers a named view over one object inside the
// connection's engine schema and returns the qualified view name.
func (s *Service) CreateView(ctx context.Context, connectionID, viewName, key string) (string, error) {
	conn, err := s.manager.Connection(connectionID)
	if err != nil {
		return "", err
	}
	schema, err := conn.Attach(ctx, s.session)
	if err != nil {
		return "", err
	}

	_, bucket, err := s.bucketClient(ctx, connectionID)
	if err != nil {
		return "", err
	}
	expr, err := ReaderExpr(fmt.Sprintf("s3://%s/%s", bucket, key))
	if err != nil {
		return "", err
	}

	name := engine.SanitizeIdentifier(viewName)
	stmt := fmt.Sprintf(`CREATE OR REPLACE VIEW "%s"."%s" AS SELECT * FROM %s`, schema, name, expr)
	if _, err := s.session.Execute(ctx, stmt); err != nil {
		return "", err
	}
	s.logger.Info("s3 view created", "schema", schema, "view", name, "key", key)
	return schema + "." + name, nil
}

// DropView removes a view previously created with CreateView. qualified is
// "schema.view"; a bare name targets the default schema.
func (s *Service) DropView(ctx context.Context, qualified string) error {
	parts := strings.SplitN(qualified, ".", 2)
	var stmt string
	if len(parts) == 2 {
		stmt = fmt.Sprintf(`DROP VIEW IF EXISTS "%s"."%s"`,
			engine.SanitizeIdentifier(parts[0]), engine.SanitizeIdentifier(parts[1]))
	} else {
		stmt = fmt.Sprintf(`DROP VIEW IF EXISTS "%s"`, engine.SanitizeIdentifier(parts[0]))
	}
	_, err := s.session.Execute(ctx, stmt)
	return err
}
