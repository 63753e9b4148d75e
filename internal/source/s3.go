package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/go-viper/mapstructure/v2"

	"github.com/qbox-labs/qbox/internal/engine"
)

// TypeS3 is the registered source type for S3-compatible object stores.
const TypeS3 = "s3"

func init() {
	Register(TypeS3, newS3, maskS3Config, preserveS3Config)
}

// S3Config is the typed shape of an s3 connection's config map.
type S3Config struct {
	Bucket             string `mapstructure:"bucket" json:"bucket"`
	Region             string `mapstructure:"region" json:"region"`
	AccessKeyID        string `mapstructure:"access_key_id" json:"access_key_id"`
	SecretAccessKey    string `mapstructure:"secret_access_key" json:"secret_access_key"`
	SessionToken       string `mapstructure:"session_token" json:"session_token,omitempty"`
	Endpoint           string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	UseCredentialChain bool   `mapstructure:"use_credential_chain" json:"use_credential_chain,omitempty"`
}

type s3Connection struct {
	id     string
	name   string
	cfg    S3Config
	raw    map[string]any
	logger *slog.Logger
}

func newS3(rec Record, logger *slog.Logger) (Connection, error) {
	var cfg S3Config
	if err := mapstructure.Decode(rec.Config, &cfg); err != nil {
		return nil, &engine.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	return &s3Connection{
		id:     rec.ID,
		name:   rec.Name,
		cfg:    cfg,
		raw:    rec.Config,
		logger: logger,
	}, nil
}

func (c *s3Connection) ID() string   { return c.id }
func (c *s3Connection) Name() string { return c.name }
func (c *s3Connection) Type() string { return TypeS3 }

// Bucket returns the configured bucket name.
func (c *s3Connection) Bucket() string { return c.cfg.Bucket }

// Client builds an S3 API client for this connection.
func (c *s3Connection) Client(ctx context.Context) (*s3.Client, error) {
	region := c.cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if !c.cfg.UseCredentialChain {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.cfg.AccessKeyID, c.cfg.SecretAccessKey, c.cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Validate probes the bucket with HeadBucket. A missing bucket and bad
// credentials produce distinct messages.
func (c *s3Connection) Validate(ctx context.Context) error {
	if c.cfg.Bucket == "" {
		return &engine.ConfigurationError{Field: "bucket", Reason: "must not be empty"}
	}

	client, err := c.Client(ctx)
	if err != nil {
		return err
	}

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.cfg.Bucket)})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return &engine.ConnectivityError{
				Source: c.name,
				Reason: fmt.Sprintf("bucket %q does not exist", c.cfg.Bucket),
				Err:    err,
			}
		case "Forbidden", "AccessDenied":
			return &engine.ConnectivityError{
				Source: c.name,
				Reason: fmt.Sprintf("access denied to bucket %q", c.cfg.Bucket),
				Err:    err,
			}
		}
	}
	return &engine.ConnectivityError{
		Source: c.name,
		Reason: fmt.Sprintf("failed to reach bucket %q: %v", c.cfg.Bucket, err),
		Err:    err,
	}
}

func (c *s3Connection) options() engine.S3Options {
	return engine.S3Options{
		Bucket:             c.cfg.Bucket,
		Region:             c.cfg.Region,
		AccessKeyID:        c.cfg.AccessKeyID,
		SecretAccessKey:    c.cfg.SecretAccessKey,
		SessionToken:       c.cfg.SessionToken,
		Endpoint:           c.cfg.Endpoint,
		UseCredentialChain: c.cfg.UseCredentialChain,
	}
}

// Attach installs the engine secret that authorizes s3:// reads plus the
// schema holding this connection's views.
func (c *s3Connection) Attach(ctx context.Context, session *engine.Session) (string, error) {
	return session.ConfigureS3Secret(ctx, c.id, c.name, "", c.options(), false)
}

// Reattach replaces the engine secret, picking up changed credentials.
func (c *s3Connection) Reattach(ctx context.Context, session *engine.Session) (string, error) {
	return session.ConfigureS3Secret(ctx, c.id, c.name, "", c.options(), true)
}

func (c *s3Connection) Detach(ctx context.Context, session *engine.Session) error {
	return session.DetachNamed(ctx, c.id, engine.S3SecretName(c.name))
}

// Schema lists the views created under this connection's engine schema.
func (c *s3Connection) Schema(ctx context.Context, session *engine.Session) (*SchemaInfo, error) {
	name, err := c.Attach(ctx, session)
	if err != nil {
		return nil, err
	}

	res, err := session.Execute(ctx, fmt.Sprintf(
		`SELECT view_name FROM duckdb_views() WHERE schema_name = '%s' ORDER BY view_name`,
		escapeSQL(name)))
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{EngineName: name}
	for _, row := range res.Rows {
		viewName, ok := row["view_name"].(string)
		if !ok {
			continue
		}
		ti, err := c.TableDetails(ctx, session, name, viewName)
		if err != nil {
			c.logger.Warn("view details failed", "view", viewName, "error", err)
			continue
		}
		info.Tables = append(info.Tables, *ti)
	}
	return info, nil
}

func (c *s3Connection) TableDetails(ctx context.Context, session *engine.Session, schema, view string) (*TableInfo, error) {
	res, err := session.Execute(ctx, fmt.Sprintf("DESCRIBE %s.%s", engine.QuoteIdent(schema), engine.QuoteIdent(view)))
	if err != nil {
		return nil, err
	}
	ti := &TableInfo{Schema: schema, Name: view}
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
		ti.Columns = append(ti.Columns, col)
	}
	return ti, nil
}

// Cleanup drops the secret and the view schema.
func (c *s3Connection) Cleanup(ctx context.Context, session *engine.Session) error {
	return c.Detach(ctx, session)
}

func (c *s3Connection) MaskConfig() map[string]any {
	return maskS3Config(c.raw)
}

func maskS3Config(cfg map[string]any) map[string]any {
	out := cloneConfig(cfg)
	for _, key := range []string{"secret_access_key", "session_token"} {
		if _, ok := out[key]; ok {
			out[key] = ""
		}
	}
	return out
}

func preserveS3Config(incoming, stored map[string]any) map[string]any {
	out := cloneConfig(incoming)
	for _, key := range []string{"access_key_id", "secret_access_key", "session_token"} {
		if stringField(out, key) == "" {
			if v := stringField(stored, key); v != "" {
				out[key] = v
			}
		}
	}
	return out
}
