package engine

import (
	"context"
	"fmt"
	"strings"
)

// S3Options describes an object-store secret to configure.
type S3Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Endpoint overrides the AWS endpoint for S3-compatible stores
	// (MinIO, R2). May include a scheme; http disables SSL.
	Endpoint string
	// UseCredentialChain resolves credentials from the environment
	// instead of explicit keys.
	UseCredentialChain bool
}

func (o S3Options) validate() error {
	if o.Bucket == "" {
		return &ConfigurationError{Field: "bucket", Reason: "must not be empty"}
	}
	if !o.UseCredentialChain && (o.AccessKeyID == "" || o.SecretAccessKey == "") {
		return &ConfigurationError{Field: "credentials", Reason: "access key and secret key are required unless the credential chain is used"}
	}
	return nil
}

// S3SecretName returns the engine secret and schema name derived from a
// connection's display name.
func S3SecretName(displayName string) string {
	return "s3_" + SanitizeIdentifier(displayName)
}

// ConfigureS3Secret installs (or replaces, when force is set) the engine
// secret that authorizes s3:// reads for this connection, and creates a
// schema of the same name to hold the connection's views. The secret name
// is returned and cached against the connection ID.
func (s *Session) ConfigureS3Secret(ctx context.Context, id, displayName, alias string, opts S3Options, force bool) (string, error) {
	if !force {
		if name, ok := s.IsAttached(id); ok {
			return name, nil
		}
	}
	if err := opts.validate(); err != nil {
		return "", err
	}

	v, err, _ := s.attachGroup.Do(id, func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if !force {
			if name, ok := s.attachments.get(id); ok {
				return name, nil
			}
		}

		name := alias
		if name == "" {
			name = S3SecretName(displayName)
		}

		stmt := buildSecretDDL(name, opts)
		s.logger.Debug("configuring s3 secret", "name", name, "bucket", opts.Bucket, "credential_chain", opts.UseCredentialChain)
		if err := s.exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to configure s3 secret for %q: %w", displayName, err)
		}
		if err := s.exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+QuoteIdent(name)); err != nil {
			return nil, err
		}

		s.attachments.put(id, name)
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func buildSecretDDL(name string, opts S3Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE SECRET %s (\n    TYPE S3", QuoteIdent(name))

	if opts.UseCredentialChain {
		b.WriteString(",\n    PROVIDER credential_chain")
	} else {
		fmt.Fprintf(&b, ",\n    KEY_ID %s", quoteLiteral(opts.AccessKeyID))
		fmt.Fprintf(&b, ",\n    SECRET %s", quoteLiteral(opts.SecretAccessKey))
		if opts.SessionToken != "" {
			fmt.Fprintf(&b, ",\n    SESSION_TOKEN %s", quoteLiteral(opts.SessionToken))
		}
	}
	if opts.Region != "" {
		fmt.Fprintf(&b, ",\n    REGION %s", quoteLiteral(opts.Region))
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		useSSL := true
		if strings.HasPrefix(endpoint, "http://") {
			endpoint = strings.TrimPrefix(endpoint, "http://")
			useSSL = false
		} else {
			endpoint = strings.TrimPrefix(endpoint, "https://")
		}
		fmt.Fprintf(&b, ",\n    ENDPOINT %s", quoteLiteral(endpoint))
		fmt.Fprintf(&b, ",\n    URL_STYLE 'path'")
		fmt.Fprintf(&b, ",\n    USE_SSL %t", useSSL)
	}
	b.WriteString("\n)")
	return b.String()
}
