package rclone

import (
	"fmt"
	"os"
	"strings"

	"github.com/pablopunk/bucky-sub000/internal/domain"
)

// RenderConfig produces the tool configuration section for a provider,
// named after the provider id so it matches the destination URI alias.
// The provider must already be validated.
func RenderConfig(p *domain.Provider) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", p.ID)
	switch p.Kind {
	case domain.ProviderKindS3:
		b.WriteString("type = s3\n")
		b.WriteString("provider = Other\n")
		fmt.Fprintf(&b, "endpoint = %s\n", p.S3.Endpoint)
		if p.S3.Region != "" {
			fmt.Fprintf(&b, "region = %s\n", p.S3.Region)
		}
		fmt.Fprintf(&b, "access_key_id = %s\n", p.S3.AccessKeyID)
		fmt.Fprintf(&b, "secret_access_key = %s\n", p.S3.SecretAccessKey)
	case domain.ProviderKindB2:
		b.WriteString("type = b2\n")
		fmt.Fprintf(&b, "account = %s\n", p.B2.AccountID)
		fmt.Fprintf(&b, "key = %s\n", p.B2.ApplicationKey)
	case domain.ProviderKindStorj:
		b.WriteString("type = storj\n")
		fmt.Fprintf(&b, "access_grant = %s\n", p.Storj.AccessGrant)
	default:
		return "", fmt.Errorf("cannot render config for unknown provider kind %q", p.Kind)
	}
	return b.String(), nil
}

// WriteConfigFile renders the provider config into a temporary file and
// returns its path plus a cleanup func. The cleanup must run on every exit
// path of the invocation.
func WriteConfigFile(p *domain.Provider) (string, func(), error) {
	content, err := RenderConfig(p)
	if err != nil {
		return "", nil, err
	}
	f, err := os.CreateTemp("", "backupd-rclone-*.conf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create transfer config: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to write transfer config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to close transfer config: %w", err)
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}
