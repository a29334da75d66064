package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrProviderNotFound is returned when no storage provider exists for the
// id a job points at.
var ErrProviderNotFound = errors.New("storage provider not found")

// ProviderKind tags the credential bundle carried by a Provider.
type ProviderKind string

const (
	ProviderKindS3    ProviderKind = "s3"
	ProviderKindB2    ProviderKind = "b2"
	ProviderKindStorj ProviderKind = "storj"
)

// S3Credentials hold access to an S3-compatible endpoint.
type S3Credentials struct {
	Endpoint        string `json:"endpoint" validate:"required"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id" validate:"required"`
	SecretAccessKey string `json:"secret_access_key" validate:"required"`
}

// B2Credentials hold a Backblaze B2 application key pair.
type B2Credentials struct {
	AccountID      string `json:"account_id" validate:"required"`
	ApplicationKey string `json:"application_key" validate:"required"`
}

// StorjCredentials hold a Storj DCS access grant.
type StorjCredentials struct {
	AccessGrant string `json:"access_grant" validate:"required"`
}

// Provider is a storage destination with a typed credential bundle.
// Exactly the bundle matching Kind must be present.
type Provider struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Kind   ProviderKind `json:"kind"`
	Bucket string       `json:"bucket"`

	S3    *S3Credentials    `json:"s3,omitempty"`
	B2    *B2Credentials    `json:"b2,omitempty"`
	Storj *StorjCredentials `json:"storj,omitempty"`
}

var credentialValidate = validator.New()

// Validate checks the provider record and the credential bundle matching
// its kind. A failure here is a ConfigError for any job using the provider.
func (p *Provider) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("provider id cannot be empty")
	}
	if p.Bucket == "" {
		return fmt.Errorf("provider %s: bucket cannot be empty", p.ID)
	}
	switch p.Kind {
	case ProviderKindS3:
		if p.S3 == nil {
			return fmt.Errorf("provider %s: missing s3 credentials", p.ID)
		}
		if err := credentialValidate.Struct(p.S3); err != nil {
			return fmt.Errorf("provider %s: malformed s3 credentials: %w", p.ID, err)
		}
	case ProviderKindB2:
		if p.B2 == nil {
			return fmt.Errorf("provider %s: missing b2 credentials", p.ID)
		}
		if err := credentialValidate.Struct(p.B2); err != nil {
			return fmt.Errorf("provider %s: malformed b2 credentials: %w", p.ID, err)
		}
	case ProviderKindStorj:
		if p.Storj == nil {
			return fmt.Errorf("provider %s: missing storj credentials", p.ID)
		}
		if err := credentialValidate.Struct(p.Storj); err != nil {
			return fmt.Errorf("provider %s: malformed storj credentials: %w", p.ID, err)
		}
	default:
		return fmt.Errorf("provider %s: unknown kind %q", p.ID, p.Kind)
	}
	return nil
}

// ProviderStore resolves storage-provider credentials. The engine treats it
// as an opaque lookup.
type ProviderStore interface {
	Get(ctx context.Context, id string) (*Provider, error)
}

// ConfigError marks a missing or malformed provider configuration. The
// attempt fails without spawning the transfer tool, but the job stays on
// its schedule so future attempts remain visible.
type ConfigError struct {
	ProviderID string
	Err        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("storage provider configuration %s: %v", e.ProviderID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
