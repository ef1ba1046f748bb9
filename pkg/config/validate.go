package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dapper/pkg/access"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/datastore"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags first, then the rules that span sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	var errs []error

	switch cfg.Auth.Provider {
	case auth.ProviderRadius, auth.ProviderFallbackRadius:
		if cfg.Auth.Radius.Address == "" {
			errs = append(errs, fmt.Errorf("auth.radius.address is required for provider %q", cfg.Auth.Provider))
		}
		if cfg.Auth.Radius.Secret == "" {
			errs = append(errs, fmt.Errorf("auth.radius.secret is required for provider %q", cfg.Auth.Provider))
		}
	}

	if cfg.Radius.Enabled && cfg.Radius.Secret == "" {
		errs = append(errs, errors.New("radius.secret is required when radius is enabled"))
	}

	if (cfg.LDAP.TLS.Cert == "") != (cfg.LDAP.TLS.Key == "") {
		errs = append(errs, errors.New("ldap.tls.cert and ldap.tls.key must be set together"))
	}

	switch cfg.Datastore.Provider {
	case datastore.ProviderFile:
		if cfg.Datastore.File == "" {
			errs = append(errs, errors.New("datastore.file is required for the file provider"))
		}
	case datastore.ProviderS3:
		if cfg.Datastore.S3.Bucket == "" || cfg.Datastore.S3.Key == "" {
			errs = append(errs, errors.New("datastore.s3.bucket and datastore.s3.key are required for the s3 provider"))
		}
	}

	for name, ac := range map[string]access.Config{
		"ldap.access":   cfg.LDAP.Access,
		"radius.access": cfg.Radius.Access,
		"api.access":    cfg.API.Access,
	} {
		if err := validateAccess(ac); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func validateAccess(ac access.Config) error {
	switch access.NormalizeOrder(ac.Order) {
	case access.OrderAllowDeny, access.OrderDenyAllow:
	default:
		return fmt.Errorf("order must be %q or %q, got %q", access.OrderAllowDeny, access.OrderDenyAllow, ac.Order)
	}
	_, err := access.New(ac)
	return err
}
