package directory

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"
)

// Config controls how entities are projected into the LDAP tree.
type Config struct {
	// AddEmailDomains creates a Domain for every user email domain not
	// already present.
	AddEmailDomains bool `mapstructure:"addEmailDomains" yaml:"addEmailDomains" json:"addEmailDomains" default:"false"`

	// ParseEmailToDC adds the user's email domain as an extra DC branch.
	ParseEmailToDC bool `mapstructure:"parseEmailToDC" yaml:"parseEmailToDC" json:"parseEmailToDC" default:"true"`

	// AllowEmpty adds an empty choice to the DC and O sets, so users are
	// also reachable without an organization or domain component.
	AllowEmpty bool `mapstructure:"allowEmpty" yaml:"allowEmpty" json:"allowEmpty" default:"true"`

	// PosixAccounts adds posixAccount attributes to every user.
	PosixAccounts bool `mapstructure:"posixAccounts" yaml:"posixAccounts" json:"posixAccounts" default:"false"`

	// AllowPlainTextPasswords lets the internal provider accept stored
	// passwords that are not argon2id or bcrypt hashes.
	AllowPlainTextPasswords bool `mapstructure:"allowPlainTextPasswords" yaml:"allowPlainTextPasswords" json:"allowPlainTextPasswords" default:"false"`

	Users    UsersConfig    `mapstructure:"users" yaml:"users" json:"users"`
	Groups   GroupsConfig   `mapstructure:"groups" yaml:"groups" json:"groups"`
	Posix    PosixConfig    `mapstructure:"posix" yaml:"posix" json:"posix"`
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata" json:"metadata"`
}

// UsersConfig names the user branch and the attributes users are keyed by.
type UsersConfig struct {
	OU   string `mapstructure:"ou" yaml:"ou" json:"ou" default:"Users" validate:"required"`
	Type string `mapstructure:"type" yaml:"type" json:"type" default:"inetOrgPerson" validate:"required"`

	// Keys are the attributes each producing one DN per (dc, o) branch.
	Keys []string `mapstructure:"keys" yaml:"keys" json:"keys" default:"[\"cn\",\"uid\",\"email\"]" validate:"required,min=1"`

	// Multikeys are synthesized attributes whose values come from several
	// attributes, e.g. login = [uid, email].
	Multikeys map[string][]string `mapstructure:"multikeys" yaml:"multikeys" json:"multikeys" default:"{\"login\":[\"uid\",\"email\"]}"`

	// PrimaryKey selects which key's DNs compete for the preferred DN.
	PrimaryKey string `mapstructure:"primaryKey" yaml:"primaryKey" json:"primaryKey" default:"uid" validate:"required"`
}

// GroupsConfig names the group branch.
type GroupsConfig struct {
	OU   string `mapstructure:"ou" yaml:"ou" json:"ou" default:"Groups" validate:"required"`
	Type string `mapstructure:"type" yaml:"type" json:"type" default:"groupOfNames" validate:"required"`
}

// PosixConfig holds posixAccount defaults. UID is the first uidNumber assigned.
type PosixConfig struct {
	Type  string `mapstructure:"type" yaml:"type" json:"type" default:"posixAccount"`
	UID   int    `mapstructure:"uid" yaml:"uid" json:"uid" default:"10000"`
	Home  string `mapstructure:"home" yaml:"home" json:"home" default:"/home"`
	Shell string `mapstructure:"shell" yaml:"shell" json:"shell" default:"/bin/bash"`
}

// MetadataConfig holds per-kind metadata publish lists and defaults.
type MetadataConfig struct {
	Domains       KindMetadata `mapstructure:"domains" yaml:"domains" json:"domains"`
	Organizations KindMetadata `mapstructure:"organizations" yaml:"organizations" json:"organizations"`
	Groups        KindMetadata `mapstructure:"groups" yaml:"groups" json:"groups"`
	Users         KindMetadata `mapstructure:"users" yaml:"users" json:"users"`
}

// KindMetadata lists the metadata keys published as LDAP attributes and the
// values merged into entities that lack them.
type KindMetadata struct {
	Publish  []string       `mapstructure:"publish" yaml:"publish" json:"publish"`
	Defaults map[string]any `mapstructure:"defaults" yaml:"defaults" json:"defaults"`
}

// DefaultConfig returns the naming configuration with every default applied.
func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// Only reachable if a default tag above is malformed.
		panic(fmt.Sprintf("directory: invalid default tags: %v", err))
	}
	return cfg
}

// Merge returns c with the keys present in overrides decoded over it. It is
// how the config object a datastore returns alongside its entities is
// applied. Keys use the same names as the YAML configuration.
func (c Config) Merge(overrides map[string]any) (Config, error) {
	if len(overrides) == 0 {
		return c, nil
	}
	merged := c
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &merged,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(overrides); err != nil {
		return c, fmt.Errorf("merge directory config: %w", err)
	}
	return merged, nil
}

func (c Config) kindMetadata(k Kind) KindMetadata {
	switch k {
	case KindDomain:
		return c.Metadata.Domains
	case KindOrganization:
		return c.Metadata.Organizations
	case KindGroup:
		return c.Metadata.Groups
	default:
		return c.Metadata.Users
	}
}
