package directory

import "sync"

// Kind identifies the type of a directory entity.
type Kind string

const (
	KindDomain       Kind = "domain"
	KindOrganization Kind = "organization"
	KindGroup        Kind = "group"
	KindUser         Kind = "user"
)

// Entity is implemented by every record held in a Tree.
type Entity interface {
	EntityID() string
	Kind() Kind
}

// Options carries per-entity policy switches.
type Options struct {
	MFARequired bool `json:"mfaRequired,omitempty" yaml:"mfaRequired,omitempty" mapstructure:"mfaRequired"`
}

// Metadata is free-form data attached to an entity. Keys listed in the
// matching metadata publish list are copied into the LDAP projection.
type Metadata map[string]any

func (m Metadata) clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Domain is a DNS-style naming context such as "dapper.test".
type Domain struct {
	ID       string
	Domain   string
	Options  Options
	Metadata Metadata
}

func (d *Domain) EntityID() string { return d.ID }
func (d *Domain) Kind() Kind       { return KindDomain }

// Organization is a named organization. Users and groups reference it by name.
type Organization struct {
	ID       string
	Name     string
	Options  Options
	Metadata Metadata
}

func (o *Organization) EntityID() string { return o.ID }
func (o *Organization) Kind() Kind       { return KindOrganization }

// Group is a named group, optionally scoped to one organization. Membership
// lives on users and is projected onto the group's member attributes.
type Group struct {
	ID           string
	Name         string
	Organization string
	Options      Options
	Metadata     Metadata
}

func (g *Group) EntityID() string { return g.ID }
func (g *Group) Kind() Kind       { return KindGroup }

// Permissions controls which operations a user may perform.
type Permissions struct {
	Administrator bool   `json:"administrator" yaml:"administrator" mapstructure:"administrator"`
	Add           bool   `json:"add" yaml:"add" mapstructure:"add"`
	Bind          bool   `json:"bind" yaml:"bind" mapstructure:"bind"`
	Del           bool   `json:"del" yaml:"del" mapstructure:"del"`
	Modify        string `json:"modify" yaml:"modify" mapstructure:"modify"`
	Radius        bool   `json:"radius" yaml:"radius" mapstructure:"radius"`
	Search        bool   `json:"search" yaml:"search" mapstructure:"search"`
	Session       bool   `json:"session" yaml:"session" mapstructure:"session"`
}

// DefaultPermissions returns the permissions a user gets when none are given.
func DefaultPermissions() Permissions {
	return Permissions{
		Bind:    true,
		Modify:  "self",
		Radius:  true,
		Search:  true,
		Session: true,
	}
}

// AccountAttributes are account state flags.
type AccountAttributes struct {
	AccountLocked         bool `json:"accountLocked" yaml:"accountLocked" mapstructure:"accountLocked"`
	MFAEnabled            bool `json:"mfaEnabled" yaml:"mfaEnabled" mapstructure:"mfaEnabled"`
	MFARequired           bool `json:"mfaRequired" yaml:"mfaRequired" mapstructure:"mfaRequired"`
	PasswordResetRequired bool `json:"passwordResetRequired" yaml:"passwordResetRequired" mapstructure:"passwordResetRequired"`
}

// User is a directory account.
//
// The password field is the only part of a User written after boot (by the
// fallback-radius provider), so it is accessed through Password/SetPassword.
type User struct {
	ID            string
	Username      string
	MFA           string // base32 TOTP secret, empty when not enrolled
	Name          string
	Email         string
	Organizations []string
	Groups        []string
	Permissions   Permissions
	Attributes    AccountAttributes
	Metadata      Metadata
	Deleted       bool

	mu       sync.RWMutex
	password string
}

func (u *User) EntityID() string { return u.ID }
func (u *User) Kind() Kind       { return KindUser }

// Password returns the stored password hash, or "" when none is set.
func (u *User) Password() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.password
}

// SetPassword replaces the stored password hash.
func (u *User) SetPassword(hash string) {
	u.mu.Lock()
	u.password = hash
	u.mu.Unlock()
}

// HasPassword reports whether a password hash is stored.
func (u *User) HasPassword() bool {
	return u.Password() != ""
}
