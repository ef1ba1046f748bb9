package datastore

import (
	"github.com/marmos91/dapper/pkg/directory"
)

// Table models. Lists, options and metadata are JSON text columns; the
// directory never queries inside them.

type sqlDomain struct {
	ID       string             `gorm:"primaryKey;size:36"`
	Domain   string             `gorm:"uniqueIndex;not null;size:255"`
	Options  directory.Options  `gorm:"serializer:json"`
	Metadata directory.Metadata `gorm:"serializer:json"`
}

func (sqlDomain) TableName() string { return "domains" }

type sqlOrganization struct {
	ID       string             `gorm:"primaryKey;size:36"`
	Name     string             `gorm:"uniqueIndex;not null;size:255"`
	Options  directory.Options  `gorm:"serializer:json"`
	Metadata directory.Metadata `gorm:"serializer:json"`
}

func (sqlOrganization) TableName() string { return "organizations" }

type sqlGroup struct {
	ID           string             `gorm:"primaryKey;size:36"`
	Name         string             `gorm:"uniqueIndex;not null;size:255"`
	Organization string             `gorm:"size:255"`
	Options      directory.Options  `gorm:"serializer:json"`
	Metadata     directory.Metadata `gorm:"serializer:json"`
}

func (sqlGroup) TableName() string { return "groups" }

type sqlUser struct {
	ID            string                       `gorm:"primaryKey;size:36"`
	Username      string                       `gorm:"uniqueIndex;not null;size:255"`
	Password      string                       `gorm:"type:text"`
	MFA           string                       `gorm:"column:mfa;size:255"`
	Name          string                       `gorm:"size:255"`
	Email         string                       `gorm:"index;size:255"`
	Organizations []string                     `gorm:"serializer:json"`
	Groups        []string                     `gorm:"serializer:json"`
	Permissions   *directory.PermissionsRecord `gorm:"serializer:json"`
	Attributes    directory.AccountAttributes  `gorm:"serializer:json"`
	Metadata      directory.Metadata           `gorm:"serializer:json"`
	Deleted       bool                         `gorm:"default:false"`
}

func (sqlUser) TableName() string { return "users" }

func allModels() []any {
	return []any{&sqlDomain{}, &sqlOrganization{}, &sqlGroup{}, &sqlUser{}}
}

func (r sqlDomain) record() directory.DomainRecord {
	return directory.DomainRecord{ID: r.ID, Domain: r.Domain, Options: r.Options, Metadata: r.Metadata}
}

func (r sqlOrganization) record() directory.OrganizationRecord {
	return directory.OrganizationRecord{ID: r.ID, Name: r.Name, Options: r.Options, Metadata: r.Metadata}
}

func (r sqlGroup) record() directory.GroupRecord {
	return directory.GroupRecord{ID: r.ID, Name: r.Name, Organization: r.Organization, Options: r.Options, Metadata: r.Metadata}
}

func (r sqlUser) record() directory.UserRecord {
	return directory.UserRecord{
		ID:            r.ID,
		Username:      r.Username,
		Password:      r.Password,
		MFA:           r.MFA,
		Name:          r.Name,
		Email:         r.Email,
		Organizations: r.Organizations,
		Groups:        r.Groups,
		Permissions:   r.Permissions,
		Attributes:    r.Attributes,
		Metadata:      r.Metadata,
		Deleted:       r.Deleted,
	}
}

func toSQLUser(r directory.UserRecord) sqlUser {
	orgs := append([]string(nil), r.Organizations...)
	if r.Organization != "" {
		orgs = append(orgs, r.Organization)
	}
	groups := append([]string(nil), r.Groups...)
	if r.Group != "" {
		groups = append(groups, r.Group)
	}
	return sqlUser{
		ID:            r.ID,
		Username:      r.Username,
		Password:      r.Password,
		MFA:           r.MFA,
		Name:          r.Name,
		Email:         r.Email,
		Organizations: orgs,
		Groups:        groups,
		Permissions:   r.Permissions,
		Attributes:    r.Attributes,
		Metadata:      r.Metadata,
		Deleted:       r.Deleted,
	}
}
