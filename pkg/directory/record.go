package directory

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Document is what a datastore provider hands to the directory at boot.
// Config, when present, is merged over the running directory configuration.
type Document struct {
	Domains       []DomainRecord       `json:"domains" yaml:"domains" mapstructure:"domains"`
	Organizations []OrganizationRecord `json:"organizations" yaml:"organizations" mapstructure:"organizations"`
	Groups        []GroupRecord        `json:"groups" yaml:"groups" mapstructure:"groups"`
	Users         []UserRecord         `json:"users" yaml:"users" mapstructure:"users"`
	Config        map[string]any       `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`
}

// DomainRecord describes a Domain. A bare string is shorthand for {domain: s}.
type DomainRecord struct {
	ID       string   `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Domain   string   `json:"domain" yaml:"domain" mapstructure:"domain"`
	Options  Options  `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
	Metadata Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// OrganizationRecord describes an Organization. A bare string is shorthand
// for {name: s}.
type OrganizationRecord struct {
	ID       string   `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Name     string   `json:"name" yaml:"name" mapstructure:"name"`
	Options  Options  `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
	Metadata Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// GroupRecord describes a Group. A bare string is shorthand for {name: s}.
type GroupRecord struct {
	ID           string   `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Name         string   `json:"name" yaml:"name" mapstructure:"name"`
	Organization string   `json:"organization,omitempty" yaml:"organization,omitempty" mapstructure:"organization"`
	Options      Options  `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
	Metadata     Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// UserRecord describes a User. Unset permissions take DefaultPermissions.
type UserRecord struct {
	ID            string             `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Username      string             `json:"username" yaml:"username" mapstructure:"username"`
	Password      string             `json:"password,omitempty" yaml:"password,omitempty" mapstructure:"password"`
	MFA           string             `json:"mfa,omitempty" yaml:"mfa,omitempty" mapstructure:"mfa"`
	Name          string             `json:"name" yaml:"name" mapstructure:"name"`
	Email         string             `json:"email" yaml:"email" mapstructure:"email"`
	Organization  string             `json:"organization,omitempty" yaml:"organization,omitempty" mapstructure:"organization"`
	Organizations []string           `json:"organizations,omitempty" yaml:"organizations,omitempty" mapstructure:"organizations"`
	Group         string             `json:"group,omitempty" yaml:"group,omitempty" mapstructure:"group"`
	Groups        []string           `json:"groups,omitempty" yaml:"groups,omitempty" mapstructure:"groups"`
	Permissions   *PermissionsRecord `json:"permissions,omitempty" yaml:"permissions,omitempty" mapstructure:"permissions"`
	Attributes    AccountAttributes  `json:"attributes,omitempty" yaml:"attributes,omitempty" mapstructure:"attributes"`
	Metadata      Metadata           `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
	Deleted       bool               `json:"deleted,omitempty" yaml:"deleted,omitempty" mapstructure:"deleted"`
}

// PermissionsRecord overrides individual permissions; nil fields keep the
// default.
type PermissionsRecord struct {
	Administrator *bool   `json:"administrator,omitempty" yaml:"administrator,omitempty" mapstructure:"administrator"`
	Add           *bool   `json:"add,omitempty" yaml:"add,omitempty" mapstructure:"add"`
	Bind          *bool   `json:"bind,omitempty" yaml:"bind,omitempty" mapstructure:"bind"`
	Del           *bool   `json:"del,omitempty" yaml:"del,omitempty" mapstructure:"del"`
	Modify        *string `json:"modify,omitempty" yaml:"modify,omitempty" mapstructure:"modify"`
	Radius        *bool   `json:"radius,omitempty" yaml:"radius,omitempty" mapstructure:"radius"`
	Search        *bool   `json:"search,omitempty" yaml:"search,omitempty" mapstructure:"search"`
	Session       *bool   `json:"session,omitempty" yaml:"session,omitempty" mapstructure:"session"`
}

func (p *PermissionsRecord) apply(base Permissions) Permissions {
	if p == nil {
		return base
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setBool(&base.Administrator, p.Administrator)
	setBool(&base.Add, p.Add)
	setBool(&base.Bind, p.Bind)
	setBool(&base.Del, p.Del)
	setBool(&base.Radius, p.Radius)
	setBool(&base.Search, p.Search)
	setBool(&base.Session, p.Session)
	if p.Modify != nil {
		base.Modify = *p.Modify
	}
	return base
}

// shorthandField names the field a bare string expands to for each record type.
var shorthandField = map[reflect.Type]string{
	reflect.TypeOf(DomainRecord{}):       "domain",
	reflect.TypeOf(OrganizationRecord{}): "name",
	reflect.TypeOf(GroupRecord{}):        "name",
}

// DecodeHook expands string shorthand while decoding a Document with
// mapstructure, so "dapper.test" decodes as DomainRecord{Domain: "dapper.test"}.
func DecodeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}
		if field, ok := shorthandField[to]; ok {
			return map[string]any{field: data}, nil
		}
		return data, nil
	}
}

// DecodeDocument decodes a generic map (from viper, JSON or YAML) into a
// Document, honouring string shorthand.
func DecodeDocument(raw any) (*Document, error) {
	var doc Document
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		Result:           &doc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode directory document: %w", err)
	}
	return &doc, nil
}

type (
	plainDomain       DomainRecord
	plainOrganization OrganizationRecord
	plainGroup        GroupRecord
)

func (r *DomainRecord) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*r = DomainRecord{Domain: n.Value}
		return nil
	}
	return n.Decode((*plainDomain)(r))
}

func (r *OrganizationRecord) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*r = OrganizationRecord{Name: n.Value}
		return nil
	}
	return n.Decode((*plainOrganization)(r))
}

func (r *GroupRecord) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*r = GroupRecord{Name: n.Value}
		return nil
	}
	return n.Decode((*plainGroup)(r))
}

func (r *DomainRecord) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*r = DomainRecord{Domain: s}
		return nil
	}
	return json.Unmarshal(b, (*plainDomain)(r))
}

func (r *OrganizationRecord) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*r = OrganizationRecord{Name: s}
		return nil
	}
	return json.Unmarshal(b, (*plainOrganization)(r))
}

func (r *GroupRecord) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*r = GroupRecord{Name: s}
		return nil
	}
	return json.Unmarshal(b, (*plainGroup)(r))
}
