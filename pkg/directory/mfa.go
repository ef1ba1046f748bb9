package directory

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// MFARequired reports whether binding as u through dn needs a second factor.
// The user's own flag or administrator permission forces it; otherwise any
// group, organization or domain named along dn, or the entity dn resolves
// to, may require it through its options.
func (t *Tree) MFARequired(dn string, u *User) bool {
	if u == nil {
		return false
	}
	if u.Attributes.MFARequired || u.Permissions.Administrator {
		return true
	}

	entry, ok := t.Lookup(dn)
	if !ok {
		return false
	}
	if opts, ok := t.options(entry.Projection.ID); ok && opts.MFARequired {
		return true
	}

	parsed := entry.Parsed
	if parsed == nil {
		var err error
		if parsed, err = ldap.ParseDN(dn); err != nil {
			return false
		}
	}

	var dcs []string
	rdns := parsed.RDNs
	for i, rdn := range rdns {
		if len(rdn.Attributes) != 1 {
			continue
		}
		a := rdn.Attributes[0]
		switch strings.ToLower(a.Type) {
		case "cn":
			if i+1 < len(rdns) && isGroupsOU(rdns[i+1], t.cfg.Groups.OU) {
				if g, ok := t.Group(a.Value); ok && g.Options.MFARequired {
					return true
				}
			}
		case "o":
			if o, ok := t.Organization(a.Value); ok && o.Options.MFARequired {
				return true
			}
		case "dc":
			dcs = append(dcs, a.Value)
		}
	}

	if len(dcs) > 0 {
		if d, ok := t.Domain(strings.Join(dcs, ".")); ok && d.Options.MFARequired {
			return true
		}
	}
	return false
}

func isGroupsOU(rdn *ldap.RelativeDN, ou string) bool {
	return len(rdn.Attributes) == 1 &&
		strings.EqualFold(rdn.Attributes[0].Type, "ou") &&
		strings.EqualFold(rdn.Attributes[0].Value, ou)
}

func (t *Tree) options(id string) (Options, bool) {
	switch e := t.index[id].(type) {
	case *Domain:
		return e.Options, true
	case *Organization:
		return e.Options, true
	case *Group:
		return e.Options, true
	}
	return Options{}, false
}
