package directory

import (
	"path"
	"sort"
	"strconv"
	"strings"
)

func (t *Tree) projectDomain(d *Domain) *Projection {
	dn := DomainDN(d.Domain)
	attrs := Attributes{
		"dc":          {d.Domain},
		"objectclass": {"top", "dcObject"},
	}
	attrs.publish(t.cfg.Metadata.Domains.Publish, d.Metadata)

	p := &Projection{
		ID:         d.ID,
		Kind:       KindDomain,
		DN:         dn,
		DNs:        []string{dn},
		Binds:      []string{dn},
		Attributes: attrs,
	}
	t.register(p)
	return p
}

func (t *Tree) domainDNs() []string {
	out := make([]string, 0, len(t.domainOrder))
	for _, d := range t.domainOrder {
		out = append(out, DomainDN(d.Domain))
	}
	return out
}

func (t *Tree) projectOrganization(o *Organization) *Projection {
	attrs := Attributes{
		"o":           {o.Name},
		"objectclass": {"top", "organization"},
	}
	attrs.publish(t.cfg.Metadata.Organizations.Publish, o.Metadata)

	dns, binds := newStringSet(), newStringSet()
	own := rdn("o", o.Name)

	dn := toDN([]string{own}, dns, binds)
	for _, dc := range t.domainDNs() {
		dn = preferredDN(dn, toDN([]string{own, dc}, dns, binds))
	}

	p := &Projection{
		ID:         o.ID,
		Kind:       KindOrganization,
		DN:         dn,
		DNs:        dns.sorted(),
		Binds:      binds.sorted(),
		Attributes: attrs,
	}
	t.register(p)
	return p
}

// ensureOrganization resolves name to its projection, creating the
// organization when it is unknown.
func (t *Tree) ensureOrganization(name string) *Projection {
	if o, ok := t.Organization(name); ok {
		return t.projections[o.ID]
	}
	o, err := t.AddOrganization(OrganizationRecord{Name: name})
	if err != nil {
		return nil
	}
	return t.projections[o.ID]
}

func (t *Tree) ensureGroup(name string) *Projection {
	if g, ok := t.Group(name); ok {
		return t.projections[g.ID]
	}
	g, err := t.AddGroup(GroupRecord{Name: name})
	if err != nil {
		return nil
	}
	return t.projections[g.ID]
}

func (t *Tree) projectGroup(g *Group) *Projection {
	display := g.Name
	if v, ok := metadataValue(g.Metadata, "name"); ok {
		display = v[0]
	}

	var orgs []string
	if g.Organization != "" {
		orgs = []string{g.Organization}
	} else {
		for _, o := range t.orgOrder {
			orgs = append(orgs, o.Name)
		}
	}

	attrs := Attributes{
		"cn":          {display},
		"group":       {display},
		"member":      {},
		"memberuid":   {},
		"o":           orgs,
		"objectclass": {"top", "group", t.cfg.Groups.Type},
	}
	attrs.publish(t.cfg.Metadata.Groups.Publish, g.Metadata)

	dns, binds := newStringSet(), newStringSet()
	cn, ou := rdn("cn", g.Name), rdn("ou", t.cfg.Groups.OU)

	dn := toDN([]string{cn, ou}, dns, binds)
	if len(orgs) > 0 {
		for _, name := range orgs {
			org := t.ensureOrganization(name)
			if org == nil {
				continue
			}
			for _, orgDN := range org.DNs {
				dn = preferredDN(dn, toDN([]string{cn, ou, orgDN}, dns, binds))
			}
		}
	} else {
		for _, dc := range t.domainDNs() {
			dn = preferredDN(dn, toDN([]string{cn, ou, dc}, dns, binds))
		}
	}

	p := &Projection{
		ID:         g.ID,
		Kind:       KindGroup,
		DN:         dn,
		DNs:        dns.sorted(),
		Binds:      binds.sorted(),
		Attributes: attrs,
	}
	t.register(p)
	return p
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func lastWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[len(f)-1]
	}
	return ""
}

func (t *Tree) userAttributes(u *User) Attributes {
	pick := func(key, fallback string) string {
		if v, ok := metadataValue(u.Metadata, key); ok {
			return v[0]
		}
		return fallback
	}

	attrs := Attributes{
		"cn":          {pick("cn", u.Name)},
		"displayName": {pick("displayName", u.Name)},
		"givenName":   {pick("givenName", firstWord(u.Name))},
		"sn":          {pick("sn", lastWord(u.Name))},
		"uid":         {pick("uid", u.Username)},
		"email":       {pick("email", u.Email)},
		"o":           append([]string(nil), u.Organizations...),
		"ou":          {t.cfg.Users.OU},
		"memberOf":    {},
		"objectclass": {"top", "person", "organizationalPerson", t.cfg.Users.Type},
	}

	if t.cfg.PosixAccounts {
		uid := t.nextUID
		t.nextUID++
		attrs.add("objectclass", t.cfg.Posix.Type)
		attrs.set("uidNumber", strconv.Itoa(uid))
		attrs.set("gidNumber", strconv.Itoa(uid))
		attrs.set("homeDirectory", path.Join(t.cfg.Posix.Home, attrs.First("uid")))
		attrs.set("loginShell", t.cfg.Posix.Shell)
	}

	for _, mk := range sortedKeys(t.cfg.Users.Multikeys) {
		var values []string
		for _, mapping := range t.cfg.Users.Multikeys[mk] {
			if v := attrs.First(mapping); v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			attrs.set(mk, values...)
		}
	}

	for _, key := range t.cfg.Users.Keys {
		if attrs.First(key) != "" {
			continue
		}
		if v, ok := metadataValue(u.Metadata, key); ok {
			attrs.set(key, v...)
		}
	}

	attrs.publish(t.cfg.Metadata.Users.Publish, u.Metadata)
	return attrs
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return strings.TrimSpace(email[i+1:])
	}
	return ""
}

// userBranches returns the DC and O choices a user's DNs are built from.
// Organizations are created on demand, and with AddEmailDomains so is the
// email domain.
func (t *Tree) userBranches(attrs Attributes) (dcs, orgs []string) {
	domain := emailDomain(attrs.First("email"))

	if t.cfg.AddEmailDomains && domain != "" {
		if _, ok := t.Domain(domain); !ok {
			_, _ = t.AddDomain(DomainRecord{Domain: domain})
		}
	}

	dcList := t.domainDNs()
	if t.cfg.ParseEmailToDC && domain != "" {
		dcList = append(dcList, DomainDN(domain))
	}
	dcs = optionSet(dcList, t.cfg.AllowEmpty)

	orgs = optionSet(attrs["o"], t.cfg.AllowEmpty)
	for _, o := range orgs {
		if o != "" {
			t.ensureOrganization(o)
		}
	}
	return dcs, orgs
}

// userDNs computes the DN set of a user with the given attributes over the
// given branches. It has no side effects.
func (t *Tree) userDNs(id string, attrs Attributes, dcs, orgs []string) (dn string, dns, binds []string) {
	dnSet, bindSet := newStringSet(), newStringSet()
	uuidDN := rdn("uuid", id) + ", o=uuids"
	dnSet.add(uuidDN)
	bindSet.add("o=uuids")

	ou := rdn("ou", attrs.First("ou"))
	multikeys := sortedKeys(t.cfg.Users.Multikeys)

	for _, dc := range dcs {
		for _, o := range orgs {
			if o != "" {
				o = rdn("o", o)
			}

			for _, key := range t.cfg.Users.Keys {
				v := attrs.First(key)
				if v == "" {
					continue
				}
				d := toDN([]string{rdn(key, v), ou, o, dc}, dnSet, bindSet)
				if key == t.cfg.Users.PrimaryKey {
					dn = preferredDN(dn, d)
				}
			}

			for _, mk := range multikeys {
				for _, mapping := range t.cfg.Users.Multikeys[mk] {
					if v := attrs.First(mapping); v != "" {
						toDN([]string{rdn(mk, v), ou, o, dc}, dnSet, bindSet)
					}
				}
			}
		}
	}

	if dn == "" {
		dn = uuidDN
	}
	return dn, dnSet.sorted(), bindSet.sorted()
}

// ResynthesizeUser recomputes the DN set of an already projected user
// without touching the tree.
func (t *Tree) ResynthesizeUser(u *User) (dn string, dns, binds []string) {
	p, ok := t.projections[u.ID]
	if !ok || u.Deleted {
		return "", nil, nil
	}
	domain := emailDomain(p.Attributes.First("email"))
	dcList := t.domainDNs()
	if t.cfg.ParseEmailToDC && domain != "" {
		dcList = append(dcList, DomainDN(domain))
	}
	return t.userDNs(u.ID, p.Attributes, optionSet(dcList, t.cfg.AllowEmpty), optionSet(p.Attributes["o"], t.cfg.AllowEmpty))
}

func (t *Tree) projectUser(u *User) *Projection {
	if u.Deleted {
		p := &Projection{
			ID:   u.ID,
			Kind: KindUser,
			Attributes: Attributes{
				"cn":      {u.Name},
				"uid":     {u.Username},
				"deleted": {"TRUE"},
			},
		}
		t.projections[u.ID] = p
		return p
	}

	attrs := t.userAttributes(u)
	dcs, orgs := t.userBranches(attrs)
	dn, dns, binds := t.userDNs(u.ID, attrs, dcs, orgs)

	p := &Projection{
		ID:         u.ID,
		Kind:       KindUser,
		DN:         dn,
		DNs:        dns,
		Binds:      binds,
		Attributes: attrs,
	}

	uid := attrs.First("uid")
	for _, name := range u.Groups {
		g := t.ensureGroup(name)
		if g == nil {
			continue
		}
		g.Attributes.add("member", dn)
		g.Attributes.add("memberuid", uid)
		attrs.add("memberOf", g.DN)
	}
	sort.Strings(attrs["memberOf"])

	t.register(p)
	return p
}
