package directory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

var (
	// ErrInvalidRecord is returned when a record lacks its natural key.
	ErrInvalidRecord = errors.New("invalid directory record")

	// ErrKindMismatch is returned when a record reuses the id of an entity
	// of another kind.
	ErrKindMismatch = errors.New("entity id already used by another kind")
)

// Entry pairs one DN with the projection it addresses.
type Entry struct {
	DN         string
	Parsed     *ldap.DN
	Projection *Projection
}

// Tree holds every entity of one directory instance together with the LDAP
// index derived from them.
//
// A Tree is populated by a single goroutine at boot (Load or the Add*
// methods) and is read-only afterwards, apart from User passwords which
// carry their own lock.
type Tree struct {
	cfg Config

	domains       map[string]*Domain // folded domain name
	domainOrder   []*Domain
	organizations map[string]*Organization // folded name
	orgOrder      []*Organization
	groups        map[string]*Group // folded name
	users         map[string]*User  // username
	emails        map[string]*User  // lower-cased email
	index         map[string]Entity // id
	generated     map[string]bool   // ids assigned because the record had none

	projections map[string]*Projection // entity id
	dns         map[string]*Entry      // normalized DN
	binds       map[string]*Projection // normalized bind DN

	nextUID int

	mu      sync.Mutex
	entries []*Entry
	dirty   bool
}

// NewTree returns an empty Tree using cfg for DN synthesis.
func NewTree(cfg Config) *Tree {
	return &Tree{
		cfg:           cfg,
		domains:       make(map[string]*Domain),
		organizations: make(map[string]*Organization),
		groups:        make(map[string]*Group),
		users:         make(map[string]*User),
		emails:        make(map[string]*User),
		index:         make(map[string]Entity),
		generated:     make(map[string]bool),
		projections:   make(map[string]*Projection),
		dns:           make(map[string]*Entry),
		binds:         make(map[string]*Projection),
		nextUID:       cfg.Posix.UID,
	}
}

// Config returns the naming configuration the tree was built with.
func (t *Tree) Config() Config { return t.cfg }

// Load adds every record of doc: domains first, then organizations, groups
// and users, so lazily created entities only appear for unknown names.
func (t *Tree) Load(doc *Document) error {
	if doc == nil {
		return nil
	}
	for _, r := range doc.Domains {
		if _, err := t.AddDomain(r); err != nil {
			return err
		}
	}
	for _, r := range doc.Organizations {
		if _, err := t.AddOrganization(r); err != nil {
			return err
		}
	}
	for _, r := range doc.Groups {
		if _, err := t.AddGroup(r); err != nil {
			return err
		}
	}
	for _, r := range doc.Users {
		if _, err := t.AddUser(r); err != nil {
			return err
		}
	}
	return nil
}

func fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (t *Tree) mergeMetadata(k Kind, md Metadata) Metadata {
	out := md.clone()
	for key, v := range t.cfg.kindMetadata(k).Defaults {
		if cur, ok := out[key]; !ok || cur == nil || cur == "" {
			out[key] = v
		}
	}
	return out
}

// existing returns the entity already registered under id, checking its kind.
func (t *Tree) existing(id string, k Kind) (Entity, error) {
	if id == "" {
		return nil, nil
	}
	e, ok := t.index[id]
	if !ok {
		return nil, nil
	}
	if e.Kind() != k {
		return nil, fmt.Errorf("%w: %s is a %s, not a %s", ErrKindMismatch, id, e.Kind(), k)
	}
	return e, nil
}

// AddDomain registers a domain and projects it.
func (t *Tree) AddDomain(r DomainRecord) (*Domain, error) {
	name := strings.TrimSpace(r.Domain)
	if name == "" {
		return nil, fmt.Errorf("%w: domain name is empty", ErrInvalidRecord)
	}
	prev, err := t.existing(r.ID, KindDomain)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		d := prev.(*Domain)
		delete(t.domains, fold(d.Domain))
		d.Domain, d.Options, d.Metadata = name, r.Options, t.mergeMetadata(KindDomain, r.Metadata)
		t.domains[fold(name)] = d
		return d, nil
	}

	d := &Domain{
		ID:       newID(r.ID),
		Domain:   name,
		Options:  r.Options,
		Metadata: t.mergeMetadata(KindDomain, r.Metadata),
	}
	t.domains[fold(name)] = d
	t.domainOrder = append(t.domainOrder, d)
	t.index[d.ID] = d
	t.projectDomain(d)
	return d, nil
}

// AddOrganization registers an organization and projects it.
func (t *Tree) AddOrganization(r OrganizationRecord) (*Organization, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is empty", ErrInvalidRecord)
	}
	prev, err := t.existing(r.ID, KindOrganization)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		o := prev.(*Organization)
		delete(t.organizations, fold(o.Name))
		o.Name, o.Options, o.Metadata = name, r.Options, t.mergeMetadata(KindOrganization, r.Metadata)
		t.organizations[fold(name)] = o
		return o, nil
	}
	if o, ok := t.organizations[fold(name)]; ok {
		// Created earlier by name only; adopt the explicit id and settings.
		if err := t.adopt(KindOrganization, name, o.ID, r.ID); err != nil {
			return nil, err
		}
		if r.ID != "" {
			o.ID = r.ID
		}
		o.Options, o.Metadata = r.Options, t.mergeMetadata(KindOrganization, r.Metadata)
		t.projections[o.ID].Attributes.publish(t.cfg.Metadata.Organizations.Publish, o.Metadata)
		return o, nil
	}

	o := &Organization{
		ID:       newID(r.ID),
		Name:     name,
		Options:  r.Options,
		Metadata: t.mergeMetadata(KindOrganization, r.Metadata),
	}
	t.organizations[fold(name)] = o
	t.orgOrder = append(t.orgOrder, o)
	t.index[o.ID] = o
	t.generated[o.ID] = r.ID == ""
	t.projectOrganization(o)
	return o, nil
}

// AddGroup registers a group and projects it, creating its organization if
// it does not exist yet.
func (t *Tree) AddGroup(r GroupRecord) (*Group, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is empty", ErrInvalidRecord)
	}
	prev, err := t.existing(r.ID, KindGroup)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		g := prev.(*Group)
		delete(t.groups, fold(g.Name))
		g.Name, g.Organization = name, strings.TrimSpace(r.Organization)
		g.Options, g.Metadata = r.Options, t.mergeMetadata(KindGroup, r.Metadata)
		t.groups[fold(name)] = g
		return g, nil
	}
	if g, ok := t.groups[fold(name)]; ok {
		if err := t.adopt(KindGroup, name, g.ID, r.ID); err != nil {
			return nil, err
		}
		if r.ID != "" {
			g.ID = r.ID
		}
		g.Options, g.Metadata = r.Options, t.mergeMetadata(KindGroup, r.Metadata)
		t.projections[g.ID].Attributes.publish(t.cfg.Metadata.Groups.Publish, g.Metadata)
		return g, nil
	}

	g := &Group{
		ID:           newID(r.ID),
		Name:         name,
		Organization: strings.TrimSpace(r.Organization),
		Options:      r.Options,
		Metadata:     t.mergeMetadata(KindGroup, r.Metadata),
	}
	t.groups[fold(name)] = g
	t.index[g.ID] = g
	t.generated[g.ID] = r.ID == ""
	t.projectGroup(g)
	return g, nil
}

// adopt moves the entity registered under from to the explicit id, keeping
// its projection. Only entities whose id was generated can be re-keyed.
func (t *Tree) adopt(k Kind, name, from, id string) error {
	if id == "" || id == from {
		return nil
	}
	if !t.generated[from] {
		return fmt.Errorf("%w: %s %q is already registered as %s", ErrInvalidRecord, k, name, from)
	}

	t.index[id] = t.index[from]
	delete(t.index, from)
	delete(t.generated, from)
	if p, ok := t.projections[from]; ok {
		p.ID = id
		t.projections[id] = p
		delete(t.projections, from)
	}
	t.mu.Lock()
	t.dirty = true
	t.mu.Unlock()
	return nil
}

// AddUser registers a user and projects it, creating any organization,
// group or (with AddEmailDomains) domain it references.
func (t *Tree) AddUser(r UserRecord) (*User, error) {
	username := strings.TrimSpace(r.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is empty", ErrInvalidRecord)
	}
	prev, err := t.existing(r.ID, KindUser)
	if err != nil {
		return nil, err
	}

	orgs := append([]string(nil), r.Organizations...)
	if r.Organization != "" {
		orgs = append(orgs, r.Organization)
	}
	groups := append([]string(nil), r.Groups...)
	if r.Group != "" {
		groups = append(groups, r.Group)
	}
	email := strings.ToLower(strings.TrimSpace(r.Email))

	if prev != nil {
		u := prev.(*User)
		delete(t.users, u.Username)
		delete(t.emails, u.Email)
		u.Username, u.MFA, u.Name, u.Email = username, r.MFA, r.Name, email
		u.Organizations, u.Groups = orgs, groups
		u.Permissions = r.Permissions.apply(DefaultPermissions())
		u.Attributes, u.Metadata, u.Deleted = r.Attributes, t.mergeMetadata(KindUser, r.Metadata), r.Deleted
		u.SetPassword(r.Password)
		t.indexUser(u)
		return u, nil
	}

	u := &User{
		ID:            newID(r.ID),
		Username:      username,
		MFA:           r.MFA,
		Name:          r.Name,
		Email:         email,
		Organizations: orgs,
		Groups:        groups,
		Permissions:   r.Permissions.apply(DefaultPermissions()),
		Attributes:    r.Attributes,
		Metadata:      t.mergeMetadata(KindUser, r.Metadata),
		Deleted:       r.Deleted,
		password:      r.Password,
	}
	t.indexUser(u)
	t.index[u.ID] = u
	t.projectUser(u)
	return u, nil
}

func (t *Tree) indexUser(u *User) {
	t.users[u.Username] = u
	if u.Email != "" {
		t.emails[u.Email] = u
	}
}

// register indexes p under every DN and bind it declares.
func (t *Tree) register(p *Projection) {
	t.projections[p.ID] = p
	for _, dn := range p.DNs {
		parsed, err := ldap.ParseDN(dn)
		if err != nil {
			parsed = nil
		}
		t.dns[NormalizeDN(dn)] = &Entry{DN: dn, Parsed: parsed, Projection: p}
	}
	for _, b := range p.Binds {
		t.binds[NormalizeDN(b)] = p
	}
	t.mu.Lock()
	t.dirty = true
	t.mu.Unlock()
}

// Domain returns the domain named name.
func (t *Tree) Domain(name string) (*Domain, bool) {
	d, ok := t.domains[fold(name)]
	return d, ok
}

// Organization returns the organization named name.
func (t *Tree) Organization(name string) (*Organization, bool) {
	o, ok := t.organizations[fold(name)]
	return o, ok
}

// Group returns the group named name.
func (t *Tree) Group(name string) (*Group, bool) {
	g, ok := t.groups[fold(name)]
	return g, ok
}

// User returns the user with the given username.
func (t *Tree) User(username string) (*User, bool) {
	u, ok := t.users[username]
	return u, ok
}

// UserByEmail returns the user with the given email, ignoring case.
func (t *Tree) UserByEmail(email string) (*User, bool) {
	u, ok := t.emails[strings.ToLower(strings.TrimSpace(email))]
	return u, ok
}

// UserByID returns the user with the given id.
func (t *Tree) UserByID(id string) (*User, bool) {
	u, ok := t.index[id].(*User)
	return u, ok
}

// Entity returns the entity with the given id.
func (t *Tree) Entity(id string) (Entity, bool) {
	e, ok := t.index[id]
	return e, ok
}

// Projection returns the LDAP projection of the entity with the given id.
func (t *Tree) Projection(id string) (*Projection, bool) {
	p, ok := t.projections[id]
	return p, ok
}

// Lookup resolves dn to the entry registered under it. Matching ignores case
// and whitespace between RDNs.
func (t *Tree) Lookup(dn string) (*Entry, bool) {
	e, ok := t.dns[NormalizeDN(dn)]
	return e, ok
}

// IsBind reports whether dn is a bind point: the parent of some entity DN.
func (t *Tree) IsBind(dn string) bool {
	_, ok := t.binds[NormalizeDN(dn)]
	return ok
}

// Entries returns every (DN, projection) pair in ascending DN order. The
// slice is shared; callers must not modify it.
func (t *Tree) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dirty || t.entries == nil {
		entries := make([]*Entry, 0, len(t.dns))
		for _, e := range t.dns {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].DN < entries[j].DN })
		t.entries = entries
		t.dirty = false
	}
	return t.entries
}

// Users returns all users ordered by username.
func (t *Tree) Users() []*User {
	out := make([]*User, 0, len(t.users))
	for _, u := range t.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Projections returns every projection ordered by preferred DN.
func (t *Tree) Projections() []*Projection {
	out := make([]*Projection, 0, len(t.projections))
	for _, p := range t.projections {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DN == out[j].DN {
			return out[i].ID < out[j].ID
		}
		return out[i].DN < out[j].DN
	})
	return out
}

// Domains returns the domains in the order they were added.
func (t *Tree) Domains() []*Domain {
	return append([]*Domain(nil), t.domainOrder...)
}

// Organizations returns the organizations in the order they were added.
func (t *Tree) Organizations() []*Organization {
	return append([]*Organization(nil), t.orgOrder...)
}
