package directory

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDN(t *testing.T) {
	dns, binds := newStringSet(), newStringSet()

	dn := toDN([]string{"uid=foo", "ou=Users", "", "dc=dapper, dc=test"}, dns, binds)

	assert.Equal(t, "uid=foo, ou=Users, dc=dapper, dc=test", dn)
	assert.Equal(t, []string{"uid=foo, ou=Users, dc=dapper, dc=test"}, dns.items)
	assert.Equal(t, []string{"ou=Users, dc=dapper, dc=test"}, binds.items)
}

func TestToDNSingleSegmentHasNoBind(t *testing.T) {
	dns, binds := newStringSet(), newStringSet()

	assert.Equal(t, "o=QA", toDN([]string{"o=QA"}, dns, binds))
	assert.Empty(t, binds.items)
	assert.Empty(t, toDN([]string{"", ""}, dns, binds))
	assert.Len(t, dns.items, 1)
}

func TestPreferredDN(t *testing.T) {
	tests := []struct {
		name      string
		current   string
		candidate string
		want      string
	}{
		{"empty current", "", "o=QA", "o=QA"},
		{"more components wins", "o=QA", "o=QA, dc=test", "o=QA, dc=test"},
		{"fewer components loses", "o=QA, dc=test", "o=QA", "o=QA, dc=test"},
		{"longer string breaks tie", "o=Dev, dc=test", "o=QA, dc=test", "o=Dev, dc=test"},
		{"candidate wins full tie", "o=AB, dc=x", "o=CD, dc=x", "o=CD, dc=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preferredDN(tt.current, tt.candidate))
		})
	}
}

func TestOptionSet(t *testing.T) {
	assert.Equal(t, []string{"QA", "Dev", ""}, optionSet([]string{"QA", "Dev", "QA"}, true))
	assert.Equal(t, []string{"QA"}, optionSet([]string{"QA"}, false))
	assert.Equal(t, []string{""}, optionSet(nil, true))
}

func TestDomainDN(t *testing.T) {
	assert.Equal(t, "dc=dapper, dc=test", DomainDN("dapper.test"))
	assert.Equal(t, "dc=localhost", DomainDN(" localhost "))
}

func TestNormalizeDN(t *testing.T) {
	assert.Equal(t, "uid=foo,ou=users,dc=dapper,dc=test", NormalizeDN("UID=foo, ou=Users,  DC=dapper,dc=Test"))
	assert.Equal(t, NormalizeDN("o=QA, dc=dapper, dc=test"), NormalizeDN("o=qa,dc=dapper,dc=test"))
	assert.Equal(t, "", NormalizeDN(""))
}

func TestFormatDNRoundTrip(t *testing.T) {
	for _, dn := range []string{
		"uid=foo, ou=Users, o=Dev, dc=dapper, dc=test",
		"email=foo@dapper.test, ou=Users, dc=dapper, dc=test",
		`cn=Smith\, John, ou=Users`,
	} {
		parsed, err := ldap.ParseDN(dn)
		require.NoError(t, err)
		assert.Equal(t, dn, FormatDN(parsed))
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.AddEmailDomains)
	assert.True(t, cfg.ParseEmailToDC)
	assert.True(t, cfg.AllowEmpty)
	assert.Equal(t, "Users", cfg.Users.OU)
	assert.Equal(t, "inetOrgPerson", cfg.Users.Type)
	assert.Equal(t, []string{"cn", "uid", "email"}, cfg.Users.Keys)
	assert.Equal(t, map[string][]string{"login": {"uid", "email"}}, cfg.Users.Multikeys)
	assert.Equal(t, "uid", cfg.Users.PrimaryKey)
	assert.Equal(t, "Groups", cfg.Groups.OU)
	assert.Equal(t, "groupOfNames", cfg.Groups.Type)
	assert.Equal(t, 10000, cfg.Posix.UID)
}

func TestAttributesGetIgnoresCase(t *testing.T) {
	a := Attributes{"displayName": {"Fooey"}}

	v, ok := a.Get("DISPLAYNAME")
	require.True(t, ok)
	assert.Equal(t, []string{"Fooey"}, v)
	assert.Equal(t, "", a.First("missing"))
}

func TestMetadataValue(t *testing.T) {
	md := Metadata{"Title": "Engineer", "tags": []any{"a", 1}, "active": true}

	v, ok := metadataValue(md, "title")
	require.True(t, ok)
	assert.Equal(t, []string{"Engineer"}, v)

	v, _ = metadataValue(md, "tags")
	assert.Equal(t, []string{"a", "1"}, v)

	v, _ = metadataValue(md, "active")
	assert.Equal(t, []string{"TRUE"}, v)

	_, ok = metadataValue(md, "missing")
	assert.False(t, ok)
}

func TestDomainDNEscapesLabels(t *testing.T) {
	assert.Equal(t, `dc=a\+b, dc=test`, DomainDN("a+b.test"))
}

func TestRDNEscapesValue(t *testing.T) {
	assert.Equal(t, `cn=Doe\, John`, rdn("cn", "Doe, John"))
	assert.Equal(t, `o=R\+D`, rdn("o", "R+D"))
	assert.Equal(t, `cn=\#1 \"x\"`, rdn("cn", `#1 "x"`))

	parsed, err := ldap.ParseDN(rdn("cn", "a=b") + ", ou=Groups")
	require.NoError(t, err)
	assert.Equal(t, "a=b", parsed.RDNs[0].Attributes[0].Value)
}

func TestPreferredDNIgnoresEscapedEquals(t *testing.T) {
	assert.Equal(t, "o=QA, dc=test", preferredDN(`cn=a\=b\=c`, "o=QA, dc=test"))
}
