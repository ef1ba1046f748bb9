package directorytest

import (
	"testing"

	"github.com/marmos91/dapper/pkg/directory"
)

// MFASecret is the TOTP secret enrolled for user "bar" in MFADocument.
const MFASecret = "OQZEUKZPJB5DINCRJBXDS5SRJRMVUVLI"

func boolPtr(b bool) *bool { return &b }

// SimpleDocument is one domain, three organizations, an Admin group owned by
// Dev and user foo (password "password") in QA and Dev.
func SimpleDocument() *directory.Document {
	return &directory.Document{
		Domains: []directory.DomainRecord{{Domain: "dapper.test"}},
		Organizations: []directory.OrganizationRecord{
			{Name: "QA"}, {Name: "Dev"}, {Name: "Product"},
		},
		Groups: []directory.GroupRecord{{Name: "Admin", Organization: "Dev"}},
		Users: []directory.UserRecord{{
			Username:      "foo",
			Password:      "password",
			Name:          "Fooey",
			Email:         "foo@dapper.test",
			Organizations: []string{"QA", "Dev"},
			Groups:        []string{"Admin"},
		}},
	}
}

// PagedDocument extends SimpleDocument with user bar, giving seven entries
// under dc=dapper, dc=test.
func PagedDocument() *directory.Document {
	doc := SimpleDocument()
	doc.Users = append(doc.Users, directory.UserRecord{
		Username:      "bar",
		Password:      "password",
		Name:          "Bar Baz",
		Email:         "bar@dapper.test",
		Organizations: []string{"Product"},
	})
	return doc
}

// MFADocument has an organization VPN requiring MFA and three users:
// foo (password "secure", search disabled), bar (password "secret",
// enrolled with MFASecret, member of VPN) and baz (password "12345",
// locked).
func MFADocument() *directory.Document {
	return &directory.Document{
		Domains: []directory.DomainRecord{{Domain: "dapper.test"}},
		Organizations: []directory.OrganizationRecord{
			{Name: "QA"},
			{Name: "Dev"},
			{Name: "VPN", Options: directory.Options{MFARequired: true}},
		},
		Users: []directory.UserRecord{
			{
				Username:      "foo",
				Password:      "secure",
				Name:          "Fooey",
				Email:         "foo@dapper.test",
				Organizations: []string{"QA"},
				Permissions:   &directory.PermissionsRecord{Search: boolPtr(false)},
			},
			{
				Username:      "bar",
				Password:      "secret",
				MFA:           MFASecret,
				Name:          "Bar Baz",
				Email:         "bar@dapper.test",
				Organizations: []string{"Dev", "VPN"},
				Attributes:    directory.AccountAttributes{MFAEnabled: true},
			},
			{
				Username:      "baz",
				Password:      "12345",
				Name:          "Baz Qux",
				Email:         "baz@dapper.test",
				Organizations: []string{"QA"},
				Attributes:    directory.AccountAttributes{AccountLocked: true},
			},
		},
	}
}

// HashPasswords replaces every user password in doc with hash(password).
func HashPasswords(t testing.TB, doc *directory.Document, hash func(string) (string, error)) *directory.Document {
	t.Helper()
	for i := range doc.Users {
		if doc.Users[i].Password == "" {
			continue
		}
		h, err := hash(doc.Users[i].Password)
		if err != nil {
			t.Fatalf("hash password for %s: %v", doc.Users[i].Username, err)
		}
		doc.Users[i].Password = h
	}
	return doc
}

// NewTree loads doc into a tree built with the default naming configuration.
func NewTree(t testing.TB, doc *directory.Document) *directory.Tree {
	t.Helper()
	tree := directory.NewTree(directory.DefaultConfig())
	if err := tree.Load(doc); err != nil {
		t.Fatalf("load directory: %v", err)
	}
	return tree
}
