package directory

import (
	"sort"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// toDN joins the non-empty segments with ", " and records the result in dns.
// The same DN without its leading RDN is recorded in binds.
func toDN(segments []string, dns, binds *stringSet) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return ""
	}

	dn := strings.Join(parts, ", ")
	dns.add(dn)
	if len(parts) > 1 {
		binds.add(strings.Join(parts[1:], ", "))
	}
	return dn
}

// preferredDN chooses between the current preferred DN and a new candidate:
// more components wins, then the longer string, then the candidate.
func preferredDN(current, candidate string) string {
	if current == "" {
		return candidate
	}
	cc, nc := dnDepth(current), dnDepth(candidate)
	switch {
	case cc > nc:
		return current
	case nc > cc:
		return candidate
	case len(current) > len(candidate):
		return current
	}
	return candidate
}

// dnDepth counts the attribute assertions of dn. Escaped "=" in values do
// not count.
func dnDepth(dn string) int {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return strings.Count(dn, "=")
	}
	n := 0
	for _, rdn := range parsed.RDNs {
		n += len(rdn.Attributes)
	}
	return n
}

// DomainDN converts "dapper.test" into "dc=dapper, dc=test".
func DomainDN(domain string) string {
	labels := strings.Split(strings.TrimSpace(domain), ".")
	for i, l := range labels {
		labels[i] = rdn("dc", l)
	}
	return strings.Join(labels, ", ")
}

// rdn renders a single "type=value" assertion with value escaped.
func rdn(typ, value string) string {
	return typ + "=" + escapeDNValue(value)
}

// NormalizeDN returns the lookup key for dn: types and values lower-cased and
// RDNs joined by ",". Unparseable input falls back to a whitespace-collapsed
// lower-case form so it can still be matched literally.
func NormalizeDN(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return strings.ToLower(strings.Join(strings.Fields(dn), " "))
	}
	return strings.ToLower(parsed.String())
}

// FormatDN renders a parsed DN the way the synthesizer writes DNs: attribute
// type and value as given, RDNs separated by ", ".
func FormatDN(dn *ldap.DN) string {
	rdns := make([]string, len(dn.RDNs))
	for i, rdn := range dn.RDNs {
		attrs := make([]string, len(rdn.Attributes))
		for j, a := range rdn.Attributes {
			attrs[j] = a.Type + "=" + escapeDNValue(a.Value)
		}
		rdns[i] = strings.Join(attrs, "+")
	}
	return strings.Join(rdns, ", ")
}

func escapeDNValue(v string) string {
	var b strings.Builder
	for i, r := range v {
		switch {
		case strings.ContainsRune(`,+"\<>;=`, r):
			b.WriteByte('\\')
		case r == '#' && i == 0:
			b.WriteByte('\\')
		case r == ' ' && (i == 0 || i == len(v)-1):
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stringSet is an insertion-ordered set of strings.
type stringSet struct {
	seen  map[string]struct{}
	items []string
}

func newStringSet(values ...string) *stringSet {
	s := &stringSet{seen: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.add(v)
	}
	return s
}

func (s *stringSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *stringSet) sorted() []string {
	out := append([]string(nil), s.items...)
	sort.Strings(out)
	return out
}

// optionSet deduplicates values keeping order and, when allowEmpty is set,
// adds "" as an extra choice.
func optionSet(values []string, allowEmpty bool) []string {
	s := newStringSet(values...)
	if allowEmpty {
		s.add("")
	}
	return s.items
}
