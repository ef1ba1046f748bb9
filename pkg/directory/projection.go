package directory

import (
	"fmt"
	"sort"
	"strings"
)

// Attributes is an LDAP attribute map. Names keep the case they were
// projected with; lookups ignore case.
type Attributes map[string][]string

// Get returns the values of the attribute called name, ignoring case.
func (a Attributes) Get(name string) ([]string, bool) {
	if v, ok := a[name]; ok {
		return v, true
	}
	for k, v := range a {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// First returns the first value of name, or "".
func (a Attributes) First(name string) string {
	if v, ok := a.Get(name); ok && len(v) > 0 {
		return v[0]
	}
	return ""
}

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (a Attributes) set(name string, values ...string) {
	a[name] = values
}

func (a Attributes) add(name string, values ...string) {
	a[name] = append(a[name], values...)
}

// publish copies the listed metadata keys into the attribute map.
func (a Attributes) publish(keys []string, md Metadata) {
	for _, k := range keys {
		if v, ok := metadataValue(md, k); ok && len(v) > 0 {
			a.set(k, v...)
		}
	}
}

// metadataValue looks k up in md ignoring case and renders it as LDAP values.
func metadataValue(md Metadata, k string) ([]string, bool) {
	v, ok := md[k]
	if !ok {
		for mk, mv := range md {
			if strings.EqualFold(mk, k) {
				v, ok = mv, true
				break
			}
		}
	}
	if !ok || v == nil {
		return nil, false
	}

	switch val := v.(type) {
	case string:
		if val == "" {
			return nil, false
		}
		return []string{val}, true
	case []string:
		return val, true
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			out = append(out, fmt.Sprint(e))
		}
		return out, true
	case bool:
		if val {
			return []string{"TRUE"}, true
		}
		return []string{"FALSE"}, true
	default:
		return []string{fmt.Sprint(val)}, true
	}
}

// Projection is the LDAP view of one entity: every DN it can be addressed by,
// the bind points those DNs imply, and its attributes.
type Projection struct {
	ID         string
	Kind       Kind
	DN         string   // preferred DN
	DNs        []string // sorted
	Binds      []string // sorted
	Attributes Attributes
}
