package ldap

import (
	"fmt"
	"strconv"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"

	"github.com/marmos91/dapper/pkg/directory"
)

// matchFilter evaluates an RFC 4511 Filter against attrs. Attribute names
// and values compare case-insensitively. An error means the filter itself is
// malformed.
func matchFilter(f *ber.Packet, attrs directory.Attributes) (bool, error) {
	if f.ClassType != ber.ClassContext {
		return false, fmt.Errorf("filter class %d", f.ClassType)
	}

	switch f.Tag {
	case goldap.FilterAnd:
		for _, child := range f.Children {
			ok, err := matchFilter(child, attrs)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case goldap.FilterOr:
		for _, child := range f.Children {
			ok, err := matchFilter(child, attrs)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case goldap.FilterNot:
		if len(f.Children) != 1 {
			return false, fmt.Errorf("not filter with %d children", len(f.Children))
		}
		ok, err := matchFilter(f.Children[0], attrs)
		return !ok, err

	case goldap.FilterEqualityMatch, goldap.FilterApproxMatch,
		goldap.FilterGreaterOrEqual, goldap.FilterLessOrEqual:
		name, assertion, err := assertionPair(f)
		if err != nil {
			return false, err
		}
		values, _ := attrs.Get(name)
		for _, v := range values {
			if compareValue(f.Tag, v, assertion) {
				return true, nil
			}
		}
		return false, nil

	case goldap.FilterSubstrings:
		return matchSubstrings(f, attrs)

	case goldap.FilterPresent:
		values, ok := attrs.Get(string(f.Data.Bytes()))
		return ok && len(values) > 0, nil

	case goldap.FilterExtensibleMatch:
		return false, nil
	}
	return false, fmt.Errorf("unknown filter tag %d", f.Tag)
}

func assertionPair(f *ber.Packet) (name, value string, err error) {
	if len(f.Children) != 2 {
		return "", "", fmt.Errorf("%s with %d children", goldap.FilterMap[uint64(f.Tag)], len(f.Children))
	}
	return string(f.Children[0].Data.Bytes()), string(f.Children[1].Data.Bytes()), nil
}

func compareValue(tag ber.Tag, value, assertion string) bool {
	switch tag {
	case goldap.FilterEqualityMatch:
		return strings.EqualFold(value, assertion) || sameDN(value, assertion)
	case goldap.FilterApproxMatch:
		return strings.EqualFold(squash(value), squash(assertion))
	case goldap.FilterGreaterOrEqual:
		return ordering(value, assertion) >= 0
	case goldap.FilterLessOrEqual:
		return ordering(value, assertion) <= 0
	}
	return false
}

// sameDN lets DN-valued attributes such as memberOf match regardless of the
// spacing between RDNs.
func sameDN(value, assertion string) bool {
	if !strings.Contains(value, "=") || !strings.Contains(assertion, "=") {
		return false
	}
	return directory.NormalizeDN(value) == directory.NormalizeDN(assertion)
}

func squash(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// ordering compares integers numerically and everything else by folded
// string.
func ordering(value, assertion string) int {
	a, errA := strconv.ParseInt(value, 10, 64)
	b, errB := strconv.ParseInt(assertion, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(value), strings.ToLower(assertion))
}

func matchSubstrings(f *ber.Packet, attrs directory.Attributes) (bool, error) {
	if len(f.Children) != 2 {
		return false, fmt.Errorf("substrings filter with %d children", len(f.Children))
	}
	values, _ := attrs.Get(string(f.Children[0].Data.Bytes()))

	var initial, final string
	var middle []string
	for _, part := range f.Children[1].Children {
		s := strings.ToLower(string(part.Data.Bytes()))
		switch part.Tag {
		case goldap.FilterSubstringsInitial:
			initial = s
		case goldap.FilterSubstringsAny:
			middle = append(middle, s)
		case goldap.FilterSubstringsFinal:
			final = s
		default:
			return false, fmt.Errorf("unknown substring tag %d", part.Tag)
		}
	}

	for _, v := range values {
		if substringsMatch(strings.ToLower(v), initial, middle, final) {
			return true, nil
		}
	}
	return false, nil
}

func substringsMatch(v, initial string, middle []string, final string) bool {
	if !strings.HasPrefix(v, initial) {
		return false
	}
	v = v[len(initial):]
	for _, part := range middle {
		i := strings.Index(v, part)
		if i < 0 {
			return false
		}
		v = v[i+len(part):]
	}
	return strings.HasSuffix(v, final)
}

// filterString renders f for logs and spans.
func filterString(f *ber.Packet) string {
	s, err := goldap.DecompileFilter(f)
	if err != nil {
		return "<invalid>"
	}
	return s
}
