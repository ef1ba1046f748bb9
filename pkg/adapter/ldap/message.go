package ldap

import (
	"errors"
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"
)

// errMalformed is returned for a frame that is valid BER but not an
// LDAPMessage. The connection is closed.
var errMalformed = errors.New("malformed LDAP message")

// message is one decoded LDAPMessage.
type message struct {
	id       int64
	op       *ber.Packet
	controls []*ber.Packet
}

// tag returns the application tag of the protocol operation.
func (m *message) tag() uint8 { return uint8(m.op.Tag) }

func decodeMessage(p *ber.Packet) (*message, error) {
	if p.ClassType != ber.ClassUniversal || p.Tag != ber.TagSequence || len(p.Children) < 2 {
		return nil, errMalformed
	}
	id, ok := p.Children[0].Value.(int64)
	if !ok || p.Children[0].Tag != ber.TagInteger {
		return nil, fmt.Errorf("%w: message id", errMalformed)
	}
	op := p.Children[1]
	if op.ClassType != ber.ClassApplication {
		return nil, fmt.Errorf("%w: protocol op class %d", errMalformed, op.ClassType)
	}

	m := &message{id: id, op: op}
	if len(p.Children) > 2 {
		c := p.Children[2]
		if c.ClassType == ber.ClassContext && c.Tag == 0 {
			m.controls = c.Children
		}
	}
	return m, nil
}

// controlType returns the OID of an encoded Control, or "".
func controlType(c *ber.Packet) string {
	if len(c.Children) == 0 {
		return ""
	}
	return string(c.Children[0].Data.Bytes())
}

// findControl returns the first request control with the given OID.
func (m *message) findControl(oid string) *ber.Packet {
	for _, c := range m.controls {
		if controlType(c) == oid {
			return c
		}
	}
	return nil
}

// envelope wraps a protocol operation into an LDAPMessage.
func envelope(id int64, op *ber.Packet, controls ...goldap.Control) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAP Response")
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, id, "MessageID"))
	p.AppendChild(op)
	if len(controls) > 0 {
		cp := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "Controls")
		for _, c := range controls {
			cp.AppendChild(c.Encode())
		}
		p.AppendChild(cp)
	}
	return p
}

// resultOp encodes an LDAPResult under the given response tag.
func resultOp(tag uint8, code uint16, matchedDN, diagnostic string) *ber.Packet {
	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(tag), nil, goldap.ApplicationMap[tag])
	op.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(code), "resultCode"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, matchedDN, "matchedDN"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, diagnostic, "diagnosticMessage"))
	return op
}

// partialAttribute is one attribute of a search result entry.
type partialAttribute struct {
	name   string
	values []string
}

func entryOp(dn string, attrs []partialAttribute, typesOnly bool) *ber.Packet {
	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, goldap.ApplicationSearchResultEntry, nil, "Search Result Entry")
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, dn, "objectName"))

	list := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "attributes")
	for _, a := range attrs {
		pa := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "PartialAttribute")
		pa.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, a.name, "type"))
		vals := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "vals")
		if !typesOnly {
			for _, v := range a.values {
				vals.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, v, "value"))
			}
		}
		pa.AppendChild(vals)
		list.AppendChild(pa)
	}
	op.AppendChild(list)
	return op
}

// responseTag maps a request tag to the tag its result is sent under.
// Requests without a response map to false.
func responseTag(request uint8) (uint8, bool) {
	switch request {
	case goldap.ApplicationBindRequest:
		return goldap.ApplicationBindResponse, true
	case goldap.ApplicationSearchRequest:
		return goldap.ApplicationSearchResultDone, true
	case goldap.ApplicationModifyRequest:
		return goldap.ApplicationModifyResponse, true
	case goldap.ApplicationAddRequest:
		return goldap.ApplicationAddResponse, true
	case goldap.ApplicationDelRequest:
		return goldap.ApplicationDelResponse, true
	case goldap.ApplicationModifyDNRequest:
		return goldap.ApplicationModifyDNResponse, true
	case goldap.ApplicationCompareRequest:
		return goldap.ApplicationCompareResponse, true
	case goldap.ApplicationExtendedRequest:
		return goldap.ApplicationExtendedResponse, true
	}
	return 0, false
}

// resultCode extracts the LDAP result code from a handler error. nil is
// success, a *goldap.Error carries its own code, anything else is an
// operations error.
func resultCode(err error) (code uint16, matchedDN, diagnostic string) {
	if err == nil {
		return goldap.LDAPResultSuccess, "", ""
	}
	var lerr *goldap.Error
	if errors.As(err, &lerr) {
		if lerr.Err != nil {
			diagnostic = lerr.Err.Error()
		}
		return lerr.ResultCode, lerr.MatchedDN, diagnostic
	}
	return goldap.LDAPResultOperationsError, "", err.Error()
}

// resultName returns a stable label for a result code.
func resultName(code uint16) string {
	if name, ok := goldap.LDAPResultCodeMap[code]; ok {
		return name
	}
	return fmt.Sprintf("code %d", code)
}

// newError returns a handler error for code with a diagnostic message.
func newError(code uint16, format string, args ...any) error {
	return goldap.NewError(code, fmt.Errorf(format, args...))
}
