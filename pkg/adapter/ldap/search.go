package ldap

import (
	"context"
	"strings"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/internal/telemetry"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/metrics"
)

// noAttributes is the RFC 4511 attribute selector meaning "no attributes".
const noAttributes = "1.1"

type searchRequest struct {
	baseDN     string
	scope      int
	sizeLimit  int
	timeLimit  time.Duration
	typesOnly  bool
	filter     *ber.Packet
	attributes []string
}

func decodeSearch(op *ber.Packet) (*searchRequest, error) {
	if len(op.Children) != 8 {
		return nil, newError(goldap.LDAPResultProtocolError, "malformed search request")
	}
	scope, ok1 := op.Children[1].Value.(int64)
	sizeLimit, ok2 := op.Children[3].Value.(int64)
	timeLimit, ok3 := op.Children[4].Value.(int64)
	typesOnly, ok4 := op.Children[5].Value.(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, newError(goldap.LDAPResultProtocolError, "malformed search request")
	}
	if _, ok := goldap.ScopeMap[int(scope)]; !ok {
		return nil, newError(goldap.LDAPResultProtocolError, "invalid scope %d", scope)
	}

	req := &searchRequest{
		baseDN:    string(op.Children[0].Data.Bytes()),
		scope:     int(scope),
		sizeLimit: int(max(sizeLimit, 0)),
		timeLimit: time.Duration(max(timeLimit, 0)) * time.Second,
		typesOnly: typesOnly,
		filter:    op.Children[6],
	}
	for _, a := range op.Children[7].Children {
		req.attributes = append(req.attributes, string(a.Data.Bytes()))
	}
	return req, nil
}

func (c *connection) handleSearch(ctx context.Context, msg *message) error {
	req, err := decodeSearch(msg.op)

	var attrs []attribute.KeyValue
	if err == nil {
		attrs = append(attrs,
			telemetry.LDAPBaseDN(req.baseDN),
			telemetry.LDAPScope(goldap.ScopeMap[req.scope]),
			telemetry.LDAPFilter(filterString(req.filter)))
	}
	ctx, finish := c.begin(ctx, "search", telemetry.SpanLDAPSearch, msg, attrs...)

	var (
		entries []*directory.Entry
		paging  *goldap.ControlPaging
	)
	if err == nil {
		logger.DebugCtx(ctx, "LDAP search",
			logger.KeyBaseDN, req.baseDN,
			logger.KeyScope, goldap.ScopeMap[req.scope],
			logger.KeyFilter, filterString(req.filter),
			logger.KeySizeLimit, req.sizeLimit)
		entries, paging, err = c.search(ctx, msg, req)
	}

	for _, e := range entries {
		selected := selectAttributes(e.Projection.Attributes, req.attributes)
		if werr := c.write(envelope(msg.id, entryOp(e.DN, selected, req.typesOnly))); werr != nil {
			finish(goldap.LDAPResultOther)
			return werr
		}
	}
	telemetry.SetAttributes(ctx, telemetry.LDAPEntries(len(entries)))
	metrics.RecordSearchEntries(c.server.metrics, len(entries))

	code, matched, diagnostic := resultCode(err)
	finish(code)

	done := resultOp(goldap.ApplicationSearchResultDone, code, matched, diagnostic)
	if paging != nil {
		return c.write(envelope(msg.id, done, paging))
	}
	return c.write(envelope(msg.id, done))
}

// search returns the entries to send, the paging response control when the
// request was paged, and the result error. Entries may be non-empty together
// with a sizeLimitExceeded or timeLimitExceeded error.
func (c *connection) search(ctx context.Context, msg *message, req *searchRequest) ([]*directory.Entry, *goldap.ControlPaging, error) {
	tree := c.server.tree

	user, ok := tree.UserByID(c.boundID)
	if c.boundID == "" || !ok || user.Deleted || !user.Permissions.Search {
		logger.DebugCtx(ctx, "Search not permitted", logger.KeyUserID, c.boundID)
		return nil, nil, newError(goldap.LDAPResultInsufficientAccessRights, "search requires a bound user with search permission")
	}

	if req.baseDN == "" && req.scope == goldap.ScopeBaseObject {
		return c.rootDSE(req)
	}

	baseEntry, isEntry := tree.Lookup(req.baseDN)
	if !isEntry && !tree.IsBind(req.baseDN) {
		return nil, nil, newError(goldap.LDAPResultNoSuchObject, "no such object: %s", req.baseDN)
	}

	var deadline time.Time
	if req.timeLimit > 0 {
		deadline = time.Now().Add(req.timeLimit)
	}

	var (
		matched []*directory.Entry
		limit   error
	)
	if req.scope == goldap.ScopeBaseObject {
		if isEntry {
			ok, err := matchFilter(req.filter, baseEntry.Projection.Attributes)
			if err != nil {
				return nil, nil, newError(goldap.LDAPResultProtocolError, "invalid filter: %v", err)
			}
			if ok {
				matched = append(matched, baseEntry)
			}
		}
	} else {
		base, err := goldap.ParseDN(req.baseDN)
		if err != nil {
			return nil, nil, newError(goldap.LDAPResultInvalidDNSyntax, "invalid base DN: %v", err)
		}

		// Each projection is returned once, under its preferred DN when that
		// is in scope. seen maps projection id to its index in matched, or
		// -1 when the filter rejected it.
		seen := make(map[string]int)
		for _, e := range tree.Entries() {
			if !deadline.IsZero() && time.Now().After(deadline) {
				limit = newError(goldap.LDAPResultTimeLimitExceeded, "time limit exceeded")
				break
			}
			if e.Parsed == nil || !inScope(req.scope, base, e.Parsed) {
				continue
			}
			if i, dup := seen[e.Projection.ID]; dup {
				if i >= 0 && e.DN == e.Projection.DN {
					matched[i] = e
				}
				continue
			}

			ok, err := matchFilter(req.filter, e.Projection.Attributes)
			if err != nil {
				return nil, nil, newError(goldap.LDAPResultProtocolError, "invalid filter: %v", err)
			}
			if !ok {
				seen[e.Projection.ID] = -1
				continue
			}
			seen[e.Projection.ID] = len(matched)
			matched = append(matched, e)
		}
	}

	if ctrl := msg.findControl(goldap.ControlTypePaging); ctrl != nil {
		pr, err := decodePaging(ctrl)
		if err != nil {
			return nil, nil, newError(goldap.LDAPResultUnwillingToPerform, "%v", err)
		}
		entries, resp, err := page(matched, pr)
		if err != nil {
			return nil, nil, newError(goldap.LDAPResultUnwillingToPerform, "%v", err)
		}
		logger.DebugCtx(ctx, "Paged search", logger.KeyPageSize, pr.size, "offset", pr.offset, logger.KeyEntries, len(entries))
		return entries, resp, limit
	}

	if req.sizeLimit > 0 && len(matched) > req.sizeLimit {
		return matched[:req.sizeLimit], nil, newError(goldap.LDAPResultSizeLimitExceeded, "size limit exceeded")
	}
	return matched, nil, limit
}

// inScope reports whether dn lies within scope of base.
func inScope(scope int, base, dn *goldap.DN) bool {
	switch scope {
	case goldap.ScopeBaseObject:
		return base.EqualFold(dn)
	case goldap.ScopeSingleLevel:
		return len(dn.RDNs) == len(base.RDNs)+1 && base.AncestorOfFold(dn)
	default:
		return base.EqualFold(dn) || base.AncestorOfFold(dn)
	}
}

// selectAttributes applies the requested attribute list: empty or "*" is
// everything, "1.1" alone is nothing, otherwise names match ignoring case.
// Attributes without values are never returned.
func selectAttributes(attrs directory.Attributes, requested []string) []partialAttribute {
	all := len(requested) == 0
	want := make(map[string]bool, len(requested))
	for _, r := range requested {
		switch r {
		case "*":
			all = true
		case noAttributes, "+":
		default:
			want[strings.ToLower(r)] = true
		}
	}
	if !all && len(want) == 0 {
		return nil
	}

	var out []partialAttribute
	for _, name := range attrs.Names() {
		values := attrs[name]
		if len(values) == 0 {
			continue
		}
		if all || want[strings.ToLower(name)] {
			out = append(out, partialAttribute{name: name, values: values})
		}
	}
	return out
}

// rootDSE answers the base search for the empty DN with the naming contexts
// and the supported protocol features.
func (c *connection) rootDSE(req *searchRequest) ([]*directory.Entry, *goldap.ControlPaging, error) {
	var contexts []string
	for _, d := range c.server.tree.Domains() {
		contexts = append(contexts, directory.DomainDN(d.Domain))
	}
	p := &directory.Projection{
		ID: "",
		Attributes: directory.Attributes{
			"objectClass":          {"top"},
			"namingContexts":       contexts,
			"supportedLDAPVersion": {"3"},
			"supportedControl":     {goldap.ControlTypePaging},
			"vendorName":           {"dapper"},
		},
	}
	ok, err := matchFilter(req.filter, p.Attributes)
	if err != nil {
		return nil, nil, newError(goldap.LDAPResultProtocolError, "invalid filter: %v", err)
	}
	if !ok {
		return nil, nil, nil
	}
	return []*directory.Entry{{DN: "", Projection: p}}, nil, nil
}
