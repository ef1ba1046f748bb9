package ldap

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"
)

var errBadCookie = errors.New("invalid paging cookie")

// pageRequest is a decoded RFC 2696 simple paged results control.
type pageRequest struct {
	size   int
	offset int
}

// decodePaging reads the paging control value. The cookie is the decimal
// offset of the next entry; an empty cookie starts at zero. Sizes above
// 2^31-1 are rejected.
//
// goldap.DecodeControl is not used here because it panics on malformed
// control values.
func decodePaging(c *ber.Packet) (*pageRequest, error) {
	if len(c.Children) < 2 {
		return nil, fmt.Errorf("%w: missing control value", errBadCookie)
	}
	raw := c.Children[len(c.Children)-1]
	if raw.Tag != ber.TagOctetString {
		return nil, fmt.Errorf("%w: control value tag %d", errBadCookie, raw.Tag)
	}

	value, err := ber.DecodePacketErr(raw.Data.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCookie, err)
	}
	if len(value.Children) != 2 {
		return nil, fmt.Errorf("%w: %d value fields", errBadCookie, len(value.Children))
	}
	size, ok := value.Children[0].Value.(int64)
	if !ok || size < 0 || size > math.MaxInt32 {
		return nil, fmt.Errorf("%w: page size", errBadCookie)
	}

	offset, err := parseCookie(value.Children[1].Data.Bytes())
	if err != nil {
		return nil, err
	}
	return &pageRequest{size: int(size), offset: offset}, nil
}

func parseCookie(cookie []byte) (int, error) {
	if len(cookie) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(string(cookie))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", errBadCookie, cookie)
	}
	return n, nil
}

// page slices matched for req and returns the response control. The
// returned cookie is empty once the last entry has been sent.
func page[T any](matched []T, req *pageRequest) ([]T, *goldap.ControlPaging, error) {
	if req.offset > len(matched) {
		return nil, nil, fmt.Errorf("%w: offset %d beyond %d results", errBadCookie, req.offset, len(matched))
	}

	resp := &goldap.ControlPaging{PagingSize: uint32(len(matched))}
	if req.size == 0 {
		return nil, resp, nil
	}

	end := len(matched)
	if req.size < end-req.offset {
		end = req.offset + req.size
	}
	if end < len(matched) {
		resp.Cookie = []byte(strconv.Itoa(end))
	}
	return matched[req.offset:end], resp, nil
}
