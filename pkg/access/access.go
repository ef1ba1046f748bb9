// Package access implements the network gate in front of every listener:
// CIDR allow and deny lists evaluated in a configured order, plus an
// optional per-source token bucket.
package access

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Supported evaluation orders, after normalization.
const (
	OrderAllowDeny = "allow,deny"
	OrderDenyAllow = "deny,allow"
)

// ErrInvalidCIDR is returned by New for an unparseable allow or deny entry.
var ErrInvalidCIDR = errors.New("invalid CIDR")

// Config describes one listener's access policy.
type Config struct {
	// Order is "allow, deny" or "deny, allow". Spacing and case are ignored.
	Order string   `mapstructure:"order" yaml:"order" json:"order"`
	Allow []string `mapstructure:"allow" yaml:"allow" json:"allow"`
	Deny  []string `mapstructure:"deny" yaml:"deny" json:"deny"`

	// RateLimit is the sustained number of requests per second accepted from
	// one source IP. Zero disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit,omitempty" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" yaml:"burst" json:"burst,omitempty" validate:"gte=0"`
}

// DefaultConfig allows every IPv4 source, denying nothing.
func DefaultConfig() Config {
	return Config{
		Order: "deny, allow",
		Allow: []string{"0.0.0.0/0"},
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Control evaluates Config against source addresses. It is safe for
// concurrent use.
type Control struct {
	order string
	allow []netip.Prefix
	deny  []netip.Prefix

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[netip.Addr]*limiterEntry
	sweptAt  time.Time
}

// New compiles cfg. Any malformed CIDR is an error.
func New(cfg Config) (*Control, error) {
	allow, err := parsePrefixes(cfg.Allow)
	if err != nil {
		return nil, fmt.Errorf("allow: %w", err)
	}
	deny, err := parsePrefixes(cfg.Deny)
	if err != nil {
		return nil, fmt.Errorf("deny: %w", err)
	}

	c := &Control{
		order: NormalizeOrder(cfg.Order),
		allow: allow,
		deny:  deny,
	}
	if cfg.RateLimit > 0 {
		c.limit = rate.Limit(cfg.RateLimit)
		c.burst = cfg.Burst
		if c.burst <= 0 {
			c.burst = max(1, int(cfg.RateLimit))
		}
		c.limiters = make(map[netip.Addr]*limiterEntry)
	}
	return c, nil
}

// NormalizeOrder strips whitespace and lower-cases order.
func NormalizeOrder(order string) string {
	return strings.ToLower(strings.Join(strings.Fields(order), ""))
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			addr, err := netip.ParseAddr(e)
			if err != nil {
				return nil, fmt.Errorf("%w %q: %v", ErrInvalidCIDR, e, err)
			}
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(e)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidCIDR, e, err)
		}
		if p.Addr().Is4In6() && p.Bits() >= 96 {
			p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

func matches(prefixes []netip.Prefix, ip netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// Allowed evaluates the allow and deny lists only.
func (c *Control) Allowed(ip netip.Addr) bool {
	ip = ip.Unmap()
	allowed, denied := matches(c.allow, ip), matches(c.deny, ip)

	switch c.order {
	case OrderAllowDeny:
		return allowed && !denied
	case OrderDenyAllow:
		return !denied || allowed
	}
	return false
}

// Check reports whether ip may proceed: it must pass the lists and, when rate
// limiting is on, have a token available.
func (c *Control) Check(ip netip.Addr) bool {
	if !c.Allowed(ip) {
		return false
	}
	if c.limiters == nil {
		return true
	}
	return c.limiterFor(ip.Unmap()).Allow()
}

// CheckIP is Check for a net.IP. An invalid IP is rejected.
func (c *Control) CheckIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return false
	}
	return c.Check(addr)
}

// CheckAddr extracts the IP from a TCP, UDP or host:port address and checks it.
func (c *Control) CheckAddr(addr net.Addr) bool {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return c.CheckIP(a.IP)
	case *net.UDPAddr:
		return c.CheckIP(a.IP)
	case nil:
		return false
	}
	return c.CheckString(addr.String())
}

// CheckString checks a textual IP or host:port.
func (c *Control) CheckString(s string) bool {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return c.Check(ap.Addr())
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return c.Check(ip)
}

const limiterIdle = 10 * time.Minute

func (c *Control) limiterFor(ip netip.Addr) *rate.Limiter {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.sweptAt) > limiterIdle {
		for k, e := range c.limiters {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(c.limiters, k)
			}
		}
		c.sweptAt = now
	}

	e, ok := c.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}
