package auth

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
)

// Radius forwards the credential check to an upstream RADIUS server as an
// Access-Request and accepts iff the reply is Access-Accept.
type Radius struct {
	cfg RadiusConfig

	once   sync.Once
	client *radius.Client
	nextID atomic.Uint32
}

// NewRadius returns the radius provider. The client is created on first use.
func NewRadius(cfg RadiusConfig) *Radius {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRadiusTimeout
	}
	return &Radius{cfg: cfg}
}

// Name returns "radius".
func (p *Radius) Name() string { return ProviderRadius }

// Authenticate sends the username and the full password, token included,
// upstream.
func (p *Radius) Authenticate(ctx context.Context, req *Request) (*Result, error) {
	if req.User == nil {
		return nil, ErrAuthenticationFailed
	}
	p.once.Do(func() {
		p.client = &radius.Client{Retry: p.cfg.Retry}
	})

	packet := radius.New(radius.CodeAccessRequest, []byte(p.cfg.Secret))
	packet.Identifier = byte(p.nextID.Add(1))
	if err := rfc2865.UserName_SetString(packet, req.User.Username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if err := rfc2865.UserPassword_SetString(packet, req.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if p.cfg.NASIdentifier != "" {
		_ = rfc2865.NASIdentifier_SetString(packet, p.cfg.NASIdentifier)
	}
	if ip := net.ParseIP(p.cfg.NASIPAddress); ip != nil {
		_ = rfc2865.NASIPAddress_Set(packet, ip)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.client.Exchange(ctx, packet, p.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange with %s: %v", ErrUpstream, p.cfg.Address, err)
	}
	if resp.Code != radius.CodeAccessAccept {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamReject, resp.Code)
	}
	return &Result{User: req.User, Provider: ProviderRadius}, nil
}
