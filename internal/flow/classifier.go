package flow

import (
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/flowstat/internal/core"
)

// Classifier decides whether an address is on the local side of the
// capture point. TCP flows are only opened by local initiators.
type Classifier interface {
	IsLocal(addr netip.Addr) bool
	String() string
}

// AnyAddress treats every address as local.
type AnyAddress struct{}

func (AnyAddress) IsLocal(netip.Addr) bool { return true }
func (AnyAddress) String() string          { return "any" }

// SubnetClassifier accepts addresses inside one IPv4 network.
type SubnetClassifier struct {
	Prefix netip.Prefix
}

// NewSubnetClassifier parses a CIDR such as "10.1.2.3/16". Host bits are
// cleared, so the example above matches 10.1.0.0/16.
func NewSubnetClassifier(cidr string) (*SubnetClassifier, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return nil, fmt.Errorf("%w: subnet %q: %v", core.ErrConfigInvalid, cidr, err)
	}
	if !p.Addr().Is4() {
		return nil, fmt.Errorf("%w: subnet %q is not IPv4", core.ErrConfigInvalid, cidr)
	}
	return &SubnetClassifier{Prefix: p.Masked()}, nil
}

func (c *SubnetClassifier) IsLocal(addr netip.Addr) bool {
	return c.Prefix.Contains(addr)
}

func (c *SubnetClassifier) String() string { return c.Prefix.String() }

var privateNetworks = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// PrivateClassifier accepts RFC 1918 addresses.
type PrivateClassifier struct{}

func (PrivateClassifier) IsLocal(addr netip.Addr) bool {
	for _, p := range privateNetworks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (PrivateClassifier) String() string { return "private" }

// ParseClassifier maps a configuration value to a classifier:
// "" or "any", "private", or an IPv4 CIDR.
func ParseClassifier(expr string) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case "", "any":
		return AnyAddress{}, nil
	case "private":
		return PrivateClassifier{}, nil
	default:
		return NewSubnetClassifier(expr)
	}
}
