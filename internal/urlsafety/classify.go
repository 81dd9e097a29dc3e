package urlsafety

import "net/netip"

// reservedPrefixes lists IANA special-purpose blocks that are not globally
// routable but are not covered by the netip class predicates.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b:1::/48"),
	netip.MustParsePrefix("100::/64"),
	netip.MustParsePrefix("2001::/23"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("2002::/16"),
	netip.MustParsePrefix("3fff::/20"),
}

// globalUnicastV6 is the only IPv6 block IANA allocates for global unicast.
// Everything outside it, including the IPv4-compatible ::/96 and translated
// ::ffff:0:0/96 forms, is reserved.
var globalUnicastV6 = netip.MustParsePrefix("2000::/3")

// Classify returns the address class that makes ip unsafe to contact, or ""
// when ip is a public unicast address.
func Classify(ip netip.Addr) string {
	if !ip.IsValid() {
		return "invalid"
	}
	ip = ip.Unmap()
	switch {
	case ip.IsUnspecified():
		return "unspecified"
	case ip.IsLoopback():
		return "loopback"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsMulticast():
		return "multicast"
	case ip.IsPrivate():
		return "private"
	}
	if ip.Is6() && !globalUnicastV6.Contains(ip) {
		return "reserved"
	}
	for _, prefix := range reservedPrefixes {
		if prefix.Contains(ip) {
			return "reserved"
		}
	}
	if !ip.IsGlobalUnicast() {
		return "non-global"
	}
	return ""
}

// IsPublic reports whether ip may be contacted.
func IsPublic(ip netip.Addr) bool {
	return Classify(ip) == ""
}
