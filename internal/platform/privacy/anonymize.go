// Package privacy masks request metadata before it reaches logs. Student and
// parent devices connect from home networks, so full addresses never leave
// the request context.
package privacy

import (
	"net/netip"
)

// MaskIP keeps the network part of an address: /24 for IPv4 (including
// IPv4-mapped IPv6) and /48 for IPv6. Empty input yields "unknown" and
// anything unparsable yields "invalid".
func MaskIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
