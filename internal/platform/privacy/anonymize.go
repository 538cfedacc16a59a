// Package privacy masks client identifiers before they reach logs.
package privacy

import (
	"net/netip"
)

// AnonymizeIP truncates ip to its /24 (IPv4) or /48 (IPv6) network, so log
// lines can be correlated by network without naming a host. Empty input
// yields "unknown" and unparseable input "invalid".
func AnonymizeIP(ip string) string {
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
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
