package transport

import "net"

// AddrEqual reports whether two UDP endpoints refer to the same peer,
// comparing IP addresses through IPEqual so a peer reached over an
// IPv4-mapped IPv6 address matches the same peer reached over plain IPv4.
func AddrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port && a.Zone == b.Zone && IPEqual(a.IP, b.IP)
}

// IPEqual reports whether two IP addresses are equal once both are
// normalized through UnmapV4.
func IPEqual(a, b net.IP) bool {
	return UnmapV4(a).Equal(UnmapV4(b))
}

// UnmapV4 returns ip's 4-byte form when ip is an IPv4-mapped IPv6 address,
// and ip unchanged otherwise. Every path binding is keyed on this
// normalized form so a dual-stack socket never treats ::ffff:10.0.0.1 and
// 10.0.0.1 as distinct paths.
func UnmapV4(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}
