// Package ipaddr validates the address and range notations accepted by the
// whitelist and ban declarations.
package ipaddr

import (
	"net/netip"
	"strconv"
	"strings"
)

// IsIPv4 reports whether s is a dotted quad whose four octets are decimal
// integers in [0,255]. Leading zeros are tolerated ("010" is 10).
func IsIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 || !isDigits(p) {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// IsIPv6 reports whether s is a literal IPv6 address.
func IsIPv6(s string) bool {
	if !strings.Contains(s, ":") {
		return false
	}
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is6()
}

// IsIP accepts IPv4 dotted quads and IPv6 literals.
func IsIP(s string) bool {
	return IsIPv4(s) || IsIPv6(s)
}

// IsCIDR reports whether s is "ip/prefix" with a valid address and a prefix
// within the address family's bit length (32 for IPv4, 128 for IPv6).
func IsCIDR(s string) bool {
	ip, prefix, ok := strings.Cut(s, "/")
	if !ok || prefix == "" || !isDigits(prefix) || len(prefix) > 3 {
		return false
	}
	bits, err := strconv.Atoi(prefix)
	if err != nil {
		return false
	}
	switch {
	case IsIPv4(ip):
		return bits >= 0 && bits <= 32
	case IsIPv6(ip):
		return bits >= 0 && bits <= 128
	}
	return false
}

// IsIPOrCIDR accepts either form.
func IsIPOrCIDR(s string) bool {
	return IsIP(s) || IsCIDR(s)
}

// Normalize trims whitespace around a declared value.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// Contains reports whether the address ip falls inside value, where value is
// either a single address or a CIDR range. Invalid input never matches.
func Contains(value, ip string) bool {
	addr, err := parseAddr(ip)
	if err != nil {
		return false
	}
	if strings.Contains(value, "/") {
		if !IsCIDR(value) {
			return false
		}
		base, bits, _ := strings.Cut(value, "/")
		baseAddr, err := parseAddr(base)
		if err != nil {
			return false
		}
		n, _ := strconv.Atoi(bits)
		prefix, err := baseAddr.Prefix(n)
		if err != nil {
			return false
		}
		return prefix.Contains(addr)
	}
	other, err := parseAddr(value)
	if err != nil {
		return false
	}
	return other == addr
}

// parseAddr parses with the same leniency as IsIPv4 by canonicalizing the
// octets before handing them to netip.
func parseAddr(s string) (netip.Addr, error) {
	if IsIPv4(s) {
		parts := strings.Split(s, ".")
		for i, p := range parts {
			n, _ := strconv.Atoi(p)
			parts[i] = strconv.Itoa(n)
		}
		s = strings.Join(parts, ".")
	}
	return netip.ParseAddr(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
