package scanning

import (
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// ExpandTargets turns a target specification into the hosts to probe.
//
// The specification is a comma-separated list of IPv4 CIDR networks, IP
// addresses and hostnames. Tokens keep their input order. A CIDR expands to
// its usable host addresses in ascending order, excluding the network and
// broadcast addresses (a /31 yields both addresses, a /32 the single one).
// Anything that is not a valid IPv4 CIDR is passed through unchanged and is
// resolved, if at all, when probed.
func ExpandTargets(spec string) []string {
	var hosts []string
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if strings.Contains(token, "/") {
			if expanded, ok := expandCIDR(token); ok {
				hosts = append(hosts, expanded...)
				continue
			}
		}
		hosts = append(hosts, token)
	}
	return hosts
}

// CountTargets returns len(ExpandTargets(spec)) without allocating the hosts.
func CountTargets(spec string) int {
	count := 0
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if strings.Contains(token, "/") {
			if prefix, ok := parseCIDR(token); ok {
				count += hostCount(prefix)
				continue
			}
		}
		count++
	}
	return count
}

func parseCIDR(token string) (netip.Prefix, bool) {
	prefix, err := netip.ParsePrefix(token)
	if err != nil || !prefix.Addr().Is4() {
		return netip.Prefix{}, false
	}
	return prefix.Masked(), true
}

func hostCount(prefix netip.Prefix) int {
	switch prefix.Bits() {
	case 32:
		return 1
	case 31:
		return 2
	}
	return (1 << (32 - prefix.Bits())) - 2
}

func expandCIDR(token string) ([]string, bool) {
	prefix, ok := parseCIDR(token)
	if !ok {
		return nil, false
	}

	first := prefix.Addr()
	last := netipx.PrefixLastIP(prefix)

	switch prefix.Bits() {
	case 32:
		return []string{first.String()}, true
	case 31:
		return []string{first.String(), last.String()}, true
	}

	hosts := make([]string, 0, hostCount(prefix))
	for addr := first.Next(); addr.Less(last); addr = addr.Next() {
		hosts = append(hosts, addr.String())
	}
	return hosts, true
}
