package utils

import (
	"fmt"
	"net/netip"
)

// PoolAddresses expands an IPv4 CIDR into the list of assignable host
// addresses, in order.  The network address, the first host (reserved
// for the VPN gateway) and the broadcast address are excluded, so a
// /24 yields 253 assignable addresses starting at .2.
func PoolAddresses(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse pool cidr %q: %w", cidr, err)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("pool cidr %q: only IPv4 pools are supported", cidr)
	}
	if prefix.Bits() > 30 {
		return nil, fmt.Errorf("pool cidr %q: prefix too small to hold assignable hosts", cidr)
	}

	prefix = prefix.Masked()
	total := 1 << (32 - prefix.Bits())

	addrs := make([]string, 0, total-3)
	addr := prefix.Addr().Next() // skip network address
	addr = addr.Next()           // skip gateway (.1)
	for i := 2; i < total-1; i++ { // stop before broadcast
		addrs = append(addrs, addr.String())
		addr = addr.Next()
	}
	return addrs, nil
}
