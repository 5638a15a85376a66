package config

import (
	"net"
	"strings"
)

// cgnat is 100.64.0.0/10, used by carrier NAT as well as WARP and Tailscale.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether this host looks like it sits behind a
// VPN or CGNAT, where direct peer links rarely connect and TURN is needed.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	var list []netInterface
	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		list = append(list, netInterface{name: iface.Name, flags: iface.Flags, addrs: addrs})
	}
	return relayRequired(list)
}

type netInterface struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

func relayRequired(ifaces []netInterface) bool {
	for _, iface := range ifaces {
		if iface.flags&net.FlagUp == 0 || iface.flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.name)
		for _, prefix := range tunnelNames {
			if strings.Contains(name, prefix) {
				return true
			}
		}

		for _, addr := range iface.addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}
