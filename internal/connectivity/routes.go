package connectivity

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// Routes answers whether an active default-route interface exists.
type Routes interface {
	// DefaultInterface returns the name of an up interface carrying a
	// default route, or "" when there is none.
	DefaultInterface() (string, error)
}

// NetlinkRoutes reads the kernel routing table over rtnetlink.
type NetlinkRoutes struct{}

func (NetlinkRoutes) DefaultInterface() (string, error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return "", fmt.Errorf("list routes: %w", err)
	}
	for _, route := range routes {
		if !isDefaultRoute(route) || route.LinkIndex <= 0 {
			continue
		}
		link, err := netlink.LinkByIndex(route.LinkIndex)
		if err != nil {
			continue
		}
		if linkIsUp(link.Attrs()) {
			return link.Attrs().Name, nil
		}
	}
	return "", nil
}

func isDefaultRoute(route netlink.Route) bool {
	if route.Dst == nil {
		return true
	}
	ones, _ := route.Dst.Mask.Size()
	return ones == 0 && route.Dst.IP.IsUnspecified()
}

// linkIsUp treats OperUnknown as up when the admin flag is set; tunnels and
// some virtual NICs never report OperUp.
func linkIsUp(attrs *netlink.LinkAttrs) bool {
	if attrs == nil {
		return false
	}
	switch attrs.OperState {
	case netlink.OperUp:
		return true
	case netlink.OperUnknown:
		return attrs.Flags&net.FlagUp != 0
	default:
		return false
	}
}
