package discovery

import (
	"net"

	"github.com/google/gopacket/layers"
)

// Role is what an interface can be used for.
type Role string

const (
	RoleMonitor  Role = "monitor"  // radiotap link type, ready for the probe engine
	RoleWireless Role = "wireless" // WiFi, not in monitor mode
	RoleGadget   Role = "gadget"   // USB Ethernet gadget, candidate wired link
	RoleEthernet Role = "ethernet"
	RoleOther    Role = "other"
)

// Interface describes one capture-capable device.
type Interface struct {
	Name        string
	Description string
	MAC         net.HardwareAddr
	IPv4        []net.IP
	LinkType    layers.LinkType
	Role        Role
}
