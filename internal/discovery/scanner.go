// Package discovery surveys the local capture interfaces so the operator can
// pick the radio and the wired link.
package discovery

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ScanConfig controls the survey.
type ScanConfig struct {
	// OpenHandles opens each device briefly to read its link type. It needs
	// capture privileges; without it LinkType is left unset.
	OpenHandles bool
	// SysfsRoot is where interface metadata is read from. Defaults to
	// /sys/class/net.
	SysfsRoot string
}

func applyDefaults(cfg *ScanConfig) ScanConfig {
	if cfg == nil {
		return ScanConfig{SysfsRoot: "/sys/class/net"}
	}
	out := *cfg
	if out.SysfsRoot == "" {
		out.SysfsRoot = "/sys/class/net"
	}
	return out
}

// Scan lists pcap devices with their addresses and a role guess.
func Scan(cfg *ScanConfig) ([]Interface, error) {
	config := applyDefaults(cfg)

	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("could not list devices: %w", err)
	}

	out := make([]Interface, 0, len(devs))
	for _, dev := range devs {
		ifc := fromDevice(dev)
		if nif, err := net.InterfaceByName(dev.Name); err == nil {
			ifc.MAC = nif.HardwareAddr
		}
		if config.OpenHandles {
			ifc.LinkType = linkType(dev.Name)
		}
		ifc.Role = classify(ifc, config.SysfsRoot)
		out = append(out, ifc)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return roleRank(out[i].Role) < roleRank(out[j].Role)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func fromDevice(dev pcap.Interface) Interface {
	ifc := Interface{Name: dev.Name, Description: dev.Description}
	for _, a := range dev.Addresses {
		if ip4 := a.IP.To4(); ip4 != nil {
			ifc.IPv4 = append(ifc.IPv4, ip4)
		}
	}
	return ifc
}

func linkType(name string) layers.LinkType {
	handle, err := pcap.OpenLive(name, 128, false, pcap.BlockForever)
	if err != nil {
		return 0
	}
	defer handle.Close()
	return handle.LinkType()
}

// classify guesses a role from the link type and sysfs metadata.
func classify(ifc Interface, sysfs string) Role {
	if ifc.LinkType == layers.LinkTypeIEEE80211Radio {
		return RoleMonitor
	}
	if exists(filepath.Join(sysfs, ifc.Name, "wireless")) || exists(filepath.Join(sysfs, ifc.Name, "phy80211")) {
		return RoleWireless
	}
	if driver, err := os.Readlink(filepath.Join(sysfs, ifc.Name, "device", "driver")); err == nil {
		switch filepath.Base(driver) {
		case "g_ether", "g_ncm", "cdc_ether", "cdc_ncm", "rndis_host":
			return RoleGadget
		}
	}
	if strings.HasPrefix(ifc.Name, "usb") {
		return RoleGadget
	}
	if len(ifc.MAC) == 6 {
		return RoleEthernet
	}
	return RoleOther
}

func roleRank(r Role) int {
	switch r {
	case RoleMonitor:
		return 0
	case RoleWireless:
		return 1
	case RoleGadget:
		return 2
	case RoleEthernet:
		return 3
	}
	return 4
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
