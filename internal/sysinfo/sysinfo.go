// Package sysinfo collects the version and network details logged at startup.
package sysinfo

import (
	"fmt"
	"net"
	"runtime"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

// Version is set at build time with -ldflags "-X .../sysinfo.Version=...".
var Version = "dev"

// VersionInfo describes the running binary.
func VersionInfo() []string {
	lines := []string{
		"Version: " + Version,
		fmt.Sprintf("Go: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		lines = append(lines, "Module: "+bi.Main.Path)
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision", "vcs.time", "vcs.modified":
				lines = append(lines, s.Key+": "+s.Value)
			}
		}
	}
	return lines
}

// Interface is the part of a network interface the dump needs.
type Interface struct {
	Name  string
	Flags net.Flags
	MTU   int
	MAC   string
	Addrs []string
}

// Interfaces lists the host interfaces with their addresses.
func Interfaces() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifs))
	for _, ifc := range ifs {
		it := Interface{Name: ifc.Name, Flags: ifc.Flags, MTU: ifc.MTU, MAC: ifc.HardwareAddr.String()}
		if addrs, err := ifc.Addrs(); err == nil {
			for _, a := range addrs {
				it.Addrs = append(it.Addrs, a.String())
			}
		}
		out = append(out, it)
	}
	return out, nil
}

// NetworkInfo renders ifs, one interface per block. Addresses are listed only
// for interfaces that are up.
func NetworkInfo(ifs []Interface) []string {
	connected := false
	var body []string
	for _, it := range ifs {
		up := it.Flags&net.FlagUp != 0
		state := "down"
		if up {
			state = "up"
		}
		body = append(body, fmt.Sprintf("\t%s is %s [MTU: %d - Physical Address: %s]", it.Name, state, it.MTU, it.MAC))
		if !up {
			continue
		}
		var v4, other []string
		for _, a := range it.Addrs {
			ip, _, err := net.ParseCIDR(a)
			if err != nil {
				continue
			}
			if ip.To4() != nil {
				v4 = append(v4, a)
			} else {
				other = append(other, a)
			}
			if it.Flags&net.FlagLoopback == 0 && ip.IsGlobalUnicast() {
				connected = true
			}
		}
		if len(v4) > 0 {
			body = append(body, "\t\tIPv4 Addresses:\t"+strings.Join(v4, ", "))
		}
		if len(other) > 0 {
			body = append(body, "\t\tOther Addresses:\t"+strings.Join(other, ", "))
		}
	}

	head := "Machine IS NOT connected to a network"
	if connected {
		head = "Machine is connected to a network"
	}
	return append([]string{head, "Network Interfaces Status:"}, body...)
}

// Dump logs the version and network details.
func Dump(log *zap.Logger) {
	log.Info("version_info", zap.Strings("lines", VersionInfo()))
	ifs, err := Interfaces()
	if err != nil {
		log.Warn("network_info_failed", zap.Error(err))
		return
	}
	log.Info("network_info", zap.Strings("lines", NetworkInfo(ifs)))
}
