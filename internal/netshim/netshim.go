// Package netshim wires the embedded TCP/IP stack to either Ethernet MAC
// DMA or a PPP-over-UART line, per spec.md §4.7. The host-independent
// pieces — resolving MAC/IP/netmask/gateway from the KV store with the
// documented defaults — live here so they're testable without hardware;
// netshim_tinygo.go does the actual stack bring-up.
//
// Grounded on main.go's DHCP/cywnet bring-up sequence and config.go's
// address-parsing helpers, generalized from a fixed WiFi SSID/password
// pair to KV-store-sourced network configuration per spec.md §6/§4.7.
package netshim

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"openenterprise/artiqrt/internal/config"
	"openenterprise/artiqrt/internal/kvstore"
)

// IPConfig is the resolved network configuration for the Ethernet path.
type IPConfig struct {
	MAC     [6]byte
	IP      [4]byte
	Netmask [4]byte
	Gateway [4]byte
}

// Resolve reads mac/ip/netmask/gateway from store, falling back to the
// documented defaults (spec.md §4.7) for any key that's absent.
func Resolve(store *kvstore.Store) (IPConfig, error) {
	var cfg IPConfig

	mac, err := lookupOrDefault(store, config.KeyMAC, config.DefaultMAC)
	if err != nil {
		return cfg, err
	}
	cfg.MAC, err = parseMAC(mac)
	if err != nil {
		return cfg, fmt.Errorf("netshim: mac: %w", err)
	}

	ip, err := lookupOrDefault(store, config.KeyIP, config.DefaultIP)
	if err != nil {
		return cfg, err
	}
	cfg.IP, err = parseIPv4(ip)
	if err != nil {
		return cfg, fmt.Errorf("netshim: ip: %w", err)
	}

	netmask, err := lookupOrDefault(store, config.KeyNetmask, config.DefaultNetmask)
	if err != nil {
		return cfg, err
	}
	cfg.Netmask, err = parseIPv4(netmask)
	if err != nil {
		return cfg, fmt.Errorf("netshim: netmask: %w", err)
	}

	gateway, err := lookupOrDefault(store, config.KeyGateway, config.DefaultGateway)
	if err != nil {
		return cfg, err
	}
	cfg.Gateway, err = parseIPv4(gateway)
	if err != nil {
		return cfg, fmt.Errorf("netshim: gateway: %w", err)
	}

	return cfg, nil
}

// ResolveWiFi reads the radio association credentials from the KV store,
// grounded on credentials.SSID/Password generalized from compile-time
// go:embed files to KV-store-sourced values per spec.md §4.7's "configured
// from the flash KV store" rule. Absent keys resolve to an empty string
// (open network), since spec.md names no default SSID.
func ResolveWiFi(store *kvstore.Store) (ssid, password string, err error) {
	ssid, err = lookupOrDefault(store, config.KeyWiFiSSID, "")
	if err != nil {
		return "", "", err
	}
	password, err = lookupOrDefault(store, config.KeyWiFiPassword, "")
	if err != nil {
		return "", "", err
	}
	return ssid, password, nil
}

func lookupOrDefault(store *kvstore.Store, key, def string) (string, error) {
	val, err := store.Read(key)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return def, nil
		}
		return "", err
	}
	return string(val), nil
}

// formatMAC is parseMAC's inverse, used for startup diagnostics.
func formatMAC(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

func parseMAC(s string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("malformed mac %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("malformed mac %q", s)
		}
		out[i] = byte(v)
	}
	return out, nil
}

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(s)
	if ip == nil {
		return out, fmt.Errorf("malformed ipv4 %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return out, fmt.Errorf("not an ipv4 address %q", s)
	}
	copy(out[:], v4)
	return out, nil
}
