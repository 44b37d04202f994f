//go:build tinygo

package netshim

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/examples/cywnet"
	"github.com/soypat/lneto/x/xnet"

	"openenterprise/artiqrt/internal/kvstore"
)

// BringUpEthernet configures the board's WiFi/Ethernet radio and returns the
// resulting stack, or an error if the link never reaches DHCP-bound state.
//
// Grounded on main.go's cywnet.NewConfiguredPicoWithStack/SetupWithDHCP
// sequence, generalized from a fixed SSID/password pair baked into main.go
// to KV-store-sourced association credentials and address hints per
// spec.md §4.7/§6. cywnet's only demonstrated address-assignment path is
// DHCP's RequestedAddr hint: the driver has no exposed call to program a
// netmask or gateway, and the cyw43439 radio's MAC is burned into OTP, not
// software-settable. netmask/gateway are still resolved and logged here so
// an operator can see what the KV store holds, and so a future cywnet
// release that adds static bring-up has a ready call site.
func BringUpEthernet(store *kvstore.Store, ssid, password string, logger *slog.Logger) (*xnet.StackAsync, error) {
	cfg, err := Resolve(store)
	if err != nil {
		return nil, err
	}
	logger.Info("netshim:config",
		slog.String("mac", formatMAC(cfg.MAC)),
		slog.String("ip_hint", netip.AddrFrom4(cfg.IP).String()),
		slog.String("netmask", netip.AddrFrom4(cfg.Netmask).String()),
		slog.String("gateway", netip.AddrFrom4(cfg.Gateway).String()),
	)

	devcfg := cyw43439.DefaultWifiConfig()
	devcfg.Logger = logger

	cystack, err := cywnet.NewConfiguredPicoWithStack(ssid, password, devcfg, cywnet.StackConfig{
		Hostname:    "artiqrt",
		MaxTCPPorts: 3, // session control port + monitor port + telemetry publisher
	})
	if err != nil {
		return nil, err
	}

	go loopForeverStack(cystack, logger)

	addr := netip.AddrFrom4(cfg.IP)
	if _, err := cystack.SetupWithDHCP(cywnet.DHCPConfig{RequestedAddr: addr}); err != nil {
		return nil, err
	}

	return cystack.LnetoStack(), nil
}

// loopForeverStack processes network packets in the background, grounded on
// main.go's identically named goroutine.
func loopForeverStack(stack *cywnet.Stack, logger *slog.Logger) {
	for {
		send, recv, err := stack.RecvAndSend()
		if err != nil {
			logger.Error("netshim:stack-error", slog.String("err", err.Error()))
		}
		if send == 0 && recv == 0 {
			time.Sleep(2 * time.Millisecond)
		}
	}
}
