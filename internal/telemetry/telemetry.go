// Package telemetry periodically publishes bridge/session health counters
// to an MQTT broker, gated by the KV store's telemetry.enable key so it
// never fires on a device whose operator didn't configure a broker
// (spec.md's own Non-goal of "no multi-tenant" stays intact: this package
// only publishes, it never subscribes to control).
//
// Grounded on mqtt.go's connect/publish dance, trimmed to the publish-only
// half since this has no request/response topic to subscribe to. The
// publish transport itself (telemetry_tinygo.go) needs the real network
// stack and is build-tagged the same way mqtt.go is; the gating logic here
// has no hardware dependency and is host-testable.
package telemetry

import (
	"net/netip"
	"time"

	"openenterprise/artiqrt/internal/config"
	"openenterprise/artiqrt/internal/kvstore"
)

// Counters is the snapshot telemetry publishes each cycle.
type Counters struct {
	UnderflowCount  uint32
	FaultCount      uint32
	CompactionCount uint32
	KernelRunCount  uint32
	LastNowSave     uint64
	Uptime          time.Duration
}

// Source supplies a fresh Counters snapshot on demand.
type Source func() Counters

// Enabled reports whether store's telemetry.enable key is set to "1".
func Enabled(store *kvstore.Store) bool {
	val, err := store.Read(config.KeyTelemetryEnable)
	if err != nil {
		return false
	}
	return string(val) == "1"
}

// BrokerAddr reads the configured broker address from the KV store.
func BrokerAddr(store *kvstore.Store) (netip.AddrPort, error) {
	val, err := store.Read(config.KeyTelemetryBroker)
	if err != nil {
		return netip.AddrPort{}, err
	}
	addr, err := netip.ParseAddrPort(string(val))
	if err != nil {
		return netip.AddrPort{}, err
	}
	return addr, nil
}
