// Package config holds build-time defaults the way the teacher's
// config.go holds broker/collector address constants: plain Go constants,
// not a file format, for values that never vary per-deployment the way
// board capability does (that lives in internal/boarddesc instead).
package config

// Protocol framing, per spec.md §4.6/§6: magic:u8 | type:u8 | len:u32_be | payload.
const (
	FrameMagicControl = 0x5a
	FrameMagicKernel  = 0x5b

	FrameHeaderLen = 1 + 1 + 4
)

// KV keys recognized directly by the runtime, per spec.md §6.
const (
	KeyMAC     = "mac"
	KeyIP      = "ip"
	KeyNetmask = "netmask"
	KeyGateway = "gateway"

	// KeyTelemetryEnable gates the fleet telemetry publisher (spec.md §7
	// supplement): absent or any value other than "1" means disabled.
	KeyTelemetryEnable = "telemetry.enable"
	KeyTelemetryBroker = "telemetry.broker"

	// KeyWiFiSSID/KeyWiFiPassword hold the association credentials for the
	// cyw43439 radio standing in for Ethernet MAC DMA (SPEC_FULL.md §4
	// domain stack note). Grounded on credentials.SSID/Password, moved
	// from compile-time go:embed files to the KV store so the same
	// override-over-default mechanism covers wireless association as it
	// does MAC/IP addressing.
	KeyWiFiSSID     = "wifi.ssid"
	KeyWiFiPassword = "wifi.password"
)

// Default network configuration, per spec.md §4.7.
const (
	DefaultMAC      = "10:e2:d5:32:50:00"
	DefaultIP       = "192.168.0.42"
	DefaultNetmask  = "255.255.255.0"
	DefaultGateway  = "192.168.0.1"
)

// IdentBanner is the substring every IDENT reply must contain, per spec.md
// §8 scenario S2.
const IdentBanner = "ARTIQ runtime built"

// KV region sizing: the flash KV store reserves this many bytes from the
// tail of the flash device, split into two halves.
const KVRegionSize = 64 * 1024

// Test-mode boot banner blink timing, per spec.md §4.8.
const (
	BootBlinkCount    = 3
	BootBlinkOnMS     = 100
	BootBlinkOffMS    = 100
)

// RTIO safety margin applied by brg_start, per spec.md §4.4: the cursor is
// set this many coarse cycles ahead of the current fabric time so the
// first scheduled event can never race hardware startup.
const RTIOStartupCycleMargin = 8000

// MaxSupportBlobSize is the AMP support blob size ceiling, per spec.md §4.5.
const MaxSupportBlobSize = 32 * 1024
