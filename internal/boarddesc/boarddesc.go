// Package boarddesc replaces the CSR_*-style conditional compilation flags
// (CSR_ETHMAC_BASE, CSR_SPIFLASH_BASE, ...) with a runtime capability set
// loaded from an operator-authored YAML descriptor, per spec.md Design
// Notes §9 ("a reimplementation should treat board variants as a runtime
// capability set discovered from a descriptor produced by gateware").
//
// Grounded on config/config.go's go:embed default-plus-override pattern,
// adapted from a single flat settings struct to a board descriptor parsed
// with gopkg.in/yaml.v3, since this is operator-authored configuration
// rather than the teacher's compact key=value override format.
package boarddesc

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Descriptor captures which hardware features this board variant exposes,
// standing in for the gateware's CSR memory map.
type Descriptor struct {
	Name string `yaml:"name"`

	HasEthernet       bool `yaml:"has_ethernet"`
	HasSerialPPP      bool `yaml:"has_serial_ppp"`
	HasSPIFlash       bool `yaml:"has_spi_flash"`
	HasHardwareDDSSPI bool `yaml:"has_hardware_dds_spi"`

	EthMAC [6]byte `yaml:"-"`
	// MACString is the YAML-facing form of EthMAC ("xx:xx:xx:xx:xx:xx");
	// Load parses it into EthMAC after unmarshalling.
	MACString string `yaml:"mac"`

	ControlPort uint16 `yaml:"control_port"`
	MonitorPort uint16 `yaml:"monitor_port"`
	OTAPort     uint16 `yaml:"ota_port"`

	DDSChannelCount int `yaml:"dds_channel_count"`

	// IdentifierFrequencyHz is the board clock rate used for timer
	// calibration, the CSR `identifier_frequency` register's value.
	IdentifierFrequencyHz uint32 `yaml:"identifier_frequency_hz"`

	// DDSCSRBase/DDSCSRStride locate the memory-mapped DDS/RTIO register
	// window when HasHardwareDDSSPI is true; zero means "not present,"
	// per spec.md §6's "any missing CSR disables the corresponding
	// feature at compile time."
	DDSCSRBase   uintptr `yaml:"dds_csr_base"`
	DDSCSRStride uintptr `yaml:"dds_csr_stride"`

	// PIOStateMachine/PIOClkDiv configure the bit-banged DDS SPI path used
	// when HasHardwareDDSSPI is false.
	PIOStateMachine uint8  `yaml:"pio_state_machine"`
	PIOClkDiv       uint32 `yaml:"pio_clk_div"`

	// SoftCoreRegsBase is the memory-mapped control window for the OR1K
	// soft core gateware exposes for kernel execution; zero means this
	// board variant has no configured execution backend and kernel runs
	// fail fast via kloader.NullInterpreter.
	SoftCoreRegsBase uintptr `yaml:"soft_core_regs_base"`
}

// Default returns the descriptor for the reference board variant, used
// when no descriptor file is present (e.g. first boot on blank flash).
func Default() Descriptor {
	return Descriptor{
		Name:                  "artiq-rt-ref",
		HasEthernet:           true,
		HasSerialPPP:          true,
		HasSPIFlash:           true,
		HasHardwareDDSSPI:     false, // bit-banged over PIO until a descriptor names a real CSR window
		MACString:             "10:e2:d5:32:50:00",
		EthMAC:                [6]byte{0x10, 0xe2, 0xd5, 0x32, 0x50, 0x00},
		ControlPort:           1381,
		MonitorPort:           1382,
		OTAPort:               1383,
		DDSChannelCount:       8,
		PIOStateMachine:       0,
		PIOClkDiv:             1 << 16, // 16.16 fixed-point 1.0: no division
		IdentifierFrequencyHz: 125_000_000,
	}
}

// Load parses a YAML descriptor, filling in defaults for any zero field
// relevant to network bring-up (port numbers, MAC) so a partially-specified
// descriptor still boots.
func Load(data []byte) (Descriptor, error) {
	d := Default()
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("boarddesc: parse: %w", err)
	}
	mac, err := parseMAC(d.MACString)
	if err != nil {
		return Descriptor{}, fmt.Errorf("boarddesc: mac: %w", err)
	}
	d.EthMAC = mac
	if d.ControlPort == 0 {
		d.ControlPort = Default().ControlPort
	}
	if d.MonitorPort == 0 {
		d.MonitorPort = Default().MonitorPort
	}
	if d.OTAPort == 0 {
		d.OTAPort = Default().OTAPort
	}
	return d, nil
}

func parseMAC(s string) ([6]byte, error) {
	var out [6]byte
	if s == "" {
		return Default().EthMAC, nil
	}
	var parsed [6]int
	n, err := fmt.Sscanf(s, "%x:%x:%x:%x:%x:%x",
		&parsed[0], &parsed[1], &parsed[2], &parsed[3], &parsed[4], &parsed[5])
	if err != nil || n != 6 {
		return out, fmt.Errorf("malformed mac %q", s)
	}
	for i, v := range parsed {
		if v < 0 || v > 0xFF {
			return out, fmt.Errorf("malformed mac %q", s)
		}
		out[i] = byte(v)
	}
	return out, nil
}
