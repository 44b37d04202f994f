//go:build !tinygo

package main

// This file keeps the root package buildable under the regular Go
// toolchain (go vet, go test, staticcheck). main.go and testmode.go are
// TinyGo-only: they reach for machine-specific peripherals (machine.LED,
// flash regions, UART) with no workstation equivalent. Nothing in this
// package is imported elsewhere, so no stand-in types or functions are
// needed here, unlike bindicator_stub.go's BinType/BinJob.
