//go:build tinygo

package main

import (
	"machine"
	"strconv"
	"strings"
	"time"

	"openenterprise/artiqrt/internal/boarddesc"
	"openenterprise/artiqrt/internal/config"
	"openenterprise/artiqrt/internal/flash"
	"openenterprise/artiqrt/internal/kvstore"
	"openenterprise/artiqrt/internal/logring"
	"openenterprise/artiqrt/internal/rtio"
)

// runTestMode serves a line-oriented serial REPL that exercises the bridge,
// KV store, and DDS directly, per spec.md §4.8's boot-time test mode.
// Grounded on console.go's handleConsoleSession command loop, generalized
// from a telnet session with auth/IAC handling to a serial-only session
// with neither, since test mode runs before the network stack comes up.
func runTestMode(ring *logring.Ring) {
	desc := boarddesc.Default()
	dev := &flash.ROMDevice{Base: flashRegionBase, Len: config.KVRegionSize}
	store, err := kvstore.Open(dev)
	if err != nil {
		writeLine("kvstore open failed: " + err.Error())
		return
	}

	bridge := buildBridge(desc)
	bridge.Start(0, 0)

	writeLine("ARTIQ runtime built - test mode")
	writeLine("commands: status | dds <ch> <addr> <data> | kv-read <key> | kv-write <key> <value> | kv-erase | exit")
	prompt()

	var line []byte
	for {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		switch b {
		case '\r', '\n':
			if len(line) == 0 {
				continue
			}
			cmd := string(line)
			line = line[:0]
			writeLine("")
			if cmd == "exit" {
				return
			}
			dispatchTestModeCommand(cmd, store, bridge, desc)
			prompt()
		case 0x7f, 0x08: // backspace
			if len(line) > 0 {
				line = line[:len(line)-1]
			}
		default:
			if len(line) < 256 {
				line = append(line, b)
			}
		}
	}
}

func dispatchTestModeCommand(cmd string, store *kvstore.Store, bridge *rtio.Bridge, desc boarddesc.Descriptor) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "status":
		writeLine("cursor=" + strconv.FormatUint(uint64(bridge.Cursor()), 10))

	case "dds":
		if len(fields) != 4 {
			writeLine("usage: dds <channel> <addr> <data>")
			return
		}
		ch, err1 := strconv.Atoi(fields[1])
		addr, err2 := strconv.ParseUint(fields[2], 0, 8)
		data, err3 := strconv.ParseUint(fields[3], 0, 32)
		if err1 != nil || err2 != nil || err3 != nil {
			writeLine("malformed arguments")
			return
		}
		if ch < 0 || ch >= desc.DDSChannelCount {
			writeLine("channel out of range")
			return
		}
		if err := bridge.Write(ch, uint8(addr), uint32(data), bridge.Cursor()+rtio.DeadTimeCycles); err != nil {
			writeLine("write failed: " + err.Error())
			return
		}
		writeLine("ok")

	case "kv-read":
		if len(fields) != 2 {
			writeLine("usage: kv-read <key>")
			return
		}
		val, err := store.Read(fields[1])
		if err != nil {
			writeLine("error: " + err.Error())
			return
		}
		writeLine(string(val))

	case "kv-write":
		if len(fields) < 3 {
			writeLine("usage: kv-write <key> <value>")
			return
		}
		value := strings.Join(fields[2:], " ")
		if err := store.Write(fields[1], []byte(value)); err != nil {
			writeLine("error: " + err.Error())
			return
		}
		writeLine("ok")

	case "kv-erase":
		if err := store.Erase(); err != nil {
			writeLine("error: " + err.Error())
			return
		}
		writeLine("ok")

	default:
		writeLine("unknown command")
	}
}

func writeLine(s string) {
	machine.Serial.Write([]byte(s))
	machine.Serial.Write([]byte("\r\n"))
}

func prompt() {
	machine.Serial.Write([]byte("> "))
}
