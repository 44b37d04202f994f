// Command coremgmt is a host-side client for the control-port session
// protocol: it dials the device, sends one framed request, and prints the
// decoded reply. Grounded on cmd/cli/main.go's flag-parsing and single-
// command/interactive dispatch, generalized from a line-oriented telnet
// console to the length-prefixed binary frames internal/session speaks.
package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"openenterprise/artiqrt/internal/rterr"
	"openenterprise/artiqrt/internal/session"
)

const (
	defaultPort = "1381"
	dialTimeout = 10 * time.Second
	readTimeout = 10 * time.Second
)

func main() {
	host := flag.String("host", "", "Device IP address (required)")
	port := flag.String("port", defaultPort, "Control port")
	flag.Parse()

	if *host == "" {
		printUsage()
		os.Exit(1)
	}
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	addr := net.JoinHostPort(*host, *port)
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	if err := run(addr, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("coremgmt - control-port client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  coremgmt -host <ip> [-port <port>] <command> [args...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  ident                    print the build identification string")
	fmt.Println("  log                      fetch and clear the device's diagnostic log")
	fmt.Println("  flash-read <key>         read a KV store value")
	fmt.Println("  flash-write <key> <val>  write a KV store value")
	fmt.Println("  flash-remove <key>       delete a KV store value")
	fmt.Println("  flash-erase              wipe the entire KV store")
	fmt.Println("  load-kernel <file>       push a kernel image, printing its SHA256")
	fmt.Println("  run-kernel <name>        start the most recently loaded kernel")
	fmt.Println("  stop-kernel              stop the running kernel, if any")
}

func run(addr, cmd string, args []string) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer conn.Close()

	switch cmd {
	case "ident":
		return simpleRequest(conn, session.ReqIdent, nil, printIdent)
	case "log":
		return simpleRequest(conn, session.ReqLog, nil, printLog)
	case "flash-read":
		if len(args) != 1 {
			return fmt.Errorf("usage: flash-read <key>")
		}
		return simpleRequest(conn, session.ReqFlashRead, []byte(args[0]), printFlashData)
	case "flash-write":
		if len(args) != 2 {
			return fmt.Errorf("usage: flash-write <key> <value>")
		}
		payload := append([]byte(args[0]), 0)
		payload = append(payload, []byte(args[1])...)
		return simpleRequest(conn, session.ReqFlashWrite, payload, printOK)
	case "flash-remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: flash-remove <key>")
		}
		return simpleRequest(conn, session.ReqFlashRemove, []byte(args[0]), printOK)
	case "flash-erase":
		if !confirmDestructive("this wipes the entire KV store, including network configuration") {
			return fmt.Errorf("aborted")
		}
		return simpleRequest(conn, session.ReqFlashErase, nil, printOK)
	case "load-kernel":
		if len(args) != 1 {
			return fmt.Errorf("usage: load-kernel <file>")
		}
		return loadKernel(conn, args[0])
	case "run-kernel":
		if len(args) != 1 {
			return fmt.Errorf("usage: run-kernel <name>")
		}
		return simpleRequest(conn, session.ReqRunKernel, []byte(args[0]), printOK)
	case "stop-kernel":
		return simpleRequest(conn, session.ReqStopKernel, nil, printOK)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// simpleRequest sends one request frame, waits for exactly one reply frame,
// and hands it to render.
func simpleRequest(conn net.Conn, reqType byte, payload []byte, render func(session.Frame) error) error {
	wire := session.EncodeFrame(session.Frame{Magic: session.MagicControl, Type: reqType, Payload: payload})
	if _, err := conn.Write(wire); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	frame, err := readFrame(conn)
	if err != nil {
		return err
	}
	return render(frame)
}

// readFrame blocks until one complete frame has been decoded from conn.
func readFrame(conn net.Conn) (session.Frame, error) {
	var decoder session.Decoder
	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			frame, ok, ferr := decoder.Next()
			if ferr != nil {
				return session.Frame{}, ferr
			}
			if ok {
				return frame, nil
			}
		}
		if err != nil {
			return session.Frame{}, fmt.Errorf("read failed: %w", err)
		}
	}
}

func printOK(f session.Frame) error {
	if f.Type == session.RepOK {
		fmt.Println("OK")
		return nil
	}
	return replyError(f)
}

func printIdent(f session.Frame) error {
	if f.Type != session.RepIdent {
		return replyError(f)
	}
	fmt.Println(string(f.Payload))
	return nil
}

func printLog(f session.Frame) error {
	if f.Type != session.RepLog {
		return replyError(f)
	}
	fmt.Print(strings.TrimRight(string(f.Payload), "\x00"))
	return nil
}

func printFlashData(f session.Frame) error {
	if f.Type != session.RepFlashData {
		return replyError(f)
	}
	if len(f.Payload) < 2 {
		return fmt.Errorf("malformed flash data reply")
	}
	length := binary.LittleEndian.Uint16(f.Payload[:2])
	if 2+int(length) > len(f.Payload) {
		return fmt.Errorf("malformed flash data reply: length %d exceeds payload", length)
	}
	value := f.Payload[2 : 2+int(length)]
	if length == 0 {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Println(string(value))
	return nil
}

// replyError decodes a RepError payload: kind:u8 | code_len:u8 | code |
// message, per internal/session's wire format. code is empty for
// protocol-level errors that carry no host-facing identifier.
func replyError(f session.Frame) error {
	if f.Type != session.RepError {
		return fmt.Errorf("unexpected reply type %d", f.Type)
	}
	if len(f.Payload) < 2 {
		return fmt.Errorf("device error (no detail)")
	}
	kind := rterr.Kind(f.Payload[0])
	codeLen := int(f.Payload[1])
	if 2+codeLen > len(f.Payload) {
		return fmt.Errorf("malformed error reply: code length %d exceeds payload", codeLen)
	}
	code := string(f.Payload[2 : 2+codeLen])
	msg := string(f.Payload[2+codeLen:])
	if code == "" {
		return fmt.Errorf("device error [%s]: %s", kind, msg)
	}
	return fmt.Errorf("device error [%s/%s]: %s", kind, code, msg)
}

// confirmDestructive prompts for an explicit "yes" before a destructive
// command when stdin is a terminal. When stdin isn't a terminal it returns
// true without prompting or reading stdin.
func confirmDestructive(warning string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return true
	}
	fmt.Printf("Warning: %s. Type \"yes\" to continue: ", warning)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}

// loadKernel pushes a kernel image file as a single LOAD_KERNEL request,
// printing its SHA256 the way otaPush prints the firmware hash before
// sending it, as a human-checkable confirmation of exactly what was pushed.
func loadKernel(conn net.Conn, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read kernel image: %w", err)
	}
	hash := sha256.Sum256(data)
	fmt.Printf("Kernel image: %s\n", path)
	fmt.Printf("Size: %d bytes\n", len(data))
	fmt.Printf("SHA256: %x\n", hash)

	return simpleRequest(conn, session.ReqLoadKernel, data, printOK)
}
