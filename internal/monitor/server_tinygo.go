//go:build tinygo

package monitor

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	monitorBufSize  = 512
	monitorHeaderLen = 1 + 4 // type:u8 | len:u32_be
)

// Server runs the monitor port's accept/serve loop. It's simpler than the
// control port's: one request in, one reply out, no mailbox to poll.
// Grounded on console.go's accept/serve/close loop the same way
// internal/session/server_tinygo.go is, trimmed to this port's narrower
// request set.
type Server struct {
	monitor *Monitor
	port    uint16
	logger  *slog.Logger

	rxBuf [monitorBufSize]byte
	txBuf [monitorBufSize]byte
}

func NewServer(monitor *Monitor, port uint16, logger *slog.Logger) *Server {
	return &Server{monitor: monitor, port: port, logger: logger}
}

func (s *Server) Run(stack *xnet.StackAsync) {
	var conn tcp.Conn
	if err := conn.Configure(tcp.ConnConfig{
		RxBuf:             s.rxBuf[:],
		TxBuf:             s.txBuf[:],
		TxPacketQueueSize: 2,
	}); err != nil {
		s.logger.Error("monitor:configure-failed", slog.String("err", err.Error()))
		return
	}

	for {
		conn.Abort()
		time.Sleep(100 * time.Millisecond)

		if err := stack.ListenTCP(&conn, s.port); err != nil {
			s.logger.Error("monitor:listen-failed", slog.String("err", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		waited := 0
		for conn.State().IsPreestablished() && waited < 6000 {
			time.Sleep(10 * time.Millisecond)
			waited++
		}
		if conn.State().IsSynchronized() {
			s.serve(&conn)
		}

		conn.Close()
		for i := 0; i < 30 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		conn.Abort()
	}
}

func (s *Server) serve(conn *tcp.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("monitor:panic-recovered")
		}
	}()

	var readBuf [128]byte
	for {
		if conn.State().IsClosed() || conn.State().IsClosing() || !conn.State().RxDataOpen() {
			return
		}
		n, err := conn.Read(readBuf[:])
		if err != nil {
			return
		}
		if n < 1 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		reqType := readBuf[0]
		reply := s.monitor.Dispatch(reqType, readBuf[1:n])

		out := make([]byte, monitorHeaderLen+len(reply.Payload))
		out[0] = reply.Type
		binary.BigEndian.PutUint32(out[1:5], uint32(len(reply.Payload)))
		copy(out[5:], reply.Payload)
		conn.Write(out)
		conn.Flush()
	}
}
