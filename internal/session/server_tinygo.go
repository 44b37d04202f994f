//go:build tinygo

package session

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	controlBufSize = 4096
)

// Server runs the control-port session loop: accept one connection at a
// time, feed its bytes to a Decoder, dispatch each frame to an Engine, and
// write back the encoded reply. Grounded on console.go's accept/auth/
// serve/close loop, generalized from a line-oriented telnet shell to the
// framed binary protocol.
type Server struct {
	engine *Engine
	port   uint16
	logger *slog.Logger

	rxBuf [controlBufSize]byte
	txBuf [controlBufSize]byte
}

// NewServer wires engine to port on stack.
func NewServer(engine *Engine, port uint16, logger *slog.Logger) *Server {
	return &Server{engine: engine, port: port, logger: logger}
}

// Run services connections forever. It never returns except on a fatal
// configure error, matching the teacher's always-retry accept loop.
func (s *Server) Run(stack *xnet.StackAsync) {
	var conn tcp.Conn
	err := conn.Configure(tcp.ConnConfig{
		RxBuf:             s.rxBuf[:],
		TxBuf:             s.txBuf[:],
		TxPacketQueueSize: 3,
	})
	if err != nil {
		s.logger.Error("session:configure-failed", slog.String("err", err.Error()))
		return
	}

	ourAddr := netip.AddrPortFrom(stack.Addr(), s.port)
	s.logger.Info("session:listening", slog.String("addr", ourAddr.String()))

	for {
		conn.Abort()
		time.Sleep(100 * time.Millisecond)

		if err := stack.ListenTCP(&conn, s.port); err != nil {
			s.logger.Error("session:listen-failed", slog.String("err", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		waited := 0
		for conn.State().IsPreestablished() && waited < 6000 {
			time.Sleep(10 * time.Millisecond)
			waited++
		}
		if !conn.State().IsSynchronized() {
			conn.Abort()
			continue
		}

		s.logger.Info("session:connected")
		s.serve(&conn)

		conn.Close()
		for i := 0; i < 30 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
		conn.Abort()
		s.logger.Info("session:disconnected")
	}
}

// serve runs the service loop for one connection: never blocks longer than
// one read attempt, services the mailbox between reads, and yields when
// the receive buffer empties, per spec.md §4.6/§5.
func (s *Server) serve(conn *tcp.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session:panic-recovered")
		}
	}()

	var decoder Decoder
	var readBuf [512]byte

	for {
		if conn.State().IsClosed() || conn.State().IsClosing() || !conn.State().RxDataOpen() {
			return
		}

		if s.engine.State() == StateKernelRunning || s.engine.State() == StateRPCWait {
			if reply, ok := s.engine.PollMailbox(); ok {
				s.writeReply(conn, reply)
			}
		}

		n, err := conn.Read(readBuf[:])
		if err != nil {
			return
		}
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		decoder.Feed(readBuf[:n])

		for {
			frame, ok, ferr := decoder.Next()
			if ferr != nil {
				s.logger.Error("session:bad-frame", slog.String("err", ferr.Error()))
				return
			}
			if !ok {
				break
			}
			reply := s.engine.Dispatch(frame.Type, frame.Payload)
			s.writeReply(conn, reply)
		}
	}
}

func (s *Server) writeReply(conn *tcp.Conn, r Reply) {
	wire := EncodeFrame(Frame{Magic: MagicControl, Type: r.Type, Payload: r.Payload})
	conn.Write(wire)
	conn.Flush()
}
