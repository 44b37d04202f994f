//go:build tinygo

package telemetry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	dialTimeout = 10 * time.Second
	dialRetries = 3
	tcpBufSize  = 1024
	mqttBufSize = 512
)

var topicStats = []byte("artiqrt/stats")

// Run publishes a Counters snapshot to broker once per interval, forever.
// It logs and retries rather than returning on transient failure, matching
// mqtt.go's own no-propagate-upward error handling for a background
// publisher.
func Run(stack *xnet.StackAsync, broker netip.AddrPort, clientID string, interval time.Duration, source Source, logger *slog.Logger) {
	for {
		if err := publishOnce(stack, broker, clientID, source()); err != nil {
			logger.Warn("telemetry:publish-failed", slog.String("err", err.Error()))
		}
		time.Sleep(interval)
	}
}

func publishOnce(stack *xnet.StackAsync, broker netip.AddrPort, clientID string, counters Counters) error {
	var rxBuf, txBuf [tcpBufSize]byte
	var userBuf [mqttBufSize]byte

	var conn tcp.Conn
	if err := conn.Configure(tcp.ConnConfig{
		RxBuf:             rxBuf[:],
		TxBuf:             txBuf[:],
		TxPacketQueueSize: 2,
	}); err != nil {
		return err
	}

	cfg := mqtt.ClientConfig{Decoder: mqtt.DecoderNoAlloc{UserBuffer: userBuf[:]}}
	client := mqtt.NewClient(cfg)

	rstack := stack.StackRetrying(5 * time.Millisecond)
	lport := uint16(stack.Prand32()>>17) + 1024

	if err := rstack.DoDialTCP(&conn, lport, broker, dialTimeout, dialRetries); err != nil {
		closeConn(&conn, stack, broker)
		return err
	}

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(clientID))
	conn.SetDeadline(time.Now().Add(dialTimeout))
	if err := client.StartConnect(&conn, &varconn); err != nil {
		closeConn(&conn, stack, broker)
		return err
	}

	retries := 50
	for retries > 0 && !client.IsConnected() {
		time.Sleep(100 * time.Millisecond)
		client.HandleNext()
		retries--
	}
	if !client.IsConnected() {
		closeConn(&conn, stack, broker)
		return errors.New("telemetry: mqtt connect timeout")
	}

	payload, err := json.Marshal(counters)
	if err != nil {
		closeConn(&conn, stack, broker)
		return err
	}

	pubFlags, _ := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	pubVar := mqtt.VariablesPublish{
		TopicName:        topicStats,
		PacketIdentifier: uint16(stack.Prand32()),
	}
	conn.SetDeadline(time.Now().Add(dialTimeout))
	if err := client.PublishPayload(pubFlags, pubVar, payload); err != nil {
		closeConn(&conn, stack, broker)
		return err
	}

	client.Disconnect(errors.New("telemetry cycle complete"))
	closeConn(&conn, stack, broker)
	return nil
}

func closeConn(conn *tcp.Conn, stack *xnet.StackAsync, addr netip.AddrPort) {
	conn.Close()
	for i := 0; i < 50 && !conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	conn.Abort()
	stack.DiscardResolveHardwareAddress6(addr.Addr())
}
