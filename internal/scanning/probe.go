package scanning

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const udpReadBufferSize = 1024

// GenericUDPPayload is sent by a UDPProber that has no payload source.
var GenericUDPPayload = []byte("PORT_SCAN_TEST_PACKET")

// Prober performs a single probe and classifies the outcome. Transport
// failures are never returned as errors; they are mapped to a Status.
type Prober interface {
	Probe(ctx context.Context, host string, port int, timeout time.Duration) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, host string, port int, timeout time.Duration) Result

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, host string, port int, timeout time.Duration) Result {
	return f(ctx, host, port, timeout)
}

// PayloadSource supplies the bytes a UDP probe sends to a destination port.
type PayloadSource interface {
	Payload(port int) []byte
}

// TCPProber classifies ports with a full TCP connect.
type TCPProber struct{}

// Probe attempts one connection. A completed handshake is open, an active
// refusal is closed, and a timeout or any other failure is filtered.
func (TCPProber) Probe(ctx context.Context, host string, port int, timeout time.Duration) Result {
	task := Task{Host: host, Port: port, Protocol: TCP}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if isConnRefused(err) {
			return task.result(StatusClosed)
		}
		return task.result(StatusFiltered)
	}
	_ = conn.Close()
	return task.result(StatusOpen)
}

// UDPProber sends a port-specific payload and waits for any reply from the peer.
type UDPProber struct {
	Payloads PayloadSource
}

// Probe sends one datagram and reads until timeout. A reply is open, an ICMP
// port-unreachable surfaced as a refusal is closed, silence is open|filtered,
// and any other socket error is filtered.
func (p UDPProber) Probe(ctx context.Context, host string, port int, timeout time.Duration) Result {
	task := Task{Host: host, Port: port, Protocol: UDP}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return task.result(classifyUDPError(err, false))
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return task.result(StatusFiltered)
	}

	if _, err := conn.Write(p.payload(port)); err != nil {
		return task.result(classifyUDPError(err, false))
	}

	buf := make([]byte, udpReadBufferSize)
	if _, err := conn.Read(buf); err != nil {
		return task.result(classifyUDPError(err, true))
	}
	return task.result(StatusOpen)
}

func (p UDPProber) payload(port int) []byte {
	if p.Payloads != nil {
		if payload := p.Payloads.Payload(port); len(payload) > 0 {
			return payload
		}
	}
	return GenericUDPPayload
}

// classifyUDPError maps a UDP socket error to a status. Only a timeout while
// waiting for the reply is ambiguous.
func classifyUDPError(err error, reading bool) Status {
	switch {
	case isConnRefused(err):
		return StatusClosed
	case reading && isTimeout(err):
		return StatusOpenFiltered
	default:
		return StatusFiltered
	}
}

func isConnRefused(err error) bool {
	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "actively refused")
}

func isTimeout(err error) bool {
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
