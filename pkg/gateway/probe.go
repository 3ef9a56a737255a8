package gateway

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// udpProbeWait is how long a probe listens for an ICMP port-unreachable
const udpProbeWait = 500 * time.Millisecond

// Prober reports whether the workload accepts traffic
type Prober interface {
	Reachable(ctx context.Context) bool
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type tcpProber struct {
	addr    string
	timeout time.Duration
	dial    dialFunc
}

func (p *tcpProber) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// udpProber sends a zero-length datagram on a connected socket. A refused
// port means down, silence means up. The target name is resolved on every
// probe because the runtime's DNS only answers for running containers.
type udpProber struct {
	host    string
	port    int
	timeout time.Duration
	wait    time.Duration
}

func (p *udpProber) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, p.host)
	if err != nil || len(addrs) == 0 {
		return false
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(addrs[0], strconv.Itoa(p.port)))
	if err != nil {
		return false
	}
	defer conn.Close()

	if _, err := conn.Write(nil); err != nil {
		return !errors.Is(err, syscall.ECONNREFUSED)
	}

	_ = conn.SetReadDeadline(time.Now().Add(p.wait))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		return !errors.Is(err, syscall.ECONNREFUSED)
	}
	return true
}

func newProber(cfg *Config, dial dialFunc) Prober {
	if cfg.Protocol == ProtocolTCP {
		return &tcpProber{addr: cfg.TargetAddr(), timeout: cfg.DialTimeout, dial: dial}
	}
	if cfg.ProbePort > 0 {
		addr := net.JoinHostPort(cfg.TargetHost, strconv.Itoa(cfg.ProbePort))
		return &tcpProber{addr: addr, timeout: cfg.DialTimeout, dial: dial}
	}
	return &udpProber{host: cfg.TargetHost, port: cfg.TargetPort, timeout: cfg.DialTimeout, wait: udpProbeWait}
}
