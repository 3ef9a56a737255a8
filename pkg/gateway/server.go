// Package gateway is the wake-on-demand sidecar. It owns the workload's
// public port, relays traffic while the workload runs and holds clients
// while it wakes.
package gateway

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"slumber/pkg/logger"
	"slumber/pkg/metrics"
)

// Gateway serves one workload on one protocol
type Gateway struct {
	cfg     Config
	trigger *Trigger
	prober  Prober
	dial    dialFunc
	metrics *metrics.GatewayMetrics

	tcpListener net.Listener
	udpConn     *net.UDPConn

	sessionsMu sync.Mutex
	sessions   map[string]*udpSession

	shutdown      chan struct{}
	shutdownOnce  sync.Once
	wg            sync.WaitGroup
	listenerReady chan struct{}
}

// New creates a gateway; waker is debounced by cfg.WakeDebounce
func New(cfg Config, waker Waker, m *metrics.GatewayMetrics) (*Gateway, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	g := &Gateway{
		cfg:           cfg,
		trigger:       NewTrigger(waker, cfg.WakeDebounce, m),
		dial:          dialer.DialContext,
		metrics:       m,
		sessions:      make(map[string]*udpSession),
		shutdown:      make(chan struct{}),
		listenerReady: make(chan struct{}),
	}
	g.prober = newProber(&g.cfg, g.dial)
	return g, nil
}

// Serve listens on cfg.ListenAddr and blocks until ctx is cancelled or Stop
// is called
func (g *Gateway) Serve(ctx context.Context) error {
	switch g.cfg.Protocol {
	case ProtocolTCP:
		l, err := net.Listen("tcp", g.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen TCP %s: %w", g.cfg.ListenAddr, err)
		}
		g.tcpListener = l
	case ProtocolUDP:
		addr, err := net.ResolveUDPAddr("udp", g.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("resolve UDP %s: %w", g.cfg.ListenAddr, err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("listen UDP %s: %w", g.cfg.ListenAddr, err)
		}
		g.udpConn = conn
	}
	close(g.listenerReady)

	logger.Info("gateway started",
		zap.String("workload", g.cfg.WorkloadID),
		zap.String("protocol", g.cfg.Protocol),
		zap.String("listen", g.cfg.ListenAddr),
		zap.String("target", g.cfg.TargetAddr()))

	ctx = logger.WithWorkload(ctx, g.cfg.WorkloadID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.wg.Add(1)
	if g.tcpListener != nil {
		go g.serveTCP(ctx)
	} else {
		go g.serveUDP(ctx)
	}

	go func() {
		select {
		case <-ctx.Done():
			g.Stop()
		case <-g.shutdown:
			cancel()
		}
	}()

	g.wg.Wait()
	g.trigger.Wait()
	return nil
}

// WaitReady is closed once the listener is bound
func (g *Gateway) WaitReady() <-chan struct{} {
	return g.listenerReady
}

// Stop closes the listener and waits for connections to finish
func (g *Gateway) Stop() {
	g.shutdownOnce.Do(func() {
		close(g.shutdown)
		if g.tcpListener != nil {
			_ = g.tcpListener.Close()
		}
		if g.udpConn != nil {
			_ = g.udpConn.Close()
		}
		g.closeSessions()
	})
	g.wg.Wait()
}

// Addr returns the bound listen address, for tests
func (g *Gateway) Addr() string {
	if g.tcpListener != nil {
		return g.tcpListener.Addr().String()
	}
	if g.udpConn != nil {
		return g.udpConn.LocalAddr().String()
	}
	return ""
}

func (g *Gateway) stopping() bool {
	select {
	case <-g.shutdown:
		return true
	default:
		return false
	}
}
