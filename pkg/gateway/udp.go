package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"slumber/pkg/logger"
)

const maxDatagram = 65535

// udpSession is the association of one client address with the workload.
// It holds datagrams until an upstream socket exists, then relays.
type udpSession struct {
	client *net.UDPAddr
	key    string
	seen   atomic.Int64 // unix nanos of the last datagram either way

	mu       sync.Mutex
	pending  [][]byte
	upstream *net.UDPConn
	closed   bool
}

func (s *udpSession) touch() {
	s.seen.Store(time.Now().UnixNano())
}

func (s *udpSession) lastSeen() time.Time {
	return time.Unix(0, s.seen.Load())
}

// enqueueLocked appends d, dropping the oldest datagram when full
func (s *udpSession) enqueueLocked(d []byte, limit int) bool {
	dropped := false
	if len(s.pending) >= limit {
		copy(s.pending, s.pending[1:])
		s.pending = s.pending[:len(s.pending)-1]
		dropped = true
	}
	s.pending = append(s.pending, d)
	return dropped
}

func (s *udpSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	if s.upstream != nil {
		_ = s.upstream.Close()
	}
}

func (g *Gateway) serveUDP(ctx context.Context) {
	defer g.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := g.udpConn.ReadFromUDP(buf)
		if err != nil {
			if g.stopping() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.DebugCtx(ctx, "udp read failed: %v", err)
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		g.handleDatagram(ctx, addr, datagram)
	}
}

func (g *Gateway) handleDatagram(ctx context.Context, addr *net.UDPAddr, datagram []byte) {
	key := addr.String()

	g.sessionsMu.Lock()
	s, known := g.sessions[key]
	if !known {
		s = &udpSession{client: addr, key: key}
		g.sessions[key] = s
	}
	g.sessionsMu.Unlock()
	s.touch()

	s.mu.Lock()
	if s.closed {
		// dropped between the lookup and here, e.g. on hold timeout
		s.mu.Unlock()
		g.dropSession(s)
		if g.stopping() {
			return
		}
		g.handleDatagram(ctx, addr, datagram)
		return
	}
	if up := s.upstream; up != nil {
		s.mu.Unlock()
		if _, err := up.Write(datagram); err != nil {
			// the workload went away; start over with a fresh association
			logger.DebugCtx(ctx, "upstream write for %s failed: %v", key, err)
			g.dropSession(s)
			g.handleDatagram(ctx, addr, datagram)
			return
		}
		g.metrics.RecordRelayed("upstream", int64(len(datagram)))
		return
	}
	if s.enqueueLocked(datagram, g.cfg.MaxHoldDatagrams) {
		g.metrics.RecordUDPDrop()
	}
	s.mu.Unlock()

	if !known {
		g.metrics.RecordConnection(ProtocolUDP)
		g.wg.Add(1)
		go g.connectSession(ctx, s)
	}
}

// connectSession probes the workload, waking and holding if needed, then
// flushes the held datagrams in arrival order and starts relaying replies
func (g *Gateway) connectSession(ctx context.Context, s *udpSession) {
	defer g.wg.Done()

	if !g.prober.Reachable(ctx) {
		logger.InfoCtx(ctx, "workload unreachable for %s, holding", s.key)
		g.metrics.HoldStarted()
		g.trigger.Fire(ctx)
		ok := g.waitReachable(ctx)
		g.metrics.HoldEnded(!ok && !g.stopping())
		if !ok {
			logger.WarnCtx(ctx, "dropping held udp client %s: %v", s.key, errHoldTimeout)
			g.dropSession(s)
			return
		}
	}

	raddr, err := net.ResolveUDPAddr("udp", g.cfg.TargetAddr())
	if err != nil {
		logger.WarnCtx(ctx, "resolve target failed: %v", err)
		g.dropSession(s)
		return
	}
	up, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		logger.WarnCtx(ctx, "dial target failed: %v", err)
		g.dropSession(s)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = up.Close()
		return
	}
	var flushed int64
	for _, d := range s.pending {
		if _, err := up.Write(d); err != nil {
			logger.DebugCtx(ctx, "flush to target failed: %v", err)
			break
		}
		flushed += int64(len(d))
	}
	s.pending = nil
	s.upstream = up
	s.mu.Unlock()
	g.metrics.RecordRelayed("upstream", flushed)

	g.wg.Add(1)
	go g.pumpUpstream(ctx, s, up)
}

func (g *Gateway) waitReachable(ctx context.Context) bool {
	deadline := time.NewTimer(g.cfg.HoldTimeout)
	defer deadline.Stop()
	retry := time.NewTicker(g.cfg.RetryInterval)
	defer retry.Stop()

	for {
		select {
		case <-retry.C:
			if g.prober.Reachable(ctx) {
				return true
			}
			g.trigger.Fire(ctx)
		case <-deadline.C:
			return false
		case <-g.shutdown:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// pumpUpstream relays replies to the client until the association has been
// idle for UDPIdleTimeout or the upstream socket fails
func (g *Gateway) pumpUpstream(ctx context.Context, s *udpSession, up *net.UDPConn) {
	defer g.wg.Done()
	defer g.dropSession(s)

	buf := make([]byte, maxDatagram)
	for {
		deadline := s.lastSeen().Add(g.cfg.UDPIdleTimeout)
		if !time.Now().Before(deadline) {
			logger.DebugCtx(ctx, "udp association %s idle, dropping", s.key)
			return
		}
		_ = up.SetReadDeadline(deadline)

		n, err := up.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if !g.stopping() && !errors.Is(err, net.ErrClosed) {
				logger.DebugCtx(ctx, "upstream read for %s failed: %v", s.key, err)
			}
			return
		}

		s.touch()
		if _, err := g.udpConn.WriteToUDP(buf[:n], s.client); err != nil {
			logger.DebugCtx(ctx, "write to client %s failed: %v", s.key, err)
			continue
		}
		g.metrics.RecordRelayed("downstream", int64(n))
	}
}

func (g *Gateway) dropSession(s *udpSession) {
	g.sessionsMu.Lock()
	if g.sessions[s.key] == s {
		delete(g.sessions, s.key)
	}
	g.sessionsMu.Unlock()
	s.close()
}

func (g *Gateway) closeSessions() {
	g.sessionsMu.Lock()
	sessions := g.sessions
	g.sessions = make(map[string]*udpSession)
	g.sessionsMu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
