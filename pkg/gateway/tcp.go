package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"slumber/pkg/logger"
)

const readChunk = 16 * 1024

var (
	errHoldTimeout  = errors.New("workload did not come up in time")
	errClientGone   = errors.New("client left while held")
	errShuttingDown = errors.New("gateway shutting down")
)

func (g *Gateway) serveTCP(ctx context.Context) {
	defer g.wg.Done()

	for {
		conn, err := g.tcpListener.Accept()
		if err != nil {
			if g.stopping() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			logger.ErrorCtx(ctx, "accept failed: %v", err)
			return
		}

		g.metrics.RecordConnection(ProtocolTCP)
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.handleTCP(ctx, conn)
		}()
	}
}

// clientPump reads the client into chunks until EOF or error. It stops
// reading whenever nobody takes its chunks, which lets TCP push back.
type clientPump struct {
	chunks chan []byte
	err    error // valid once chunks is closed
	done   chan struct{}
}

func startPump(conn net.Conn) *clientPump {
	p := &clientPump{
		chunks: make(chan []byte),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.chunks)
		buf := make([]byte, readChunk)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case p.chunks <- chunk:
				case <-p.done:
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					p.err = err
				}
				return
			}
		}
	}()
	return p
}

func (p *clientPump) stop() {
	close(p.done)
}

func (g *Gateway) handleTCP(ctx context.Context, client net.Conn) {
	defer client.Close()

	pump := startPump(client)
	defer pump.stop()

	upstream, err := g.dial(ctx, "tcp", g.cfg.TargetAddr())
	var held [][]byte
	if err != nil {
		logger.InfoCtx(ctx, "workload unreachable for %s, holding: %v", client.RemoteAddr(), err)
		upstream, held, err = g.hold(ctx, pump)
		if err != nil {
			logger.WarnCtx(ctx, "dropping held client %s: %v", client.RemoteAddr(), err)
			return
		}
	}
	defer upstream.Close()

	g.relay(ctx, client, upstream, held, pump)
}

// hold keeps the client while the workload wakes. Bytes read from the
// client are kept in order, up to MaxHoldBytes.
func (g *Gateway) hold(ctx context.Context, pump *clientPump) (net.Conn, [][]byte, error) {
	g.metrics.HoldStarted()
	timedOut := false
	defer func() { g.metrics.HoldEnded(timedOut) }()

	g.trigger.Fire(ctx)

	deadline := time.NewTimer(g.cfg.HoldTimeout)
	defer deadline.Stop()
	retry := time.NewTicker(g.cfg.RetryInterval)
	defer retry.Stop()

	var (
		held      [][]byte
		heldBytes int
		recv      = pump.chunks
	)
	for {
		select {
		case chunk, ok := <-recv:
			if !ok {
				recv = nil
				if pump.err != nil || heldBytes == 0 {
					return nil, nil, errClientGone
				}
				continue
			}
			held = append(held, chunk)
			heldBytes += len(chunk)
			if heldBytes >= g.cfg.MaxHoldBytes {
				recv = nil
			}

		case <-retry.C:
			conn, err := g.dial(ctx, "tcp", g.cfg.TargetAddr())
			if err == nil {
				logger.InfoCtx(ctx, "workload reachable, flushing %d held bytes", heldBytes)
				return conn, held, nil
			}
			// the orchestrator acknowledges repeats, so keep nudging it
			g.trigger.Fire(ctx)

		case <-deadline.C:
			timedOut = true
			return nil, nil, errHoldTimeout

		case <-g.shutdown:
			return nil, nil, errShuttingDown

		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// relay writes the held bytes, then copies both directions until both sides
// are done. Half-closes are propagated.
func (g *Gateway) relay(ctx context.Context, client, upstream net.Conn, held [][]byte, pump *clientPump) {
	defer context.AfterFunc(ctx, func() {
		client.Close()
		upstream.Close()
	})()

	upDone := make(chan struct{})
	go func() {
		defer close(upDone)
		var n int64
		defer func() { g.metrics.RecordRelayed("upstream", n) }()

		for _, chunk := range held {
			if _, err := upstream.Write(chunk); err != nil {
				upstream.Close()
				return
			}
			n += int64(len(chunk))
		}
		for chunk := range pump.chunks {
			if _, err := upstream.Write(chunk); err != nil {
				upstream.Close()
				return
			}
			n += int64(len(chunk))
		}
		closeWrite(upstream)
	}()

	n, _ := io.Copy(client, upstream)
	g.metrics.RecordRelayed("downstream", n)
	closeWrite(client)
	<-upDone
}

func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = c.Close()
}
