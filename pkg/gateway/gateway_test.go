package gateway

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWaker struct {
	calls atomic.Int32
}

func (w *countingWaker) Wake(ctx context.Context) error {
	w.calls.Add(1)
	return nil
}

func freeTCPPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	port := c.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, c.Close())
	return port
}

func testConfig(protocol string, targetPort int) Config {
	return Config{
		ListenAddr:    "127.0.0.1:0",
		Protocol:      protocol,
		TargetHost:    "127.0.0.1",
		TargetPort:    targetPort,
		WorkloadID:    "w-1",
		DialTimeout:   200 * time.Millisecond,
		RetryInterval: 50 * time.Millisecond,
		HoldTimeout:   5 * time.Second,
	}
}

func startGateway(t *testing.T, cfg Config, waker Waker) *Gateway {
	t.Helper()
	g, err := New(cfg, waker, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = g.Serve(ctx)
		close(done)
	}()

	select {
	case <-g.WaitReady():
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not start")
	}

	t.Cleanup(func() {
		cancel()
		g.Stop()
		<-done
	})
	return g
}

func echoTCP(t *testing.T, l net.Listener) {
	t.Helper()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}()
		}
	}()
}

func TestGateway_TCPRelaysWhenReachable(t *testing.T) {
	target, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer target.Close()
	echoTCP(t, target)

	waker := &countingWaker{}
	g := startGateway(t, testConfig(ProtocolTCP, target.Addr().(*net.TCPAddr).Port), waker)

	conn, err := net.Dial("tcp", g.Addr())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	assert.Zero(t, waker.calls.Load(), "a reachable workload needs no wake")
}

func TestGateway_TCPHoldFlushesBufferedBytesFirst(t *testing.T) {
	port := freeTCPPort(t)
	waker := &countingWaker{}
	g := startGateway(t, testConfig(ProtocolTCP, port), waker)

	client, err := net.Dial("tcp", g.Addr())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.SetDeadline(time.Now().Add(10*time.Second)))

	_, err = client.Write([]byte("hello "))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return waker.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// the workload comes up
	target, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	defer target.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := target.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	var upstream net.Conn
	select {
	case upstream = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("gateway never connected to the workload")
	}
	defer upstream.Close()
	require.NoError(t, upstream.SetDeadline(time.Now().Add(10*time.Second)))

	_, err = client.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, client.(*net.TCPConn).CloseWrite())

	got, err := io.ReadAll(upstream)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	_, err = upstream.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, upstream.Close())

	reply, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(reply))
}

func TestGateway_TCPHoldTimeoutClosesClientAndKeepsServing(t *testing.T) {
	port := freeTCPPort(t)
	cfg := testConfig(ProtocolTCP, port)
	cfg.HoldTimeout = 200 * time.Millisecond
	g := startGateway(t, cfg, &countingWaker{})

	client, err := net.Dial("tcp", g.Addr())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = client.Write([]byte("x"))
	require.NoError(t, err)

	_, err = io.ReadAll(client)
	if ne, ok := err.(net.Error); ok {
		require.False(t, ne.Timeout(), "client should be closed, not left hanging")
	}

	target, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	require.NoError(t, err)
	defer target.Close()
	echoTCP(t, target)

	again, err := net.Dial("tcp", g.Addr())
	require.NoError(t, err)
	defer again.Close()
	require.NoError(t, again.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = again.Write([]byte("ok"))
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = io.ReadFull(again, buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(buf))
}

func TestGateway_ConcurrentHeldClientsShareOneTrigger(t *testing.T) {
	port := freeTCPPort(t)
	cfg := testConfig(ProtocolTCP, port)
	cfg.HoldTimeout = 300 * time.Millisecond
	waker := &countingWaker{}
	g := startGateway(t, cfg, waker)

	for i := 0; i < 5; i++ {
		c, err := net.Dial("tcp", g.Addr())
		require.NoError(t, err)
		defer c.Close()
	}

	require.Eventually(t, func() bool { return waker.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(1), waker.calls.Load())
}

func TestGateway_UDPRelaysWhenReachable(t *testing.T) {
	target, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer target.Close()
	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := target.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue // probe
			}
			_, _ = target.WriteToUDP(buf[:n], addr)
		}
	}()

	waker := &countingWaker{}
	g := startGateway(t, testConfig(ProtocolUDP, target.LocalAddr().(*net.UDPAddr).Port), waker)

	client, err := net.Dial("udp", g.Addr())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = client.Write([]byte("a"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "a", string(buf[:n]))
	assert.Zero(t, waker.calls.Load())
}

func TestGateway_UDPHoldFlushesInArrivalOrder(t *testing.T) {
	port := freeUDPPort(t)
	waker := &countingWaker{}
	g := startGateway(t, testConfig(ProtocolUDP, port), waker)

	client, err := net.Dial("udp", g.Addr())
	require.NoError(t, err)
	defer client.Close()
	for _, d := range []string{"1", "2", "3"} {
		_, err := client.Write([]byte(d))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return waker.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	target, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer target.Close()
	require.NoError(t, target.SetReadDeadline(time.Now().Add(5*time.Second)))

	var got []string
	buf := make([]byte, 1500)
	for len(got) < 3 {
		n, _, err := target.ReadFromUDP(buf)
		require.NoError(t, err)
		if n == 0 {
			continue
		}
		got = append(got, string(buf[:n]))
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func echoUDP(t *testing.T) int {
	t.Helper()
	target, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { target.Close() })
	go func() {
		buf := make([]byte, 1500)
		for {
			n, addr, err := target.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			_, _ = target.WriteToUDP(buf[:n], addr)
		}
	}()
	return target.LocalAddr().(*net.UDPAddr).Port
}

func TestGateway_UDPDatagramForClosedSessionStartsFresh(t *testing.T) {
	g := startGateway(t, testConfig(ProtocolUDP, echoUDP(t)), &countingWaker{})

	client, err := net.Dial("udp", g.Addr())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))

	// a session that timed out its hold but is still reachable by key
	key := client.LocalAddr().String()
	stale := &udpSession{client: client.LocalAddr().(*net.UDPAddr), key: key}
	stale.close()
	g.sessionsMu.Lock()
	g.sessions[key] = stale
	g.sessionsMu.Unlock()

	_, err = client.Write([]byte("late"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "late", string(buf[:n]))

	g.sessionsMu.Lock()
	current := g.sessions[key]
	g.sessionsMu.Unlock()
	assert.NotSame(t, stale, current)
	assert.Empty(t, stale.pending)
}

func TestUDPSession_DropsOldestWhenFull(t *testing.T) {
	s := &udpSession{}
	for _, d := range []string{"a", "b", "c"} {
		assert.False(t, s.enqueueLocked([]byte(d), 3))
	}
	assert.True(t, s.enqueueLocked([]byte("d"), 3))

	var got []string
	for _, d := range s.pending {
		got = append(got, string(d))
	}
	assert.Equal(t, []string{"b", "c", "d"}, got)
}

func TestConfig_DefaultsAndValidation(t *testing.T) {
	cfg := Config{ListenAddr: ":25565", TargetHost: "workload", TargetPort: 25565, WorkloadID: "w", Protocol: "UDP"}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ProtocolUDP, cfg.Protocol)
	assert.Equal(t, 60*time.Second, cfg.HoldTimeout)
	assert.Equal(t, 10*time.Second, cfg.WakeDebounce)
	assert.Equal(t, 64*1024, cfg.MaxHoldBytes)
	assert.Equal(t, 256, cfg.MaxHoldDatagrams)
	assert.Equal(t, "workload:25565", cfg.TargetAddr())

	bad := cfg
	bad.Protocol = "sctp"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TargetHost = ""
	assert.Error(t, bad.Validate())
}
