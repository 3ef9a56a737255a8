package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"slumber/pkg/config"
	"slumber/pkg/gateway"
	"slumber/pkg/logger"
	"slumber/pkg/metrics"
)

func main() {
	var (
		fs               = flag.NewFlagSet("gateway", flag.ContinueOnError)
		listenAddr       = fs.String("listen-addr", ":25565", "address clients connect to")
		protocol         = fs.String("protocol", "tcp", "transport of the workload, tcp or udp")
		targetHost       = fs.String("target-host", "", "workload host on the private network")
		targetPort       = fs.Int("target-port", 0, "workload port")
		probePort        = fs.Int("probe-port", 0, "TCP port probed instead of the UDP target, 0 disables")
		workloadID       = fs.String("workload-id", "", "id of the workload this gateway fronts")
		wakeURL          = fs.String("wake-url", "http://host.docker.internal:8080", "orchestrator base URL")
		wakeToken        = fs.String("wake-token", "", "shared secret for the wake route")
		dialTimeout      = fs.Duration("dial-timeout", 2*time.Second, "timeout of a single reachability check")
		retryInterval    = fs.Duration("retry-interval", 2*time.Second, "pause between reachability checks while holding")
		holdTimeout      = fs.Duration("hold-timeout", 60*time.Second, "how long a client is held while the workload wakes")
		wakeDebounce     = fs.Duration("wake-debounce", 10*time.Second, "minimum time between two wake requests")
		udpIdleTimeout   = fs.Duration("udp-idle-timeout", 2*time.Minute, "idle time after which a UDP association is dropped")
		maxHoldBytes     = fs.Int("max-hold-bytes", 64*1024, "bytes kept per held TCP client")
		maxHoldDatagrams = fs.Int("max-hold-datagrams", 256, "datagrams kept per held UDP client")
		metricsAddr      = fs.String("metrics-addr", "", "address for /metrics, empty disables")
		logLevel         = fs.String("log-level", "info", "debug, info, warn or error")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("GATEWAY")); err != nil {
		die("failed to parse config", err)
	}

	if err := logger.InitWithConfig(config.LoggerConfig{Level: *logLevel, Output: "console"}); err != nil {
		die("failed to init logger", err)
	}

	cfg := gateway.Config{
		ListenAddr:       *listenAddr,
		Protocol:         *protocol,
		TargetHost:       *targetHost,
		TargetPort:       *targetPort,
		ProbePort:        *probePort,
		WorkloadID:       *workloadID,
		WakeURL:          *wakeURL,
		WakeToken:        *wakeToken,
		DialTimeout:      *dialTimeout,
		RetryInterval:    *retryInterval,
		HoldTimeout:      *holdTimeout,
		WakeDebounce:     *wakeDebounce,
		UDPIdleTimeout:   *udpIdleTimeout,
		MaxHoldBytes:     *maxHoldBytes,
		MaxHoldDatagrams: *maxHoldDatagrams,
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewGatewayMetrics(registry)

	g, err := gateway.New(cfg, gateway.NewWakeClient(cfg.WakeURL, cfg.WorkloadID, cfg.WakeToken), m)
	if err != nil {
		die("invalid gateway config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	if err := g.Serve(ctx); err != nil {
		die("gateway failed", err)
	}
	logger.Info("gateway stopped")
}

func die(msg string, err error) {
	logger.Error(msg, zap.Error(err))
	os.Exit(1)
}
