package gateway

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// Config configures one gateway process. The orchestrator injects it as
// container environment.
type Config struct {
	ListenAddr string
	Protocol   string
	TargetHost string
	TargetPort int
	// ProbePort switches the UDP reachability probe to a TCP dial on this port
	ProbePort int

	WorkloadID string
	WakeURL    string // orchestrator base URL
	WakeToken  string

	DialTimeout    time.Duration
	RetryInterval  time.Duration
	HoldTimeout    time.Duration
	WakeDebounce   time.Duration
	UDPIdleTimeout time.Duration

	MaxHoldBytes     int
	MaxHoldDatagrams int
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	c.Protocol = strings.ToLower(c.Protocol)
	if c.Protocol == "" {
		c.Protocol = ProtocolTCP
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 2 * time.Second
	}
	if c.HoldTimeout <= 0 {
		c.HoldTimeout = 60 * time.Second
	}
	if c.WakeDebounce <= 0 {
		c.WakeDebounce = 10 * time.Second
	}
	if c.UDPIdleTimeout <= 0 {
		c.UDPIdleTimeout = 2 * time.Minute
	}
	if c.MaxHoldBytes <= 0 {
		c.MaxHoldBytes = 64 * 1024
	}
	if c.MaxHoldDatagrams <= 0 {
		c.MaxHoldDatagrams = 256
	}
}

// Validate checks the settings without which the gateway cannot run
func (c *Config) Validate() error {
	if c.Protocol != ProtocolTCP && c.Protocol != ProtocolUDP {
		return fmt.Errorf("unsupported protocol %q", c.Protocol)
	}
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.TargetHost == "" || c.TargetPort <= 0 {
		return errors.New("target host and port are required")
	}
	if c.WorkloadID == "" {
		return errors.New("workload id is required")
	}
	return nil
}

// TargetAddr is host:port of the workload
func (c *Config) TargetAddr() string {
	return net.JoinHostPort(c.TargetHost, strconv.Itoa(c.TargetPort))
}
