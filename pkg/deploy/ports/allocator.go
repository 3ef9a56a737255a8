// Package ports hands out public host ports for gateway containers.
package ports

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"slumber/pkg/interfaces"
)

// ProbeFunc reports whether a host port is free to bind
type ProbeFunc func(port int) bool

// Allocator is the single globally locked table of public ports.
// A port is handed out only when it is absent from the table and the host
// probe confirms nothing else is bound to it.
type Allocator struct {
	portMin int
	portMax int
	probe   ProbeFunc

	mu        sync.Mutex
	allocated map[int]bool
	cursor    int
}

// NewAllocator creates an allocator over the inclusive range [portMin, portMax]
func NewAllocator(portMin, portMax int) *Allocator {
	return NewAllocatorWithProbe(portMin, portMax, HostPortFree)
}

// NewAllocatorWithProbe is NewAllocator with a custom host probe
func NewAllocatorWithProbe(portMin, portMax int, probe ProbeFunc) *Allocator {
	if probe == nil {
		probe = func(int) bool { return true }
	}
	return &Allocator{
		portMin:   portMin,
		portMax:   portMax,
		probe:     probe,
		allocated: make(map[int]bool),
		cursor:    portMin,
	}
}

// Allocate returns the next free port after the cursor, wrapping once around the range
func (a *Allocator) Allocate(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.portMax - a.portMin + 1
	for i := 0; i < size; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		port := a.cursor
		a.cursor++
		if a.cursor > a.portMax {
			a.cursor = a.portMin
		}

		if a.allocated[port] {
			continue
		}
		if !a.probe(port) {
			continue
		}

		a.allocated[port] = true
		return port, nil
	}
	return 0, fmt.Errorf("%w in range %d-%d", interfaces.ErrNoFreePort, a.portMin, a.portMax)
}

// Reserve marks a port as taken without probing it
func (a *Allocator) Reserve(port int) error {
	if port < a.portMin || port > a.portMax {
		return fmt.Errorf("port %d outside range %d-%d", port, a.portMin, a.portMax)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocated[port] = true
	return nil
}

// Free returns a port to the pool
func (a *Allocator) Free(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, port)
}

// InUse returns the number of allocated ports
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocated)
}

// HostPortFree checks that both the TCP and the UDP port can be bound on all interfaces
func HostPortFree(port int) bool {
	addr := net.JoinHostPort("", strconv.Itoa(port))

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	l.Close()

	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return false
	}
	pc.Close()
	return true
}
