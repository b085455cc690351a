package netmon

import (
	"context"
	"net"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"
)

// Probe reports whether the network is reachable right now.
type Probe func(ctx context.Context) bool

// Listener is invoked on every connectivity transition.
type Listener func(online bool)

// Monitor observes connectivity transitions by probing on a ticker and
// notifies listeners on every edge. It starts optimistic: the first probe
// result only produces a notification if it disagrees with online.
type Monitor struct {
	probe    Probe
	interval time.Duration

	mu        sync.Mutex
	online    bool
	listeners []Listener
}

// New creates a monitor that probes a TCP dial to address.
func New(address string, interval time.Duration) *Monitor {
	return NewWithProbe(dialProbe(address), interval)
}

// NewWithProbe creates a monitor with a custom probe, used by tests and by
// callers that prefer an HTTP probe.
func NewWithProbe(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &Monitor{
		probe:    probe,
		interval: interval,
		online:   true,
	}
}

func dialProbe(address string) Probe {
	return func(ctx context.Context) bool {
		dialer := &net.Dialer{Timeout: 3 * time.Second}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return false
		}
		conn.Close()

		return true
	}
}

// OnChange registers a transition listener. Must be called before Start.
func (m *Monitor) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, l)
}

// Online returns the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.online
}

// Start begins probing until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe immediately. Exposed so tests can drive transitions
// without waiting out the ticker.
func (m *Monitor) Check(ctx context.Context) {
	m.check(ctx)
}

func (m *Monitor) check(ctx context.Context) {
	online := m.probe(ctx)

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		logger.Info("connectivity restored")
	} else {
		logger.Warn("connectivity lost")
	}

	for _, l := range listeners {
		l(online)
	}
}
