package netwatch

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultProbeAddress  = "1.1.1.1:443"
	DefaultProbeInterval = 5 * time.Second
)

// Signal reports whether the network is reachable and publishes
// transitions to subscribers.
type Signal interface {
	Reachable() bool
	Subscribe() (<-chan bool, func())
}

type broadcaster struct {
	mu        sync.Mutex
	reachable bool
	subs      map[int]chan bool
	next      int
}

func (b *broadcaster) Reachable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reachable
}

// Subscribe returns a channel holding the latest reachability value after
// each transition.
func (b *broadcaster) Subscribe() (<-chan bool, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]chan bool)
	}
	ch := make(chan bool, 1)
	id := b.next
	b.next++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// set stores v and reports whether it was a transition.
func (b *broadcaster) set(v bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reachable == v {
		return false
	}
	b.reachable = v
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	return true
}

// Monitor probes reachability by opening a TCP connection to a well-known
// address on an interval.
type Monitor struct {
	broadcaster
	addr     string
	interval time.Duration
	timeout  time.Duration
	dialer   net.Dialer
}

func NewMonitor(addr string, interval time.Duration) *Monitor {
	if addr == "" {
		addr = DefaultProbeAddress
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	m := &Monitor{addr: addr, interval: interval, timeout: min(interval, 3*time.Second)}
	m.reachable = true
	return m
}

func (m *Monitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	conn, err := m.dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		log.Debug().Str("op", "netwatch/netwatch").Err(err).Msgf("Probe to %s failed", m.addr)
		return false
	}
	conn.Close()
	return true
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		up := m.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		if m.set(up) {
			if up {
				log.Info().Str("op", "netwatch/netwatch").Msg("Network reachable again")
			} else {
				log.Warn().Str("op", "netwatch/netwatch").Msg("Network unreachable")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Static is a Signal whose value is set by hand.
type Static struct {
	broadcaster
}

func NewStatic(reachable bool) *Static {
	s := &Static{}
	s.reachable = reachable
	return s
}

func (s *Static) Set(reachable bool) {
	s.set(reachable)
}
