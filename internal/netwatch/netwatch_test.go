package netwatch

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestStaticTransitions(t *testing.T) {
	s := NewStatic(true)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Set(true)
	select {
	case v := <-ch:
		t.Fatalf("no transition expected, got %v", v)
	default:
	}
	s.Set(false)
	s.Set(true)
	if v := <-ch; !v {
		t.Errorf("expected latest value true")
	}
	if !s.Reachable() {
		t.Error("expected reachable")
	}
}

func TestMonitorProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	m := NewMonitor(addr, 20*time.Millisecond)
	if !m.Probe(context.Background()) {
		t.Fatal("expected probe to succeed against listener")
	}
	ch, cancel := m.Subscribe()
	defer cancel()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go m.Run(ctx)

	ln.Close()
	select {
	case v := <-ch:
		if v {
			t.Error("expected unreachable after listener closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never reported the outage")
	}
}
