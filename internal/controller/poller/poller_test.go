package poller

import (
	"OFSpectra/internal/controller/session"
	"OFSpectra/internal/testutil"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestPollOnce(t *testing.T) {
	m := session.NewManager(0)
	ok := &testutil.FakeDatapath{}
	broken := &testutil.FakeDatapath{}
	gone := &testutil.FakeDatapath{}
	m.Connect(1, ok)
	m.Connect(2, broken)
	m.Connect(3, gone)
	broken.SetErr(errors.New("write: broken pipe"))
	m.Disconnect(3, gone)

	p := New(m, time.Hour)
	requested, failed := p.PollOnce()
	if requested != 1 || failed != 1 {
		t.Errorf("Expected 1 requested and 1 failed, got %d and %d", requested, failed)
	}
	if flows, ports := ok.StatsRequests(); flows != 1 || ports != 1 {
		t.Errorf("Expected a flow and a port request for switch 1, got %d and %d", flows, ports)
	}
	if flows, _ := gone.StatsRequests(); flows != 0 {
		t.Error("A disconnected switch must not be polled")
	}
}

func TestPollerTicks(t *testing.T) {
	m := session.NewManager(0)
	dp := &testutil.FakeDatapath{}
	m.Connect(1, dp)

	p := New(m, 10*time.Millisecond)
	p.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if flows, _ := dp.StatsRequests(); flows >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Poller did not issue requests in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Stop()
	p.Stop()
	after, _ := dp.StatsRequests()
	time.Sleep(30 * time.Millisecond)
	if now, _ := dp.StatsRequests(); now != after {
		t.Errorf("Poller kept running after Stop: %d -> %d", after, now)
	}
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	m := session.NewManager(0)
	ctx, cancel := context.WithCancel(context.Background())
	p := New(m, time.Millisecond)
	p.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Poller did not stop after context cancellation")
	}
}

func TestDefaultInterval(t *testing.T) {
	if p := New(session.NewManager(0), 0); p.interval != DefaultInterval {
		t.Errorf("Expected %s, got %s", DefaultInterval, p.interval)
	}
}
