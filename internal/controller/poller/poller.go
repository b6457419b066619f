// Package poller periodically asks every known switch for fresh statistics.
package poller

import (
	"OFSpectra/internal/controller/session"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 10 * time.Second

// StatsSource is the part of the session manager the poller depends on.
type StatsSource interface {
	DPIDs() []uint64
	RequestStats(dpid uint64) error
}

// Poller issues statistics requests at a fixed interval until stopped.
type Poller struct {
	source   StatsSource
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a poller. interval <= 0 falls back to DefaultInterval.
func New(source StatsSource, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the polling loop in the background until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
	log.Printf("Started stats poller with interval %s", p.interval)
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PollOnce()
		case <-ctx.Done():
			log.Println("Stats poller shutting down.")
			return
		case <-p.done:
			log.Println("Stats poller shutting down.")
			return
		}
	}
}

// PollOnce requests statistics from every known switch. A failure for one
// switch is logged and does not affect the others.
func (p *Poller) PollOnce() (requested, failed int) {
	for _, dpid := range p.source.DPIDs() {
		err := p.source.RequestStats(dpid)
		switch {
		case err == nil:
			requested++
		case errors.Cause(err) == session.ErrSwitchNotActive:
			log.WithField("dpid", dpid).Debug("Skipping stats poll for inactive switch.")
		default:
			failed++
			log.WithField("dpid", dpid).Warnf("Stats poll failed: %v", err)
		}
	}
	return requested, failed
}

// Stop ends the polling loop and waits for it to exit.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}
