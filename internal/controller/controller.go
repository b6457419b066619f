// Package controller wires the switch sessions, the packet pipeline and the
// statistics poller together and routes OpenFlow events to them.
package controller

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/controller/pipeline"
	"OFSpectra/internal/controller/poller"
	"OFSpectra/internal/controller/session"
	"OFSpectra/internal/engine/stats"
	"OFSpectra/internal/engine/summary"
	"OFSpectra/internal/model"
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Controller owns the shared aggregate state of the runtime.
type Controller struct {
	sessions  *session.Manager
	stats     *stats.Aggregator
	summaries *summary.Ring
	pipeline  *pipeline.Pipeline
	poller    *poller.Poller
}

// New builds a controller from its configuration. Extra pipeline options
// (for example a summary publisher) are applied after the configured ones.
func New(cfg *config.ControllerConfig, opts ...pipeline.Option) *Controller {
	sessions := session.NewManager(cfg.MACTableCapacity)
	agg := stats.NewAggregator(stats.WithHistoryInterval(cfg.HistoryDuration()))
	ring := summary.NewRing(cfg.SummaryCapacity)

	pipelineOpts := append([]pipeline.Option{
		pipeline.WithUnicastKnownDestinations(cfg.UnicastKnownDestinations),
	}, opts...)

	return &Controller{
		sessions:  sessions,
		stats:     agg,
		summaries: ring,
		pipeline:  pipeline.New(sessions, agg, ring, pipelineOpts...),
		poller:    poller.New(sessions, cfg.PollDuration()),
	}
}

func (c *Controller) Sessions() *session.Manager   { return c.sessions }
func (c *Controller) Stats() *stats.Aggregator     { return c.stats }
func (c *Controller) Summaries() *summary.Ring     { return c.summaries }
func (c *Controller) Pipeline() *pipeline.Pipeline { return c.pipeline }

// Start launches the statistics poller.
func (c *Controller) Start(ctx context.Context) {
	c.poller.Start(ctx)
}

// Stop halts the statistics poller.
func (c *Controller) Stop() {
	c.poller.Stop()
}

// Dispatch routes one event to the component that owns it. Events of a
// single switch must be dispatched in arrival order.
func (c *Controller) Dispatch(ev model.Event) error {
	switch e := ev.(type) {
	case model.FeaturesReplyEvent:
		log.WithFields(log.Fields{"dpid": e.DPID, "buffers": e.NumBuffers, "tables": e.NumTables}).Info("Switch features received.")
		if _, err := c.sessions.Connect(e.DPID, e.Datapath); err != nil {
			if e.Datapath != nil {
				e.Datapath.Close()
			}
			return err
		}
		return nil
	case model.PacketInEvent:
		return c.pipeline.HandlePacketIn(e)
	case model.FlowStatsReplyEvent:
		return c.sessions.ApplyFlowStatsReply(e.DPID, e.Datapath, e.Entries)
	case model.PortStatsReplyEvent:
		return c.sessions.ApplyPortStatsReply(e.DPID, e.Datapath, e.Entries)
	case model.ErrorEvent:
		log.WithFields(log.Fields{"dpid": e.DPID, "type": e.Type, "code": e.Code}).Warn("OpenFlow error received from switch.")
		return nil
	case model.DisconnectEvent:
		if e.Err != nil {
			log.WithField("dpid", e.DPID).Debugf("Connection closed: %v", e.Err)
		}
		c.sessions.Disconnect(e.DPID, e.Datapath)
		return nil
	default:
		return errors.Errorf("unsupported event %T", ev)
	}
}

// Clear resets the protocol counters, their history and the packet summaries.
func (c *Controller) Clear() {
	c.stats.Clear()
	c.summaries.Clear()
	log.Info("Protocol statistics and packet summaries cleared.")
}

// Snapshot returns a copy of the aggregate state for export.
func (c *Controller) Snapshot() *model.Snapshot {
	return &model.Snapshot{
		Timestamp: time.Now(),
		Protocols: c.stats.Counters(),
		Switches:  c.sessions.Snapshots(),
	}
}
