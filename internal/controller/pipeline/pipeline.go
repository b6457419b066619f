// Package pipeline processes packets sent to the controller by a switch.
package pipeline

import (
	"OFSpectra/internal/controller/session"
	"OFSpectra/internal/engine/protocol"
	"OFSpectra/internal/engine/stats"
	"OFSpectra/internal/engine/summary"
	"OFSpectra/internal/model"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SummaryPublisher receives every recorded packet summary.
type SummaryPublisher interface {
	PublishSummary(s model.PacketSummary) error
}

// Pipeline learns source addresses, classifies and records every packet-in
// and sends the packet back to the switch. It never installs flow rules, so
// every packet of a flow keeps reaching the controller.
type Pipeline struct {
	sessions  *session.Manager
	stats     *stats.Aggregator
	summaries *summary.Ring
	publisher SummaryPublisher
	recorder  FrameRecorder

	// unicastKnown sends packets with a learned destination out of that
	// port instead of NORMAL.
	unicastKnown bool
	now          func() time.Time
}

// FrameRecorder receives the raw frame of every packet-in from a known switch.
type FrameRecorder interface {
	RecordFrame(ts time.Time, data []byte)
}

type Option func(*Pipeline)

func WithRecorder(r FrameRecorder) Option {
	return func(pl *Pipeline) { pl.recorder = r }
}

func WithPublisher(p SummaryPublisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

func WithUnicastKnownDestinations(enabled bool) Option {
	return func(pl *Pipeline) { pl.unicastKnown = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

func New(sessions *session.Manager, agg *stats.Aggregator, ring *summary.Ring, opts ...Option) *Pipeline {
	p := &Pipeline{
		sessions:  sessions,
		stats:     agg,
		summaries: ring,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandlePacketIn runs one packet-in through the pipeline.
func (p *Pipeline) HandlePacketIn(ev model.PacketInEvent) error {
	sw, ok := p.sessions.Switch(ev.DPID)
	if !ok {
		return errors.Wrapf(session.ErrUnknownSwitch, "packet-in from switch %#x", ev.DPID)
	}

	now := p.now()
	if p.recorder != nil {
		p.recorder.RecordFrame(now, ev.Data)
	}

	h := protocol.ParsePacket(ev.Data)

	// IPv6 is forwarded untouched: no learning, accounting or summary.
	if h.IsIPv6() {
		return p.forward(sw, ev, model.PortNormal)
	}

	if h.HasEthernet {
		sw.MACs().Learn(h.EthSrc, ev.InPort)
	}

	tag := protocol.Classify(h)
	p.stats.Record(tag, len(ev.Data))

	s := protocol.Summarize(now, ev.DPID, ev.InPort, len(ev.Data), h, tag)
	p.summaries.Record(s)
	if p.publisher != nil {
		if err := p.publisher.PublishSummary(s); err != nil {
			log.WithField("dpid", ev.DPID).Warnf("Failed to publish packet summary: %v", err)
		}
	}

	outPort := model.PortNormal
	if p.unicastKnown && h.HasEthernet {
		if port, found := sw.MACs().Lookup(h.EthDst); found && port != ev.InPort {
			outPort = port
		}
	}
	return p.forward(sw, ev, outPort)
}

func (p *Pipeline) forward(sw *session.Switch, ev model.PacketInEvent, outPort uint32) error {
	if sw.State() != model.SwitchActive {
		log.WithFields(log.Fields{"dpid": ev.DPID, "in_port": ev.InPort}).Debug("Not forwarding packet for inactive switch.")
		return nil
	}
	out := model.PacketOut{
		BufferID: ev.BufferID,
		InPort:   ev.InPort,
		OutPort:  outPort,
	}
	if ev.BufferID == model.NoBuffer {
		out.Data = ev.Data
	}
	if err := sw.Datapath().SendPacketOut(out); err != nil {
		return errors.Wrapf(err, "switch %#x: packet-out", ev.DPID)
	}
	return nil
}
