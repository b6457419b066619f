package session

import (
	"OFSpectra/internal/engine/learning"
	"OFSpectra/internal/model"
	"sync"
	"time"
)

// Switch is the controller-side record of one datapath connection.
type Switch struct {
	dpid        uint64
	macs        *learning.MACTable
	datapath    model.Datapath
	connectedAt time.Time

	mu    sync.RWMutex
	state model.SwitchState
	flows []model.FlowEntrySummary
	ports []model.PortStatSummary
}

func newSwitch(dpid uint64, dp model.Datapath, macs *learning.MACTable) *Switch {
	return &Switch{
		dpid:        dpid,
		macs:        macs,
		datapath:    dp,
		connectedAt: time.Now(),
		state:       model.SwitchConnecting,
		flows:       []model.FlowEntrySummary{},
		ports:       []model.PortStatSummary{},
	}
}

func (s *Switch) DPID() uint64 { return s.dpid }

// Datapath returns the outbound channel of the connection that created this record.
func (s *Switch) Datapath() model.Datapath { return s.datapath }

// MACs returns the switch's MAC learning table.
func (s *Switch) MACs() *learning.MACTable { return s.macs }

func (s *Switch) ConnectedAt() time.Time { return s.connectedAt }

func (s *Switch) State() model.SwitchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Switch) setState(state model.SwitchState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Flows returns a copy of the last flow statistics reply.
func (s *Switch) Flows() []model.FlowEntrySummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.FlowEntrySummary, len(s.flows))
	copy(out, s.flows)
	return out
}

// Ports returns a copy of the last port statistics reply.
func (s *Switch) Ports() []model.PortStatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PortStatSummary, len(s.ports))
	copy(out, s.ports)
	return out
}

func (s *Switch) replaceFlows(entries []model.FlowEntrySummary) {
	flows := make([]model.FlowEntrySummary, len(entries))
	copy(flows, entries)
	s.mu.Lock()
	s.flows = flows
	s.mu.Unlock()
}

func (s *Switch) replacePorts(entries []model.PortStatSummary) {
	ports := make([]model.PortStatSummary, len(entries))
	copy(ports, entries)
	s.mu.Lock()
	s.ports = ports
	s.mu.Unlock()
}

// Info returns a read-only view of the switch.
func (s *Switch) Info() model.SwitchInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.SwitchInfo{
		DPID:      s.dpid,
		State:     s.state,
		PortCount: len(s.ports),
		FlowCount: len(s.flows),
		MACCount:  s.macs.Len(),
	}
}

// Snapshot returns the exportable state of the switch.
func (s *Switch) Snapshot() model.SwitchSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flows := make([]model.FlowEntrySummary, len(s.flows))
	copy(flows, s.flows)
	ports := make([]model.PortStatSummary, len(s.ports))
	copy(ports, s.ports)
	return model.SwitchSnapshot{
		DPID:  s.dpid,
		State: s.state.String(),
		Flows: flows,
		Ports: ports,
	}
}
