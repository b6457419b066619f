// Package session tracks the switches attached to the controller and issues
// the control messages that are tied to a switch's lifecycle.
package session

import (
	"OFSpectra/internal/engine/learning"
	"OFSpectra/internal/model"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnknownSwitch   = errors.New("unknown switch")
	ErrSwitchNotActive = errors.New("switch is not active")
)

// Priorities of the rules installed on every new switch.
const (
	HTTPRulePriority      uint16 = 10
	TableMissRulePriority uint16 = 0
)

// Listener is notified when a switch becomes active or goes away.
type Listener interface {
	SwitchUp(dpid uint64)
	SwitchDown(dpid uint64)
}

// BaselineRules returns the flow rules installed on every switch at connect
// time: TCP/80 to the controller and a table-miss rule to the controller.
func BaselineRules() []model.FlowRule {
	ethType := model.EtherTypeIPv4
	ipProto := uint8(6)
	httpPort := uint16(80)
	return []model.FlowRule{
		{
			Priority: HTTPRulePriority,
			Match:    model.FlowMatch{EtherType: &ethType, IPProto: &ipProto, TCPDst: &httpPort},
			OutPort:  model.PortController,
			MaxLen:   model.MaxLenNoBuffer,
		},
		{
			Priority: TableMissRulePriority,
			Match:    model.FlowMatch{},
			OutPort:  model.PortController,
			MaxLen:   model.MaxLenNoBuffer,
		},
	}
}

// Manager owns the set of known switches. Disconnected switches are kept so
// that their last statistics remain queryable.
type Manager struct {
	mu          sync.RWMutex
	switches    map[uint64]*Switch
	macCapacity int

	listenersMu sync.RWMutex
	listeners   []Listener
}

// NewManager creates a Manager. macCapacity bounds each switch's MAC table
// (0 means unbounded).
func NewManager(macCapacity int) *Manager {
	return &Manager{
		switches:    make(map[uint64]*Switch),
		macCapacity: macCapacity,
	}
}

// AddListener registers l for switch up/down notifications.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

// Connect registers a switch that completed the handshake and installs the
// baseline rules. Any previous record for the same dpid is replaced by a
// fresh one. If a rule cannot be sent the switch stays in the connecting
// state and the error is returned.
func (m *Manager) Connect(dpid uint64, dp model.Datapath) (*Switch, error) {
	if dp == nil {
		return nil, errors.Errorf("switch %#x: nil datapath", dpid)
	}
	macs, err := learning.NewMACTable(m.macCapacity)
	if err != nil {
		return nil, errors.Wrapf(err, "switch %#x", dpid)
	}
	sw := newSwitch(dpid, dp, macs)

	m.mu.Lock()
	if old, ok := m.switches[dpid]; ok {
		log.WithField("dpid", dpid).Infof("Replacing %s session record.", old.State())
	}
	m.switches[dpid] = sw
	m.mu.Unlock()

	for _, rule := range BaselineRules() {
		if err := dp.InstallFlow(rule); err != nil {
			return sw, errors.Wrapf(err, "switch %#x: failed to install priority %d rule", dpid, rule.Priority)
		}
	}
	sw.setState(model.SwitchActive)
	log.WithField("dpid", dpid).Info("Switch connected and baseline rules installed.")

	m.notify(func(l Listener) { l.SwitchUp(dpid) })
	return sw, nil
}

// Disconnect marks the switch as disconnected. When dp is not nil and no
// longer matches the switch's current connection the call is ignored.
func (m *Manager) Disconnect(dpid uint64, dp model.Datapath) {
	m.mu.RLock()
	sw, ok := m.switches[dpid]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if dp != nil && sw.Datapath() != dp {
		log.WithField("dpid", dpid).Debug("Ignoring disconnect of a superseded connection.")
		return
	}
	if sw.State() == model.SwitchDisconnected {
		return
	}
	sw.setState(model.SwitchDisconnected)
	log.WithField("dpid", dpid).Info("Switch disconnected.")

	m.notify(func(l Listener) { l.SwitchDown(dpid) })
}

func (m *Manager) notify(fn func(Listener)) {
	m.listenersMu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

// RequestStats asks an active switch for its flow statistics and the
// statistics of all its ports. Replies arrive later as events.
func (m *Manager) RequestStats(dpid uint64) error {
	sw, ok := m.Switch(dpid)
	if !ok {
		return errors.Wrapf(ErrUnknownSwitch, "switch %#x", dpid)
	}
	if sw.State() != model.SwitchActive {
		return errors.Wrapf(ErrSwitchNotActive, "switch %#x", dpid)
	}

	dp := sw.Datapath()
	if err := dp.RequestFlowStats(); err != nil {
		log.WithField("dpid", dpid).Warnf("Failed to request flow stats: %v", err)
		return errors.Wrapf(err, "switch %#x: flow stats request", dpid)
	}
	if err := dp.RequestPortStats(model.PortAny); err != nil {
		log.WithField("dpid", dpid).Warnf("Failed to request port stats: %v", err)
		return errors.Wrapf(err, "switch %#x: port stats request", dpid)
	}
	return nil
}

// ApplyFlowStatsReply replaces the switch's flow snapshot with entries.
// Replies from a connection other than dp's current one are ignored, as in
// Disconnect.
func (m *Manager) ApplyFlowStatsReply(dpid uint64, dp model.Datapath, entries []model.FlowEntrySummary) error {
	sw, err := m.replyTarget(dpid, dp)
	if sw == nil {
		return err
	}
	sw.replaceFlows(entries)
	return nil
}

// ApplyPortStatsReply replaces the switch's port snapshot with entries.
func (m *Manager) ApplyPortStatsReply(dpid uint64, dp model.Datapath, entries []model.PortStatSummary) error {
	sw, err := m.replyTarget(dpid, dp)
	if sw == nil {
		return err
	}
	sw.replacePorts(entries)
	return nil
}

// replyTarget returns the switch a stats reply applies to, or nil when the
// reply must be dropped.
func (m *Manager) replyTarget(dpid uint64, dp model.Datapath) (*Switch, error) {
	sw, ok := m.Switch(dpid)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSwitch, "switch %#x", dpid)
	}
	if dp != nil && sw.Datapath() != dp {
		log.WithField("dpid", dpid).Debug("Ignoring stats reply from a superseded connection.")
		return nil, nil
	}
	return sw, nil
}

// Switch returns the record for dpid.
func (m *Manager) Switch(dpid uint64) (*Switch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sw, ok := m.switches[dpid]
	return sw, ok
}

// DPIDs returns the ids of all known switches in ascending order.
func (m *Manager) DPIDs() []uint64 {
	m.mu.RLock()
	ids := make([]uint64, 0, len(m.switches))
	for id := range m.switches {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Manager) sorted() []*Switch {
	ids := m.DPIDs()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Switch, 0, len(ids))
	for _, id := range ids {
		if sw, ok := m.switches[id]; ok {
			out = append(out, sw)
		}
	}
	return out
}

// Switches returns a view of every known switch ordered by dpid.
func (m *Manager) Switches() []model.SwitchInfo {
	switches := m.sorted()
	out := make([]model.SwitchInfo, 0, len(switches))
	for _, sw := range switches {
		out = append(out, sw.Info())
	}
	return out
}

// Snapshots returns the exportable state of every known switch ordered by dpid.
func (m *Manager) Snapshots() []model.SwitchSnapshot {
	switches := m.sorted()
	out := make([]model.SwitchSnapshot, 0, len(switches))
	for _, sw := range switches {
		out = append(out, sw.Snapshot())
	}
	return out
}

// ActiveCount returns the number of switches in the active state.
func (m *Manager) ActiveCount() int {
	n := 0
	for _, sw := range m.sorted() {
		if sw.State() == model.SwitchActive {
			n++
		}
	}
	return n
}

// Flows returns the cached flow entries of dpid.
func (m *Manager) Flows(dpid uint64) ([]model.FlowEntrySummary, error) {
	sw, ok := m.Switch(dpid)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSwitch, "switch %#x", dpid)
	}
	return sw.Flows(), nil
}

// Ports returns the cached port statistics of dpid.
func (m *Manager) Ports(dpid uint64) ([]model.PortStatSummary, error) {
	sw, ok := m.Switch(dpid)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSwitch, "switch %#x", dpid)
	}
	return sw.Ports(), nil
}
