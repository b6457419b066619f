package testutil

import (
	"OFSpectra/internal/model"
	"sync"
)

// FakeDatapath records every outbound command instead of sending it.
type FakeDatapath struct {
	mu           sync.Mutex
	Flows        []model.FlowRule
	PacketOuts   []model.PacketOut
	FlowRequests int
	PortRequests []uint32
	Closed       bool

	// Err, when set, is returned by every send.
	Err error
}

func (d *FakeDatapath) InstallFlow(rule model.FlowRule) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Flows = append(d.Flows, rule)
	return nil
}

func (d *FakeDatapath) SendPacketOut(out model.PacketOut) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.PacketOuts = append(d.PacketOuts, out)
	return nil
}

func (d *FakeDatapath) RequestFlowStats() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.FlowRequests++
	return nil
}

func (d *FakeDatapath) RequestPortStats(port uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.PortRequests = append(d.PortRequests, port)
	return nil
}

func (d *FakeDatapath) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// SetErr changes the error returned by subsequent sends.
func (d *FakeDatapath) SetErr(err error) {
	d.mu.Lock()
	d.Err = err
	d.mu.Unlock()
}

// Outs returns a copy of the recorded packet-outs.
func (d *FakeDatapath) Outs() []model.PacketOut {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.PacketOut, len(d.PacketOuts))
	copy(out, d.PacketOuts)
	return out
}

// StatsRequests returns the number of flow and port stats requests sent so far.
func (d *FakeDatapath) StatsRequests() (flows, ports int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.FlowRequests, len(d.PortRequests)
}
