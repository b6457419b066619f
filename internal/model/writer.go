package model

import "time"

// SwitchSnapshot is the exported state of one switch at snapshot time.
type SwitchSnapshot struct {
	DPID  uint64             `json:"dpid"`
	State string             `json:"state"`
	Flows []FlowEntrySummary `json:"flows"`
	Ports []PortStatSummary  `json:"ports"`
}

// Snapshot is a point-in-time copy of the controller's aggregate state.
type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	Protocols ProtocolStats    `json:"protocols"`
	Switches  []SwitchSnapshot `json:"switches"`
}

// Writer defines a generic interface for exporting snapshots to an external store.
type Writer interface {
	// Write takes a snapshot and exports it.
	Write(snapshot *Snapshot) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration

	// Close releases the writer's resources.
	Close() error
}
