package model

// SwitchState is the lifecycle state of a switch session.
type SwitchState int

const (
	SwitchConnecting SwitchState = iota
	SwitchActive
	SwitchDisconnected
)

func (s SwitchState) String() string {
	switch s {
	case SwitchConnecting:
		return "connecting"
	case SwitchActive:
		return "active"
	case SwitchDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// FlowMatch is the subset of OXM match fields the controller cares about.
// A nil pointer means the field is not part of the match.
type FlowMatch struct {
	InPort    *uint32 `json:"in_port,omitempty"`
	EtherType *uint16 `json:"eth_type,omitempty"`
	IPProto   *uint8  `json:"ip_proto,omitempty"`
	TCPSrc    *uint16 `json:"tcp_src,omitempty"`
	TCPDst    *uint16 `json:"tcp_dst,omitempty"`
	UDPSrc    *uint16 `json:"udp_src,omitempty"`
	UDPDst    *uint16 `json:"udp_dst,omitempty"`
}

// FlowEntrySummary describes one entry of a flow statistics reply.
type FlowEntrySummary struct {
	TableID  uint8     `json:"table_id"`
	Priority uint16    `json:"priority"`
	Match    string    `json:"match"`
	Fields   FlowMatch `json:"match_fields"`
	Duration uint32    `json:"duration"`
	Packets  uint64    `json:"packets"`
	Bytes    uint64    `json:"bytes"`
	Protocol Tag       `json:"protocol"`
}

// PortStatSummary describes one entry of a port statistics reply.
type PortStatSummary struct {
	PortNo    uint32 `json:"port_no"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxErrors  uint64 `json:"rx_errors"`
	TxErrors  uint64 `json:"tx_errors"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
}

// SwitchInfo is a read-only view of a switch session.
type SwitchInfo struct {
	DPID      uint64
	State     SwitchState
	PortCount int
	FlowCount int
	MACCount  int
}
