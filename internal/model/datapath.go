package model

// Reserved OpenFlow 1.3 port numbers and buffer ids used by the controller.
const (
	PortNormal     uint32 = 0xfffffffa
	PortFlood      uint32 = 0xfffffffb
	PortController uint32 = 0xfffffffd
	PortAny        uint32 = 0xffffffff

	NoBuffer uint32 = 0xffffffff

	// MaxLenNoBuffer asks the switch to send the full packet to the controller.
	MaxLenNoBuffer uint16 = 0xffff
)

// FlowRule is a flow-mod ADD with a single apply-actions output instruction.
type FlowRule struct {
	Priority uint16
	Match    FlowMatch
	OutPort  uint32
	MaxLen   uint16
}

// PacketOut instructs the switch to emit a packet. Data is only sent when
// BufferID is NoBuffer.
type PacketOut struct {
	BufferID uint32
	InPort   uint32
	OutPort  uint32
	Data     []byte
}

// Datapath is the outbound half of a switch control channel. Sends are
// fire-and-forget; replies arrive later as events.
type Datapath interface {
	InstallFlow(rule FlowRule) error
	SendPacketOut(out PacketOut) error
	RequestFlowStats() error
	RequestPortStats(port uint32) error
	Close() error
}
