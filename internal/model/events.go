package model

// Event is a notification delivered by the OpenFlow substrate. The set of
// implementations is closed; consumers switch on the concrete type.
type Event interface {
	SwitchID() uint64
	event()
}

// FeaturesReplyEvent reports a switch that completed the handshake.
type FeaturesReplyEvent struct {
	DPID       uint64
	NumBuffers uint32
	NumTables  uint8
	Datapath   Datapath
}

// PacketInEvent carries a packet the switch sent to the controller.
type PacketInEvent struct {
	DPID     uint64
	InPort   uint32
	BufferID uint32
	Data     []byte
}

// FlowStatsReplyEvent carries a complete (reassembled) flow statistics reply.
// Datapath is the connection the reply arrived on.
type FlowStatsReplyEvent struct {
	DPID     uint64
	Datapath Datapath
	Entries  []FlowEntrySummary
}

// PortStatsReplyEvent carries a complete (reassembled) port statistics reply.
type PortStatsReplyEvent struct {
	DPID     uint64
	Datapath Datapath
	Entries  []PortStatSummary
}

// ErrorEvent carries an OpenFlow error message.
type ErrorEvent struct {
	DPID uint64
	Type uint16
	Code uint16
	Data []byte
}

// DisconnectEvent reports that the control channel to a switch is gone.
// Datapath identifies the connection that went away so that a late event
// does not tear down a newer session for the same dpid.
type DisconnectEvent struct {
	DPID     uint64
	Datapath Datapath
	Err      error
}

func (e FeaturesReplyEvent) SwitchID() uint64  { return e.DPID }
func (e PacketInEvent) SwitchID() uint64       { return e.DPID }
func (e FlowStatsReplyEvent) SwitchID() uint64 { return e.DPID }
func (e PortStatsReplyEvent) SwitchID() uint64 { return e.DPID }
func (e ErrorEvent) SwitchID() uint64          { return e.DPID }
func (e DisconnectEvent) SwitchID() uint64     { return e.DPID }

func (FeaturesReplyEvent) event()  {}
func (PacketInEvent) event()       {}
func (FlowStatsReplyEvent) event() {}
func (PortStatsReplyEvent) event() {}
func (ErrorEvent) event()          {}
func (DisconnectEvent) event()     {}
