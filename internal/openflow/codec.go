package openflow

import (
	"OFSpectra/internal/engine/protocol"
	"OFSpectra/internal/model"
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	"github.com/pkg/errors"
)

// OXM basic class field numbers used by the controller.
const (
	oxmInPort  = 0
	oxmEthType = 5
	oxmIPProto = 10
	oxmTCPSrc  = 13
	oxmTCPDst  = 14
	oxmUDPSrc  = 15
	oxmUDPDst  = 16
)

const (
	headerLen          = 8
	multipartHeaderLen = 16
	multipartReplyMore = 1
	multipartPortStats = 4
	portStatsEntryLen  = 112
	tableAll           = 0xff
	groupAny           = 0xffffffff
)

// flowModFor builds an OFPFC_ADD flow-mod for rule.
func flowModFor(rule model.FlowRule) *openflow13.FlowMod {
	fm := openflow13.NewFlowMod()
	fm.Priority = rule.Priority
	fm.Match = *matchFor(rule.Match)

	out := openflow13.NewActionOutput(rule.OutPort)
	out.MaxLen = rule.MaxLen
	instr := openflow13.NewInstrApplyActions()
	instr.AddAction(out, false)
	fm.AddInstruction(instr)
	return fm
}

func matchFor(m model.FlowMatch) *openflow13.Match {
	match := openflow13.NewMatch()
	if m.InPort != nil {
		match.AddField(*openflow13.NewInPortField(*m.InPort))
	}
	if m.EtherType != nil {
		match.AddField(*openflow13.NewEthTypeField(*m.EtherType))
	}
	if m.IPProto != nil {
		match.AddField(*openflow13.NewIpProtoField(*m.IPProto))
	}
	if m.TCPSrc != nil {
		match.AddField(*openflow13.NewTcpSrcField(*m.TCPSrc))
	}
	if m.TCPDst != nil {
		match.AddField(*openflow13.NewTcpDstField(*m.TCPDst))
	}
	if m.UDPSrc != nil {
		match.AddField(*openflow13.NewUdpSrcField(*m.UDPSrc))
	}
	if m.UDPDst != nil {
		match.AddField(*openflow13.NewUdpDstField(*m.UDPDst))
	}
	return match
}

func packetOutFor(p model.PacketOut) *openflow13.PacketOut {
	po := openflow13.NewPacketOut()
	po.BufferId = p.BufferID
	po.InPort = p.InPort
	po.AddAction(openflow13.NewActionOutput(p.OutPort))
	if p.BufferID == model.NoBuffer && len(p.Data) > 0 {
		po.Data = util.NewBuffer(p.Data)
	}
	return po
}

func flowStatsRequest() *openflow13.MultipartRequest {
	body := openflow13.NewFlowStatsRequest()
	body.TableId = tableAll
	body.OutPort = openflow13.P_ANY
	body.OutGroup = groupAny
	return multipartRequest(openflow13.MultipartType_Flow, body)
}

func portStatsRequest(port uint32) *openflow13.MultipartRequest {
	return multipartRequest(multipartPortStats, &portStatsBody{PortNo: port})
}

func multipartRequest(mpType uint16, body util.Message) *openflow13.MultipartRequest {
	req := &openflow13.MultipartRequest{
		Header: openflow13.NewOfp13Header(),
		Type:   mpType,
		Body:   body,
	}
	req.Header.Type = openflow13.Type_MultiPartRequest
	return req
}

// portStatsBody is the ofp_port_stats_request body: a 32-bit port number
// followed by 4 pad bytes.
type portStatsBody struct {
	PortNo uint32
}

func (b *portStatsBody) Len() uint16 {
	return 8
}

func (b *portStatsBody) MarshalBinary() ([]byte, error) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data, b.PortNo)
	return data, nil
}

func (b *portStatsBody) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errors.Errorf("port stats request too short: %d bytes", len(data))
	}
	b.PortNo = binary.BigEndian.Uint32(data)
	return nil
}

// isPortStatsReply reports whether raw is an OFPMP_PORT_STATS reply part.
func isPortStatsReply(raw []byte) bool {
	return len(raw) >= multipartHeaderLen &&
		raw[1] == openflow13.Type_MultiPartReply &&
		binary.BigEndian.Uint16(raw[8:]) == multipartPortStats
}

// portStatsReply decodes one OFPMP_PORT_STATS reply part. Each entry is
// 112 bytes: port_no, 4 pad bytes, twelve 64-bit counters and the duration.
func portStatsReply(raw []byte) (xid uint32, more bool, entries []model.PortStatSummary, err error) {
	if !isPortStatsReply(raw) {
		return 0, false, nil, errors.New("not a port stats reply")
	}
	xid = binary.BigEndian.Uint32(raw[4:])
	more = binary.BigEndian.Uint16(raw[10:])&multipartReplyMore != 0

	body := raw[multipartHeaderLen:]
	if len(body)%portStatsEntryLen != 0 {
		return xid, more, nil, errors.Errorf("port stats body of %d bytes is not a multiple of %d", len(body), portStatsEntryLen)
	}
	entries = make([]model.PortStatSummary, 0, len(body)/portStatsEntryLen)
	for off := 0; off < len(body); off += portStatsEntryLen {
		e := body[off : off+portStatsEntryLen]
		counter := func(i int) uint64 { return binary.BigEndian.Uint64(e[8+8*i:]) }
		entries = append(entries, model.PortStatSummary{
			PortNo:    binary.BigEndian.Uint32(e),
			RxPackets: counter(0),
			TxPackets: counter(1),
			RxBytes:   counter(2),
			TxBytes:   counter(3),
			RxDropped: counter(4),
			TxDropped: counter(5),
			RxErrors:  counter(6),
			TxErrors:  counter(7),
		})
	}
	return xid, more, entries, nil
}

// dpidFromFeatures turns the 8-byte datapath id of a features reply into an integer.
func dpidFromFeatures(id net.HardwareAddr) (uint64, error) {
	if len(id) != 8 {
		return 0, errors.Errorf("unexpected datapath id length %d", len(id))
	}
	return binary.BigEndian.Uint64(id), nil
}

// packetInData returns the frame carried by a raw OFPT_PACKET_IN message.
// The match is variable-length and padded to 8 bytes, followed by 2 pad bytes.
func packetInData(raw []byte) ([]byte, error) {
	const matchOffset = 24
	if len(raw) < matchOffset+4 {
		return nil, errors.Errorf("packet-in too short: %d bytes", len(raw))
	}
	matchLen := int(binary.BigEndian.Uint16(raw[matchOffset+2:]))
	start := matchOffset + (matchLen+7)/8*8 + 2
	if start > len(raw) {
		return nil, errors.Errorf("packet-in match overruns message: %d > %d", start, len(raw))
	}
	data := make([]byte, len(raw)-start)
	copy(data, raw[start:])
	return data, nil
}

// fieldValue returns the big-endian value of an OXM field.
func fieldValue(f openflow13.MatchField) (uint64, bool) {
	if f.Value == nil {
		return 0, false
	}
	if in, ok := f.Value.(*openflow13.InPortField); ok {
		return uint64(in.InPort), true
	}
	b, err := f.Value.MarshalBinary()
	if err != nil {
		return 0, false
	}
	switch len(b) {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), true
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), true
	default:
		return 0, false
	}
}

// flowMatchFrom extracts the fields the controller understands from an OXM match.
func flowMatchFrom(m openflow13.Match) model.FlowMatch {
	var fm model.FlowMatch
	for _, f := range m.Fields {
		if f.Class != openflow13.OXM_CLASS_OPENFLOW_BASIC {
			continue
		}
		v, ok := fieldValue(f)
		if !ok {
			continue
		}
		switch f.Field {
		case oxmInPort:
			p := uint32(v)
			fm.InPort = &p
		case oxmEthType:
			e := uint16(v)
			fm.EtherType = &e
		case oxmIPProto:
			p := uint8(v)
			fm.IPProto = &p
		case oxmTCPSrc:
			p := uint16(v)
			fm.TCPSrc = &p
		case oxmTCPDst:
			p := uint16(v)
			fm.TCPDst = &p
		case oxmUDPSrc:
			p := uint16(v)
			fm.UDPSrc = &p
		case oxmUDPDst:
			p := uint16(v)
			fm.UDPDst = &p
		}
	}
	return fm
}

// matchString renders m in a stable key=value form; an empty match is "*".
func matchString(m model.FlowMatch) string {
	var parts []string
	if m.InPort != nil {
		parts = append(parts, fmt.Sprintf("in_port=%d", *m.InPort))
	}
	if m.EtherType != nil {
		parts = append(parts, fmt.Sprintf("eth_type=0x%04x", *m.EtherType))
	}
	if m.IPProto != nil {
		parts = append(parts, fmt.Sprintf("ip_proto=%d", *m.IPProto))
	}
	if m.TCPSrc != nil {
		parts = append(parts, fmt.Sprintf("tcp_src=%d", *m.TCPSrc))
	}
	if m.TCPDst != nil {
		parts = append(parts, fmt.Sprintf("tcp_dst=%d", *m.TCPDst))
	}
	if m.UDPSrc != nil {
		parts = append(parts, fmt.Sprintf("udp_src=%d", *m.UDPSrc))
	}
	if m.UDPDst != nil {
		parts = append(parts, fmt.Sprintf("udp_dst=%d", *m.UDPDst))
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ",")
}

func inPortOf(m openflow13.Match) uint32 {
	if fm := flowMatchFrom(m); fm.InPort != nil {
		return *fm.InPort
	}
	return 0
}

func flowEntryFrom(s *openflow13.FlowStats) model.FlowEntrySummary {
	fm := flowMatchFrom(s.Match)
	return model.FlowEntrySummary{
		TableID:  s.TableId,
		Priority: s.Priority,
		Match:    matchString(fm),
		Fields:   fm,
		Duration: s.DurationSec,
		Packets:  s.PacketCount,
		Bytes:    s.ByteCount,
		Protocol: protocol.ClassifyMatch(fm),
	}
}

// multipartAssembler collects the parts of multipart replies until the
// final part (MORE flag clear) arrives. Completed events carry dp so that
// replies from a superseded connection can be told apart.
type multipartAssembler struct {
	dp    model.Datapath
	flows map[uint32][]model.FlowEntrySummary
	ports map[uint32][]model.PortStatSummary
}

func newMultipartAssembler(dp model.Datapath) *multipartAssembler {
	return &multipartAssembler{
		dp:    dp,
		flows: make(map[uint32][]model.FlowEntrySummary),
		ports: make(map[uint32][]model.PortStatSummary),
	}
}

// add consumes one flow stats reply part and returns the complete reply
// event once the last part is seen. Other reply types yield nil.
func (a *multipartAssembler) add(dpid uint64, m *openflow13.MultipartReply) model.Event {
	if m.Type != openflow13.MultipartType_Flow {
		return nil
	}
	xid := m.Xid
	entries := a.flows[xid]
	for _, body := range m.Body {
		if s, ok := body.(*openflow13.FlowStats); ok {
			entries = append(entries, flowEntryFrom(s))
		}
	}
	if m.Flags&multipartReplyMore != 0 {
		a.flows[xid] = entries
		return nil
	}
	delete(a.flows, xid)
	if entries == nil {
		entries = []model.FlowEntrySummary{}
	}
	return model.FlowStatsReplyEvent{DPID: dpid, Datapath: a.dp, Entries: entries}
}

// addPorts is add for port stats parts decoded by portStatsReply.
func (a *multipartAssembler) addPorts(dpid uint64, xid uint32, more bool, part []model.PortStatSummary) model.Event {
	entries := append(a.ports[xid], part...)
	if more {
		a.ports[xid] = entries
		return nil
	}
	delete(a.ports, xid)
	if entries == nil {
		entries = []model.PortStatSummary{}
	}
	return model.PortStatsReplyEvent{DPID: dpid, Datapath: a.dp, Entries: entries}
}

// parseMessage decodes one framed OpenFlow 1.3 message.
func parseMessage(raw []byte) (msg util.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("malformed message of type %d: %v", raw[1], r)
		}
	}()
	return openflow13.Parse(raw)
}
