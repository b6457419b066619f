package protocol

import (
	"OFSpectra/internal/model"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket uses gopacket to decode a raw Ethernet frame and extract the
// header fields the controller needs. Missing or undecodable layers are
// reported as absent; it never fails.
func ParsePacket(data []byte) *model.Headers {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	h := &model.Headers{}

	if l := packet.Layer(layers.LayerTypeEthernet); l != nil {
		eth := l.(*layers.Ethernet)
		h.HasEthernet = true
		h.EthSrc = eth.SrcMAC
		h.EthDst = eth.DstMAC
		h.EtherType = uint16(eth.EthernetType)
	}

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		h.HasIPv4 = true
		h.IPSrc = ip.SrcIP
		h.IPDst = ip.DstIP
		h.IPProto = uint8(ip.Protocol)
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		h.HasTCP = true
		h.TCPSrc = uint16(tcp.SrcPort)
		h.TCPDst = uint16(tcp.DstPort)
	}
	if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		h.HasUDP = true
		h.UDPSrc = uint16(udp.SrcPort)
		h.UDPDst = uint16(udp.DstPort)
	}
	if packet.Layer(layers.LayerTypeICMPv4) != nil {
		h.HasICMP = true
	}

	return h
}

// Summarize builds the PacketSummary kept for a packet-in.
func Summarize(ts time.Time, dpid uint64, inPort uint32, length int, h *model.Headers, tag model.Tag) model.PacketSummary {
	s := model.PacketSummary{
		Timestamp: float64(ts.UnixNano()) / 1e9,
		DPID:      dpid,
		InPort:    inPort,
		PacketLen: length,
		Protocol:  tag,
	}
	if h == nil {
		return s
	}

	if h.HasEthernet {
		src, dst := h.EthSrc.String(), h.EthDst.String()
		ethType := fmt.Sprintf("%#x", h.EtherType)
		s.EthSrc, s.EthDst, s.EthType = &src, &dst, &ethType
	}

	if h.HasIPv4 {
		src, dst := h.IPSrc.String(), h.IPDst.String()
		proto := h.IPProto
		s.IPSrc, s.IPDst, s.IPProto = &src, &dst, &proto

		if h.HasTCP {
			sp, dp := h.TCPSrc, h.TCPDst
			s.SrcPort, s.DstPort = &sp, &dp
		} else if h.HasUDP {
			sp, dp := h.UDPSrc, h.UDPDst
			s.SrcPort, s.DstPort = &sp, &dp
		}
	}
	return s
}
