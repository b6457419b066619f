package model

import (
	"net"
	"time"
)

// Headers holds the header fields extracted from a single packet. A nil
// pointer or a false Has* flag means the corresponding layer was absent.
type Headers struct {
	HasEthernet bool
	EthSrc      net.HardwareAddr
	EthDst      net.HardwareAddr
	EtherType   uint16

	HasIPv4 bool
	IPSrc   net.IP
	IPDst   net.IP
	IPProto uint8

	HasTCP  bool
	TCPSrc  uint16
	TCPDst  uint16
	HasUDP  bool
	UDPSrc  uint16
	UDPDst  uint16
	HasICMP bool
}

// IsIPv6 reports whether the Ethernet frame carries IPv6.
func (h *Headers) IsIPv6() bool {
	return h.HasEthernet && h.EtherType == EtherTypeIPv6
}

const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeIPv6 uint16 = 0x86dd
)

// PacketSummary is the metadata retained for a single packet-in.
// Optional fields are pointers so that absent headers encode as JSON null.
type PacketSummary struct {
	Timestamp float64 `json:"timestamp"`
	DPID      uint64  `json:"dpid"`
	InPort    uint32  `json:"in_port"`
	EthSrc    *string `json:"eth_src"`
	EthDst    *string `json:"eth_dst"`
	EthType   *string `json:"eth_type"`
	IPSrc     *string `json:"ip_src"`
	IPDst     *string `json:"ip_dst"`
	IPProto   *uint8  `json:"ip_proto"`
	SrcPort   *uint16 `json:"src_port"`
	DstPort   *uint16 `json:"dst_port"`
	PacketLen int     `json:"packet_len"`
	Protocol  Tag     `json:"protocol_identified"`
}

// Time returns the summary timestamp as a time.Time.
func (s *PacketSummary) Time() time.Time {
	sec := int64(s.Timestamp)
	nsec := int64((s.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
