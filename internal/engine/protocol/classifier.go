package protocol

import "OFSpectra/internal/model"

// tcpPorts is the TCP well-known port table in precedence order.
var tcpPorts = []struct {
	port uint16
	tag  model.Tag
}{
	{80, model.TagHTTP},
	{443, model.TagHTTPS},
	{21, model.TagFTP},
	{25, model.TagSMTP},
	{110, model.TagPOP3},
	{143, model.TagIMAP},
	{22, model.TagSSH},
}

// udpPorts is the UDP well-known port table in precedence order.
var udpPorts = []struct {
	ports []uint16
	tag   model.Tag
}{
	{[]uint16{53}, model.TagDNS},
	{[]uint16{67, 68}, model.TagDHCP},
}

// Classify maps parsed header fields to exactly one protocol tag.
// A port matches when it appears on either side of the connection.
func Classify(h *model.Headers) model.Tag {
	if h == nil || !h.HasIPv4 {
		return model.TagOther
	}
	if h.HasTCP {
		if tag, ok := matchTCP(h.TCPSrc, h.TCPDst); ok {
			return tag
		}
	}
	if h.HasUDP {
		if tag, ok := matchUDP(h.UDPSrc, h.UDPDst); ok {
			return tag
		}
	}
	if h.HasICMP {
		return model.TagICMP
	}
	return model.TagOther
}

// ClassifyMatch derives a protocol tag from the numeric transport-port
// fields of a flow match. ICMP cannot be told apart here, so anything
// without a known port is other.
func ClassifyMatch(m model.FlowMatch) model.Tag {
	if m.TCPSrc != nil || m.TCPDst != nil {
		if tag, ok := matchTCP(portOrZero(m.TCPSrc), portOrZero(m.TCPDst)); ok {
			return tag
		}
	}
	if m.UDPSrc != nil || m.UDPDst != nil {
		if tag, ok := matchUDP(portOrZero(m.UDPSrc), portOrZero(m.UDPDst)); ok {
			return tag
		}
	}
	return model.TagOther
}

func matchTCP(src, dst uint16) (model.Tag, bool) {
	for _, e := range tcpPorts {
		if src == e.port || dst == e.port {
			return e.tag, true
		}
	}
	return "", false
}

func matchUDP(src, dst uint16) (model.Tag, bool) {
	for _, e := range udpPorts {
		for _, p := range e.ports {
			if src == p || dst == p {
				return e.tag, true
			}
		}
	}
	return "", false
}

// portOrZero returns 0 for an absent field; port 0 never matches the tables.
func portOrZero(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}
