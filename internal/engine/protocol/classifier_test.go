package protocol

import (
	"OFSpectra/internal/model"
	"testing"
)

func tcp(src, dst uint16) *model.Headers {
	return &model.Headers{HasEthernet: true, HasIPv4: true, IPProto: 6, HasTCP: true, TCPSrc: src, TCPDst: dst}
}

func udp(src, dst uint16) *model.Headers {
	return &model.Headers{HasEthernet: true, HasIPv4: true, IPProto: 17, HasUDP: true, UDPSrc: src, UDPDst: dst}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		h    *model.Headers
		want model.Tag
	}{
		{"nil headers", nil, model.TagOther},
		{"no ip", &model.Headers{HasEthernet: true, EtherType: 0x0806}, model.TagOther},
		{"tcp without ip", &model.Headers{HasTCP: true, TCPDst: 80}, model.TagOther},
		{"http dst", tcp(40000, 80), model.TagHTTP},
		{"http src", tcp(80, 40000), model.TagHTTP},
		{"https", tcp(443, 51515), model.TagHTTPS},
		{"ftp", tcp(33333, 21), model.TagFTP},
		{"smtp", tcp(25, 2525), model.TagSMTP},
		{"pop3", tcp(5000, 110), model.TagPOP3},
		{"imap", tcp(143, 5000), model.TagIMAP},
		{"ssh", tcp(5000, 22), model.TagSSH},
		{"http wins over https", tcp(443, 80), model.TagHTTP},
		{"https wins over ssh", tcp(22, 443), model.TagHTTPS},
		{"tcp unknown port", tcp(5000, 6000), model.TagOther},
		{"dns", udp(5353, 53), model.TagDNS},
		{"dns src", udp(53, 5353), model.TagDNS},
		{"dhcp server", udp(68, 67), model.TagDHCP},
		{"dhcp client", udp(5000, 68), model.TagDHCP},
		{"dns wins over dhcp", udp(67, 53), model.TagDNS},
		{"udp on tcp port", udp(5000, 80), model.TagOther},
		{"icmp", &model.Headers{HasIPv4: true, IPProto: 1, HasICMP: true}, model.TagICMP},
		{"ip only", &model.Headers{HasIPv4: true, IPProto: 47}, model.TagOther},
	}

	for _, tt := range tests {
		if got := Classify(tt.h); got != tt.want {
			t.Errorf("%s: Classify() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	h := tcp(1234, 443)
	first := Classify(h)
	for i := 0; i < 10; i++ {
		if got := Classify(h); got != first {
			t.Fatalf("Classify returned %s then %s for the same input", first, got)
		}
	}
}

func TestClassifyMatch(t *testing.T) {
	p := func(v uint16) *uint16 { return &v }

	tests := []struct {
		name string
		m    model.FlowMatch
		want model.Tag
	}{
		{"empty match", model.FlowMatch{}, model.TagOther},
		{"tcp dst 80", model.FlowMatch{TCPDst: p(80)}, model.TagHTTP},
		{"tcp src 443", model.FlowMatch{TCPSrc: p(443)}, model.TagHTTPS},
		{"tcp 22", model.FlowMatch{TCPDst: p(22)}, model.TagSSH},
		{"udp 53", model.FlowMatch{UDPDst: p(53)}, model.TagDNS},
		{"udp 67", model.FlowMatch{UDPSrc: p(67)}, model.TagDHCP},
		{"tcp 8080 is not http", model.FlowMatch{TCPDst: p(8080)}, model.TagOther},
		{"udp 80 is not http", model.FlowMatch{UDPDst: p(80)}, model.TagOther},
	}

	for _, tt := range tests {
		if got := ClassifyMatch(tt.m); got != tt.want {
			t.Errorf("%s: ClassifyMatch() = %s, want %s", tt.name, got, tt.want)
		}
	}
}
