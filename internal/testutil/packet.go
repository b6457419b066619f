// Package testutil builds raw frames for tests and the replay tool's self-checks.
package testutil

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Transport selects the layer-4 header of a generated frame.
type Transport int

const (
	None Transport = iota
	TCP
	UDP
	ICMP
)

// Frame describes a frame to generate. Zero values get sensible defaults.
type Frame struct {
	SrcMAC    string
	DstMAC    string
	SrcIP     string
	DstIP     string
	IPv6      bool
	NoIP      bool
	Transport Transport
	SrcPort   uint16
	DstPort   uint16
	// Size pads the payload so that the whole frame is Size bytes long.
	// Frames shorter than 60 bytes are padded by the Ethernet layer.
	Size int
}

// Build serializes f into an Ethernet frame.
func Build(f Frame) []byte {
	srcMAC := mustMAC(f.SrcMAC, "00:00:00:00:00:01")
	dstMAC := mustMAC(f.DstMAC, "00:00:00:00:00:02")

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	stack := []gopacket.SerializableLayer{eth}
	headerLen := 14

	var netLayer gopacket.NetworkLayer
	proto := layers.IPProtocolTCP
	switch f.Transport {
	case UDP:
		proto = layers.IPProtocolUDP
	case ICMP:
		proto = layers.IPProtocolICMPv4
	}

	switch {
	case f.NoIP:
		eth.EthernetType = layers.EthernetTypeARP
		arp := &layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: net.ParseIP(orDefault(f.SrcIP, "10.0.0.1")).To4(),
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    net.ParseIP(orDefault(f.DstIP, "10.0.0.2")).To4(),
		}
		return serialize(append(stack, arp))
	case f.IPv6:
		eth.EthernetType = layers.EthernetTypeIPv6
		if proto == layers.IPProtocolICMPv4 {
			proto = layers.IPProtocolICMPv6
		}
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: proto,
			SrcIP:      net.ParseIP(orDefault(f.SrcIP, "fe80::1")),
			DstIP:      net.ParseIP(orDefault(f.DstIP, "fe80::2")),
		}
		stack = append(stack, ip)
		netLayer = ip
		headerLen += 40
	default:
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: proto,
			SrcIP:    net.ParseIP(orDefault(f.SrcIP, "10.0.0.1")).To4(),
			DstIP:    net.ParseIP(orDefault(f.DstIP, "10.0.0.2")).To4(),
		}
		stack = append(stack, ip)
		netLayer = ip
		headerLen += 20
	}

	switch f.Transport {
	case TCP:
		tcp := &layers.TCP{SrcPort: layers.TCPPort(f.SrcPort), DstPort: layers.TCPPort(f.DstPort), Window: 1024, SYN: true}
		tcp.SetNetworkLayerForChecksum(netLayer)
		stack = append(stack, tcp)
		headerLen += 20
	case UDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(f.SrcPort), DstPort: layers.UDPPort(f.DstPort)}
		udp.SetNetworkLayerForChecksum(netLayer)
		stack = append(stack, udp)
		headerLen += 8
	case ICMP:
		if f.IPv6 {
			icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
			icmp.SetNetworkLayerForChecksum(netLayer)
			stack = append(stack, icmp)
		} else {
			stack = append(stack, &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1})
		}
		headerLen += 8
	}

	if pad := f.Size - headerLen; pad > 0 {
		stack = append(stack, gopacket.Payload(make([]byte, pad)))
	}
	return serialize(stack)
}

func serialize(stack []gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func mustMAC(v, def string) net.HardwareAddr {
	mac, err := net.ParseMAC(orDefault(v, def))
	if err != nil {
		panic(err)
	}
	return mac
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// MustMAC parses s and panics on error.
func MustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}
