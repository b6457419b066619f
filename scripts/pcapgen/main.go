package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// service is one kind of traffic in the generated mix.
type service struct {
	proto layers.IPProtocol
	port  uint16
}

// The mix covers every protocol the classifier knows, plus unclassified TCP.
var mix = []service{
	{layers.IPProtocolTCP, 80},
	{layers.IPProtocolTCP, 443},
	{layers.IPProtocolTCP, 21},
	{layers.IPProtocolTCP, 25},
	{layers.IPProtocolTCP, 110},
	{layers.IPProtocolTCP, 143},
	{layers.IPProtocolTCP, 22},
	{layers.IPProtocolUDP, 53},
	{layers.IPProtocolUDP, 67},
	{layers.IPProtocolICMPv4, 0},
	{layers.IPProtocolTCP, 8080},
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	hosts := flag.Int("hosts", 8, "Number of distinct hosts (MAC/IP pairs)")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	log.Printf("Generating %d packets into %s...", *packetCount, *outputFile)

	start := time.Now()
	for i := 0; i < *packetCount; i++ {
		src, dst := rng.Intn(*hosts), rng.Intn(*hosts)
		svc := mix[rng.Intn(len(mix))]

		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, byte(src + 1)},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, byte(dst + 1)},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			SrcIP:    net.IP{10, 0, 0, byte(src + 1)},
			DstIP:    net.IP{10, 0, 0, byte(dst + 1)},
			Version:  4,
			TTL:      64,
			Protocol: svc.proto,
		}

		var transport gopacket.SerializableLayer
		switch svc.proto {
		case layers.IPProtocolTCP:
			tcp := &layers.TCP{
				SrcPort: layers.TCPPort(rng.Intn(65535-1024) + 1024),
				DstPort: layers.TCPPort(svc.port),
				Seq:     rng.Uint32(),
				SYN:     true,
				Window:  14600,
			}
			tcp.SetNetworkLayerForChecksum(ip)
			transport = tcp
		case layers.IPProtocolUDP:
			udp := &layers.UDP{
				SrcPort: layers.UDPPort(rng.Intn(65535-1024) + 1024),
				DstPort: layers.UDPPort(svc.port),
			}
			udp.SetNetworkLayerForChecksum(ip)
			transport = udp
		default:
			transport = &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
		}

		payload := make([]byte, rng.Intn(1400)+50)
		rng.Read(payload)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 100 * time.Millisecond),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pcapWriter.WritePacket(ci, buf.Bytes()); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}
