package main

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/controller"
	"OFSpectra/internal/controller/pipeline"
	"OFSpectra/internal/model"
	"OFSpectra/pkg/pcap"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// discardDatapath stands in for a switch: commands are counted, not sent.
type discardDatapath struct {
	packetOuts atomic.Uint64
}

func (d *discardDatapath) InstallFlow(model.FlowRule) error { return nil }
func (d *discardDatapath) SendPacketOut(model.PacketOut) error {
	d.packetOuts.Add(1)
	return nil
}
func (d *discardDatapath) RequestFlowStats() error       { return nil }
func (d *discardDatapath) RequestPortStats(uint32) error { return nil }
func (d *discardDatapath) Close() error                  { return nil }

type report struct {
	Packets    int                   `json:"packets"`
	PacketOuts uint64                `json:"packet_outs"`
	Protocols  model.ProtocolStats   `json:"protocols"`
	Recent     []model.PacketSummary `json:"recent"`
}

// pcap-replay feeds a capture file through the packet-in pipeline of an
// offline controller and prints the resulting protocol statistics.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	dpid := flag.Uint64("dpid", 1, "datapath id the frames are attributed to")
	inPort := flag.Uint("in-port", 1, "ingress port the frames are attributed to")
	recent := flag.Int("recent", 10, "number of packet summaries to print")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: pcap-replay [flags] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Log.ConfigureLogger(); err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}

	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()

	// Summaries carry the capture time rather than the replay time.
	var current time.Time
	ctrl := controller.New(&cfg.Controller, pipeline.WithClock(func() time.Time { return current }))

	dp := &discardDatapath{}
	if err := ctrl.Dispatch(model.FeaturesReplyEvent{DPID: *dpid, Datapath: dp}); err != nil {
		log.Fatalf("Failed to register replay switch: %v", err)
	}

	log.Printf("Replaying packets from '%s'...", pcapFilePath)
	packets := 0
	for {
		frame, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read pcap file: %v", err)
		}
		current = frame.Timestamp
		ev := model.PacketInEvent{DPID: *dpid, InPort: uint32(*inPort), BufferID: model.NoBuffer, Data: frame.Data}
		if err := ctrl.Dispatch(ev); err != nil {
			log.Warnf("Failed to process packet %d: %v", packets, err)
		}
		packets++
	}
	log.Printf("Finished replaying %d packets.", packets)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report{
		Packets:    packets,
		PacketOuts: dp.packetOuts.Load(),
		Protocols:  ctrl.Stats().Counters(),
		Recent:     ctrl.Summaries().Recent(*recent),
	})
}
