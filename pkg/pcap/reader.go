// Package pcap reads capture files as packet-in events and records packet-in
// frames to capture files.
package pcap

import (
	"OFSpectra/internal/model"
	"io"
	"os"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// Frame is one captured packet.
type Frame struct {
	Timestamp time.Time
	Data      []byte
}

// Reader reads Ethernet frames from a pcap file.
type Reader struct {
	file   *os.File
	reader *pcapgo.Reader
}

// NewReader opens the capture file at filePath.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open capture file")
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to read capture header")
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		f.Close()
		return nil, errors.Errorf("unsupported link type %s", r.LinkType())
	}
	return &Reader{file: f, reader: r}, nil
}

// Close closes the capture file.
func (r *Reader) Close() {
	r.file.Close()
}

// Next returns the next frame, or io.EOF at the end of the file.
func (r *Reader) Next() (Frame, error) {
	data, ci, err := r.reader.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, errors.Wrap(err, "failed to read packet")
	}
	return Frame{Timestamp: ci.Timestamp, Data: data}, nil
}

// ReadEvents sends every frame as a packet-in from dpid/inPort to out and
// closes out when the file is exhausted. The returned error is nil at EOF.
func (r *Reader) ReadEvents(dpid uint64, inPort uint32, out chan<- model.PacketInEvent) error {
	defer close(out)
	for {
		frame, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		out <- model.PacketInEvent{
			DPID:     dpid,
			InPort:   inPort,
			BufferID: model.NoBuffer,
			Data:     frame.Data,
		}
	}
}
