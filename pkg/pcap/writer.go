package pcap

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const snapLen = 65535

// Recorder writes frames to a pcap file from a single goroutine. Frames are
// dropped when its queue is full.
type Recorder struct {
	file     *os.File
	writer   *pcapgo.Writer
	frames   chan Frame
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	dropped uint64
}

// NewRecorder creates a timestamped capture file in dir and starts writing.
func NewRecorder(dir string, bufferSize int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create capture directory")
	}
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	name := fmt.Sprintf("%s.pcap", time.Now().Format("2006-01-02_15-04-05"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create capture file")
	}
	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "failed to write capture header")
	}

	r := &Recorder{
		file:   file,
		writer: w,
		frames: make(chan Frame, bufferSize),
	}
	r.wg.Add(1)
	go r.run()
	log.Printf("Recording packet-in frames to %s", file.Name())
	return r, nil
}

// Path returns the capture file path.
func (r *Recorder) Path() string { return r.file.Name() }

// RecordFrame queues a frame for writing.
func (r *Recorder) RecordFrame(ts time.Time, data []byte) {
	select {
	case r.frames <- Frame{Timestamp: ts, Data: data}:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Dropped returns the number of frames dropped because the queue was full.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for f := range r.frames {
		n := len(f.Data)
		if n > snapLen {
			n = snapLen
		}
		ci := gopacket.CaptureInfo{Timestamp: f.Timestamp, CaptureLength: n, Length: len(f.Data)}
		if err := r.writer.WritePacket(ci, f.Data[:n]); err != nil {
			log.Warnf("Failed to write captured frame: %v", err)
		}
	}
}

// Stop flushes the queued frames and closes the file. RecordFrame must not
// be called after Stop.
func (r *Recorder) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.frames)
		r.wg.Wait()
		err = r.file.Close()
		if dropped := r.Dropped(); dropped > 0 {
			log.Warnf("Capture dropped %d frames.", dropped)
		}
	})
	return err
}
