package pcap

import (
	"OFSpectra/internal/model"
	"OFSpectra/internal/testutil"
	"bytes"
	"testing"
	"time"
)

func TestRecordAndReplay(t *testing.T) {
	rec, err := NewRecorder(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	frames := [][]byte{
		testutil.Build(testutil.Frame{Transport: testutil.TCP, DstPort: 80, Size: 120}),
		testutil.Build(testutil.Frame{Transport: testutil.UDP, DstPort: 53, Size: 90}),
		testutil.Build(testutil.Frame{Transport: testutil.ICMP}),
	}
	base := time.Unix(1700000000, 0)
	for i, f := range frames {
		rec.RecordFrame(base.Add(time.Duration(i)*time.Second), f)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	reader, err := NewReader(rec.Path())
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	first, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !first.Timestamp.Equal(base) {
		t.Errorf("Expected timestamp %v, got %v", base, first.Timestamp)
	}

	out := make(chan model.PacketInEvent, len(frames))
	if err := reader.ReadEvents(7, 2, out); err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	var events []model.PacketInEvent
	for ev := range out {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("Expected the 2 remaining frames, got %d", len(events))
	}
	for i, ev := range events {
		if ev.DPID != 7 || ev.InPort != 2 || ev.BufferID != model.NoBuffer {
			t.Errorf("Unexpected event metadata %+v", ev)
		}
		if !bytes.Equal(ev.Data, frames[i+1]) {
			t.Errorf("Frame %d differs after replay", i+1)
		}
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	rec, err := NewRecorder(t.TempDir(), 1)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	frame := testutil.Build(testutil.Frame{Transport: testutil.TCP, DstPort: 22})
	for i := 0; i < 1000; i++ {
		rec.RecordFrame(time.Now(), frame)
	}
	rec.Stop()
	rec.Stop()

	reader, err := NewReader(rec.Path())
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	written := 0
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		written++
	}
	if uint64(written)+rec.Dropped() != 1000 {
		t.Errorf("Expected written+dropped = 1000, got %d+%d", written, rec.Dropped())
	}
}

func TestNewReaderMissingFile(t *testing.T) {
	if _, err := NewReader("does-not-exist.pcap"); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
