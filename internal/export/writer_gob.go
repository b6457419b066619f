package export

import (
	"OFSpectra/internal/model"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// DirTimeFormat names the per-snapshot directories of the gob writer.
const DirTimeFormat = "2006-01-02_15-04-05"

// SummaryData holds the metadata written next to each gob snapshot.
type SummaryData struct {
	Switches     int    `json:"switches"`
	TotalFlows   int    `json:"total_flows"`
	TotalPorts   int    `json:"total_ports"`
	TotalPackets uint64 `json:"total_packets"`
	TotalBytes   uint64 `json:"total_bytes"`
	SnapshotTime string `json:"snapshot_time"`
	WrittenAt    string `json:"written_at"`
}

// GobWriter writes each snapshot to its own timestamped directory:
// protocols.dat, one switch_<dpid>.dat per switch and a summary.json.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a new gob file writer.
func NewGobWriter(rootPath string, interval time.Duration) model.Writer {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

func (w *GobWriter) Write(snapshot *model.Snapshot) error {
	dir := filepath.Join(w.rootPath, snapshot.Timestamp.Format(DirTimeFormat))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create snapshot directory")
	}

	if err := encodeFile(filepath.Join(dir, "protocols.dat"), snapshot.Protocols); err != nil {
		return err
	}

	summary := SummaryData{
		Switches:     len(snapshot.Switches),
		SnapshotTime: snapshot.Timestamp.UTC().Format(time.RFC3339),
		WrittenAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, c := range snapshot.Protocols {
		summary.TotalPackets += c.Packets
		summary.TotalBytes += c.Bytes
	}
	for _, sw := range snapshot.Switches {
		summary.TotalFlows += len(sw.Flows)
		summary.TotalPorts += len(sw.Ports)
		path := filepath.Join(dir, fmt.Sprintf("switch_%d.dat", sw.DPID))
		if err := encodeFile(path, sw); err != nil {
			return err
		}
	}

	summaryFile, err := os.Create(filepath.Join(dir, "summary.json"))
	if err != nil {
		return errors.Wrap(err, "failed to create summary file")
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(summary); err != nil {
		return errors.Wrap(err, "failed to encode summary to json")
	}
	return nil
}

func (w *GobWriter) Close() error { return nil }

func encodeFile(path string, v interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create snapshot file '%s'", path)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(v); err != nil {
		return errors.Wrapf(err, "failed to encode gob for file '%s'", path)
	}
	return nil
}
