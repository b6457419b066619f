// Package export periodically writes controller snapshots to external sinks.
package export

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/model"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SnapshotSource produces the snapshots handed to the writers.
type SnapshotSource interface {
	Snapshot() *model.Snapshot
}

// Manager runs one snapshot loop per writer.
type Manager struct {
	source  SnapshotSource
	writers []model.Writer

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a manager for the given writers.
func NewManager(source SnapshotSource, writers []model.Writer) *Manager {
	return &Manager{
		source:  source,
		writers: writers,
		done:    make(chan struct{}),
	}
}

// NewManagerFromConfig builds every enabled writer of cfg.
func NewManagerFromConfig(source SnapshotSource, cfg config.ExportConfig) (*Manager, error) {
	writers, err := CreateWriters(cfg)
	if err != nil {
		return nil, err
	}
	return NewManager(source, writers), nil
}

// CreateWriters instantiates the enabled writers. Writers already opened are
// closed again when a later one fails.
func CreateWriters(cfg config.ExportConfig) ([]model.Writer, error) {
	var writers []model.Writer
	for _, def := range cfg.Writers {
		if !def.Enabled {
			continue
		}
		w, err := newWriter(def)
		if err != nil {
			for _, opened := range writers {
				opened.Close()
			}
			return nil, errors.Wrapf(err, "failed to create %s writer", def.Type)
		}
		writers = append(writers, w)
	}
	return writers, nil
}

func newWriter(def config.WriterDef) (model.Writer, error) {
	interval, err := time.ParseDuration(def.SnapshotInterval)
	if err != nil {
		return nil, errors.Wrap(err, "invalid snapshot interval")
	}
	switch def.Type {
	case "gob":
		return NewGobWriter(def.Gob.RootPath, interval), nil
	case "clickhouse":
		return NewClickHouseWriter(def.ClickHouse, interval)
	case "sqlite":
		return NewSQLiteWriter(def.SQLite.Path, interval)
	default:
		return nil, errors.Errorf("unknown writer type '%s'", def.Type)
	}
}

// Writers returns the managed writers.
func (m *Manager) Writers() []model.Writer { return m.writers }

// Start launches a snapshotter for every writer.
func (m *Manager) Start() {
	for _, w := range m.writers {
		m.wg.Add(1)
		go m.runSnapshotter(w)
		log.Printf("Started snapshotter for %T with interval %s.", w, w.GetInterval())
	}
}

func (m *Manager) runSnapshotter(writer model.Writer) {
	defer m.wg.Done()
	interval := writer.GetInterval()
	if interval <= 0 {
		log.Printf("Invalid interval %s for writer %T, snapshotter will not run.", interval, writer)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.writeSnapshot(writer)
		case <-m.done:
			m.writeSnapshot(writer)
			return
		}
	}
}

func (m *Manager) writeSnapshot(writer model.Writer) {
	snapshot := m.source.Snapshot()
	if err := writer.Write(snapshot); err != nil {
		log.Errorf("Error writing snapshot with %T: %v", writer, err)
		return
	}
	log.WithField("switches", len(snapshot.Switches)).Debugf("Snapshot written with %T.", writer)
}

// Stop takes a final snapshot for every writer, waits for the loops and
// closes the writers.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		log.Println("Export manager stopping...")
		close(m.done)
		m.wg.Wait()
		for _, w := range m.writers {
			if err := w.Close(); err != nil {
				log.Warnf("Failed to close writer %T: %v", w, err)
			}
		}
		log.Println("Export manager stopped.")
	})
}
