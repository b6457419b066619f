package export

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/model"
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var createTableStatements = []string{`
CREATE TABLE IF NOT EXISTS protocol_stats (
    Timestamp DateTime,
    Protocol  LowCardinality(String),
    Packets   UInt64,
    Bytes     UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Protocol, Timestamp);
`, `
CREATE TABLE IF NOT EXISTS flow_stats (
    Timestamp DateTime,
    DPID      UInt64,
    TableID   UInt8,
    Priority  UInt16,
    Match     String,
    Protocol  LowCardinality(String),
    Duration  UInt32,
    Packets   UInt64,
    Bytes     UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (DPID, Timestamp);
`, `
CREATE TABLE IF NOT EXISTS port_stats (
    Timestamp DateTime,
    DPID      UInt64,
    PortNo    UInt32,
    RxPackets UInt64,
    TxPackets UInt64,
    RxBytes   UInt64,
    TxBytes   UInt64,
    RxErrors  UInt64,
    TxErrors  UInt64,
    RxDropped UInt64,
    TxDropped UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (DPID, PortNo, Timestamp);
`}

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter connects to ClickHouse and makes sure the tables exist.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (model.Writer, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	for _, stmt := range createTableStatements {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "failed to create table")
		}
	}
	log.Println("Successfully connected to ClickHouse and ensured tables exist.")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to ping clickhouse")
	}
	return conn, nil
}

// Write inserts the protocol counters and the per-switch flow and port
// statistics of a snapshot, one batch per table.
func (w *ClickHouseWriter) Write(snapshot *model.Snapshot) error {
	ctx := context.Background()
	ts := snapshot.Timestamp

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO protocol_stats")
	if err != nil {
		return errors.Wrap(err, "failed to prepare protocol batch")
	}
	for _, tag := range model.AllTags {
		c := snapshot.Protocols[tag]
		if err := batch.Append(ts, string(tag), c.Packets, c.Bytes); err != nil {
			return errors.Wrap(err, "failed to append protocol row")
		}
	}
	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "failed to send protocol batch")
	}

	flowCount, portCount := 0, 0
	for _, sw := range snapshot.Switches {
		flowCount += len(sw.Flows)
		portCount += len(sw.Ports)
	}

	if flowCount > 0 {
		batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO flow_stats")
		if err != nil {
			return errors.Wrap(err, "failed to prepare flow batch")
		}
		for _, sw := range snapshot.Switches {
			for _, f := range sw.Flows {
				err := batch.Append(ts, sw.DPID, f.TableID, f.Priority, f.Match, string(f.Protocol), f.Duration, f.Packets, f.Bytes)
				if err != nil {
					return errors.Wrap(err, "failed to append flow row")
				}
			}
		}
		if err := batch.Send(); err != nil {
			return errors.Wrap(err, "failed to send flow batch")
		}
	}

	if portCount > 0 {
		batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO port_stats")
		if err != nil {
			return errors.Wrap(err, "failed to prepare port batch")
		}
		for _, sw := range snapshot.Switches {
			for _, p := range sw.Ports {
				err := batch.Append(ts, sw.DPID, p.PortNo,
					p.RxPackets, p.TxPackets, p.RxBytes, p.TxBytes,
					p.RxErrors, p.TxErrors, p.RxDropped, p.TxDropped)
				if err != nil {
					return errors.Wrap(err, "failed to append port row")
				}
			}
		}
		if err := batch.Send(); err != nil {
			return errors.Wrap(err, "failed to send port batch")
		}
	}

	log.Printf("Wrote %d protocols, %d flows and %d ports to ClickHouse", len(model.AllTags), flowCount, portCount)
	return nil
}

func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
