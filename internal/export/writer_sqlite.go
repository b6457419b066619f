package export

import (
	"OFSpectra/internal/model"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS protocol_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER,
    protocol TEXT,
    packets INTEGER,
    bytes INTEGER
);
CREATE TABLE IF NOT EXISTS flow_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER,
    dpid INTEGER,
    table_id INTEGER,
    priority INTEGER,
    match_fields TEXT,
    protocol TEXT,
    duration INTEGER,
    packets INTEGER,
    bytes INTEGER
);
CREATE TABLE IF NOT EXISTS port_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER,
    dpid INTEGER,
    port_no INTEGER,
    rx_packets INTEGER,
    tx_packets INTEGER,
    rx_bytes INTEGER,
    tx_bytes INTEGER,
    rx_errors INTEGER,
    tx_errors INTEGER,
    rx_dropped INTEGER,
    tx_dropped INTEGER
);
`

// SQLiteWriter appends snapshots to a local SQLite database.
type SQLiteWriter struct {
	db       *sql.DB
	interval time.Duration
}

// NewSQLiteWriter opens (or creates) the database at path and its tables.
func NewSQLiteWriter(path string, interval time.Duration) (*SQLiteWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create sqlite directory")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite schema")
	}
	return &SQLiteWriter{db: db, interval: interval}, nil
}

func (w *SQLiteWriter) GetInterval() time.Duration {
	return w.interval
}

// Write stores one snapshot in a single transaction.
func (w *SQLiteWriter) Write(snapshot *model.Snapshot) error {
	tx, err := w.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if err := writeRows(tx, snapshot); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit snapshot")
}

func writeRows(tx *sql.Tx, snapshot *model.Snapshot) error {
	ts := snapshot.Timestamp.Unix()

	protoStmt, err := tx.Prepare(`INSERT INTO protocol_stats (timestamp, protocol, packets, bytes) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare protocol insert")
	}
	defer protoStmt.Close()
	for _, tag := range model.AllTags {
		c := snapshot.Protocols[tag]
		if _, err := protoStmt.Exec(ts, string(tag), int64(c.Packets), int64(c.Bytes)); err != nil {
			return errors.Wrap(err, "failed to insert protocol row")
		}
	}

	flowStmt, err := tx.Prepare(`
        INSERT INTO flow_stats (
            timestamp, dpid, table_id, priority, match_fields, protocol, duration, packets, bytes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return errors.Wrap(err, "failed to prepare flow insert")
	}
	defer flowStmt.Close()

	portStmt, err := tx.Prepare(`
        INSERT INTO port_stats (
            timestamp, dpid, port_no,
            rx_packets, tx_packets, rx_bytes, tx_bytes,
            rx_errors, tx_errors, rx_dropped, tx_dropped
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return errors.Wrap(err, "failed to prepare port insert")
	}
	defer portStmt.Close()

	for _, sw := range snapshot.Switches {
		dpid := int64(sw.DPID)
		for _, f := range sw.Flows {
			_, err := flowStmt.Exec(ts, dpid, f.TableID, f.Priority, f.Match, string(f.Protocol),
				f.Duration, int64(f.Packets), int64(f.Bytes))
			if err != nil {
				return errors.Wrap(err, "failed to insert flow row")
			}
		}
		for _, p := range sw.Ports {
			_, err := portStmt.Exec(ts, dpid, p.PortNo,
				int64(p.RxPackets), int64(p.TxPackets), int64(p.RxBytes), int64(p.TxBytes),
				int64(p.RxErrors), int64(p.TxErrors), int64(p.RxDropped), int64(p.TxDropped))
			if err != nil {
				return errors.Wrap(err, "failed to insert port row")
			}
		}
	}
	return nil
}

// ProtocolTotals returns the counters of the most recent snapshot stored.
func (w *SQLiteWriter) ProtocolTotals() (model.ProtocolStats, error) {
	rows, err := w.db.Query(`
        SELECT protocol, packets, bytes
        FROM protocol_stats
        WHERE timestamp = (SELECT MAX(timestamp) FROM protocol_stats)
    `)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query protocol totals")
	}
	defer rows.Close()

	out := model.NewProtocolStats()
	for rows.Next() {
		var (
			tag            string
			packets, bytes int64
		)
		if err := rows.Scan(&tag, &packets, &bytes); err != nil {
			return nil, err
		}
		out[model.Tag(tag)] = model.Counter{Packets: uint64(packets), Bytes: uint64(bytes)}
	}
	return out, rows.Err()
}

func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
