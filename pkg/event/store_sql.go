package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/retry"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore is a durable event log over database/sql.
// Supports PostgreSQL, MySQL, and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

const (
	// SQL schema (compatible with all three databases)
	createEventsSQL = `
CREATE TABLE IF NOT EXISTS events (
    id VARCHAR(64) PRIMARY KEY,
    type VARCHAR(255) NOT NULL,
    aggregate_type VARCHAR(64) NOT NULL,
    aggregate_id VARCHAR(255) NOT NULL,
    ts TIMESTAMP NOT NULL,
    seq BIGINT NOT NULL,
    data TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_aggregate ON events(aggregate_type, aggregate_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`
)

// NewSQLStore creates an event store on an open connection.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLStoreFromConfig opens a connection per the config and builds a store.
func NewSQLStoreFromConfig(cfg *config.EventStoreConfig) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event store configuration is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Config uses "sqlite" but the go-sqlite3 driver registers as "sqlite3".
	driverName := cfg.Driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLStore(db, cfg.Driver)
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createEventsSQL); err != nil {
		return err
	}
	return nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Append inserts the event inside a transaction that also claims the next
// per-aggregate sequence number.
func (s *SQLStore) Append(ctx context.Context, e *Event) error {
	if e == nil {
		return retry.New(retry.KindValidation, "event cannot be nil")
	}
	if e.AggregateType == "" || e.AggregateID == "" {
		return retry.New(retry.KindValidation, "event aggregate type and id are required")
	}

	data, err := json.Marshal(e.Data)
	if err != nil {
		return retry.Wrap(retry.KindPersistence, "failed to serialize event data", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return retry.Wrap(retry.KindPersistence, "failed to begin transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var seq sql.NullInt64
	query := fmt.Sprintf(
		"SELECT MAX(seq) FROM events WHERE aggregate_type = %s AND aggregate_id = %s",
		s.placeholder(1), s.placeholder(2))
	if err := tx.QueryRowContext(ctx, query, e.AggregateType, e.AggregateID).Scan(&seq); err != nil {
		return retry.Wrap(retry.KindPersistence, "failed to read sequence", err)
	}
	e.Seq = seq.Int64 + 1

	insert := fmt.Sprintf(
		"INSERT INTO events (id, type, aggregate_type, aggregate_id, ts, seq, data) VALUES (%s, %s, %s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7))
	if _, err := tx.ExecContext(ctx, insert,
		e.ID, e.Type, e.AggregateType, e.AggregateID, e.Timestamp, e.Seq, string(data)); err != nil {
		return retry.Wrap(retry.KindPersistence, "failed to insert event", err)
	}

	if err := tx.Commit(); err != nil {
		return retry.Wrap(retry.KindPersistence, "failed to commit event", err)
	}
	return nil
}

// Replay returns the aggregate's events ordered by (ts, seq).
func (s *SQLStore) Replay(ctx context.Context, aggregateType, aggregateID string) ([]Event, error) {
	query := fmt.Sprintf(
		"SELECT id, type, aggregate_type, aggregate_id, ts, seq, data FROM events WHERE aggregate_type = %s AND aggregate_id = %s ORDER BY ts, seq",
		s.placeholder(1), s.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, aggregateType, aggregateID)
	if err != nil {
		return nil, retry.Wrap(retry.KindPersistence, "failed to replay events", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Query returns matching events in global append order.
func (s *SQLStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := "SELECT id, type, aggregate_type, aggregate_id, ts, seq, data FROM events"
	var (
		conds []string
		args  []any
	)
	if f.EventType != "" {
		args = append(args, f.EventType)
		conds = append(conds, fmt.Sprintf("type = %s", s.placeholder(len(args))))
	}
	if f.SessionID != "" {
		args = append(args, AggregateSession, f.SessionID, "%\"session_id\":\""+f.SessionID+"\"%")
		conds = append(conds, fmt.Sprintf(
			"((aggregate_type = %s AND aggregate_id = %s) OR data LIKE %s)",
			s.placeholder(len(args)-2), s.placeholder(len(args)-1), s.placeholder(len(args))))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY ts, seq"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, retry.Wrap(retry.KindPersistence, "failed to query events", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			e       Event
			rawData sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.AggregateType, &e.AggregateID, &e.Timestamp, &e.Seq, &rawData); err != nil {
			return nil, retry.Wrap(retry.KindPersistence, "failed to scan event", err)
		}
		if rawData.Valid && rawData.String != "" && rawData.String != "null" {
			if err := json.Unmarshal([]byte(rawData.String), &e.Data); err != nil {
				return nil, retry.Wrap(retry.KindPersistence, "failed to parse event data", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, retry.Wrap(retry.KindPersistence, "failed to iterate events", err)
	}
	return out, nil
}
