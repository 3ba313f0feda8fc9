package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/trackdeck/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options carries the connection parameters parsed from a DSN.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

func New(opts Options) (*Sink, error) {
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Username == "" {
		opts.Username = "default"
	}
	if opts.Table == "" {
		opts.Table = "process_history"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Sink{conn: conn, table: opts.Table}, nil
}

// EnsureTable creates the target table when it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			event_id String,
			type String,
			occurred_at DateTime64(6),
			role String,
			name String,
			pid UInt32,
			command String,
			started_at DateTime64(6),
			stopped_at Nullable(DateTime64(6)),
			running Bool,
			exit_code Nullable(Int32)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, role)
	`)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (event_id, type, occurred_at, role, name, pid, command, started_at, stopped_at, running, exit_code) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	rec := e.Record
	var stopped *time.Time
	if !rec.StoppedAt.IsZero() {
		t := rec.StoppedAt.UTC()
		stopped = &t
	}
	var code *int32
	if rec.ExitCode != nil {
		c := int32(*rec.ExitCode) // #nosec G115 -- exit codes fit in int32
		code = &c
	}
	err := s.conn.Exec(ctx, query,
		e.ID,
		string(e.Type),
		e.OccurredAt,
		rec.Role,
		rec.Name,
		uint32(rec.PID), // #nosec G115 -- pids are non-negative
		rec.Command,
		rec.StartedAt,
		stopped,
		rec.Running,
		code,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
