package clickhouse

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"ledger-mirror/internal/pkg/log"
)

type Storage struct {
	conn     *sql.DB
	hostname string
}

func New(dsn, hostname string) (s *Storage, err error) {
	if dsn == "" {
		log.Logger.Storage.Infof("start without CH")
		return nil, nil
	}

	opt, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return s, fmt.Errorf("ParseDSN: %s", err)
	}
	conn := clickhouse.OpenDB(opt)
	conn.SetMaxIdleConns(5)
	conn.SetMaxOpenConns(10)
	conn.SetConnMaxLifetime(time.Hour)

	err = conn.Ping()
	if err != nil {
		return s, fmt.Errorf("connection ping error: %s", err)
	}

	s = &Storage{conn: conn, hostname: hostname}
	err = s.ensureSchema()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensureSchema: %s", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}

	return s.conn.Close()
}

func (s *Storage) ensureSchema() error {
	for _, q := range schema {
		_, err := s.conn.Exec(q)
		if err != nil {
			return err
		}
	}

	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS submission_outcomes (
		id            UUID,
		server_id     String,
		time          DateTime64(3),
		message_hash  String,
		signature     String,
		status        LowCardinality(String),
		attempts      UInt32,
		slot          UInt64,
		reason        String,
		duration_ms   Int64
	) ENGINE = MergeTree ORDER BY (time, status)`,
	`CREATE TABLE IF NOT EXISTS load_stats (
		server_id     String,
		time          DateTime64(3),
		requested     UInt32,
		loaded        UInt32,
		removed       UInt32,
		stale         UInt32,
		unresolved    UInt32,
		batches       UInt32,
		retries       UInt32,
		elapsed_ms    Int64
	) ENGINE = MergeTree ORDER BY time`,
}

// batchInsert runs one prepared statement per row inside a single transaction.
func (s *Storage) batchInsert(query string, n int, row func(i int) []interface{}) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("tx begin error: %s", err)
	}

	defer func() {
		err := tx.Rollback()
		if err != nil && err != sql.ErrTxDone {
			log.Logger.Storage.Errorf("tx rollback error: %s", err)
		}
	}()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare statement error: %s", err)
	}

	for i := 0; i < n; i++ {
		_, err = stmt.Exec(row(i)...)
		if err != nil {
			return fmt.Errorf("exec statement error: %s", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("tx commit error: %s", err)
	}

	return nil
}
