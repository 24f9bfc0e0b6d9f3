package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"

	"ledger-mirror/internal/pkg/config"
	"ledger-mirror/internal/pkg/log"
)

const (
	driver = "sqlite3"
)

type Storage struct {
	ctx context.Context
	db  *sql.DB
}

func New(ctx context.Context, cfg config.SQLiteConfig) (s *Storage, err error) {
	if cfg.DBPath == "" {
		log.Logger.Storage.Infof("start without sqlite journal")
		return nil, nil
	}

	db, err := sql.Open(driver, fmt.Sprintf("file:%s?mode=rwc&_fk=1&_timeout=10000&_cache_size=-10000&_synchronous=NORMAL&_journal_mode=WAL", cfg.DBPath))
	if err != nil {
		return s, fmt.Errorf("sql.Open: %s", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		return s, fmt.Errorf("ping: %s", err)
	}

	appliedMigrations, err := migrate.Exec(db, driver, migrations, migrate.Up)
	if err != nil {
		return s, fmt.Errorf("migrate.Exec: %s", err)
	}

	log.Logger.Storage.Infof("sqlite: applied migrations: %d", appliedMigrations)

	return &Storage{
		ctx: ctx,
		db:  db,
	}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}
