package sqlite

import migrate "github.com/rubenv/sql-migrate"

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_submissions",
			Up: []string{
				`CREATE TABLE submissions (
					sub_message_hash TEXT PRIMARY KEY,
					sub_signature    TEXT    NOT NULL DEFAULT '',
					sub_attempt      INTEGER NOT NULL DEFAULT 0,
					sub_state        TEXT    NOT NULL,
					sub_slot         INTEGER NOT NULL DEFAULT 0,
					sub_reason       TEXT    NOT NULL DEFAULT '',
					sub_created_at   INTEGER NOT NULL,
					sub_updated_at   INTEGER NOT NULL
				)`,
				`CREATE INDEX submissions_signature_idx ON submissions (sub_signature)`,
				`CREATE INDEX submissions_state_idx ON submissions (sub_state, sub_updated_at)`,
			},
			Down: []string{
				`DROP TABLE submissions`,
			},
		},
	},
}
