package clickhouse

import "time"

// LoadStat is one loader pass.
type LoadStat struct {
	Time       time.Time
	Requested  uint32
	Loaded     uint32
	Removed    uint32
	Stale      uint32
	Unresolved uint32
	Batches    uint32
	Retries    uint32
	Elapsed    time.Duration
}

func (s *Storage) BatchInsertLoadStats(stats []LoadStat) error {
	if len(stats) == 0 {
		return nil
	}

	return s.batchInsert(`INSERT INTO load_stats (
		server_id,
		time,
		requested,
		loaded,
		removed,
		stale,
		unresolved,
		batches,
		retries,
		elapsed_ms
	)`, len(stats), func(i int) []interface{} {
		st := stats[i]
		return []interface{}{
			s.hostname,
			st.Time,
			st.Requested,
			st.Loaded,
			st.Removed,
			st.Stale,
			st.Unresolved,
			st.Batches,
			st.Retries,
			st.Elapsed.Milliseconds(),
		}
	})
}
