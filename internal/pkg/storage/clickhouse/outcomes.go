package clickhouse

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal result of one submit call.
type Outcome struct {
	ID          uuid.UUID
	Time        time.Time
	MessageHash string
	Signature   string
	Status      string
	Attempts    uint32
	Slot        uint64
	Reason      string
	Duration    time.Duration
}

func (s *Storage) BatchInsertOutcomes(outcomes []Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	return s.batchInsert(`INSERT INTO submission_outcomes (
		id,
		server_id,
		time,
		message_hash,
		signature,
		status,
		attempts,
		slot,
		reason,
		duration_ms
	)`, len(outcomes), func(i int) []interface{} {
		o := outcomes[i]
		return []interface{}{
			o.ID,
			s.hostname,
			o.Time,
			o.MessageHash,
			o.Signature,
			o.Status,
			o.Attempts,
			o.Slot,
			o.Reason,
			o.Duration.Milliseconds(),
		}
	})
}
