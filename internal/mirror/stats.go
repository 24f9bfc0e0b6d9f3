package mirror

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"ledger-mirror/internal/loader"
	"ledger-mirror/internal/pkg/storage/clickhouse"
	"ledger-mirror/internal/submitter"
)

func (m *mirror) recordLoadStat(st loader.Stat) {
	m.loadStats.Add(clickhouse.LoadStat{
		Time:       time.Now(),
		Requested:  uint32(st.Requested),
		Loaded:     uint32(st.Loaded),
		Removed:    uint32(st.Removed),
		Stale:      uint32(st.Stale),
		Unresolved: uint32(st.Unresolved),
		Batches:    uint32(st.Batches),
		Retries:    uint32(st.Retries),
		Elapsed:    st.Elapsed,
	})
}

func (m *mirror) recordOutcome(o submitter.Outcome) {
	out := clickhouse.Outcome{
		ID:          uuid.New(),
		Time:        o.Started,
		MessageHash: solana.Hash(o.MessageHash).String(),
		Status:      o.Result.Status.String(),
		Attempts:    o.Result.Attempts,
		Slot:        o.Result.Slot,
		Duration:    o.Elapsed,
	}
	if o.Result.Signature != (solana.Signature{}) {
		out.Signature = o.Result.Signature.String()
	}
	if o.Result.Reason != nil {
		out.Reason = o.Result.Reason.Error()
	}

	m.outcomes.Add(out)
}
