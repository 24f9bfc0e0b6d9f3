package mirror

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/remote"
	"ledger-mirror/internal/pkg/storage/sqlite"
	"ledger-mirror/internal/submitter"
)

func (m *mirror) journalEvent(ev submitter.Event) {
	if m.journal == nil {
		return
	}

	sub := sqlite.Submission{
		MessageHash: solana.Hash(ev.MessageHash).String(),
		Attempt:     ev.Attempt,
		State:       ev.State.String(),
		Slot:        ev.Slot,
		UpdatedAt:   ev.Time,
	}
	if ev.Signature != (solana.Signature{}) {
		sub.Signature = ev.Signature.String()
	}
	if ev.Reason != nil {
		sub.Reason = ev.Reason.Error()
	}

	if err := m.journal.SaveSubmission(sub); err != nil {
		log.Logger.Storage.Errorf("SaveSubmission %s: %s", sub.MessageHash, err)
	}
}

// reconcileJournal resolves submissions left timed out by a previous run
// against the ledger.
func (m *mirror) reconcileJournal(ctx context.Context) {
	if m.journal == nil {
		return
	}

	subs, err := m.journal.GetSubmissionsByState(submitter.StateTimedOut.String(), journalReconcileLimit)
	if err != nil {
		log.Logger.Storage.Errorf("GetSubmissionsByState: %s", err)
		return
	}

	var resolved int
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		if sub.Signature == "" {
			continue
		}

		updated, ok := resolveSubmission(ctx, m.status, sub, m.finality)
		if !ok {
			continue
		}
		if err := m.journal.SaveSubmission(updated); err != nil {
			log.Logger.Storage.Errorf("SaveSubmission %s: %s", sub.MessageHash, err)
			continue
		}
		resolved++
	}

	log.Logger.Storage.Infof("journal: %d of %d timed out submissions resolved", resolved, len(subs))
}

// resolveSubmission returns the journal row updated with the ledger's verdict.
// ok is false while the transaction is unknown or below finality.
func resolveSubmission(ctx context.Context, status remote.StatusReader, sub sqlite.Submission, finality int) (sqlite.Submission, bool) {
	sig, err := solana.SignatureFromBase58(sub.Signature)
	if err != nil {
		log.Logger.Storage.Warnf("journal %s: bad signature %q: %s", sub.MessageHash, sub.Signature, err)
		return sub, false
	}

	st, err := status.GetStatus(ctx, sig)
	if err != nil {
		log.Logger.Storage.Warnf("journal %s: GetStatus: %s", sub.MessageHash, err)
		return sub, false
	}
	if !st.Found {
		return sub, false
	}
	if st.Err == nil && remote.ConfirmationRank(st.Level) < finality {
		log.Logger.Storage.Debugf("journal %s: %s at slot %d, waiting for finality", sub.MessageHash, st.Level, st.Slot)
		return sub, false
	}

	sub.Slot = st.Slot
	sub.UpdatedAt = time.Now()
	if st.Err != nil {
		sub.State = submitter.StateRejected.String()
		sub.Reason = st.Err.Error()
	} else {
		sub.State = submitter.StateConfirmed.String()
		sub.Reason = ""
	}

	return sub, true
}
