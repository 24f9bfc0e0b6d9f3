package submitter

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"ledger-mirror/internal/pkg/log"
	"ledger-mirror/internal/pkg/remote"
	"ledger-mirror/internal/pkg/util"
	"ledger-mirror/internal/txn"
)

var errBlockhashExpired = errors.New("blockhash expired before confirmation")

// call is the state of one SubmitAndConfirm invocation.
type call struct {
	s    *Submitter
	pt   *txn.PendingTransaction
	hash [32]byte

	sig       solana.Signature
	submitted bool
	// sent holds every signature that may have reached a node. uncertain is
	// set once a send failed without proof that the node dropped it.
	sent       []solana.Signature
	uncertain  bool
	firstSent  time.Time
	deadline   time.Time
	confirmed  time.Time
	lastReason error
}

func (c *call) run(ctx context.Context) Result {
	backoff := util.Backoff{Min: c.s.cfg.RetryMinDelay, Max: c.s.cfg.RetryMaxDelay}
	c.transition(StateBuilt, 0, nil)

	for {
		if err := ctx.Err(); err != nil {
			return c.interrupted(err)
		}
		if c.pt.AttemptCount >= c.s.cfg.MaxAttempts {
			return c.exhausted(ctx)
		}

		c.refreshBlockhash(ctx)

		tx, err := c.pt.Transaction()
		if err != nil {
			return c.terminal(StateRejected, 0, err)
		}
		raw, err := c.s.signer.Sign(ctx, tx, c.pt.Signers)
		if err != nil {
			return c.terminal(StateRejected, 0, errors.Wrap(ErrSigningFailed, err.Error()))
		}
		if sig := signatureOf(tx, raw); sig != (solana.Signature{}) {
			c.sig = sig
		}
		c.transition(StateSigned, 0, nil)

		c.pt.AttemptCount++
		c.submitted = true
		c.markSent()
		sig, err := c.s.sender.SendTransaction(ctx, raw)
		if err != nil {
			c.lastReason = err
			if ctx.Err() != nil {
				return c.interrupted(ctx.Err())
			}
			if remote.IsPermanent(err) {
				return c.terminal(StateRejected, 0, err)
			}
			c.uncertain = true
			log.Logger.Submitter.Warnf("attempt %d/%d: %s", c.pt.AttemptCount, c.s.cfg.MaxAttempts, err)
			if c.pt.AttemptCount >= c.s.cfg.MaxAttempts {
				return c.exhausted(ctx)
			}

			c.transition(StateRetrying, 0, err)
			if err := util.Wait(ctx, c.s.clock, backoff.Next()); err != nil {
				return c.interrupted(err)
			}
			continue
		}

		if sig != (solana.Signature{}) && sig != c.sig {
			c.sig = sig
			c.sent = append(c.sent, sig)
		}
		c.transition(StateSubmitted, 0, nil)

		res, retry := c.confirm(ctx)
		if !retry {
			return res
		}

		c.lastReason = errBlockhashExpired
		log.Logger.Submitter.Warnf("tx %s: %s", c.sig, errBlockhashExpired)
		if c.pt.AttemptCount >= c.s.cfg.MaxAttempts {
			return c.exhausted(ctx)
		}
		c.transition(StateRetrying, 0, errBlockhashExpired)
	}
}

// confirm polls the signature status. retry is set when the transaction can
// no longer land because its blockhash expired.
func (c *call) confirm(ctx context.Context) (res Result, retry bool) {
	for {
		st, err := c.s.status.GetStatus(ctx, c.sig)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return c.interrupted(ctx.Err()), false
			}
			log.Logger.Submitter.Warnf("GetStatus %s: %s", c.sig, err)
		case st.Found && st.Err != nil:
			return c.terminal(StateRejected, st.Slot, errors.Wrap(st.Err, "transaction failed")), false
		case st.Found && remote.ConfirmationRank(st.Level) >= c.s.finality:
			c.confirmed = c.s.clock.Now()
			return c.terminal(StateConfirmed, st.Slot, nil), false
		case !st.Found:
			valid, err := c.s.blockhash.IsBlockhashValid(ctx, c.pt.RecentBlockhash)
			if err == nil && !valid {
				return Result{}, true
			}
		}

		remaining := c.deadline.Sub(c.s.clock.Now())
		if remaining <= 0 {
			return c.terminal(StateTimedOut, 0, nil), false
		}
		wait := c.s.cfg.PollInterval
		if wait > remaining {
			wait = remaining
		}
		if err := util.Wait(ctx, c.s.clock, wait); err != nil {
			return c.interrupted(err), false
		}
	}
}

// refreshBlockhash fills a missing blockhash and, on retries, replaces an
// expired one. Lookup failures keep the current hash.
func (c *call) refreshBlockhash(ctx context.Context) {
	if c.pt.RecentBlockhash != (solana.Hash{}) {
		if c.pt.AttemptCount == 0 {
			return
		}
		valid, err := c.s.blockhash.IsBlockhashValid(ctx, c.pt.RecentBlockhash)
		if err != nil {
			log.Logger.Submitter.Warnf("IsBlockhashValid: %s", err)
			return
		}
		if valid {
			return
		}
	}

	hash, err := c.s.blockhash.LatestBlockhash(ctx)
	if err != nil {
		log.Logger.Submitter.Warnf("LatestBlockhash: %s", err)
		return
	}
	log.Logger.Submitter.Debugf("blockhash %s replaced by %s", c.pt.RecentBlockhash, hash)
	c.pt.RecentBlockhash = hash
}

// interrupted ends the call on context cancellation. Once anything was sent
// the outcome is unknown.
func (c *call) interrupted(err error) Result {
	if c.submitted {
		return c.terminal(StateTimedOut, 0, err)
	}

	return c.terminal(StateRejected, 0, err)
}

// markSent records the current signature and starts the confirmation clock
// on the first attempt.
func (c *call) markSent() {
	if c.firstSent.IsZero() {
		c.firstSent = c.s.clock.Now()
		c.deadline = c.firstSent.Add(c.s.cfg.ConfirmTimeout)
	}
	if c.sig == (solana.Signature{}) {
		return
	}
	for _, sig := range c.sent {
		if sig == c.sig {
			return
		}
	}
	c.sent = append(c.sent, c.sig)
}

// exhausted ends a call that ran out of attempts. A send that failed
// transiently may still have been forwarded to the leader, so the ledger is
// asked about every signature sent before the call gives up.
func (c *call) exhausted(ctx context.Context) Result {
	reason := ErrAttemptsExhausted
	if c.lastReason != nil {
		reason = errors.Wrap(ErrAttemptsExhausted, c.lastReason.Error())
	}
	if !c.uncertain {
		return c.terminal(StateRejected, 0, reason)
	}

	return c.settle(ctx, reason)
}

// settle polls the sent signatures until one is final or failed, or the
// confirmation deadline passes.
func (c *call) settle(ctx context.Context, reason error) Result {
	for {
		for _, sig := range c.sent {
			st, err := c.s.status.GetStatus(ctx, sig)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return c.terminal(StateTimedOut, 0, reason)
				}
				log.Logger.Submitter.Warnf("GetStatus %s: %s", sig, err)
			case st.Found && st.Err != nil:
				c.sig = sig
				return c.terminal(StateRejected, st.Slot, errors.Wrap(st.Err, "transaction failed"))
			case st.Found && remote.ConfirmationRank(st.Level) >= c.s.finality:
				c.sig = sig
				c.confirmed = c.s.clock.Now()
				return c.terminal(StateConfirmed, st.Slot, nil)
			}
		}

		remaining := c.deadline.Sub(c.s.clock.Now())
		if remaining <= 0 {
			return c.terminal(StateTimedOut, 0, reason)
		}
		wait := c.s.cfg.PollInterval
		if wait > remaining {
			wait = remaining
		}
		if err := util.Wait(ctx, c.s.clock, wait); err != nil {
			return c.terminal(StateTimedOut, 0, reason)
		}
	}
}

// signatureOf returns the fee payer signature of a signed transaction, read
// from tx or from its wire form when the signer left tx untouched.
func signatureOf(tx *solana.Transaction, raw []byte) solana.Signature {
	if len(tx.Signatures) > 0 && tx.Signatures[0] != (solana.Signature{}) {
		return tx.Signatures[0]
	}

	var sig solana.Signature
	// compact-u16 signature count, then the signatures
	if len(raw) < 1+len(sig) || raw[0] == 0 || raw[0]&0x80 != 0 {
		return sig
	}
	copy(sig[:], raw[1:1+len(sig)])

	return sig
}

func (c *call) terminal(st State, slot uint64, reason error) Result {
	c.transition(st, slot, reason)

	return Result{
		Status:    st,
		Signature: c.sig,
		Slot:      slot,
		Reason:    reason,
		Attempts:  c.pt.AttemptCount,
	}
}

func (c *call) transition(st State, slot uint64, reason error) {
	ev := Event{
		MessageHash: c.hash,
		State:       st,
		Signature:   c.sig,
		Attempt:     c.pt.AttemptCount,
		Slot:        slot,
		Reason:      reason,
		Time:        c.s.clock.Now(),
	}
	log.Logger.Submitter.Debugf("tx %s attempt %d: %s", ev.Signature, ev.Attempt, st)

	if c.s.onEvent != nil {
		c.s.onEvent(ev)
	}
}

func (c *call) confirmElapsed() time.Duration {
	return c.confirmed.Sub(c.firstSent)
}
