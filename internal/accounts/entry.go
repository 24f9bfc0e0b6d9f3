package accounts

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Key identifies a remote account.
type Key = solana.PublicKey

// Entry is the cached state of one account. Slot never decreases for a key.
type Entry struct {
	Key         Key
	Data        []byte
	Slot        uint64
	LastUpdated time.Time
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	if e.Data != nil {
		data := make([]byte, len(e.Data))
		copy(data, e.Data)
		e.Data = data
	}

	return e
}

// Age is the time since the entry was last written.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.LastUpdated)
}

// record is what a shard stores. A tombstone keeps the slot at which the
// account was removed so that older updates cannot bring it back.
type record struct {
	entry     Entry
	tombstone bool
}
