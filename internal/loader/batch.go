package loader

import (
	"fmt"

	"ledger-mirror/internal/accounts"
)

type batch []accounts.Key

// Result summarizes a Load. Loaded counts existing accounts received, Stale
// the part of them the cache already had at the same or a newer slot. Keys
// is only set by LoadProgram and lists the accounts found.
type Result struct {
	Requested  int
	Loaded     int
	Removed    int
	Stale      int
	Unresolved []accounts.Key
	Keys       []accounts.Key
}

// PartialBatchError lists the keys that could not be fetched.
type PartialBatchError struct {
	Unresolved []accounts.Key
	Err        error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%d accounts unresolved: %s", len(e.Unresolved), e.Err)
}

func (e *PartialBatchError) Unwrap() error {
	return e.Err
}

func partition(keys []accounts.Key, size int) []batch {
	batches := make([]batch, 0, (len(keys)+size-1)/size)
	for len(keys) > size {
		batches = append(batches, keys[:size:size])
		keys = keys[size:]
	}
	if len(keys) != 0 {
		batches = append(batches, keys)
	}

	return batches
}

func dedupe(keys []accounts.Key) []accounts.Key {
	seen := make(map[accounts.Key]struct{}, len(keys))
	out := make([]accounts.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	return out
}
