package txn

import (
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

const (
	// PacketDataSize is the largest transaction the network accepts.
	PacketDataSize = 1232
	signatureSize  = 64

	maxLookupTableSize = 256
)

// Builder assembles and validates transactions. It performs no I/O.
type Builder struct {
	maxSize int
}

type Option func(*Builder)

func WithMaxSize(size int) Option {
	return func(b *Builder) {
		if size > 0 {
			b.maxSize = size
		}
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{maxSize: PacketDataSize}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build validates instructions and signers and returns a transaction that
// fits into a single packet.
func (b *Builder) Build(instructions []solana.Instruction, signers []solana.PublicKey, recentBlockhash solana.Hash) (*PendingTransaction, error) {
	return b.build(instructions, signers, recentBlockhash, nil)
}

// BuildVersioned is Build for a v0 transaction that loads the non-signer
// accounts found in tables (lookup table address to its addresses) from
// those tables instead of listing them in the message. Without tables it
// builds a legacy transaction.
func (b *Builder) BuildVersioned(instructions []solana.Instruction, signers []solana.PublicKey, recentBlockhash solana.Hash, tables map[solana.PublicKey]solana.PublicKeySlice) (*PendingTransaction, error) {
	if err := checkTables(instructions, tables); err != nil {
		return nil, err
	}

	return b.build(instructions, signers, recentBlockhash, tables)
}

func (b *Builder) build(instructions []solana.Instruction, signers []solana.PublicKey, recentBlockhash solana.Hash, tables map[solana.PublicKey]solana.PublicKeySlice) (*PendingTransaction, error) {
	if len(instructions) == 0 {
		return nil, ErrEmptyInstructions
	}
	if err := checkSigners(instructions, signers); err != nil {
		return nil, err
	}

	size, err := serializedSize(instructions, signers, recentBlockhash, tables)
	if err != nil {
		return nil, err
	}
	if size > b.maxSize {
		return nil, &TransactionTooLargeError{
			Size:         size,
			Limit:        b.maxSize,
			Instructions: len(instructions),
			Overflow:     len(instructions) - b.fittingPrefix(instructions, signers, recentBlockhash, tables),
		}
	}

	pt := newPending(instructions, signers, recentBlockhash)
	if len(tables) != 0 {
		pt.AddressTables = tables
	}

	return pt, nil
}

// Split packs instructions in order into as few transactions as possible.
// It fails if a single instruction does not fit on its own.
func (b *Builder) Split(instructions []solana.Instruction, signers []solana.PublicKey, recentBlockhash solana.Hash) ([]*PendingTransaction, error) {
	if len(instructions) == 0 {
		return nil, ErrEmptyInstructions
	}
	if err := checkSigners(instructions, signers); err != nil {
		return nil, err
	}

	var (
		out []*PendingTransaction
		cur []solana.Instruction
	)
	for _, ix := range instructions {
		candidate := append(cur[:len(cur):len(cur)], ix)
		size, err := serializedSize(candidate, signers, recentBlockhash, nil)
		if err != nil {
			return nil, err
		}
		if size <= b.maxSize {
			cur = candidate
			continue
		}
		if len(cur) == 0 {
			return nil, &TransactionTooLargeError{Size: size, Limit: b.maxSize, Instructions: 1, Overflow: 1}
		}

		out = append(out, newPending(cur, signers, recentBlockhash))
		cur = nil

		size, err = serializedSize([]solana.Instruction{ix}, signers, recentBlockhash, nil)
		if err != nil {
			return nil, err
		}
		if size > b.maxSize {
			return nil, &TransactionTooLargeError{Size: size, Limit: b.maxSize, Instructions: 1, Overflow: 1}
		}
		cur = []solana.Instruction{ix}
	}
	if len(cur) != 0 {
		out = append(out, newPending(cur, signers, recentBlockhash))
	}

	return out, nil
}

// fittingPrefix is the length of the longest instruction prefix that fits.
func (b *Builder) fittingPrefix(instructions []solana.Instruction, signers []solana.PublicKey, hash solana.Hash, tables map[solana.PublicKey]solana.PublicKeySlice) int {
	for n := len(instructions) - 1; n > 0; n-- {
		size, err := serializedSize(instructions[:n], signers, hash, tables)
		if err == nil && size <= b.maxSize {
			return n
		}
	}

	return 0
}

func newPending(instructions []solana.Instruction, signers []solana.PublicKey, hash solana.Hash) *PendingTransaction {
	return &PendingTransaction{
		Instructions:    append([]solana.Instruction(nil), instructions...),
		Signers:         dedupeSigners(signers),
		RecentBlockhash: hash,
	}
}

func checkSigners(instructions []solana.Instruction, signers []solana.PublicKey) error {
	provided := make(map[solana.PublicKey]struct{}, len(signers))
	for _, s := range signers {
		provided[s] = struct{}{}
	}

	var missing []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{})
	for _, ix := range instructions {
		for _, meta := range ix.Accounts() {
			if meta == nil || !meta.IsSigner {
				continue
			}
			if _, ok := provided[meta.PublicKey]; ok {
				continue
			}
			if _, ok := seen[meta.PublicKey]; ok {
				continue
			}
			seen[meta.PublicKey] = struct{}{}
			missing = append(missing, meta.PublicKey)
		}
	}

	if len(missing) != 0 || len(signers) == 0 {
		return &MissingSignerError{Missing: missing}
	}

	return nil
}

// checkTables rejects tables the runtime cannot index and accounts listed in
// more than one table, which would make the compiled message ambiguous.
func checkTables(instructions []solana.Instruction, tables map[solana.PublicKey]solana.PublicKeySlice) error {
	owner := make(map[solana.PublicKey]solana.PublicKey)
	for table, addresses := range tables {
		if len(addresses) > maxLookupTableSize {
			return errors.Errorf("lookup table %s: %d addresses, limit %d", table, len(addresses), maxLookupTableSize)
		}
		for _, a := range addresses {
			owner[a] = table
		}
	}

	for _, ix := range instructions {
		for _, meta := range ix.Accounts() {
			if meta == nil || meta.IsSigner {
				continue
			}
			first, ok := owner[meta.PublicKey]
			if !ok {
				continue
			}
			for table, addresses := range tables {
				if table != first && addresses.Contains(meta.PublicKey) {
					return errors.Wrapf(ErrAmbiguousLookup, "%s in %s and %s", meta.PublicKey, first, table)
				}
			}
		}
	}

	return nil
}

func dedupeSigners(signers []solana.PublicKey) []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(signers))
	seen := make(map[solana.PublicKey]struct{}, len(signers))
	for _, s := range signers {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}

// serializedSize is the wire size of the signed transaction: the compact
// signature count, one signature per required signer and the message.
func serializedSize(instructions []solana.Instruction, signers []solana.PublicKey, hash solana.Hash, tables map[solana.PublicKey]solana.PublicKeySlice) (int, error) {
	tx, err := compile(instructions, signers, hash, tables)
	if err != nil {
		return 0, err
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return 0, errors.Wrap(err, "marshal message")
	}
	n := int(tx.Message.Header.NumRequiredSignatures)

	return compactU16Len(n) + n*signatureSize + len(msg), nil
}

func compactU16Len(n int) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	}

	return 3
}
