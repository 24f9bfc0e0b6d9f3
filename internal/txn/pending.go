package txn

import (
	"bytes"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// PendingTransaction is a validated, unsigned transaction. Signers[0] pays
// the fee. AttemptCount is advanced by the submitter. A transaction with
// AddressTables compiles to a v0 message.
type PendingTransaction struct {
	Instructions    []solana.Instruction
	Signers         []solana.PublicKey
	RecentBlockhash solana.Hash
	AddressTables   map[solana.PublicKey]solana.PublicKeySlice
	AttemptCount    uint32
}

func (p *PendingTransaction) FeePayer() solana.PublicKey {
	return p.Signers[0]
}

// Transaction compiles an unsigned transaction. Every call returns a new one.
func (p *PendingTransaction) Transaction() (*solana.Transaction, error) {
	return compile(p.Instructions, p.Signers, p.RecentBlockhash, p.AddressTables)
}

// MessageHash identifies the compiled message.
func (p *PendingTransaction) MessageHash() ([32]byte, error) {
	tx, err := p.Transaction()
	if err != nil {
		return [32]byte{}, err
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "marshal message")
	}

	return blake2b.Sum256(msg), nil
}

func compile(instructions []solana.Instruction, signers []solana.PublicKey, hash solana.Hash, tables map[solana.PublicKey]solana.PublicKeySlice) (*solana.Transaction, error) {
	opts := []solana.TransactionOption{solana.TransactionPayer(signers[0])}
	if len(tables) != 0 {
		opts = append(opts, solana.TransactionAddressTables(tables))
	}

	tx, err := solana.NewTransaction(instructions, hash, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "compile transaction")
	}
	sortLookups(&tx.Message)

	return tx, nil
}

// sortLookups orders the address table lookups by table address so that
// compiling the same transaction twice yields the same message. Account
// indexes past the static keys point into the lookups and are rewritten.
func sortLookups(msg *solana.Message) {
	lookups := msg.AddressTableLookups
	if len(lookups) < 2 {
		return
	}

	sorted := append(solana.MessageAddressTableLookupSlice(nil), lookups...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].AccountKey[:], sorted[j].AccountKey[:]) < 0
	})
	position := make(map[solana.PublicKey]int, len(sorted))
	for i, l := range sorted {
		position[l.AccountKey] = i
	}

	static := uint16(len(msg.AccountKeys))
	oldWritable, oldReadonly := lookupOffsets(lookups, static)
	newWritable, newReadonly := lookupOffsets(sorted, static)

	remap := make(map[uint16]uint16)
	for i, l := range lookups {
		j := position[l.AccountKey]
		for k := range l.WritableIndexes {
			remap[oldWritable[i]+uint16(k)] = newWritable[j] + uint16(k)
		}
		for k := range l.ReadonlyIndexes {
			remap[oldReadonly[i]+uint16(k)] = newReadonly[j] + uint16(k)
		}
	}

	for i := range msg.Instructions {
		ix := &msg.Instructions[i]
		if n, ok := remap[ix.ProgramIDIndex]; ok {
			ix.ProgramIDIndex = n
		}
		for k, idx := range ix.Accounts {
			if n, ok := remap[idx]; ok {
				ix.Accounts[k] = n
			}
		}
	}
	msg.SetAddressTableLookups(sorted)
}

// lookupOffsets returns where the writable and the readonly addresses of
// each lookup start in the combined account list: static keys, then every
// writable lookup address, then every readonly one.
func lookupOffsets(lookups solana.MessageAddressTableLookupSlice, static uint16) (writable, readonly []uint16) {
	next := static
	for _, l := range lookups {
		writable = append(writable, next)
		next += uint16(len(l.WritableIndexes))
	}
	for _, l := range lookups {
		readonly = append(readonly, next)
		next += uint16(len(l.ReadonlyIndexes))
	}

	return writable, readonly
}
