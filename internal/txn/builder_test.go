package txn

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProgram = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	testHash    = solana.MustHashFromBase58("EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N")
)

func instruction(dataSize int, signers ...solana.PublicKey) solana.Instruction {
	metas := solana.AccountMetaSlice{}
	for _, s := range signers {
		metas = append(metas, solana.NewAccountMeta(s, true, true))
	}

	return solana.NewInstruction(testProgram, metas, make([]byte, dataSize))
}

func TestBuildEmptyInstructions(t *testing.T) {
	_, err := NewBuilder().Build(nil, nil, testHash)
	require.ErrorIs(t, err, ErrEmptyInstructions)
}

func TestBuildMissingSigner(t *testing.T) {
	x := solana.NewWallet().PublicKey()

	_, err := NewBuilder().Build([]solana.Instruction{instruction(8, x)}, nil, testHash)
	var mse *MissingSignerError
	require.ErrorAs(t, err, &mse)
	assert.Equal(t, []solana.PublicKey{x}, mse.Missing)

	payer := solana.NewWallet().PublicKey()
	_, err = NewBuilder().Build([]solana.Instruction{instruction(8, x), instruction(8, x)}, []solana.PublicKey{payer}, testHash)
	require.ErrorAs(t, err, &mse)
	assert.Equal(t, []solana.PublicKey{x}, mse.Missing)
}

func TestBuildNoFeePayer(t *testing.T) {
	_, err := NewBuilder().Build([]solana.Instruction{instruction(8)}, nil, testHash)
	var mse *MissingSignerError
	require.ErrorAs(t, err, &mse)
	assert.Empty(t, mse.Missing)
}

func TestBuild(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	x := solana.NewWallet().PublicKey()

	pt, err := NewBuilder().Build([]solana.Instruction{instruction(8, x)}, []solana.PublicKey{payer, x, payer}, testHash)
	require.NoError(t, err)
	assert.Equal(t, payer, pt.FeePayer())
	assert.Equal(t, []solana.PublicKey{payer, x}, pt.Signers)
	assert.Zero(t, pt.AttemptCount)

	tx, err := pt.Transaction()
	require.NoError(t, err)
	assert.Equal(t, uint8(2), tx.Message.Header.NumRequiredSignatures)
	assert.Equal(t, testHash, tx.Message.RecentBlockhash)
	assert.Equal(t, payer, tx.Message.AccountKeys[0])
}

func TestSerializedSizeMatchesSignedTransaction(t *testing.T) {
	payer := solana.NewWallet()
	x := solana.NewWallet()
	keys := map[solana.PublicKey]solana.PrivateKey{
		payer.PublicKey(): payer.PrivateKey,
		x.PublicKey():     x.PrivateKey,
	}

	ixs := []solana.Instruction{instruction(40, x.PublicKey())}
	signers := []solana.PublicKey{payer.PublicKey(), x.PublicKey()}

	size, err := serializedSize(ixs, signers, testHash, nil)
	require.NoError(t, err)

	tx, err := compile(ixs, signers, testHash, nil)
	require.NoError(t, err)
	_, err = tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		pk := keys[k]
		return &pk
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, len(raw), size)
}

func TestBuildTooLarge(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	signers := []solana.PublicKey{payer}

	ixs := make([]solana.Instruction, 10)
	for i := range ixs {
		ixs[i] = instruction(200)
	}

	b := NewBuilder()
	_, err := b.Build(ixs, signers, testHash)
	var tooLarge *TransactionTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, PacketDataSize, tooLarge.Limit)
	assert.Greater(t, tooLarge.Size, PacketDataSize)
	assert.Equal(t, 10, tooLarge.Instructions)
	require.Greater(t, tooLarge.Overflow, 0)

	fit := len(ixs) - tooLarge.Overflow
	_, err = b.Build(ixs[:fit], signers, testHash)
	require.NoError(t, err)
	_, err = b.Build(ixs[:fit+1], signers, testHash)
	require.ErrorAs(t, err, &tooLarge)
}

func TestSplit(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	signers := []solana.PublicKey{payer}

	ixs := make([]solana.Instruction, 25)
	for i := range ixs {
		ixs[i] = instruction(150)
	}

	b := NewBuilder()
	txs, err := b.Split(ixs, signers, testHash)
	require.NoError(t, err)
	require.Greater(t, len(txs), 1)

	var total int
	for _, pt := range txs {
		total += len(pt.Instructions)
		_, err := b.Build(pt.Instructions, pt.Signers, pt.RecentBlockhash)
		require.NoError(t, err)
	}
	assert.Equal(t, len(ixs), total)

	// greedy: the first transaction cannot take one more instruction
	_, err = b.Build(ixs[:len(txs[0].Instructions)+1], signers, testHash)
	require.Error(t, err)
}

func TestSplitInstructionTooLarge(t *testing.T) {
	payer := solana.NewWallet().PublicKey()

	_, err := NewBuilder().Split([]solana.Instruction{instruction(10), instruction(1300)}, []solana.PublicKey{payer}, testHash)
	var tooLarge *TransactionTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 1, tooLarge.Overflow)
}

func TestMessageHash(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	b := NewBuilder()

	first, err := b.Build([]solana.Instruction{instruction(8)}, []solana.PublicKey{payer}, testHash)
	require.NoError(t, err)
	second, err := b.Build([]solana.Instruction{instruction(8)}, []solana.PublicKey{payer}, testHash)
	require.NoError(t, err)

	h1, err := first.MessageHash()
	require.NoError(t, err)
	h2, err := second.MessageHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	second.RecentBlockhash = solana.Hash{1}
	h3, err := second.MessageHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestComputeBudgetInstructions(t *testing.T) {
	ix := ComputeUnitPriceInstruction(5000)
	assert.Equal(t, ComputeBudgetProgramID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 9)
	assert.Equal(t, byte(3), data[0])
	assert.Equal(t, uint64(5000), binary.LittleEndian.Uint64(data[1:]))

	data, err = ComputeUnitLimitInstruction(200_000).Data()
	require.NoError(t, err)
	assert.Equal(t, byte(2), data[0])
	assert.Equal(t, uint32(200_000), binary.LittleEndian.Uint32(data[1:]))

	ixs := []solana.Instruction{instruction(1)}
	assert.Len(t, WithPriorityFee(ixs, 0), 1)
	withFee := WithPriorityFee(ixs, 10)
	require.Len(t, withFee, 2)
	assert.Equal(t, ComputeBudgetProgramID, withFee[0].ProgramID())
}

// resolvedAccounts maps the compiled instruction at i back to account keys.
func resolvedAccounts(t *testing.T, tx *solana.Transaction, i int) []solana.PublicKey {
	t.Helper()

	keys, err := tx.Message.GetAllKeys()
	require.NoError(t, err)

	var out []solana.PublicKey
	for _, idx := range tx.Message.Instructions[i].Accounts {
		require.Less(t, int(idx), len(keys))
		out = append(out, keys[idx])
	}

	return out
}

func TestBuildVersioned(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	var accounts []solana.PublicKey
	metas := solana.AccountMetaSlice{solana.NewAccountMeta(payer, true, true)}
	for i := 0; i < 20; i++ {
		k := solana.NewWallet().PublicKey()
		accounts = append(accounts, k)
		metas = append(metas, solana.NewAccountMeta(k, i%2 == 0, false))
	}
	ixs := []solana.Instruction{solana.NewInstruction(testProgram, metas, []byte("swap"))}
	table := solana.NewWallet().PublicKey()

	legacy, err := NewBuilder().Build(ixs, []solana.PublicKey{payer}, testHash)
	require.NoError(t, err)
	assert.Nil(t, legacy.AddressTables)

	pt, err := NewBuilder().BuildVersioned(ixs, []solana.PublicKey{payer}, testHash, map[solana.PublicKey]solana.PublicKeySlice{
		table: accounts,
	})
	require.NoError(t, err)
	require.Len(t, pt.AddressTables, 1)

	tx, err := pt.Transaction()
	require.NoError(t, err)
	require.Len(t, tx.Message.AddressTableLookups, 1)
	assert.Equal(t, table, tx.Message.AddressTableLookups[0].AccountKey)
	assert.Equal(t, []solana.PublicKey{payer, testProgram}, []solana.PublicKey(tx.Message.AccountKeys))
	assert.Equal(t, append([]solana.PublicKey{payer}, accounts...), resolvedAccounts(t, tx, 0))

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, byte(0x80), msg[0], "v0 message prefix")

	legacySize, err := serializedSize(ixs, legacy.Signers, testHash, nil)
	require.NoError(t, err)
	versionedSize, err := serializedSize(ixs, pt.Signers, testHash, pt.AddressTables)
	require.NoError(t, err)
	assert.Less(t, versionedSize, legacySize)
}

func TestBuildVersionedIsDeterministic(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	tables := make(map[solana.PublicKey]solana.PublicKeySlice)
	metas := solana.AccountMetaSlice{solana.NewAccountMeta(payer, true, true)}
	var want []solana.PublicKey
	for i := 0; i < 4; i++ {
		w, r := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
		tables[solana.NewWallet().PublicKey()] = solana.PublicKeySlice{r, w}
		metas = append(metas, solana.NewAccountMeta(w, true, false), solana.NewAccountMeta(r, false, false))
		want = append(want, w, r)
	}
	ixs := []solana.Instruction{solana.NewInstruction(testProgram, metas, []byte("route"))}

	pt, err := NewBuilder().BuildVersioned(ixs, []solana.PublicKey{payer}, testHash, tables)
	require.NoError(t, err)

	first, err := pt.MessageHash()
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		h, err := pt.MessageHash()
		require.NoError(t, err)
		require.Equal(t, first, h)
	}

	tx, err := pt.Transaction()
	require.NoError(t, err)
	lookups := tx.Message.AddressTableLookups
	require.Len(t, lookups, 4)
	for i := 1; i < len(lookups); i++ {
		assert.Negative(t, bytes.Compare(lookups[i-1].AccountKey[:], lookups[i].AccountKey[:]))
	}
	assert.Equal(t, append([]solana.PublicKey{payer}, want...), resolvedAccounts(t, tx, 0))
}

func TestBuildVersionedSignedSize(t *testing.T) {
	payer := solana.NewWallet()
	a := solana.NewWallet().PublicKey()
	ixs := []solana.Instruction{solana.NewInstruction(testProgram, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer.PublicKey(), true, true),
		solana.NewAccountMeta(a, true, false),
	}, []byte("x"))}
	tables := map[solana.PublicKey]solana.PublicKeySlice{solana.NewWallet().PublicKey(): {a}}

	pt, err := NewBuilder().BuildVersioned(ixs, []solana.PublicKey{payer.PublicKey()}, testHash, tables)
	require.NoError(t, err)
	size, err := serializedSize(ixs, pt.Signers, testHash, tables)
	require.NoError(t, err)

	tx, err := pt.Transaction()
	require.NoError(t, err)
	_, err = tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		return &payer.PrivateKey
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, len(raw), size)
}

func TestBuildVersionedAmbiguousLookup(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	a := solana.NewWallet().PublicKey()
	ixs := []solana.Instruction{solana.NewInstruction(testProgram, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(a, false, false),
	}, nil)}

	_, err := NewBuilder().BuildVersioned(ixs, []solana.PublicKey{payer}, testHash, map[solana.PublicKey]solana.PublicKeySlice{
		solana.NewWallet().PublicKey(): {a},
		solana.NewWallet().PublicKey(): {solana.NewWallet().PublicKey(), a},
	})
	require.ErrorIs(t, err, ErrAmbiguousLookup)

	oversized := make(solana.PublicKeySlice, maxLookupTableSize+1)
	_, err = NewBuilder().BuildVersioned(ixs, []solana.PublicKey{payer}, testHash, map[solana.PublicKey]solana.PublicKeySlice{
		solana.NewWallet().PublicKey(): oversized,
	})
	require.Error(t, err)
}
