package wallet

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var memoProgram = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

func TestLoadKeypair(t *testing.T) {
	w := solana.NewWallet()

	ints := make([]int, len(w.PrivateKey))
	for i, b := range w.PrivateKey {
		ints[i] = int(b)
	}
	content, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	key, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), key.PublicKey())

	_, err = LoadKeypair(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestKeypairSignerSign(t *testing.T) {
	payer := solana.NewWallet()
	signer := NewKeypairSigner(payer.PrivateKey)
	assert.Equal(t, []solana.PublicKey{payer.PublicKey()}, signer.PublicKeys())

	tx, err := solana.NewTransaction(
		[]solana.Instruction{solana.NewInstruction(memoProgram, solana.AccountMetaSlice{}, []byte("hi"))},
		solana.Hash{1},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)

	raw, err := signer.Sign(context.Background(), tx, []solana.PublicKey{payer.PublicKey()})
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Len(t, tx.Signatures, 1)
	require.NoError(t, tx.VerifySignatures())
}

func TestKeypairSignerUnknownKey(t *testing.T) {
	payer := solana.NewWallet()
	signer := NewKeypairSigner()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{solana.NewInstruction(memoProgram, solana.AccountMetaSlice{}, nil)},
		solana.Hash{1},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)

	_, err = signer.Sign(context.Background(), tx, []solana.PublicKey{payer.PublicKey()})
	require.Error(t, err)
}
