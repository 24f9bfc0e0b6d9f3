package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// LoadKeypair reads a solana-keygen JSON keypair file.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load keypair %s", path)
	}

	return key, nil
}

// KeypairSigner signs with in-memory private keys.
type KeypairSigner struct {
	keys map[solana.PublicKey]solana.PrivateKey
}

func NewKeypairSigner(keys ...solana.PrivateKey) *KeypairSigner {
	s := &KeypairSigner{keys: make(map[solana.PublicKey]solana.PrivateKey, len(keys))}
	for _, k := range keys {
		s.keys[k.PublicKey()] = k
	}

	return s
}

// PublicKeys lists the keys the signer can sign for.
func (s *KeypairSigner) PublicKeys() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}

	return out
}

// Sign signs tx with the keys of signers and returns its wire encoding.
func (s *KeypairSigner) Sign(ctx context.Context, tx *solana.Transaction, signers []solana.PublicKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, pk := range signers {
		if _, ok := s.keys[pk]; !ok {
			return nil, fmt.Errorf("no private key for %s", pk)
		}
	}

	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		pk, ok := s.keys[key]
		if !ok {
			return nil
		}
		return &pk
	})
	if err != nil {
		return nil, errors.Wrap(err, "sign")
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "marshal transaction")
	}

	return raw, nil
}
