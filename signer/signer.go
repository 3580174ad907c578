package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"gomultibridge/backend"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUserRejected is returned when the user declines to sign
var ErrUserRejected = errors.New("user rejected signing request")

type Signer interface {
	Sign(ctx context.Context, tx backend.UnsignedTx) (backend.SignedTx, error)
}

// KeyedSigner signs with an operator key held by the process. It signs
// keccak256 of the payload, the backend client knows how to attach it.
type KeyedSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeyedSigner(hexKey string) (*KeyedSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error instantiating private key: %w", err)
	}
	return &KeyedSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *KeyedSigner) Address() common.Address {
	return s.address
}

func (s *KeyedSigner) Sign(ctx context.Context, tx backend.UnsignedTx) (backend.SignedTx, error) {
	if err := ctx.Err(); err != nil {
		return backend.SignedTx{}, err
	}
	if tx.From != "" && common.IsHexAddress(tx.From) && common.HexToAddress(tx.From) != s.address {
		return backend.SignedTx{}, fmt.Errorf("signer %s cannot sign for %s", s.address.Hex(), tx.From)
	}
	sig, err := crypto.Sign(crypto.Keccak256(tx.Payload), s.key)
	if err != nil {
		return backend.SignedTx{}, err
	}
	return backend.SignedTx{Unsigned: tx, Signature: sig}, nil
}
