package ethereum

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fd1az/flasharb/internal/apperror"
)

// SignerFunc signs a transaction. The rest of the context only ever
// sees this function; key material stays behind it.
type SignerFunc func(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)

// NewKeySigner builds a signer from a hex-encoded private key and
// returns it with the derived sender address.
func NewKeySigner(hexKey string, chainID *big.Int) (SignerFunc, common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, common.Address{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithCause(err),
			apperror.WithContext("private key parse"))
	}

	account := crypto.PubkeyToAddress(key.PublicKey)
	signer := types.LatestSignerForChainID(chainID)

	return func(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
		return types.SignTx(tx, signer, key)
	}, account, nil
}

// Wallet couples a signer with its account address so the nonce
// allocator and the submitter agree on the sender.
type Wallet struct {
	Sign    SignerFunc
	Account common.Address
}

// NewWallet builds a wallet from a hex key. An empty key generates a
// throwaway account, enough for dry runs.
func NewWallet(hexKey string, chainID *big.Int) (*Wallet, error) {
	if hexKey == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		signer := types.LatestSignerForChainID(chainID)
		return &Wallet{
			Sign: func(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
				return types.SignTx(tx, signer, key)
			},
			Account: crypto.PubkeyToAddress(key.PublicKey),
		}, nil
	}

	sign, account, err := NewKeySigner(hexKey, chainID)
	if err != nil {
		return nil, err
	}
	return &Wallet{Sign: sign, Account: account}, nil
}
