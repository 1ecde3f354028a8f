package ethereum

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/flasharb/business/execution/domain"
	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

// ReceiptReader is the node surface the confirmer needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ReceiptConfirmer polls for a transaction receipt and waits for the
// required confirmation depth.
type ReceiptConfirmer struct {
	client  ReceiptReader
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface
	poll    time.Duration
}

// NewReceiptConfirmer creates a confirmer. Poll defaults to the mainnet
// block time.
func NewReceiptConfirmer(client ReceiptReader, limiter *ratelimit.Limiter, poll time.Duration, log logger.LoggerInterface) *ReceiptConfirmer {
	if poll <= 0 {
		poll = 12 * time.Second
	}
	return &ReceiptConfirmer{
		client:  client,
		limiter: limiter,
		logger:  log,
		poll:    poll,
	}
}

// WaitConfirmed blocks until the transaction has depth confirmations or
// the context expires.
func (c *ReceiptConfirmer) WaitConfirmed(ctx context.Context, hash common.Hash, depth uint64) (*domain.Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.check(ctx, hash, depth)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, apperror.New(apperror.CodeServiceTimeout,
				apperror.WithCause(ctx.Err()),
				apperror.WithContext("confirmation wait for "+hash.Hex()))
		case <-ticker.C:
		}
	}
}

// check returns a nil receipt when the transaction is not yet deep
// enough; transient lookup errors also return nil to keep polling.
func (c *ReceiptConfirmer) check(ctx context.Context, hash common.Hash, depth uint64) (*domain.Receipt, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	rcpt, err := c.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		c.logger.Debug(ctx, "receipt lookup failed, retrying", "tx", hash.Hex(), "error", err.Error())
		return nil, nil
	}

	head, err := c.client.BlockNumber(ctx)
	if err != nil {
		return nil, nil
	}
	if head < rcpt.BlockNumber.Uint64() {
		return nil, nil
	}
	confirmations := head - rcpt.BlockNumber.Uint64() + 1
	if confirmations < depth {
		return nil, nil
	}

	return &domain.Receipt{
		TxHash:            hash,
		BlockNumber:       rcpt.BlockNumber.Uint64(),
		GasUsed:           rcpt.GasUsed,
		EffectiveGasPrice: rcpt.EffectiveGasPrice,
		Reverted:          rcpt.Status == types.ReceiptStatusFailed,
		Confirmations:     confirmations,
		ConfirmedAt:       time.Now(),
	}, nil
}
