// Package ethereum contains the chain-facing side of execution: nonce
// sequencing, transaction signing and broadcast, and confirmation waits.
package ethereum

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flasharb/internal/apperror"
	"github.com/fd1az/flasharb/internal/logger"
	"github.com/fd1az/flasharb/internal/ratelimit"
)

// PendingNonceReader is the node surface the allocator needs.
type PendingNonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceAllocator hands out strictly increasing nonces for one signing
// account. All allocation goes through a single critical section; a
// value handed out is never handed out again, even across a resync.
type NonceAllocator struct {
	account common.Address
	client  PendingNonceReader
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface

	mu     sync.Mutex
	next   uint64
	primed bool
}

// NewNonceAllocator creates an allocator for the account. The first Next
// call primes from the node's pending nonce.
func NewNonceAllocator(account common.Address, client PendingNonceReader, limiter *ratelimit.Limiter, log logger.LoggerInterface) *NonceAllocator {
	return &NonceAllocator{
		account: account,
		client:  client,
		limiter: limiter,
		logger:  log,
	}
}

// Next reserves the next nonce.
func (a *NonceAllocator) Next(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.primed {
		if err := a.resyncLocked(ctx); err != nil {
			return 0, err
		}
	}
	n := a.next
	a.next++
	return n, nil
}

// Resync realigns with the node after a nonce conflict. The local
// counter only moves forward: a node reporting a lower pending nonce
// than already handed out cannot cause reuse.
func (a *NonceAllocator) Resync(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resyncLocked(ctx)
}

func (a *NonceAllocator) resyncLocked(ctx context.Context) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	pending, err := a.client.PendingNonceAt(ctx, a.account)
	if err != nil {
		return apperror.New(apperror.CodeEthereumRPCError,
			apperror.WithCause(err),
			apperror.WithContext("pending nonce fetch"))
	}

	if !a.primed || pending > a.next {
		a.logger.Debug(ctx, "nonce resynced",
			"account", a.account.Hex(), "local", a.next, "pending", pending)
		a.next = pending
	}
	a.primed = true
	return nil
}
