// Package app contains application services and port definitions for the market context.
package app

import (
	"context"

	"github.com/fd1az/flasharb/business/market/domain"
)

// PoolStateFetcher fetches pool snapshots from one venue family. Adapters
// stamp every returned pool with the generation they are asked for, so a
// graph never mixes refresh generations.
type PoolStateFetcher interface {
	// FetchPools returns the current pool snapshots. Individual pool
	// failures are absorbed by the adapter; the slice may be partial.
	FetchPools(ctx context.Context, generation uint64) ([]*domain.Pool, error)

	// Venue identifies the venue family this fetcher covers.
	Venue() domain.Venue
}
