package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flasharb/internal/asset"
)

// Position is the capital committed to one in-flight execution. Opened
// when transaction parameters are prepared, closed at a terminal stage.
type Position struct {
	OpportunityID string
	Asset         asset.AssetID
	Notional      decimal.Decimal
	OpenedAt      time.Time
	ClosedAt      time.Time
	Realized      decimal.Decimal
}

// Closed reports whether the position has a terminal result.
func (p *Position) Closed() bool {
	return !p.ClosedAt.IsZero()
}

// PositionBook tracks open positions. Safe for concurrent pipeline
// workers.
type PositionBook struct {
	mu   sync.Mutex
	open map[string]*Position
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{open: make(map[string]*Position)}
}

// Open records a new position. Opening the same opportunity twice
// returns the existing position unchanged.
func (b *PositionBook) Open(opportunityID string, borrowAsset asset.AssetID, notional decimal.Decimal) *Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.open[opportunityID]; ok {
		return p
	}
	p := &Position{
		OpportunityID: opportunityID,
		Asset:         borrowAsset,
		Notional:      notional,
		OpenedAt:      time.Now(),
	}
	b.open[opportunityID] = p
	return p
}

// Close settles a position with its realized profit or loss and removes
// it from the book. Closing an unknown position returns nil.
func (b *PositionBook) Close(opportunityID string, realized decimal.Decimal) *Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.open[opportunityID]
	if !ok {
		return nil
	}
	delete(b.open, opportunityID)
	p.ClosedAt = time.Now()
	p.Realized = realized
	return p
}

// OpenNotional returns the total committed capital across open
// positions.
func (b *PositionBook) OpenNotional() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := decimal.Zero
	for _, p := range b.open {
		total = total.Add(p.Notional)
	}
	return total
}

// OpenCount returns the number of in-flight positions.
func (b *PositionBook) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.open)
}
