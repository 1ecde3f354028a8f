package domain

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func sizerConfig() SizerConfig {
	return SizerConfig{
		Capital:        decimal.NewFromInt(100),
		MaxAbsolute:    decimal.NewFromInt(10),
		PctPerTrade:    decimal.RequireFromString("0.10"),
		MaxExposurePct: decimal.RequireFromString("0.50"),
		StreakStep:     decimal.RequireFromString("0.01"),
		PctFloor:       decimal.RequireFromString("0.02"),
		PctCeiling:     decimal.RequireFromString("0.25"),
	}
}

func TestSizerAppliesTightestBound(t *testing.T) {
	cases := []struct {
		name      string
		requested string
		want      string
	}{
		{"requested below all caps", "3", "3"},
		{"absolute cap binds", "50", "10"},
		{"pct cap binds below absolute", "9.5", "9.5"}, // 10% of 100 = 10 > 9.5
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSizer(sizerConfig())
			got := s.Reserve("opp-1", decimal.RequireFromString(tc.requested))
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("Reserve(%s) = %s, want %s", tc.requested, got, tc.want)
			}
		})
	}
}

func TestSizerIdempotentPerOpportunity(t *testing.T) {
	s := NewSizer(sizerConfig())

	first := s.Reserve("opp-1", decimal.NewFromInt(8))
	second := s.Reserve("opp-1", decimal.NewFromInt(8))

	if !first.Equal(second) {
		t.Errorf("repeated Reserve returned %s then %s", first, second)
	}
	if !s.Exposure().Equal(first) {
		t.Errorf("exposure = %s, want single reservation %s", s.Exposure(), first)
	}
}

func TestSizerExposureCeiling(t *testing.T) {
	s := NewSizer(sizerConfig())

	// Ceiling is 50. Five reservations of 10 fill it.
	for i := 0; i < 5; i++ {
		got := s.Reserve(fmt.Sprintf("opp-%d", i), decimal.NewFromInt(10))
		if !got.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("reservation %d = %s, want 10", i, got)
		}
	}

	if got := s.Reserve("opp-over", decimal.NewFromInt(10)); !got.IsZero() {
		t.Errorf("reservation beyond the ceiling = %s, want 0", got)
	}

	// Releasing frees headroom for a partial fill.
	s.Release("opp-0")
	if got := s.Reserve("opp-after", decimal.NewFromInt(10)); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("reservation after release = %s, want 10", got)
	}
}

func TestSizerNeverOvershootsUnderConcurrency(t *testing.T) {
	s := NewSizer(sizerConfig())
	ceiling := decimal.NewFromInt(50)

	var wg sync.WaitGroup
	results := make([]decimal.Decimal, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Reserve(fmt.Sprintf("opp-%d", i), decimal.NewFromInt(10))
		}(i)
	}
	wg.Wait()

	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r)
	}
	if total.GreaterThan(ceiling) {
		t.Errorf("aggregate reservations %s exceed ceiling %s", total, ceiling)
	}
	if !s.Exposure().Equal(total) {
		t.Errorf("exposure %s does not match reservations %s", s.Exposure(), total)
	}
}

func TestSizerStreakScaling(t *testing.T) {
	s := NewSizer(sizerConfig())

	// Three wins: pct = 0.10 + 3*0.01 = 0.13 -> 13.
	for i := 0; i < 3; i++ {
		s.RecordWin()
	}
	if got := s.Reserve("opp-w", decimal.NewFromInt(100)); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("win-streak reservation = %s, want 10 (absolute cap still binds)", got)
	}
	s.Release("opp-w")

	// Losses push the pct to the floor: 0.10 - 20*0.01 < 0.02 -> 2.
	for i := 0; i < 20; i++ {
		s.RecordLoss()
	}
	if got := s.Reserve("opp-l", decimal.NewFromInt(100)); !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("loss-streak reservation = %s, want floor 2", got)
	}
}

func TestSizerReleaseIsIdempotent(t *testing.T) {
	s := NewSizer(sizerConfig())
	s.Reserve("opp-1", decimal.NewFromInt(5))

	s.Release("opp-1")
	s.Release("opp-1")

	if !s.Exposure().IsZero() {
		t.Errorf("exposure = %s, want 0 after release", s.Exposure())
	}
}
