package ethereum

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/flasharb/internal/logger"
)

type fakeNonceReader struct {
	mu      sync.Mutex
	pending uint64
	calls   int
}

func (f *fakeNonceReader) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pending, nil
}

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelInfo, "test", nil)
}

func TestNonceAllocatorSequence(t *testing.T) {
	reader := &fakeNonceReader{pending: 10}
	a := NewNonceAllocator(common.Address{}, reader, nil, testLogger())

	for want := uint64(10); want < 13; want++ {
		got, err := a.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}
	if reader.calls != 1 {
		t.Errorf("node calls = %d, want 1 (prime only)", reader.calls)
	}
}

func TestNonceAllocatorConcurrentUnique(t *testing.T) {
	reader := &fakeNonceReader{pending: 100}
	a := NewNonceAllocator(common.Address{}, reader, nil, testLogger())

	const n = 50
	results := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nonce, err := a.Next(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = nonce
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, nonce := range results {
		if nonce != 100+uint64(i) {
			t.Fatalf("nonces not unique and contiguous: %v", results)
		}
	}
}

func TestNonceAllocatorResyncNeverGoesBackward(t *testing.T) {
	reader := &fakeNonceReader{pending: 10}
	a := NewNonceAllocator(common.Address{}, reader, nil, testLogger())

	for i := 0; i < 5; i++ {
		if _, err := a.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	// Node lags behind what we already handed out.
	reader.pending = 12
	if err := a.Resync(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, err := a.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != 15 {
		t.Errorf("Next() after lagging resync = %d, want 15", got)
	}

	// Node is ahead: someone else used the account.
	reader.pending = 40
	if err := a.Resync(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, err = a.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != 40 {
		t.Errorf("Next() after leading resync = %d, want 40", got)
	}
}
