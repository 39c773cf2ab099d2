package inbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeNames struct {
	names map[string]string
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeNames) Lookup(ctx context.Context, id string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	name, ok := f.names[id]
	if !ok {
		return "", errors.New("not found")
	}
	return name, nil
}

func TestResolverMemoizes(t *testing.T) {
	dir := &fakeNames{names: map[string]string{"cust-1": "Alice"}}
	r := NewResolver(dir, 0, zerolog.Nop())

	assert.Equal(t, "Alice", r.Resolve(context.Background(), "cust-1"))
	assert.Equal(t, "Alice", r.Resolve(context.Background(), "cust-1"))
	assert.EqualValues(t, 1, dir.calls.Load())
}

func TestResolverCachesFallback(t *testing.T) {
	dir := &fakeNames{names: map[string]string{}}
	r := NewResolver(dir, 0, zerolog.Nop())

	name := r.Resolve(context.Background(), "0123456789abcdef")
	assert.Equal(t, "Customer 01234567", name)
	assert.Equal(t, name, r.Resolve(context.Background(), "0123456789abcdef"))
	assert.EqualValues(t, 1, dir.calls.Load())
}

func TestResolverTimeoutFallsBack(t *testing.T) {
	dir := &fakeNames{names: map[string]string{"slow": "Slow Poke"}, delay: time.Second}
	r := NewResolver(dir, 20*time.Millisecond, zerolog.Nop())

	assert.Equal(t, "Customer slow", r.Resolve(context.Background(), "slow"))
}

func TestResolverCancelledCallerDoesNotPoisonCache(t *testing.T) {
	dir := &fakeNames{names: map[string]string{"cust-3": "Carol"}, delay: 50 * time.Millisecond}
	r := NewResolver(dir, time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan string, 1)
	go func() { first <- r.Resolve(ctx, "cust-3") }()
	time.Sleep(10 * time.Millisecond)
	second := make(chan string, 1)
	go func() { second <- r.Resolve(context.Background(), "cust-3") }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.Equal(t, "Customer cust-3", <-first)
	assert.Equal(t, "Carol", <-second)
	assert.Equal(t, "Carol", r.Resolve(context.Background(), "cust-3"))
	assert.EqualValues(t, 1, dir.calls.Load())
}

func TestFallbackNameKeepsRunesWhole(t *testing.T) {
	name := FallbackName("éééééééééé")
	assert.Equal(t, "Customer éééééééé", name)
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, "Customer ab", FallbackName("ab"))
}

func TestResolverConcurrentLookupsShareOneCall(t *testing.T) {
	dir := &fakeNames{names: map[string]string{"cust-2": "Bob"}, delay: 50 * time.Millisecond}
	r := NewResolver(dir, 0, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "Bob", r.Resolve(context.Background(), "cust-2"))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, dir.calls.Load())
}
