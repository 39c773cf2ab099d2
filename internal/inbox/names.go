package inbox

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultNameTimeout = 5 * time.Second

// NameDirectory looks up the display name of a counterpart.
type NameDirectory interface {
	Lookup(ctx context.Context, counterpartID string) (string, error)
}

// Resolver memoizes display names for the lifetime of the session. Failed
// lookups are cached as their fallback name too, so an id that cannot be
// resolved is only asked for once.
type Resolver struct {
	dir     NameDirectory
	timeout time.Duration
	log     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]string
	group singleflight.Group
}

func NewResolver(dir NameDirectory, timeout time.Duration, log zerolog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = defaultNameTimeout
	}
	return &Resolver{
		dir:     dir,
		timeout: timeout,
		log:     log.With().Str("component", "name_resolver").Logger(),
		cache:   make(map[string]string),
	}
}

func (r *Resolver) Resolve(ctx context.Context, counterpartID string) string {
	r.mu.RLock()
	name, ok := r.cache[counterpartID]
	r.mu.RUnlock()
	if ok {
		return name
	}
	// The shared lookup must not inherit one caller's cancellation, or every
	// waiter would get a fallback that then sticks for the session.
	ch := r.group.DoChan(counterpartID, func() (any, error) {
		return r.lookup(context.WithoutCancel(ctx), counterpartID), nil
	})
	select {
	case res := <-ch:
		return res.Val.(string)
	case <-ctx.Done():
		return FallbackName(counterpartID)
	}
}

func (r *Resolver) lookup(ctx context.Context, counterpartID string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	name, err := r.dir.Lookup(ctx, counterpartID)
	name = strings.TrimSpace(name)
	if err != nil || name == "" {
		r.log.Debug().Err(err).Str("counterpart_id", counterpartID).Msg("Name lookup failed, using fallback")
		name = FallbackName(counterpartID)
	}
	r.mu.Lock()
	if existing, ok := r.cache[counterpartID]; ok {
		name = existing
	} else {
		r.cache[counterpartID] = name
	}
	r.mu.Unlock()
	return name
}

// FallbackName builds a placeholder name from the first eight characters of
// the identifier.
func FallbackName(counterpartID string) string {
	short := []rune(counterpartID)
	if len(short) > 8 {
		short = short[:8]
	}
	return "Customer " + string(short)
}
