package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/nearme-discovery/internal/model"
)

// MultiSource fetches from several sources in parallel and concatenates the
// results in source registration order. When two sources return the same
// merchant id the earlier source wins. Successful results are cached for ttl.
type MultiSource struct {
	sources []Source
	ttl     time.Duration
	now     func() time.Time

	mutex      sync.RWMutex
	cached     []model.Merchant
	cacheTime  time.Time
	generation uint64

	// OnSourceError is called for every failed source, e.g. to count errors
	OnSourceError func(source string, err error)
}

// NewMultiSource creates a merged source. A zero ttl disables caching.
func NewMultiSource(ttl time.Duration, sources ...Source) *MultiSource {
	return &MultiSource{
		sources: sources,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Name implements Source.
func (c *MultiSource) Name() string {
	return "multi"
}

// Snapshot is one merged list. Generation grows with every fetch that went to
// the sources; cached reads repeat the generation they were stored under.
type Snapshot struct {
	Merchants  []model.Merchant
	Generation uint64
	Cached     bool
}

// Fetch retrieves merchants from every source, using the cache when fresh.
// It fails only when every source fails.
func (c *MultiSource) Fetch(ctx context.Context) ([]model.Merchant, error) {
	snap, err := c.FetchSnapshot(ctx)
	return snap.Merchants, err
}

// FetchSnapshot is Fetch with the generation of the returned list.
func (c *MultiSource) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	if snap, ok := c.fromCache(); ok {
		return snap, nil
	}

	results := make([][]model.Merchant, len(c.sources))
	errs := make([]error, len(c.sources))

	// Source errors are collected rather than returned so one failing source
	// does not cancel the others
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		i, src := i, src
		g.Go(func() error {
			merchants, err := src.Fetch(gctx)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return nil
			}
			results[i] = merchants
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed = append(failed, err)
		logrus.Warnf("Error fetching merchants from %s: %v", c.sources[i].Name(), err)
		if c.OnSourceError != nil {
			c.OnSourceError(c.sources[i].Name(), err)
		}
	}

	if len(c.sources) == 0 {
		return Snapshot{}, errors.New("no merchant sources configured")
	}
	if len(failed) == len(c.sources) {
		return Snapshot{}, fmt.Errorf("all merchant sources failed: %w", errors.Join(failed...))
	}

	merged := mergeByID(results)
	logrus.Infof("Fetched merchants from %d/%d sources, total merchants: %d",
		len(c.sources)-len(failed), len(c.sources), len(merged))

	return Snapshot{Merchants: merged, Generation: c.store(merged)}, nil
}

// Invalidate drops the cached list so the next Fetch goes to the sources.
func (c *MultiSource) Invalidate() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cached = nil
	c.cacheTime = time.Time{}
}

func (c *MultiSource) fromCache() (Snapshot, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.ttl <= 0 || c.cached == nil || c.now().Sub(c.cacheTime) >= c.ttl {
		return Snapshot{}, false
	}
	out := make([]model.Merchant, len(c.cached))
	copy(out, c.cached)
	return Snapshot{Merchants: out, Generation: c.generation, Cached: true}, true
}

// store caches merchants and returns their generation.
func (c *MultiSource) store(merchants []model.Merchant) uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.generation++
	if c.ttl > 0 {
		c.cached = make([]model.Merchant, len(merchants))
		copy(c.cached, merchants)
		c.cacheTime = c.now()
	}
	return c.generation
}

// mergeByID concatenates lists dropping records whose id already came from an
// earlier list. Duplicates inside one list and records with no id are kept so
// boundary validation can report them.
func mergeByID(lists [][]model.Merchant) []model.Merchant {
	merged := make([]model.Merchant, 0)
	owner := make(map[string]int)

	for i, list := range lists {
		for _, m := range list {
			if m.ID != "" {
				if first, ok := owner[m.ID]; ok && first != i {
					continue
				}
				owner[m.ID] = i
			}
			merged = append(merged, m)
		}
	}
	return merged
}
