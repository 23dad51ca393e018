// Package cascade builds cascades from style sheets and caches them by the
// results of the conditional rules they were built under.
package cascade

import (
	"errors"

	"github.com/emirpasic/gods/lists/doublylinkedlist"
	"go.uber.org/zap"

	"stylematch/internal/css"
)

// ErrCapacityExceeded is returned when a cascade needs more rule selectors
// than the configured budget. The cascade is not built.
var ErrCapacityExceeded = errors.New("cascade capacity exceeded")

// Config controls cache size and cascade building.
type Config struct {
	// Capacity is the number of cascades kept, at least 1.
	Capacity int
	// MaxRules limits the rule selectors of one cascade, 0 means no limit.
	MaxRules int
	Quirks   bool
}

// Cache owns the cascades built for the current sheets, most recently used
// first. It is not safe for concurrent use; a returned Resolved may be
// shared.
type Cache struct {
	cfg Config
	log *zap.Logger

	sheets  []*css.Stylesheet
	placed  []Placed
	entries *doublylinkedlist.List // *Resolved

	// previous is the key of the active cascade at the last Invalidate.
	previous *Key
	// lastGood is returned when a build fails.
	lastGood *Resolved
}

// New creates an empty cache.
func New(cfg Config, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	return &Cache{cfg: cfg, log: log.Named("cascade"), entries: doublylinkedlist.New()}
}

// SetSheets replaces the sheets cascades are built from and invalidates
// the cache.
func (c *Cache) SetSheets(sheets ...*css.Stylesheet) {
	c.sheets = append([]*css.Stylesheet(nil), sheets...)
	c.Invalidate()
}

// SetRules replaces the directly placed rules and invalidates the cache.
func (c *Cache) SetRules(placed []Placed) {
	c.placed = append([]Placed(nil), placed...)
	c.Invalidate()
}

// SetQuirks switches the quirks mode rule indexes are built for. Cascades
// built for the other mode are dropped.
func (c *Cache) SetQuirks(quirks bool) {
	if c.cfg.Quirks == quirks {
		return
	}
	c.log.Debug("Quirks mode changed", zap.Bool("quirks", quirks))
	c.cfg.Quirks = quirks
	c.Invalidate()
}

// Quirks reports the quirks mode cascades are built for.
func (c *Cache) Quirks() bool { return c.cfg.Quirks }

// Sheets returns the current sheets.
func (c *Cache) Sheets() []*css.Stylesheet { return c.sheets }

// Resolve returns the cascade for env, building it when no cached cascade
// was built under conditions env evaluates the same way. On a build error
// the last successfully resolved cascade, which may be nil, is returned
// along with the error.
func (c *Cache) Resolve(env Environment) (*Resolved, error) {
	it := c.entries.Iterator()
	for it.Next() {
		r := it.Value().(*Resolved)
		if !r.key.Matches(env) {
			continue
		}
		if i := it.Index(); i > 0 {
			c.entries.Remove(i)
			c.entries.Prepend(r)
		}
		c.log.Debug("Cascade cache hit", zap.Uint64("fingerprint", r.key.Fingerprint()))
		c.lastGood = r
		return r, nil
	}

	c.log.Debug("Building cascade", zap.Int("sheets", len(c.sheets)), zap.Int("placed", len(c.placed)))
	r, err := build(c.sheets, c.placed, env, c.cfg.Quirks, c.cfg.MaxRules)
	if err != nil {
		c.log.Warn("Cascade build failed, keeping previous cascade", zap.Error(err))
		return c.lastGood, err
	}
	c.log.Debug("Cascade built",
		zap.Uint64("fingerprint", r.key.Fingerprint()),
		zap.Int("layers", len(r.layers)),
		zap.Int("rules", r.rules))

	c.entries.Prepend(r)
	for c.entries.Size() > c.cfg.Capacity {
		last := c.entries.Size() - 1
		if evicted, ok := c.entries.Get(last); ok {
			c.log.Debug("Cascade evicted", zap.Uint64("fingerprint", evicted.(*Resolved).key.Fingerprint()))
		}
		c.entries.Remove(last)
	}
	c.lastGood = r
	return r, nil
}

// Active returns the most recently used cascade, nil when there is none.
func (c *Cache) Active() *Resolved {
	if v, ok := c.entries.Get(0); ok {
		return v.(*Resolved)
	}
	return nil
}

// Invalidate drops every cascade. The key of the active one is kept for
// MediumFeaturesChanged.
func (c *Cache) Invalidate() {
	if active := c.Active(); active != nil {
		key := active.key
		c.previous = &key
	}
	c.entries.Clear()
}

// MediumFeaturesChanged reports whether the active cascade, or after an
// Invalidate the one active before it, would evaluate some condition
// differently under env. Nothing is built.
func (c *Cache) MediumFeaturesChanged(env Environment) bool {
	key := c.previous
	if active := c.Active(); active != nil {
		key = &active.key
	}
	if key == nil {
		return false
	}
	changed := !key.Matches(env)
	if changed {
		c.log.Debug("Medium features changed", zap.Stringer("conditions", key))
	}
	return changed
}

// Len returns the number of cached cascades.
func (c *Cache) Len() int {
	return c.entries.Size()
}
