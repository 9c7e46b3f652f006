// Package catalog serves plan definitions from a YAML file. The parsed plans
// are cached and reloaded when the file's modification time moves past the
// one recorded at the last load.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/model"
	"subscription-ledger/internal/domain/ports/repository"
	"subscription-ledger/internal/infra/metrics"
)

var _ repository.PlanCatalog = (*FileCatalog)(nil)

type file struct {
	Plans []*model.Plan `yaml:"plans"`
}

type FileCatalog struct {
	path string

	mu      sync.RWMutex
	plans   []*model.Plan
	byID    map[string]*model.Plan
	modTime time.Time
	stale   bool

	log *zerolog.Logger
}

func NewFileCatalog(path string, logger *zerolog.Logger) *FileCatalog {
	l := logger.With().Str("component", "PlanCatalog").Str("path", path).Logger()
	return &FileCatalog{path: path, log: &l}
}

// GetPlans returns the plans in file order. A failed reload keeps serving the
// previous plans; the error is only returned when nothing was ever loaded.
func (c *FileCatalog) GetPlans(ctx context.Context, forceReload bool) ([]*model.Plan, error) {
	if err := c.refresh(forceReload); err != nil {
		c.mu.RLock()
		loaded := c.plans != nil
		c.mu.RUnlock()
		if !loaded {
			return nil, err
		}
		c.log.Warn().Err(err).Msg("plan catalog reload failed; serving previous plans")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Plan, len(c.plans))
	copy(out, c.plans)
	return out, nil
}

func (c *FileCatalog) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	if _, err := c.GetPlans(ctx, false); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return p, nil
}

func (c *FileCatalog) refresh(force bool) error {
	fi, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("stat plan catalog: %w", err)
	}

	c.mu.RLock()
	fresh := c.plans != nil && !c.stale && !fi.ModTime().After(c.modTime)
	c.mu.RUnlock()
	if fresh && !force {
		metrics.IncCacheRequest("plan_catalog", "hit")
		return nil
	}
	metrics.IncCacheRequest("plan_catalog", "miss")

	plans, err := load(c.path)
	if err != nil {
		metrics.IncCatalogReload("error")
		return err
	}
	byID := make(map[string]*model.Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}

	// concurrent reloads may race here; last writer wins
	c.mu.Lock()
	c.plans, c.byID = plans, byID
	c.modTime = fi.ModTime()
	c.stale = false
	c.mu.Unlock()

	metrics.IncCatalogReload("ok")
	c.log.Info().Int("plans", len(plans)).Time("mod_time", fi.ModTime()).Msg("plan catalog loaded")
	return nil
}

func load(path string) ([]*model.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Plans))
	plans := make([]*model.Plan, 0, len(f.Plans))
	for i, p := range f.Plans {
		if p == nil {
			return nil, fmt.Errorf("plan #%d is empty: %w", i, domain.ErrInvalidArgument)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("plan %q: %w", p.ID, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("plan %q defined twice: %w", p.ID, domain.ErrInvalidArgument)
		}
		seen[p.ID] = true
		plans = append(plans, p)
	}
	return plans, nil
}

// Invalidate forces the next read to reload the file.
func (c *FileCatalog) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// Watch invalidates the cache as soon as the file changes instead of waiting
// for the next modification time check. The parent directory is watched
// because editors usually replace the file rather than write to it.
func (c *FileCatalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(c.path), err)
	}
	target := filepath.Clean(c.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				c.Invalidate()
				c.log.Debug().Str("op", ev.Op.String()).Msg("plan catalog changed")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Warn().Err(err).Msg("plan catalog watcher error")
		}
	}
}
