package workers

import (
	"context"
	"sync"
	"time"

	"trailsafe/cache"
	"trailsafe/services"

	"github.com/sirupsen/logrus"
)

// SweepWorkerConfig tunes the background expiry sweeps.
type SweepWorkerConfig struct {
	CacheSweepInterval time.Duration `json:"cacheSweepInterval"`
	TokenSweepInterval time.Duration `json:"tokenSweepInterval"`
}

func DefaultSweepWorkerConfig() SweepWorkerConfig {
	return SweepWorkerConfig{
		CacheSweepInterval: time.Minute,
		TokenSweepInterval: 5 * time.Minute,
	}
}

// SweepWorkerStats counts what the sweeps reclaimed.
type SweepWorkerStats struct {
	CacheEntriesSwept int64     `json:"cacheEntriesSwept"`
	TokensSwept       int64     `json:"tokensSwept"`
	LastCacheSweep    time.Time `json:"lastCacheSweep"`
	LastTokenSweep    time.Time `json:"lastTokenSweep"`
}

// SweepWorker expires cache entries and tracking tokens in the background.
// Both loops are cancellable and joined at shutdown.
type SweepWorker struct {
	config SweepWorkerConfig

	cache *cache.BoundedCache
	links *services.MemoryLinkStore // nil when Redis owns token expiry

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      SweepWorkerStats
	statsMutex sync.RWMutex
}

func NewSweepWorker(config SweepWorkerConfig, boundedCache *cache.BoundedCache, links *services.MemoryLinkStore) *SweepWorker {
	ctx, cancel := context.WithCancel(context.Background())

	if config.CacheSweepInterval <= 0 {
		config.CacheSweepInterval = time.Minute
	}
	if config.TokenSweepInterval <= 0 {
		config.TokenSweepInterval = 5 * time.Minute
	}

	return &SweepWorker{
		config: config,
		cache:  boundedCache,
		links:  links,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (w *SweepWorker) Start() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.isRunning {
		return
	}
	w.isRunning = true

	logrus.Info("Sweep worker starting...")

	if w.cache != nil {
		w.wg.Add(1)
		go w.runCacheSweep()
	}
	if w.links != nil {
		w.wg.Add(1)
		go w.runTokenSweep()
	}
}

// Stop cancels both loops and blocks until they exit.
func (w *SweepWorker) Stop() {
	w.mutex.Lock()
	if !w.isRunning {
		w.mutex.Unlock()
		return
	}
	w.isRunning = false
	w.mutex.Unlock()

	w.cancel()
	w.wg.Wait()
	logrus.Info("Sweep worker stopped")
}

func (w *SweepWorker) runCacheSweep() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.CacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			swept := w.cache.SweepExpired()
			w.statsMutex.Lock()
			w.stats.CacheEntriesSwept += int64(swept)
			w.stats.LastCacheSweep = time.Now()
			w.statsMutex.Unlock()
			if swept > 0 {
				logrus.Debugf("Cache sweep reclaimed %d expired entries", swept)
			}

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *SweepWorker) runTokenSweep() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.TokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			swept := w.links.SweepExpired()
			w.statsMutex.Lock()
			w.stats.TokensSwept += int64(swept)
			w.stats.LastTokenSweep = time.Now()
			w.statsMutex.Unlock()
			if swept > 0 {
				logrus.Infof("Token sweep invalidated %d expired tracking links", swept)
			}

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *SweepWorker) GetStats() SweepWorkerStats {
	w.statsMutex.RLock()
	defer w.statsMutex.RUnlock()
	return w.stats
}
