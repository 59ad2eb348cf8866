package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	errs "hilo-forecaster/internal/errors"
	"hilo-forecaster/internal/models"
)

// RoundSource supplies rounds from upstream.
type RoundSource interface {
	Fetch(ctx context.Context) (models.History, error)
}

// SyncConfig holds configuration for the sync manager.
type SyncConfig struct {
	// StaleAfter is how old the last sync can be before rounds are considered stale.
	StaleAfter time.Duration
	// AutoSyncInterval is how often the background loop pulls new rounds.
	AutoSyncInterval time.Duration
}

// DefaultSyncConfig returns default sync configuration.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		StaleAfter:       5 * time.Minute,
		AutoSyncInterval: 30 * time.Second,
	}
}

// SyncResult represents the result of a sync operation.
type SyncResult struct {
	Fetched  int       `json:"fetched"`
	New      int       `json:"new"`
	Resolved int       `json:"resolved"`
	Latest   int64     `json:"latest_index"`
	SyncedAt time.Time `json:"synced_at"`
}

// DataFreshness represents the freshness of stored rounds.
type DataFreshness struct {
	LastUpdated time.Time     `json:"last_updated"`
	IsFresh     bool          `json:"is_fresh"`
	Age         time.Duration `json:"age"`
}

// SyncManager copies rounds from an upstream source into the store and resolves
// pending forecasts as their target rounds arrive.
type SyncManager struct {
	store  DataStore
	source RoundSource
	config SyncConfig
	logger zerolog.Logger
	mu     sync.RWMutex

	onSyncComplete func(result *SyncResult)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSyncManager creates a new sync manager.
func NewSyncManager(store DataStore, source RoundSource, config SyncConfig, logger zerolog.Logger) *SyncManager {
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultSyncConfig().StaleAfter
	}
	if config.AutoSyncInterval <= 0 {
		config.AutoSyncInterval = DefaultSyncConfig().AutoSyncInterval
	}

	return &SyncManager{
		store:  store,
		source: source,
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// SetSyncCompleteCallback sets the callback for when a sync completes.
func (sm *SyncManager) SetSyncCompleteCallback(fn func(result *SyncResult)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onSyncComplete = fn
}

// Sync fetches upstream rounds, upserts them and resolves pending forecasts.
func (sm *SyncManager) Sync(ctx context.Context) (*SyncResult, error) {
	latest, err := sm.store.LatestIndex(ctx)
	if err != nil {
		return nil, err
	}

	rounds, err := sm.source.Fetch(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "fetching rounds")
	}

	result := &SyncResult{Fetched: len(rounds), Latest: latest}
	for _, r := range rounds {
		if r.Index > latest {
			result.New++
		}
	}

	if _, err := sm.store.SaveRounds(ctx, rounds); err != nil {
		return nil, errs.Wrapf(err, "saving %d rounds", len(rounds))
	}
	if last, ok := rounds.Last(); ok && last.Index > result.Latest {
		result.Latest = last.Index
	}

	if result.Resolved, err = sm.store.ResolveForecasts(ctx); err != nil {
		return nil, err
	}

	result.SyncedAt = time.Now()
	if err := sm.store.SetLastSync(SyncTypeRounds, result.SyncedAt); err != nil {
		return nil, errs.Wrap(err, "failed to mark rounds as synced")
	}

	sm.mu.RLock()
	callback := sm.onSyncComplete
	sm.mu.RUnlock()
	if callback != nil {
		callback(result)
	}

	sm.logger.Debug().
		Int("fetched", result.Fetched).
		Int("new", result.New).
		Int("resolved", result.Resolved).
		Int64("latest", result.Latest).
		Msg("Rounds synced")

	return result, nil
}

// Start starts the background sync loop.
func (sm *SyncManager) Start(ctx context.Context) {
	sm.wg.Add(1)
	go sm.autoSync(ctx)
}

// Stop stops the sync manager. It is safe to call more than once.
func (sm *SyncManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stopCh) })
	sm.wg.Wait()
}

func (sm *SyncManager) autoSync(ctx context.Context) {
	defer sm.wg.Done()

	ticker := time.NewTicker(sm.config.AutoSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sm.stopCh:
			return
		case <-ticker.C:
			if _, err := sm.Sync(ctx); err != nil {
				sm.logger.Warn().Err(err).Msg("Background sync failed")
			}
		}
	}
}

// GetDataFreshness returns the freshness status of stored rounds.
func (sm *SyncManager) GetDataFreshness() *DataFreshness {
	lastSync := sm.store.GetLastSync(SyncTypeRounds)
	age := time.Since(lastSync)

	return &DataFreshness{
		LastUpdated: lastSync,
		IsFresh:     !lastSync.IsZero() && age < sm.config.StaleAfter,
		Age:         age,
	}
}

// HistoryWithFallback fetches upstream rounds and stores them, falling back to the
// stored history when the source fails. The bool reports whether stored data was used.
func (sm *SyncManager) HistoryWithFallback(ctx context.Context, limit int) (models.History, bool, error) {
	if _, err := sm.Sync(ctx); err != nil {
		stored, serr := sm.store.GetRounds(ctx, limit)
		if serr != nil || len(stored) == 0 {
			return nil, false, errs.Wrap(err, "failed to fetch rounds and no stored history available")
		}
		sm.logger.Warn().Err(err).Int("rounds", len(stored)).Msg("Using stored history")
		return stored, true, nil
	}

	h, err := sm.store.GetRounds(ctx, limit)
	if err != nil {
		return nil, false, err
	}
	return h, false, nil
}

// FormatFreshness returns a human-readable freshness string.
func FormatFreshness(freshness *DataFreshness) string {
	if freshness.LastUpdated.IsZero() {
		return "Never synced"
	}

	age := freshness.Age
	var ageStr string

	switch {
	case age < time.Minute:
		ageStr = "just now"
	case age < time.Hour:
		ageStr = fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		ageStr = fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		ageStr = fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}

	if freshness.IsFresh {
		return fmt.Sprintf("Updated %s", ageStr)
	}
	return fmt.Sprintf("Stale data - Updated %s", ageStr)
}
