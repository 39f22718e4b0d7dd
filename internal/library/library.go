// Package library holds the loaded catalog and keeps it fresh in the background.
package library

import (
	"context"
	"sync"
	"time"

	"github.com/glebovdev/twindeck/internal/catalog"
	"github.com/glebovdev/twindeck/internal/media"
	"github.com/rs/zerolog/log"
)

const loadTimeout = 30 * time.Second

// IdentityChange is an item whose id changed while its source stayed put.
type IdentityChange struct {
	Old     media.Item
	Updated media.Item
}

// Service manages library data, including loading and periodic refresh.
type Service struct {
	source        catalog.Source
	items         []media.Item
	mu            sync.RWMutex
	refreshTicker *time.Ticker
	stopRefresh   chan struct{}
	onRefresh     func([]media.Item)
	onIdentity    func(IdentityChange)
}

func NewService(source catalog.Source) *Service {
	return &Service{source: source}
}

// Load reads the whole library from its source.
func (s *Service) Load(ctx context.Context) ([]media.Item, error) {
	items, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	log.Debug().Int("count", len(items)).Str("source", s.source.String()).Msg("Library loaded")
	return media.Clone(items), nil
}

func (s *Service) Items() []media.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return media.Clone(s.items)
}

func (s *Service) FindIndexByID(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// ValidIDs returns the set of ids currently in the library.
func (s *Service) ValidIDs() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]bool, len(s.items))
	for _, it := range s.items {
		ids[it.ID] = true
	}
	return ids
}

// OnIdentityChanged registers fn to hear about items whose id changed
// between refreshes.
func (s *Service) OnIdentityChanged(fn func(IdentityChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIdentity = fn
}

func (s *Service) StartPeriodicRefresh(interval time.Duration, callback func([]media.Item)) {
	s.StopPeriodicRefresh()

	s.mu.Lock()
	s.onRefresh = callback
	s.stopRefresh = make(chan struct{})
	s.refreshTicker = time.NewTicker(interval)
	ticker := s.refreshTicker
	stopCh := s.stopRefresh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.refreshInBackground()
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started periodic library refresh")
}

func (s *Service) StopPeriodicRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRefresh != nil {
		close(s.stopRefresh)
		s.stopRefresh = nil
		log.Debug().Msg("Stopped periodic library refresh")
	}
}

func (s *Service) refreshInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	fresh, err := s.source.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Background refresh failed, keeping cached data")
		return
	}

	s.mu.Lock()
	changes := diffIdentities(s.items, fresh)
	s.items = fresh
	callback := s.onRefresh
	onIdentity := s.onIdentity
	s.mu.Unlock()

	if onIdentity != nil {
		for _, ch := range changes {
			onIdentity(ch)
		}
	}
	if callback != nil {
		callback(media.Clone(fresh))
	}

	log.Debug().
		Int("count", len(fresh)).
		Int("identity_changes", len(changes)).
		Msg("Library refreshed in background")
}

// diffIdentities pairs items by Source and reports those whose id changed.
func diffIdentities(old, fresh []media.Item) []IdentityChange {
	bySource := make(map[string]media.Item, len(fresh))
	for _, it := range fresh {
		if it.Source != "" {
			bySource[it.Source] = it
		}
	}

	var changes []IdentityChange
	for _, it := range old {
		updated, ok := bySource[it.Source]
		if !ok || updated.ID == it.ID {
			continue
		}
		changes = append(changes, IdentityChange{Old: it, Updated: updated})
	}
	return changes
}
