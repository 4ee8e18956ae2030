// Package catalog fetches and caches the network and station lists of the
// TDVMS continuous-data service and normalizes hybrid stations.
package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/seismoworks/tdvms-client/pkg/logging"
)

// Fetcher retrieves the raw catalog lists from the remote service.
// It is implemented by pkg/client.
type Fetcher interface {
	// FetchNetworks returns all networks known to the service.
	FetchNetworks(ctx context.Context) ([]Network, error)

	// FetchStations returns all stations of the given networks.
	FetchStations(ctx context.Context, networkCodes []string) ([]Station, error)
}

// Service serves catalog lists, preferring the cache over the network.
// Cached station lists are stored post-expansion, so a cache hit needs no
// further normalization.
type Service struct {
	fetcher Fetcher
	cache   Cache
	refresh bool
	logger  zerolog.Logger
}

// NewService creates a catalog service. cache may be nil to disable
// caching entirely. When refresh is true the cache is ignored on read but
// still updated after a fetch.
func NewService(fetcher Fetcher, cache Cache, refresh bool) *Service {
	return &Service{
		fetcher: fetcher,
		cache:   cache,
		refresh: refresh,
		logger:  logging.NewLogger("catalog"),
	}
}

// Networks returns the network list, from cache when possible.
func (s *Service) Networks(ctx context.Context) ([]Network, error) {
	if s.cache != nil && !s.refresh {
		networks, err := s.cache.GetNetworks(ctx)
		if err == nil {
			s.logger.Debug().Int("count", len(networks)).Msg("Networks served from cache")
			return networks, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn().Err(err).Msg("Network cache read failed, fetching")
		}
	}

	networks, err := s.fetcher.FetchNetworks(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int("count", len(networks)).Msg("Fetched networks")

	if s.cache != nil {
		if err := s.cache.SetNetworks(ctx, networks); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache networks")
		}
	}
	return networks, nil
}

// Stations returns the hybrid-expanded station list of the given
// networks, from cache when possible. Cache entries are keyed by the
// network set, so a list cached for one selection is never served to a
// configuration requesting different networks.
func (s *Service) Stations(ctx context.Context, networkCodes []string) ([]Station, error) {
	if s.cache != nil && !s.refresh {
		stations, err := s.cache.GetStations(ctx, networkCodes)
		if err == nil {
			s.logger.Debug().Int("count", len(stations)).Msg("Stations served from cache")
			return stations, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn().Err(err).Msg("Station cache read failed, fetching")
		}
	}

	raw, err := s.fetcher.FetchStations(ctx, networkCodes)
	if err != nil {
		return nil, err
	}

	stations := ExpandHybrids(raw)
	if extra := len(stations) - len(raw); extra > 0 {
		hybridExpansions.Add(float64(extra))
	}
	s.logger.Info().
		Int("fetched", len(raw)).
		Int("expanded", len(stations)).
		Msg("Fetched stations")

	if s.cache != nil {
		if err := s.cache.SetStations(ctx, networkCodes, stations); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache stations")
		}
	}
	return stations, nil
}
