package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Cache stores fetched network and station lists between runs. The cached
// data is trusted as-is: there is no TTL and no invalidation, refreshing
// is an explicit caller decision. Station lists are keyed by the network
// set they were fetched for, so configurations selecting different
// networks never see each other's station list.
type Cache interface {
	GetNetworks(ctx context.Context) ([]Network, error)
	SetNetworks(ctx context.Context, networks []Network) error
	GetStations(ctx context.Context, networkCodes []string) ([]Station, error)
	SetStations(ctx context.Context, networkCodes []string, stations []Station) error
}

// networksKey canonicalizes a network-code set into a cache key part.
// Order does not matter: [TK, KO] and [KO, TK] share one entry.
func networksKey(networkCodes []string) string {
	codes := make([]string, len(networkCodes))
	copy(codes, networkCodes)
	sort.Strings(codes)
	return strings.Join(codes, "_")
}

// FileCache persists catalog lists as JSON files in a directory:
// networks.json plus one stations_<CODES>.json per network set. The files
// are plain serialized JSON so they can be inspected or edited by hand.
type FileCache struct {
	dir string
}

// NewFileCache creates a file-backed catalog cache rooted at dir.
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

const networksFile = "networks.json"

func stationsFile(networkCodes []string) string {
	return "stations_" + networksKey(networkCodes) + ".json"
}

// GetNetworks reads the cached network list.
// Returns ErrCacheMiss if the file does not exist.
func (c *FileCache) GetNetworks(ctx context.Context) ([]Network, error) {
	var networks []Network
	if err := c.read(networksFile, &networks); err != nil {
		return nil, err
	}
	cacheHits.WithLabelValues("file").Inc()
	return networks, nil
}

// SetNetworks writes the network list to the cache file.
func (c *FileCache) SetNetworks(ctx context.Context, networks []Network) error {
	return c.write(networksFile, networks)
}

// GetStations reads the station list cached for the given network set.
// Returns ErrCacheMiss if the file does not exist.
func (c *FileCache) GetStations(ctx context.Context, networkCodes []string) ([]Station, error) {
	var stations []Station
	if err := c.read(stationsFile(networkCodes), &stations); err != nil {
		return nil, err
	}
	cacheHits.WithLabelValues("file").Inc()
	return stations, nil
}

// SetStations writes the station list for the given network set.
func (c *FileCache) SetStations(ctx context.Context, networkCodes []string, stations []Station) error {
	return c.write(stationsFile(networkCodes), stations)
}

func (c *FileCache) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			cacheMisses.Inc()
			return ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("read cache file %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("decode cache file %s: %w", name, err)
	}
	return nil
}

func (c *FileCache) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode cache file %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0o644); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("write cache file %s: %w", name, err)
	}
	cacheSize.WithLabelValues("file").Set(float64(len(data)))
	return nil
}

// RedisCache persists catalog lists in Redis, for setups where several
// machines share one catalog snapshot. Entries are stored without TTL,
// matching the file cache semantics.
type RedisCache struct {
	redis *redis.Client
}

// NewRedisCache creates a Redis-backed catalog cache.
func NewRedisCache(redisClient *redis.Client) *RedisCache {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisCache{redis: redisClient}
}

const (
	redisNetworksKey     = "tdvms:catalog:networks"
	redisStationsKeyBase = "tdvms:catalog:stations"
)

func redisStationsKey(networkCodes []string) string {
	return redisStationsKeyBase + ":" + networksKey(networkCodes)
}

// GetNetworks reads the cached network list from Redis.
func (c *RedisCache) GetNetworks(ctx context.Context) ([]Network, error) {
	var networks []Network
	if err := c.get(ctx, redisNetworksKey, &networks); err != nil {
		return nil, err
	}
	return networks, nil
}

// SetNetworks writes the network list to Redis.
func (c *RedisCache) SetNetworks(ctx context.Context, networks []Network) error {
	return c.set(ctx, redisNetworksKey, networks)
}

// GetStations reads the station list cached for the given network set.
func (c *RedisCache) GetStations(ctx context.Context, networkCodes []string) ([]Station, error) {
	var stations []Station
	if err := c.get(ctx, redisStationsKey(networkCodes), &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// SetStations writes the station list for the given network set.
func (c *RedisCache) SetStations(ctx context.Context, networkCodes []string, stations []Station) error {
	return c.set(ctx, redisStationsKey(networkCodes), stations)
}

func (c *RedisCache) get(ctx context.Context, key string, v any) error {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMisses.Inc()
			return ErrCacheMiss
		}
		cacheErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("decode cache key %s: %w", key, err)
	}
	cacheHits.WithLabelValues("redis").Inc()
	return nil
}

func (c *RedisCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode cache key %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, key, data, 0).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	cacheSize.WithLabelValues("redis").Set(float64(len(data)))
	return nil
}
