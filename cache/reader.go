package cache

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/pns-indexer/storage"
)

// CachedReader serves domain lookups through a Cache. The applier
// invalidates an entry whenever it writes the name, so hits are never
// older than the last committed write.
type CachedReader struct {
	storage.ProjectionReader
	cache  Cache
	logger *zap.Logger
}

// NewCachedReader wraps reader; cache failures fall through to the store
func NewCachedReader(reader storage.ProjectionReader, cache Cache, logger *zap.Logger) *CachedReader {
	if cache == nil {
		cache = Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedReader{ProjectionReader: reader, cache: cache, logger: logger}
}

// GetDomain returns the cached row or loads and caches it
func (r *CachedReader) GetDomain(ctx context.Context, nameHash common.Hash) (*storage.Domain, error) {
	data, ok, err := r.cache.Get(ctx, nameHash)
	switch {
	case err != nil:
		r.logger.Warn("cache read failed", zap.String("name_hash", nameHash.Hex()), zap.Error(err))
	case ok:
		var d storage.Domain
		if err := json.Unmarshal(data, &d); err == nil {
			cacheHitsTotal.Inc()
			return &d, nil
		}
		r.logger.Warn("dropping undecodable cache entry", zap.String("name_hash", nameHash.Hex()))
	}
	cacheMissesTotal.Inc()

	d, err := r.ProjectionReader.GetDomain(ctx, nameHash)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(d); err == nil {
		if err := r.cache.Set(ctx, nameHash, data); err != nil {
			r.logger.Warn("cache write failed", zap.String("name_hash", nameHash.Hex()), zap.Error(err))
		}
	}
	return d, nil
}
