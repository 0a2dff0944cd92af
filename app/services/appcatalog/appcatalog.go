// Package appcatalog looks up remote application descriptions and account
// balances. Application details rarely change, so they are cached in process.
package appcatalog

import (
	"context"
	"errors"
	"time"

	"hubrunner/internal/remotejob"

	"github.com/dgraph-io/ristretto/v2"
	log "github.com/sirupsen/logrus"
)

var (
	ErrMissingAPIKey   = errors.New("API key is required")
	ErrMissingWebappID = errors.New("webapp id is required")
)

const maxCachedApps = 1000

type Service struct {
	client remotejob.CatalogOperations
	cache  *ristretto.Cache[string, *remotejob.WebappDetail]
	ttl    time.Duration
}

// New builds the service. A ttl of zero disables caching.
func New(client remotejob.CatalogOperations, ttl time.Duration) (*Service, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *remotejob.WebappDetail]{
		NumCounters: maxCachedApps * 10,
		MaxCost:     maxCachedApps,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Service{client: client, cache: cache, ttl: ttl}, nil
}

func cacheKey(apiKey, webappID string) string {
	return apiKey + "|" + webappID
}

func (s *Service) WebappDetail(ctx context.Context, apiKey, webappID string) (*remotejob.WebappDetail, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if webappID == "" {
		return nil, ErrMissingWebappID
	}

	key := cacheKey(apiKey, webappID)
	if s.ttl > 0 {
		if detail, ok := s.cache.Get(key); ok {
			return detail, nil
		}
	}

	detail, err := s.client.WebappDetail(ctx, apiKey, webappID)
	if err != nil {
		return nil, err
	}

	if s.ttl > 0 {
		s.cache.SetWithTTL(key, detail, 1, s.ttl)
		s.cache.Wait()
	}
	log.WithField("webapp_id", webappID).WithField("fields", len(detail.NodeInfoList)).Debug("fetched webapp detail")
	return detail, nil
}

// Invalidate drops a cached detail so the next lookup hits the remote.
func (s *Service) Invalidate(apiKey, webappID string) {
	s.cache.Del(cacheKey(apiKey, webappID))
}

func (s *Service) AccountStatus(ctx context.Context, apiKey string) (*remotejob.AccountStatus, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return s.client.AccountStatus(ctx, apiKey)
}

func (s *Service) Close() {
	s.cache.Close()
}
