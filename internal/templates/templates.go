package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"coinalerts/internal/notify"
	"coinalerts/internal/storage"
)

const (
	keyPrefix = "template:"

	cacheTTL = 12 * time.Hour
)

// Service resolves message templates with a Redis cache in front of the
// durable store. A cache miss falls through to Postgres and repopulates the
// cache best-effort.
type Service struct {
	rdb    redis.UniversalClient
	store  storage.TemplateStore
	logger zerolog.Logger
}

// NewService constructs a cache-fronted template service.
func NewService(rdb redis.UniversalClient, store storage.TemplateStore, logger zerolog.Logger) *Service {
	return &Service{
		rdb:    rdb,
		store:  store,
		logger: logger.With().Str("component", "templates").Logger(),
	}
}

func cacheKey(channel notify.Channel, code string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, channel, code)
}

// Get resolves a template by channel and code.
func (s *Service) Get(ctx context.Context, channel notify.Channel, code string) (storage.Template, error) {
	key := cacheKey(channel, code)

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var tpl storage.Template
		if unmarshalErr := json.Unmarshal([]byte(raw), &tpl); unmarshalErr == nil {
			return tpl, nil
		}
		// Corrupt cache entry; fall through to the store.
		s.logger.Warn().Str("key", key).Msg("dropping unreadable cached template")
		s.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("key", key).Msg("template cache read failed")
	}

	tpl, storeErr := s.store.GetTemplate(ctx, channel, code)
	if storeErr != nil {
		return storage.Template{}, storeErr
	}

	if encoded, marshalErr := json.Marshal(tpl); marshalErr == nil {
		if setErr := s.rdb.Set(ctx, key, encoded, cacheTTL).Err(); setErr != nil {
			s.logger.Warn().Err(setErr).Str("key", key).Msg("template cache write failed")
		}
	}
	return tpl, nil
}
