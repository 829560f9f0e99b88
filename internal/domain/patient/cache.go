package patient

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const statusesCacheKey = "roster:statuses"

// cachedStatusRepo is a read-through Redis cache in front of a
// StatusRepository. Statuses are seeded reference data, so entries simply
// expire after ttl. Redis failures degrade to reading the database.
type cachedStatusRepo struct {
	next   StatusRepository
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedStatusRepo(next StatusRepository, client *redis.Client, ttl time.Duration, logger zerolog.Logger) StatusRepository {
	return &cachedStatusRepo{next: next, client: client, ttl: ttl, logger: logger}
}

func (r *cachedStatusRepo) List(ctx context.Context) ([]Status, error) {
	raw, err := r.client.Get(ctx, statusesCacheKey).Bytes()
	switch {
	case err == nil:
		var statuses []Status
		decodeErr := json.Unmarshal(raw, &statuses)
		if decodeErr == nil {
			return statuses, nil
		}
		r.logger.Warn().Err(decodeErr).Msg("discarding undecodable status cache entry")
	case !errors.Is(err, redis.Nil):
		r.logger.Warn().Err(err).Msg("status cache read failed")
	}

	statuses, err := r.next.List(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(statuses); err == nil {
		if err := r.client.Set(ctx, statusesCacheKey, data, r.ttl).Err(); err != nil {
			r.logger.Warn().Err(err).Msg("status cache write failed")
		}
	}
	return statuses, nil
}
