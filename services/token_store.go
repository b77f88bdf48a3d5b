// services/token_store.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"trailsafe/models"
	"trailsafe/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// TrackingLinkStore holds live tracking-link tokens. A token validates to
// exactly one incident and never outlives its expiry.
type TrackingLinkStore interface {
	Save(ctx context.Context, link models.TrackingLink) error
	// Get returns nil (no error) for unknown or expired tokens; expired
	// entries are deleted on access.
	Get(ctx context.Context, token string) (*models.TrackingLink, error)
	Delete(ctx context.Context, token string) error
	// DeleteByIncident invalidates every token bound to the incident.
	DeleteByIncident(ctx context.Context, incidentID string) (int, error)
}

// ---------- in-memory store (single-process reference design) ----------

type MemoryLinkStore struct {
	mu    sync.RWMutex
	links map[string]models.TrackingLink
	now   func() time.Time
}

func NewMemoryLinkStore() *MemoryLinkStore {
	return &MemoryLinkStore{
		links: make(map[string]models.TrackingLink),
		now:   time.Now,
	}
}

func (s *MemoryLinkStore) Save(ctx context.Context, link models.TrackingLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.Token] = link
	return nil
}

func (s *MemoryLinkStore) Get(ctx context.Context, token string) (*models.TrackingLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[token]
	if !ok {
		return nil, nil
	}
	if link.Expired(s.now()) {
		delete(s.links, token)
		return nil, nil
	}
	return &link, nil
}

func (s *MemoryLinkStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, token)
	return nil
}

func (s *MemoryLinkStore) DeleteByIncident(ctx context.Context, incidentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, link := range s.links {
		if link.IncidentID == incidentID {
			delete(s.links, token)
			removed++
		}
	}
	return removed, nil
}

// SweepExpired drops expired tokens; the background sweep worker calls this
// on a fixed interval.
func (s *MemoryLinkStore) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, link := range s.links {
		if link.Expired(now) {
			delete(s.links, token)
			removed++
		}
	}
	if removed > 0 {
		logrus.Debugf("Swept %d expired tracking tokens", removed)
	}
	return removed
}

// ---------- Redis store (multi-instance deployments) ----------

// RedisLinkStore keeps tokens in Redis with native TTLs so multiple
// instances can validate each other's links. An incident index set allows
// bulk invalidation on resolution.
type RedisLinkStore struct {
	client *redis.Client
}

func NewRedisLinkStore(client *redis.Client) *RedisLinkStore {
	return &RedisLinkStore{client: client}
}

func linkKey(token string) string          { return "tracking:token:" + token }
func incidentKey(incidentID string) string { return "tracking:incident:" + incidentID }

func (s *RedisLinkStore) Save(ctx context.Context, link models.TrackingLink) error {
	payload, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal tracking link: %w", err)
	}

	ttl := time.Until(link.ExpiresAt)
	if ttl <= 0 {
		return utils.NewValidationError("tracking link already expired")
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, linkKey(link.Token), payload, ttl)
	pipe.SAdd(ctx, incidentKey(link.IncidentID), link.Token)
	pipe.Expire(ctx, incidentKey(link.IncidentID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisLinkStore) Get(ctx context.Context, token string) (*models.TrackingLink, error) {
	payload, err := s.client.Get(ctx, linkKey(token)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var link models.TrackingLink
	if err := json.Unmarshal([]byte(payload), &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tracking link: %w", err)
	}

	// Redis TTL usually handles expiry; double-check for clock drift.
	if link.Expired(time.Now()) {
		s.client.Del(ctx, linkKey(token))
		return nil, nil
	}
	return &link, nil
}

func (s *RedisLinkStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, linkKey(token)).Err()
}

func (s *RedisLinkStore) DeleteByIncident(ctx context.Context, incidentID string) (int, error) {
	tokens, err := s.client.SMembers(ctx, incidentKey(incidentID)).Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}

	removed := 0
	for _, token := range tokens {
		if s.client.Del(ctx, linkKey(token)).Val() > 0 {
			removed++
		}
	}
	s.client.Del(ctx, incidentKey(incidentID))
	return removed, nil
}
