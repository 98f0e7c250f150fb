package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Ping is one location report from a field device. At is the device clock
// reading when the fix was taken, which may predate delivery by hours.
type Ping struct {
	AgentID int64     `json:"agent_id"`
	Lat     float64   `json:"lat"`
	Lng     float64   `json:"lng"`
	At      time.Time `json:"at"`
}

// LocationPersister durably records an agent's most recent location.
// Persistence is best effort; the cache copy is the serving source.
type LocationPersister interface {
	SetLastLocation(ctx context.Context, agentID int64, lat, lng float64, at time.Time) error
}

// PingStore holds the latest known location per agent in Redis. Pings carry
// device timestamps, so a late-delivered older ping never overwrites a newer
// one (last write by capture time wins, not by arrival).
type PingStore struct {
	rdb       *redis.Client
	persister LocationPersister
	ttl       time.Duration
}

// NewPingStore constructs a ping store. persister may be nil.
func NewPingStore(rdb *redis.Client, persister LocationPersister, ttl time.Duration) *PingStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PingStore{rdb: rdb, persister: persister, ttl: ttl}
}

func pingKey(agentID int64) string {
	return fmt.Sprintf("sync:lastseen:%d", agentID)
}

// Record stores the ping unless a newer one is already held. Returns whether
// the ping was applied.
func (s *PingStore) Record(ctx context.Context, ping Ping) (bool, error) {
	if ping.AgentID == 0 {
		return false, fmt.Errorf("%w: agent required", shared.ErrValidation)
	}
	if ping.At.IsZero() {
		return false, fmt.Errorf("%w: capture time required", shared.ErrValidation)
	}
	if ping.Lat < -90 || ping.Lat > 90 || ping.Lng < -180 || ping.Lng > 180 {
		return false, fmt.Errorf("%w: coordinates out of range", shared.ErrValidation)
	}

	current, err := s.Last(ctx, ping.AgentID)
	if err != nil && err != redis.Nil {
		return false, err
	}
	if err == nil && !current.At.Before(ping.At) {
		return false, nil
	}

	payload, err := json.Marshal(ping)
	if err != nil {
		return false, err
	}
	if err := s.rdb.Set(ctx, pingKey(ping.AgentID), payload, s.ttl).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrTransientStore, err)
	}
	if s.persister != nil {
		_ = s.persister.SetLastLocation(ctx, ping.AgentID, ping.Lat, ping.Lng, ping.At)
	}
	return true, nil
}

// Last returns the newest known ping for an agent. redis.Nil when none held.
func (s *PingStore) Last(ctx context.Context, agentID int64) (Ping, error) {
	raw, err := s.rdb.Get(ctx, pingKey(agentID)).Bytes()
	if err != nil {
		return Ping{}, err
	}
	var ping Ping
	if err := json.Unmarshal(raw, &ping); err != nil {
		return Ping{}, err
	}
	return ping, nil
}

// SyncPing applies a batch of pings for the caller's device. Only the newest
// per agent survives.
func (c *Coordinator) SyncPing(ctx context.Context, pings []Ping) (applied int, err error) {
	if c.pings == nil {
		return 0, nil
	}
	for _, ping := range pings {
		ok, err := c.pings.Record(ctx, ping)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}
