// Package redis stores scheduler timers in one Redis hash.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
)

const defaultHashKey = "clubhall:timers"

// TimerStore implements scheduler.PersistencePort. Durability follows the
// server's AOF configuration.
type TimerStore struct {
	client *redis.Client
	key    string
	log    zerolog.Logger
}

// Options selects the server and the hash holding the timers.
type Options struct {
	Addr     string
	Password string
	DB       int
	HashKey  string
	Logger   zerolog.Logger
}

// Open connects and pings the server.
func Open(ctx context.Context, opts Options) (*TimerStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	key := opts.HashKey
	if key == "" {
		key = defaultHashKey
	}
	return &TimerStore{
		client: client,
		key:    key,
		log:    opts.Logger.With().Str("component", "redis").Logger(),
	}, nil
}

func (s *TimerStore) Close() error {
	return s.client.Close()
}

func field(tenantID, timerID string, kind scheduler.Kind) string {
	return scheduler.Key{TenantID: tenantID, TimerID: timerID, Kind: kind}.String()
}

func (s *TimerStore) PutTimer(ctx context.Context, e scheduler.TimerEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal timer %s: %w", e.Key(), err)
	}
	if err := s.client.HSet(ctx, s.key, field(e.TenantID, e.TimerID, e.Kind), b).Err(); err != nil {
		return fmt.Errorf("put timer %s: %w", e.Key(), err)
	}
	return nil
}

func (s *TimerStore) DeleteTimer(ctx context.Context, tenantID, timerID string, kind scheduler.Kind) error {
	f := field(tenantID, timerID, kind)
	if err := s.client.HDel(ctx, s.key, f).Err(); err != nil {
		return fmt.Errorf("delete timer %s: %w", f, err)
	}
	return nil
}

// ListAllTimers skips rows that no longer decode; each skipped field is
// logged so it can be removed by hand.
func (s *TimerStore) ListAllTimers(ctx context.Context) ([]scheduler.TimerEntry, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	return s.decode(all), nil
}

func (s *TimerStore) decode(rows map[string]string) []scheduler.TimerEntry {
	out := make([]scheduler.TimerEntry, 0, len(rows))
	for f, raw := range rows {
		var e scheduler.TimerEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.log.Warn().Err(err).Str("hash", s.key).Str("field", f).Msg("skipping undecodable timer row")
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}
