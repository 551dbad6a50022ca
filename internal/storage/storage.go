// /internal/storage/storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TaomasSpace/clubhall-guard/datastore"
	"github.com/TaomasSpace/clubhall-guard/internal/guard"
	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
)

const guildKeyPrefix = "guild:"

type Storage struct {
	ds  *datastore.DataStore
	log zerolog.Logger

	// mu serialises read-modify-write of guild records.
	mu sync.Mutex

	defaultsMu sync.RWMutex
	defaults   map[guard.Category]guard.WindowPolicy
}

// MessageLog is an active message counting window.
type MessageLog struct {
	ChannelID string         `json:"channel_id"`
	TopN      int            `json:"top_n"`
	StartedAt time.Time      `json:"started_at"`
	EndsAt    time.Time      `json:"ends_at"`
	Counts    map[string]int `json:"counts"`
}

// Prisoner remembers the roles taken from a jailed member.
type Prisoner struct {
	UserID       string    `json:"user_id"`
	RoleIDs      []string  `json:"role_ids"`
	ReleaseAt    time.Time `json:"release_at"`
	ModeratorID  string    `json:"moderator_id"`
	SentencedFor string    `json:"sentenced_for,omitempty"`
}

type Record struct {
	Policies     map[guard.Category]guard.WindowPolicy `json:"policies"`
	SafeUsers    []string                              `json:"safe_users"`
	SafeRoles    []string                              `json:"safe_roles"`
	LogChannelID string                                `json:"log_channel_id"`
	PrisonRoleID string                                `json:"prison_role_id"`
	Timers       map[string]scheduler.TimerEntry       `json:"timers"` // key = kind/timerID
	Prisoners    map[string]Prisoner                   `json:"prisoners"`
	MessageLog   *MessageLog                           `json:"message_log,omitempty"`
}

func New(filePath string, logger zerolog.Logger) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	cfg.Logger = logger
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{
		ds:       ds,
		log:      logger.With().Str("component", "storage").Logger(),
		defaults: map[guard.Category]guard.WindowPolicy{},
	}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func guildKey(guildID string) string { return guildKeyPrefix + guildID }

// getOrCreateGuildRecord loads a guild record, filling nil maps. Callers
// must hold s.mu when they intend to write the record back.
func (s *Storage) getOrCreateGuildRecord(guildID string) (*Record, error) {
	var record Record
	if _, err := s.ds.Get(guildKey(guildID), &record); err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}

	if record.Policies == nil {
		record.Policies = map[guard.Category]guard.WindowPolicy{}
	}
	if record.Timers == nil {
		record.Timers = map[string]scheduler.TimerEntry{}
	}
	if record.Prisoners == nil {
		record.Prisoners = map[string]Prisoner{}
	}
	return &record, nil
}

// update applies fn to the guild record and stores it. When durable is set
// the store is synced to disk before update returns.
func (s *Storage) update(guildID string, durable bool, fn func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := guildKey(guildID)
	var prev json.RawMessage
	existed, err := s.ds.Get(key, &prev)
	if err != nil {
		return fmt.Errorf("load guild %s: %w", guildID, err)
	}

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}
	if err := fn(record); err != nil {
		return err
	}
	if err := s.ds.Put(key, record); err != nil {
		return fmt.Errorf("store guild %s: %w", guildID, err)
	}
	if !durable {
		return nil
	}
	if err := s.ds.Sync(); err != nil {
		// a failed durable write must not survive in memory for autosave
		if rerr := s.rollback(key, prev, existed); rerr != nil {
			s.log.Error().Err(rerr).Str("guild", guildID).Msg("failed to roll back guild record")
		}
		return fmt.Errorf("sync guild %s: %w", guildID, err)
	}
	return nil
}

func (s *Storage) rollback(key string, prev json.RawMessage, existed bool) error {
	if !existed {
		return s.ds.Delete(key)
	}
	return s.ds.Put(key, prev)
}

func (s *Storage) read(guildID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateGuildRecord(guildID)
}

// GuildIDs lists every guild with a stored record.
func (s *Storage) GuildIDs() []string {
	keys := s.ds.Keys(guildKeyPrefix)
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strings.TrimPrefix(k, guildKeyPrefix)
	}
	return ids
}

func (s *Storage) SetLogChannel(guildID, channelID string) error {
	return s.update(guildID, true, func(r *Record) error {
		r.LogChannelID = channelID
		return nil
	})
}

func (s *Storage) LogChannel(guildID string) (string, error) {
	r, err := s.read(guildID)
	if err != nil {
		return "", err
	}
	return r.LogChannelID, nil
}

func (s *Storage) SetPrisonRole(guildID, roleID string) error {
	return s.update(guildID, true, func(r *Record) error {
		r.PrisonRoleID = roleID
		return nil
	})
}

func (s *Storage) PrisonRole(guildID string) (string, error) {
	r, err := s.read(guildID)
	if err != nil {
		return "", err
	}
	return r.PrisonRoleID, nil
}
