package storage

import (
	"context"
	"sort"

	"github.com/TaomasSpace/clubhall-guard/internal/scheduler"
)

func timerKey(kind scheduler.Kind, timerID string) string {
	return string(kind) + "/" + timerID
}

// PutTimer stores the entry and syncs the datastore before returning.
func (s *Storage) PutTimer(_ context.Context, entry scheduler.TimerEntry) error {
	return s.update(entry.TenantID, true, func(r *Record) error {
		r.Timers[timerKey(entry.Kind, entry.TimerID)] = entry
		return nil
	})
}

func (s *Storage) DeleteTimer(_ context.Context, guildID, timerID string, kind scheduler.Kind) error {
	s.mu.Lock()
	r, err := s.getOrCreateGuildRecord(guildID)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := r.Timers[timerKey(kind, timerID)]; !ok {
		return nil
	}

	return s.update(guildID, true, func(r *Record) error {
		delete(r.Timers, timerKey(kind, timerID))
		return nil
	})
}

func (s *Storage) ListAllTimers(context.Context) ([]scheduler.TimerEntry, error) {
	var out []scheduler.TimerEntry
	for _, guildID := range s.GuildIDs() {
		r, err := s.read(guildID)
		if err != nil {
			return nil, err
		}
		for _, e := range r.Timers {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out, nil
}
