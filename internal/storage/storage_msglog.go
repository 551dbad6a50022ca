package storage

import (
	"errors"
	"sort"
	"time"
)

var ErrNoMessageLog = errors.New("no message log running")

// MessageCount is one leaderboard row.
type MessageCount struct {
	UserID string
	Count  int
}

// StartMessageLog begins a fresh counting window, discarding any previous
// counts for the guild.
func (s *Storage) StartMessageLog(guildID, channelID string, topN int, start, end time.Time) error {
	return s.update(guildID, true, func(r *Record) error {
		r.MessageLog = &MessageLog{
			ChannelID: channelID,
			TopN:      topN,
			StartedAt: start,
			EndsAt:    end,
			Counts:    map[string]int{},
		}
		return nil
	})
}

// RestoreMessageLog puts back a window saved with MessageLog. A nil log
// clears the guild's window.
func (s *Storage) RestoreMessageLog(guildID string, log *MessageLog) error {
	return s.update(guildID, true, func(r *Record) error {
		r.MessageLog = log
		return nil
	})
}

// CountMessage increments a user's counter while a window is running. It
// reports whether the message was counted. Counts are left to autosave.
func (s *Storage) CountMessage(guildID, userID string) (bool, error) {
	counted := false
	err := s.update(guildID, false, func(r *Record) error {
		if r.MessageLog == nil {
			return nil
		}
		if r.MessageLog.Counts == nil {
			r.MessageLog.Counts = map[string]int{}
		}
		r.MessageLog.Counts[userID]++
		counted = true
		return nil
	})
	return counted, err
}

func (s *Storage) MessageLog(guildID string) (*MessageLog, error) {
	r, err := s.read(guildID)
	if err != nil {
		return nil, err
	}
	return r.MessageLog, nil
}

// FinishMessageLog ends the window and returns the top n counters,
// highest first, ties broken by user ID.
func (s *Storage) FinishMessageLog(guildID string, n int) ([]MessageCount, error) {
	var top []MessageCount
	err := s.update(guildID, true, func(r *Record) error {
		if r.MessageLog == nil {
			return ErrNoMessageLog
		}
		top = TopCounts(r.MessageLog.Counts, n)
		r.MessageLog = nil
		return nil
	})
	return top, err
}

func TopCounts(counts map[string]int, n int) []MessageCount {
	rows := make([]MessageCount, 0, len(counts))
	for id, c := range counts {
		rows = append(rows, MessageCount{UserID: id, Count: c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].UserID < rows[j].UserID
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
