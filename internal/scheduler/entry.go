package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind names the action a timer performs when it fires.
type Kind string

const (
	KindGiveaway        Kind = "giveaway"
	KindPrisonRelease   Kind = "prison-release"
	KindMessageLogFlush Kind = "message-log-flush"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindGiveaway, KindPrisonRelease, KindMessageLogFlush:
		return k, nil
	}
	return "", fmt.Errorf("unknown timer kind %q", s)
}

// Key identifies at most one live timer.
type Key struct {
	TenantID string
	TimerID  string
	Kind     Kind
}

func (k Key) String() string {
	return strings.Join([]string{k.TenantID, string(k.Kind), k.TimerID}, "/")
}

// TimerEntry is the persisted form of a pending delayed action.
type TimerEntry struct {
	TenantID string          `json:"tenant_id"`
	TimerID  string          `json:"timer_id"`
	Kind     Kind            `json:"kind"`
	Deadline time.Time       `json:"deadline"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Key returns the identity of the entry.
func (e TimerEntry) Key() Key {
	return Key{TenantID: e.TenantID, TimerID: e.TimerID, Kind: e.Kind}
}

// Validate checks that the entry can be stored and armed.
func (e TimerEntry) Validate() error {
	if e.TenantID == "" || e.TimerID == "" {
		return fmt.Errorf("%w: tenant and timer id are required", ErrInvalidEntry)
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if e.Deadline.IsZero() {
		return fmt.Errorf("%w: deadline is required", ErrInvalidEntry)
	}
	if len(e.Payload) > 0 && !json.Valid(e.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidEntry)
	}
	return nil
}

var (
	// ErrPersistence wraps a failed write-ahead PutTimer; nothing was armed.
	ErrPersistence  = errors.New("timer persistence failed")
	ErrInvalidEntry = errors.New("invalid timer entry")
	ErrNoHandler    = errors.New("no fire handler")
	ErrClosed       = errors.New("scheduler closed")
)

// FireFunc performs the delayed action. Errors are logged, never retried.
type FireFunc func(ctx context.Context, entry TimerEntry) error

// PersistencePort is the durable deadline store. PutTimer and DeleteTimer
// must be crash-durable before they return; DeleteTimer of a missing row is
// not an error.
type PersistencePort interface {
	PutTimer(ctx context.Context, entry TimerEntry) error
	DeleteTimer(ctx context.Context, tenantID, timerID string, kind Kind) error
	ListAllTimers(ctx context.Context) ([]TimerEntry, error)
}

// GiveawayPayload is carried by KindGiveaway timers.
type GiveawayPayload struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Prize     string `json:"prize"`
	Winners   int    `json:"winners"`
	HostID    string `json:"host_id"`
}

// PrisonPayload is carried by KindPrisonRelease timers.
type PrisonPayload struct {
	UserID         string   `json:"user_id"`
	PrisonRoleID   string   `json:"prison_role_id"`
	RestoreRoleIDs []string `json:"restore_role_ids"`
	ModeratorID    string   `json:"moderator_id,omitempty"`
}

// MessageLogPayload is carried by KindMessageLogFlush timers.
type MessageLogPayload struct {
	ChannelID string    `json:"channel_id"`
	TopN      int       `json:"top_n"`
	StartedAt time.Time `json:"started_at"`
}

// EncodePayload marshals a payload for a TimerEntry.
func EncodePayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// DecodePayload unmarshals the entry payload into v.
func (e TimerEntry) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("timer %s has no payload", e.Key())
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode payload of %s: %w", e.Key(), err)
	}
	return nil
}
