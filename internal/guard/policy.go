package guard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category classifies a monitored destructive action.
type Category string

const (
	CategoryRoleDelete    Category = "role-delete"
	CategoryRoleCreate    Category = "role-create"
	CategoryKick          Category = "kick"
	CategoryBan           Category = "ban"
	CategoryChannelDelete Category = "channel-delete"
	CategoryWebhookCreate Category = "webhook-create"
	CategoryMentionFlood  Category = "mention-flood"
)

var categories = []Category{
	CategoryRoleDelete,
	CategoryRoleCreate,
	CategoryKick,
	CategoryBan,
	CategoryChannelDelete,
	CategoryWebhookCreate,
	CategoryMentionFlood,
}

// Categories returns every known category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// PunishmentKind is the remedial action applied when a threshold is crossed.
type PunishmentKind string

const (
	PunishTimeout    PunishmentKind = "timeout"
	PunishStripRoles PunishmentKind = "strip-roles"
	PunishKick       PunishmentKind = "kick"
	PunishBan        PunishmentKind = "ban"
)

// ParsePunishment validates a punishment name.
func ParsePunishment(s string) (PunishmentKind, error) {
	switch p := PunishmentKind(strings.ToLower(strings.TrimSpace(s))); p {
	case PunishTimeout, PunishStripRoles, PunishKick, PunishBan:
		return p, nil
	}
	return "", fmt.Errorf("unknown punishment %q", s)
}

var (
	ErrInvalidThreshold = errors.New("threshold must be at least 1")
	ErrTimeoutDuration  = errors.New("timeout duration is required for timeout punishment only")
)

// WindowPolicy configures one category for one tenant. It is always handled
// by value so a stored policy can change without touching an evaluation that
// already read it.
type WindowPolicy struct {
	Enabled         bool           `json:"enabled" yaml:"enabled"`
	ThresholdCount  int            `json:"threshold" yaml:"threshold"`
	Punishment      PunishmentKind `json:"punishment" yaml:"punishment"`
	TimeoutDuration time.Duration  `json:"timeout_duration,omitempty" yaml:"timeout"`
}

// Validate checks the policy invariants.
func (p WindowPolicy) Validate() error {
	if p.ThresholdCount < 1 {
		return ErrInvalidThreshold
	}
	if _, err := ParsePunishment(string(p.Punishment)); err != nil {
		return err
	}
	if (p.Punishment == PunishTimeout) != (p.TimeoutDuration > 0) {
		return ErrTimeoutDuration
	}
	return nil
}

// ExemptionSet lists actors and roles the guard never counts.
type ExemptionSet struct {
	SafeActorIDs map[string]struct{}
	SafeRoleIDs  map[string]struct{}
}

// NewExemptionSet builds a set from id slices.
func NewExemptionSet(actorIDs, roleIDs []string) ExemptionSet {
	e := ExemptionSet{
		SafeActorIDs: make(map[string]struct{}, len(actorIDs)),
		SafeRoleIDs:  make(map[string]struct{}, len(roleIDs)),
	}
	for _, id := range actorIDs {
		e.SafeActorIDs[id] = struct{}{}
	}
	for _, id := range roleIDs {
		e.SafeRoleIDs[id] = struct{}{}
	}
	return e
}

// IsExempt reports whether the actor or any of its roles is whitelisted.
func (e ExemptionSet) IsExempt(actorID string, roleIDs []string) bool {
	if _, ok := e.SafeActorIDs[actorID]; ok {
		return true
	}
	for _, r := range roleIDs {
		if _, ok := e.SafeRoleIDs[r]; ok {
			return true
		}
	}
	return false
}

// EventRecord is one abuse-relevant action as delivered by the gateway.
type EventRecord struct {
	TenantID  string
	Category  Category
	ActorID   string
	RoleIDs   []string
	Timestamp time.Time
}

// Result is the outcome of recording an event. Callers must test Triggered:
// an accounted event that stays below the threshold still reports its
// Category and running Count.
type Result struct {
	Triggered       bool
	Category        Category
	Punishment      PunishmentKind
	TimeoutDuration time.Duration
	Count           int
}

// NoTrigger is returned for events that are not accounted at all: the
// category is disabled or unconfigured, or the actor is exempt.
var NoTrigger = Result{}

// PolicyStore supplies per-tenant configuration.
type PolicyStore interface {
	GetPolicy(tenantID string, category Category) (WindowPolicy, bool, error)
	GetExemptions(tenantID string) (ExemptionSet, error)
}
