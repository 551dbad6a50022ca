package storage

import (
	"slices"

	"github.com/TaomasSpace/clubhall-guard/internal/guard"
)

// SetDefaultPolicies replaces the fallback policies used by guilds that have
// not configured a category themselves.
func (s *Storage) SetDefaultPolicies(defaults map[guard.Category]guard.WindowPolicy) {
	copied := make(map[guard.Category]guard.WindowPolicy, len(defaults))
	for k, v := range defaults {
		copied[k] = v
	}
	s.defaultsMu.Lock()
	s.defaults = copied
	s.defaultsMu.Unlock()
}

// GetPolicy returns the guild's own policy, else the default one.
func (s *Storage) GetPolicy(guildID string, category guard.Category) (guard.WindowPolicy, bool, error) {
	r, err := s.read(guildID)
	if err != nil {
		return guard.WindowPolicy{}, false, err
	}
	if p, ok := r.Policies[category]; ok {
		return p, true, nil
	}

	s.defaultsMu.RLock()
	defer s.defaultsMu.RUnlock()
	p, ok := s.defaults[category]
	return p, ok, nil
}

// Policies returns the effective policy of every configured category.
func (s *Storage) Policies(guildID string) (map[guard.Category]guard.WindowPolicy, error) {
	r, err := s.read(guildID)
	if err != nil {
		return nil, err
	}

	out := map[guard.Category]guard.WindowPolicy{}
	s.defaultsMu.RLock()
	for k, v := range s.defaults {
		out[k] = v
	}
	s.defaultsMu.RUnlock()
	for k, v := range r.Policies {
		out[k] = v
	}
	return out, nil
}

func (s *Storage) SetPolicy(guildID string, category guard.Category, policy guard.WindowPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	return s.update(guildID, true, func(r *Record) error {
		r.Policies[category] = policy
		return nil
	})
}

// DisablePolicy stores an explicit disabled policy so a default cannot
// re-enable the category.
func (s *Storage) DisablePolicy(guildID string, category guard.Category) error {
	return s.update(guildID, true, func(r *Record) error {
		p := r.Policies[category]
		p.Enabled = false
		r.Policies[category] = p
		return nil
	})
}

func (s *Storage) GetExemptions(guildID string) (guard.ExemptionSet, error) {
	r, err := s.read(guildID)
	if err != nil {
		return guard.ExemptionSet{}, err
	}
	return guard.NewExemptionSet(r.SafeUsers, r.SafeRoles), nil
}

// SetSafeUser adds or removes a user from the exemption list.
func (s *Storage) SetSafeUser(guildID, userID string, safe bool) error {
	return s.update(guildID, true, func(r *Record) error {
		r.SafeUsers = toggle(r.SafeUsers, userID, safe)
		return nil
	})
}

// SetSafeRole adds or removes a role from the exemption list.
func (s *Storage) SetSafeRole(guildID, roleID string, safe bool) error {
	return s.update(guildID, true, func(r *Record) error {
		r.SafeRoles = toggle(r.SafeRoles, roleID, safe)
		return nil
	})
}

func toggle(list []string, id string, present bool) []string {
	i := slices.Index(list, id)
	switch {
	case present && i < 0:
		return append(list, id)
	case !present && i >= 0:
		return slices.Delete(list, i, i+1)
	}
	return list
}
