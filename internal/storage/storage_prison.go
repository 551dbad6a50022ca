package storage

// SetPrisoner records a sentence so the removed roles can be restored even
// if the release timer payload is lost.
func (s *Storage) SetPrisoner(guildID string, p Prisoner) error {
	return s.update(guildID, true, func(r *Record) error {
		r.Prisoners[p.UserID] = p
		return nil
	})
}

// TakePrisoner removes and returns the stored sentence of a user.
func (s *Storage) TakePrisoner(guildID, userID string) (Prisoner, bool, error) {
	var (
		p  Prisoner
		ok bool
	)
	err := s.update(guildID, true, func(r *Record) error {
		p, ok = r.Prisoners[userID]
		delete(r.Prisoners, userID)
		return nil
	})
	return p, ok, err
}

func (s *Storage) Prisoners(guildID string) (map[string]Prisoner, error) {
	r, err := s.read(guildID)
	if err != nil {
		return nil, err
	}
	return r.Prisoners, nil
}
