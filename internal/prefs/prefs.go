// Package prefs holds per-user settings in process memory. Nothing here is
// persisted: preferences live from process start to process exit.
package prefs

import (
	"sync"

	"linkrelay/internal/media"
)

// Store maps user IDs to preferences. Records are created lazily on first
// access and never removed. Concurrent writers are last-write-wins.
type Store struct {
	mu       sync.Mutex
	defaults media.UserPreferences
	users    map[int64]*media.UserPreferences
}

// NewStore returns an empty store. New records start with quality q.
func NewStore(q media.Quality) *Store {
	if !q.Valid() {
		q = media.DefaultQuality
	}
	return &Store{
		defaults: media.UserPreferences{Quality: q},
		users:    make(map[int64]*media.UserPreferences),
	}
}

// Get returns a copy of the user's preferences, creating the record if needed.
func (s *Store) Get(userID int64) media.UserPreferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.record(userID)
}

// Update applies fn to the user's record and returns the result.
func (s *Store) Update(userID int64, fn func(*media.UserPreferences)) media.UserPreferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.record(userID)
	fn(p)
	return *p
}

func (s *Store) SetThumbnail(userID int64, ref string) {
	s.Update(userID, func(p *media.UserPreferences) { p.ThumbnailRef = ref })
}

func (s *Store) SetChannel(userID int64, channel string) {
	s.Update(userID, func(p *media.UserPreferences) { p.Channel = channel })
}

func (s *Store) SetCaption(userID int64, template string) {
	s.Update(userID, func(p *media.UserPreferences) { p.CaptionTemplate = template })
}

func (s *Store) SetQuality(userID int64, q media.Quality) {
	s.Update(userID, func(p *media.UserPreferences) { p.Quality = q })
}

// Len reports how many users have a record.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// record must be called with mu held.
func (s *Store) record(userID int64) *media.UserPreferences {
	p, ok := s.users[userID]
	if !ok {
		cp := s.defaults
		p = &cp
		s.users[userID] = p
	}
	return p
}
